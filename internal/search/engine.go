// Package search runs the recommendation pipeline: augment, vectorize,
// retrieve, filter, score, rank, truncate and explain.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/shelf/internal/config"
	"github.com/hyperjump/shelf/internal/embedding"
	"github.com/hyperjump/shelf/internal/metrics"
	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/internal/ranking"
	"github.com/hyperjump/shelf/internal/storage"
	"github.com/hyperjump/shelf/internal/vector"
	"github.com/hyperjump/shelf/pkg/utils"
)

// Retriever is the similarity index as seen by the pipeline.
type Retriever interface {
	Search(ctx context.Context, query []float32, k int, mode vector.SearchMode) ([]*models.SearchResult, error)
	SearchSimilar(ctx context.Context, id string, k int, mode vector.SearchMode) ([]*models.SearchResult, error)
	Dimensions() int
}

var _ Retriever = (*vector.Index)(nil)

// Entry point labels used for logging and metrics.
const (
	EntryRecommend = "recommend"
	EntrySimilar   = "similar"
	EntryAuthor    = "author"
	EntrySeries    = "series"
)

// Engine runs recommendation queries.
type Engine struct {
	retriever Retriever
	catalog   storage.Catalog
	embedder  embedding.Embedder
	ranker    *ranking.Ranker
	config    *config.SearchConfig
	mode      vector.SearchMode
	enhancer  Enhancer
	explainer Explainer
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithEnhancer sets the query enhancer. Without one the query is used verbatim.
func WithEnhancer(e Enhancer) Option {
	return func(en *Engine) { en.enhancer = e }
}

// WithExplainer sets the explanation provider. Without one every result gets
// the template explanation.
func WithExplainer(e Explainer) Option {
	return func(en *Engine) { en.explainer = e }
}

// WithMode sets the retrieval engine. Defaults to vector.Exact.
func WithMode(m vector.SearchMode) Option {
	return func(en *Engine) { en.mode = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(en *Engine) { en.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(en *Engine) { en.metrics = m }
}

// NewEngine creates a search engine with the given dependencies. A nil cfg uses defaults.
func NewEngine(
	retriever Retriever,
	catalog storage.Catalog,
	embedder embedding.Embedder,
	ranker *ranking.Ranker,
	cfg *config.SearchConfig,
	opts ...Option,
) *Engine {
	if cfg == nil {
		cfg = &config.Default().Search
	}
	if ranker == nil {
		ranker = ranking.NewRanker(nil)
	}
	e := &Engine{
		retriever: retriever,
		catalog:   catalog,
		embedder:  embedder,
		ranker:    ranker,
		config:    cfg,
		mode:      vector.Exact,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Recommend returns up to k books matching a free-text query. k <= 0 uses the
// configured default. Provider failures degrade the answer and never fail it.
func (e *Engine) Recommend(ctx context.Context, query string, filter *models.QueryFilter, k int) (*models.RecommendationResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty: %w", models.ErrValidation)
	}
	return e.run(ctx, EntryRecommend, query, filter, k)
}

// Similar returns up to k books closest to the book with id, never the book itself.
func (e *Engine) Similar(ctx context.Context, id string, filter *models.QueryFilter, k int) (*models.RecommendationResponse, error) {
	start := time.Now()
	if id == "" {
		return nil, fmt.Errorf("id cannot be empty: %w", models.ErrValidation)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	k = e.resolveK(k)

	source, err := e.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	candidates, err := e.retriever.SearchSimilar(ctx, id, k*e.retrievalFactor(), e.mode)
	if err != nil {
		return nil, models.NewOpError("retrieve", err)
	}
	query := "books similar to " + source.Title()
	return e.finish(ctx, EntrySimilar, query, candidates, filter, k, start), nil
}

// ByAuthor recommends books by author, constraining the filter to that author.
func (e *Engine) ByAuthor(ctx context.Context, author string, filter *models.QueryFilter, k int) (*models.RecommendationResponse, error) {
	if strings.TrimSpace(author) == "" {
		return nil, fmt.Errorf("author cannot be empty: %w", models.ErrValidation)
	}
	return e.run(ctx, EntryAuthor, "books by author "+author, filter.WithAuthor(author), k)
}

// BySeries recommends books for a series phrase query.
func (e *Engine) BySeries(ctx context.Context, series string, filter *models.QueryFilter, k int) (*models.RecommendationResponse, error) {
	if strings.TrimSpace(series) == "" {
		return nil, fmt.Errorf("series cannot be empty: %w", models.ErrValidation)
	}
	return e.run(ctx, EntrySeries, "books in series "+series, filter, k)
}

func (e *Engine) run(ctx context.Context, entry, query string, filter *models.QueryFilter, k int) (*models.RecommendationResponse, error) {
	start := time.Now()
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	k = e.resolveK(k)

	enhanced := e.augment(ctx, query)
	vec := e.vectorize(ctx, enhanced)
	candidates, err := e.retriever.Search(ctx, vec, k*e.retrievalFactor(), e.mode)
	if err != nil {
		return nil, models.NewOpError("retrieve", err)
	}
	e.logger.Debug("Candidates retrieved",
		zap.String("entry", entry),
		zap.String("query", enhanced),
		zap.Int("candidates", len(candidates)))
	return e.finish(ctx, entry, query, candidates, filter, k, start), nil
}

// finish filters, scores, ranks, truncates and explains the candidates.
func (e *Engine) finish(ctx context.Context, entry, query string, candidates []*models.SearchResult, filter *models.QueryFilter, k int, start time.Time) *models.RecommendationResponse {
	filtered := Filter(candidates, filter)
	ranked := e.ranker.Rank(filtered, k)
	e.explain(ctx, ranked, query)

	elapsed := time.Since(start)
	e.metrics.ObserveQuery(entry, elapsed.Seconds())
	if ranked == nil {
		ranked = []*models.RecommendationResult{}
	}
	return &models.RecommendationResponse{
		Query:     query,
		Results:   ranked,
		Total:     len(ranked),
		QueryTime: elapsed.Milliseconds(),
	}
}

// augment returns the enhanced query, or query itself when enhancement fails,
// times out or comes back blank.
func (e *Engine) augment(ctx context.Context, query string) string {
	if e.enhancer == nil {
		return query
	}
	cctx, cancel := e.providerContext(ctx)
	defer cancel()
	enhanced, err := e.enhancer.Enhance(cctx, query)
	if err == nil && strings.TrimSpace(enhanced) == "" {
		err = fmt.Errorf("blank enhancement: %w", models.ErrProvider)
	}
	if err != nil {
		e.fallback("augment", err)
		return query
	}
	return enhanced
}

// vectorize embeds the normalized query text. Any failure, including a
// vector of the wrong length, yields a zero vector of the index dimension.
func (e *Engine) vectorize(ctx context.Context, query string) []float32 {
	dim := e.retriever.Dimensions()
	cctx, cancel := e.providerContext(ctx)
	defer cancel()
	v, err := e.embedder.Embed(cctx, utils.NormalizeText(query))
	if err == nil && len(v) != dim {
		err = &models.DimensionError{Expected: dim, Got: len(v)}
	}
	if err != nil {
		e.fallback("vectorize", err)
		return make([]float32, dim)
	}
	out := append([]float32(nil), v...)
	utils.NormalizeL2(out)
	return out
}

// explain fills in every explanation, running at most ExplainConcurrency
// provider calls at once.
func (e *Engine) explain(ctx context.Context, results []*models.RecommendationResult, query string) {
	var g errgroup.Group
	g.SetLimit(max(e.config.ExplainConcurrency, 1))
	for _, r := range results {
		g.Go(func() error {
			r.Explanation = e.explainOne(ctx, r.Record, query)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) explainOne(ctx context.Context, r *models.Record, query string) string {
	summary := models.Summarize(r)
	if e.explainer == nil {
		return TemplateExplanation(summary)
	}
	cctx, cancel := e.providerContext(ctx)
	defer cancel()
	text, err := e.explainer.Explain(cctx, summary, query)
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("blank explanation: %w", models.ErrProvider)
	}
	if err != nil {
		e.fallback("explain", err, zap.String("id", r.ID))
		return TemplateExplanation(summary)
	}
	return strings.TrimSpace(text)
}

func (e *Engine) fallback(stage string, err error, fields ...zap.Field) {
	e.logger.Warn("Provider failed, using fallback",
		append([]zap.Field{zap.String("stage", stage), zap.Error(err)}, fields...)...)
	e.metrics.Fallback(stage)
}

func (e *Engine) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.config.ProviderTimeout)
}

func (e *Engine) resolveK(k int) int {
	if k > 0 {
		return k
	}
	if e.config.DefaultK > 0 {
		return e.config.DefaultK
	}
	return 5
}

func (e *Engine) retrievalFactor() int {
	return max(e.config.RetrievalFactor, 1)
}
