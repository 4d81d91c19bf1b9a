// Package recommender is the operational surface over the similarity index,
// the query engine and the catalog: startup build or restore, queries,
// record mutations, snapshots and catalog statistics.
package recommender

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shelf/internal/config"
	"github.com/hyperjump/shelf/internal/embedding"
	"github.com/hyperjump/shelf/internal/keyword"
	"github.com/hyperjump/shelf/internal/metrics"
	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/internal/ranking"
	"github.com/hyperjump/shelf/internal/search"
	"github.com/hyperjump/shelf/internal/storage"
	"github.com/hyperjump/shelf/internal/vector"
)

// searchBooksK is the result count used by SearchBooks.
const searchBooksK = 100

// LLM is a remote provider that can both enhance queries and explain results.
type LLM interface {
	search.Enhancer
	search.Explainer
}

// Recommender ties the index, engine, catalog and title lookup together.
type Recommender struct {
	cfg      *config.Config
	catalog  storage.Catalog
	embedder embedding.Embedder
	index    *vector.Index
	engine   *search.Engine
	titles   keyword.TitleIndex
	speller  *keyword.Speller
	mode     vector.SearchMode
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// writeMu orders mutations so the title index follows the similarity index.
	writeMu sync.Mutex
}

// Option configures a Recommender.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	llm     LLM
	titles  keyword.TitleIndex
	now     func() time.Time
}

// WithLogger sets the logger shared by the index and the engine.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics shared by the index and the engine.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLLM sets the remote provider used when search.enhancer or
// search.explainer is "llm".
func WithLLM(p LLM) Option {
	return func(o *options) { o.llm = p }
}

// WithTitleIndex enables FindByTitle. When the index also exposes its term
// dictionary, lookups that miss are retried with spelling correction.
func WithTitleIndex(t keyword.TitleIndex) Option {
	return func(o *options) { o.titles = t }
}

// WithClock replaces the clock used to stamp new records, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New validates cfg, wires the index and the engine, and builds or restores
// the index. The catalog and title index stay owned by the caller.
func New(ctx context.Context, cfg *config.Config, catalog storage.Catalog, embedder embedding.Embedder, opts ...Option) (*Recommender, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if catalog == nil || embedder == nil {
		return nil, fmt.Errorf("catalog and embedder are required: %w", models.ErrValidation)
	}
	if embedder.Dimensions() != cfg.Index.Dimensions {
		return nil, &models.DimensionError{Expected: cfg.Index.Dimensions, Got: embedder.Dimensions()}
	}
	mode, err := vector.ParseSearchMode(cfg.Index.SearchMode)
	if err != nil {
		return nil, err
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	enhancer, explainer, err := providers(&cfg.Search, o.llm)
	if err != nil {
		return nil, err
	}

	index, err := vector.NewIndex(catalog, vector.Config{
		Dimensions:  cfg.Index.Dimensions,
		NList:       cfg.Index.NList,
		NProbe:      cfg.Index.NProbe,
		TrainSample: cfg.Index.TrainSample,
		ChunkSize:   cfg.Index.AddChunkSize,
		CacheSize:   cfg.Index.CacheSize,
		CacheTTL:    cfg.Index.CacheTTL,
	}, vector.WithLogger(o.logger), vector.WithMetrics(o.metrics))
	if err != nil {
		return nil, err
	}

	engineOpts := []search.Option{
		search.WithMode(mode),
		search.WithLogger(o.logger),
		search.WithMetrics(o.metrics),
	}
	if enhancer != nil {
		engineOpts = append(engineOpts, search.WithEnhancer(enhancer))
	}
	engineOpts = append(engineOpts, search.WithExplainer(explainer))
	engine := search.NewEngine(index, catalog, embedder, ranking.NewRanker(&cfg.Ranking), &cfg.Search, engineOpts...)

	r := &Recommender{
		cfg:      cfg,
		catalog:  catalog,
		embedder: embedder,
		index:    index,
		engine:   engine,
		titles:   o.titles,
		mode:     mode,
		logger:   o.logger,
		metrics:  o.metrics,
		now:      o.now,
	}
	if dict, ok := o.titles.(keyword.TermDictionary); ok {
		r.speller = keyword.NewSpeller(dict)
	}
	if err := r.start(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// providers resolves the configured enhancer and explainer. A nil enhancer
// means queries are used verbatim.
func providers(cfg *config.SearchConfig, remote LLM) (search.Enhancer, search.Explainer, error) {
	needsLLM := cfg.Enhancer == "llm" || cfg.Explainer == "llm"
	if needsLLM && remote == nil {
		return nil, nil, fmt.Errorf("search uses the llm provider but none is configured: %w", models.ErrValidation)
	}
	var enhancer search.Enhancer
	switch cfg.Enhancer {
	case "llm":
		enhancer = remote
	case "keyword":
		enhancer = search.KeywordEnhancer{}
	}
	var explainer search.Explainer = search.TemplateExplainer{}
	if cfg.Explainer == "llm" {
		explainer = remote
	}
	return enhancer, explainer, nil
}

// start restores the configured snapshot when allowed and present, and
// otherwise builds the index from the catalog. A snapshot that fails to load
// is logged and replaced by a fresh build.
func (r *Recommender) start(ctx context.Context) error {
	path := r.cfg.Storage.IndexPath
	if r.cfg.Index.LoadExistingOrDefault() && path != "" && vector.SnapshotExists(path) {
		err := r.index.Restore(ctx, path)
		if err == nil {
			r.logger.Info("Loaded existing index", zap.String("path", path), zap.Int("records", r.index.Size()))
			r.syncTitles(ctx)
			return nil
		}
		r.logger.Warn("Failed to load existing index, building a new one", zap.String("path", path), zap.Error(err))
	}
	return r.build(ctx)
}

// build re-reads the catalog, keeps the eligible records, embeds those
// without a usable embedding and initializes the index from them.
func (r *Recommender) build(ctx context.Context) error {
	all, err := r.catalog.List(ctx)
	if err != nil {
		return models.NewOpError("build", err)
	}
	eligible := r.eligible(all)
	records, err := r.embedMissing(ctx, eligible)
	if err != nil {
		return models.NewOpError("build", err)
	}
	if err := r.index.Initialize(ctx, records); err != nil {
		return err
	}
	r.logger.Info("Built index from catalog",
		zap.Int("catalog", len(all)),
		zap.Int("indexed", len(records)))
	r.syncTitles(ctx)
	return nil
}

// eligible keeps records with at least min_ratings ratings and, when a
// language filter is set, a matching language.
func (r *Recommender) eligible(records []*models.Record) []*models.Record {
	minRatings := r.cfg.Search.MinRatingsOrDefault()
	language := r.cfg.Search.LanguageFilterOrDefault()
	out := make([]*models.Record, 0, len(records))
	for _, rec := range records {
		if rec.RatingsCount() < minRatings {
			continue
		}
		if language != "" && !strings.EqualFold(rec.Language(), language) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// embedMissing returns records with every missing embedding filled in from
// the document text. Records that carry an embedding are returned unchanged,
// so a wrong-length vector still fails at the index.
func (r *Recommender) embedMissing(ctx context.Context, records []*models.Record) ([]*models.Record, error) {
	var pending []int
	var texts []string
	for i, rec := range records {
		if rec.Embedding == nil {
			pending = append(pending, i)
			texts = append(texts, rec.DocumentText())
		}
	}
	if len(pending) == 0 {
		return records, nil
	}
	vectors, err := embedding.EmbedAll(ctx, r.embedder, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d records: %w", len(pending), err)
	}
	out := append([]*models.Record(nil), records...)
	for j, i := range pending {
		rec := out[i].Clone()
		rec.Embedding = vectors[j]
		out[i] = rec
	}
	r.logger.Debug("Embedded records", zap.Int("count", len(pending)))
	return out, nil
}

// syncTitles makes the title index hold exactly the indexed catalog records.
func (r *Recommender) syncTitles(ctx context.Context) {
	if r.titles == nil {
		return
	}
	records, err := r.catalog.List(ctx)
	if err == nil {
		indexed := records[:0]
		for _, rec := range records {
			if r.index.Contains(rec.ID) {
				indexed = append(indexed, rec)
			}
		}
		err = r.titles.Replace(ctx, indexed)
	}
	r.titlesChanged("replace", err)
}

// titlesChanged drops the speller vocabulary and logs a title index failure.
// The title index is secondary; a failure leaves the similarity index as is.
func (r *Recommender) titlesChanged(op string, err error) {
	if r.speller != nil {
		r.speller.Invalidate()
	}
	if err != nil {
		r.logger.Warn("Title index update failed", zap.String("op", op), zap.Error(err))
	}
}

// Index exposes the similarity index.
func (r *Recommender) Index() *vector.Index { return r.index }

// Config returns the configuration the recommender was built with.
func (r *Recommender) Config() *config.Config { return r.cfg }
