package vector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shelf/internal/cache"
	"github.com/hyperjump/shelf/internal/metrics"
	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/internal/storage"
	"github.com/hyperjump/shelf/pkg/utils"
)

// DefaultChunkSize is the number of records staged per step during Add.
const DefaultChunkSize = 100

// Config holds the index parameters. Zero values fall back to defaults, except Dimensions.
type Config struct {
	Dimensions  int
	NList       int
	NProbe      int
	TrainSample int // max vectors used to train the approximate engine; 0 = all
	ChunkSize   int
	CacheSize   int
	CacheTTL    time.Duration
}

// Hit is a cached similarity result: an id and its score, without the record.
type Hit struct {
	ID    string
	Score float64
}

// Index keeps the id↔offset mapping, the exact and approximate engines, the
// result cache and the catalog consistent. One writer at a time; many readers.
type Index struct {
	cfg     Config
	catalog storage.Catalog
	results *cache.Cache[[]Hit]
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	state *state
}

// state is one consistent snapshot of mapping and engines. Mutations build a
// new state and swap it in.
type state struct {
	ids     []string // offset -> id
	offsets map[string]int
	flat    *FlatEngine
	ivf     *IVFEngine
}

// Option configures an Index.
type Option func(*indexOptions)

type indexOptions struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *indexOptions) { o.logger = l }
}

// WithMetrics records mutations, index size and cache lookups.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *indexOptions) { o.metrics = m }
}

// WithCacheClock replaces the result cache clock, for tests.
func WithCacheClock(now func() time.Time) Option {
	return func(o *indexOptions) { o.clock = now }
}

// NewIndex creates an empty index over catalog.
func NewIndex(catalog storage.Catalog, cfg Config, opts ...Option) (*Index, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required: %w", models.ErrValidation)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d: %w", cfg.Dimensions, models.ErrValidation)
	}
	if cfg.NList <= 0 {
		cfg.NList = DefaultNList
	}
	if cfg.NProbe <= 0 {
		cfg.NProbe = DefaultNProbe
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = cache.DefaultCapacity
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}

	o := indexOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	cacheOpts := []cache.Option{cache.WithCounter(o.metrics.CacheCounter())}
	if o.clock != nil {
		cacheOpts = append(cacheOpts, cache.WithClock(o.clock))
	}
	results, err := cache.New[[]Hit](cfg.CacheSize, cfg.CacheTTL, cacheOpts...)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		cfg:     cfg,
		catalog: catalog,
		results: results,
		logger:  o.logger,
		metrics: o.metrics,
	}
	idx.state, err = idx.emptyState()
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) emptyState() (*state, error) {
	flat, err := NewFlatEngine(idx.cfg.Dimensions)
	if err != nil {
		return nil, err
	}
	ivf, err := NewIVFEngine(idx.cfg.Dimensions, idx.cfg.NList, idx.cfg.NProbe)
	if err != nil {
		return nil, err
	}
	return &state{offsets: make(map[string]int), flat: flat, ivf: ivf}, nil
}

func (s *state) clone() *state {
	offsets := make(map[string]int, len(s.offsets))
	for id, off := range s.offsets {
		offsets[id] = off
	}
	return &state{
		ids:     append([]string(nil), s.ids...),
		offsets: offsets,
		flat:    s.flat.Clone(),
		ivf:     s.ivf.Clone(),
	}
}

// engine returns the engine that serves mode. The approximate engine defers
// to the exact one until it is trained.
func (s *state) engine(mode SearchMode) Engine {
	if mode == Approximate && s.ivf.Trained() {
		return s.ivf
	}
	return s.flat
}

// engines lists every engine with the snapshot suffix it is stored under.
func (s *state) engines() []suffixedEngine {
	return []suffixedEngine{{FlatSuffix, s.flat}, {IVFSuffix, s.ivf}}
}

type suffixedEngine struct {
	suffix string
	engine Engine
}

func (s *state) append(id string, v []float32) error {
	if err := s.flat.Add(v); err != nil {
		return err
	}
	if err := s.ivf.Add(v); err != nil {
		return err
	}
	s.offsets[id] = len(s.ids)
	s.ids = append(s.ids, id)
	return nil
}

// Dimensions returns D.
func (idx *Index) Dimensions() int { return idx.cfg.Dimensions }

// Size returns the number of indexed records.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.state.ids)
}

// Trained reports whether the approximate engine can serve queries.
func (idx *Index) Trained() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.state.ivf.Trained()
}

// Contains reports whether id is indexed.
func (idx *Index) Contains(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.state.offsets[id]
	return ok
}

// IDs returns the indexed ids in offset order.
func (idx *Index) IDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]string(nil), idx.state.ids...)
}

// CacheLen returns the number of cached result lists.
func (idx *Index) CacheLen() int { return idx.results.Len() }

// CacheCapacity returns the maximum number of cached result lists.
func (idx *Index) CacheCapacity() int { return idx.results.Capacity() }

// SetCacheCapacity resizes the result cache.
func (idx *Index) SetCacheCapacity(n int) error { return idx.results.SetCapacity(n) }

// prepare validates r and returns a copy whose embedding is L2-normalized.
func (idx *Index) prepare(r *models.Record) (*models.Record, error) {
	if r == nil || r.ID == "" {
		return nil, fmt.Errorf("record id is required: %w", models.ErrValidation)
	}
	if r.Embedding == nil {
		return nil, fmt.Errorf("record %q: %w", r.ID, models.ErrMissingEmbedding)
	}
	if len(r.Embedding) != idx.cfg.Dimensions {
		return nil, &models.DimensionError{ID: r.ID, Expected: idx.cfg.Dimensions, Got: len(r.Embedding)}
	}
	out := r.Clone()
	utils.NormalizeL2(out.Embedding)
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now()
	}
	return out, nil
}

// train fits the approximate engine when enough vectors are present. Samples
// are taken at evenly spaced offsets so the result is deterministic.
func (idx *Index) train(s *state) error {
	n := s.flat.Size()
	if n < idx.cfg.NList {
		return nil
	}
	sample := n
	if idx.cfg.TrainSample > 0 && idx.cfg.TrainSample < n {
		sample = max(idx.cfg.TrainSample, idx.cfg.NList)
	}
	samples := make([][]float32, sample)
	for i := range samples {
		samples[i] = s.flat.Vector(i * n / sample)
	}
	return s.ivf.Train(samples)
}

// build creates a fresh state from prepared records and trains it.
func (idx *Index) build(records []*models.Record) (*state, error) {
	s, err := idx.emptyState()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if _, dup := s.offsets[r.ID]; dup {
			return nil, fmt.Errorf("duplicate record id %q: %w", r.ID, models.ErrValidation)
		}
		if err := s.append(r.ID, r.Embedding); err != nil {
			return nil, err
		}
	}
	if err := idx.train(s); err != nil {
		return nil, err
	}
	return s, nil
}

// compact rebuilds both engines from the live vectors of s, keeping offsets in
// relative order and keeping the trained centroids.
func compact(s *state, drop string) *state {
	out := &state{
		offsets: make(map[string]int, len(s.ids)),
		flat:    &FlatEngine{dimensions: s.flat.dimensions},
		ivf:     s.ivf.Clone(),
	}
	out.ivf.Reset()
	for off, id := range s.ids {
		if id == drop {
			continue
		}
		// Vectors were validated on entry; Add cannot fail here.
		_ = out.append(id, s.flat.Vector(off))
	}
	return out
}

// swap installs s and drops every cached result. Callers hold the write lock.
func (idx *Index) swap(s *state) {
	idx.state = s
	idx.results.InvalidateAll()
}

func (idx *Index) observe(op string, err error) {
	idx.metrics.Mutation(op, len(idx.state.ids), err)
}

// Initialize replaces the whole index with records and stores them in the
// catalog. Every record needs an embedding of length D. Catalog rows that are
// not among records are left in place, unindexed.
func (idx *Index) Initialize(ctx context.Context, records []*models.Record) (err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	defer func() { idx.observe("initialize", err) }()

	prepared := make([]*models.Record, len(records))
	for i, r := range records {
		if prepared[i], err = idx.prepare(r); err != nil {
			return models.NewOpError("initialize", err)
		}
	}
	s, err := idx.build(prepared)
	if err != nil {
		return models.NewOpError("initialize", err)
	}
	if err = idx.catalog.Put(ctx, prepared); err != nil {
		return models.NewOpError("initialize", err)
	}
	idx.swap(s)
	idx.logger.Info("Index initialized",
		zap.Int("records", len(s.ids)),
		zap.Bool("trained", s.ivf.Trained()))
	return nil
}

// Add appends records. The batch is all-or-nothing: on any failure the prior
// mapping, engines and catalog contents stay as they were.
func (idx *Index) Add(ctx context.Context, records []*models.Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	defer func() { idx.observe("add", err) }()

	staging := idx.state.clone()
	prepared := make([]*models.Record, 0, len(records))
	for start := 0; start < len(records); start += idx.cfg.ChunkSize {
		end := min(start+idx.cfg.ChunkSize, len(records))
		for _, r := range records[start:end] {
			p, err := idx.prepare(r)
			if err != nil {
				return models.NewOpError("add", err)
			}
			if _, dup := staging.offsets[p.ID]; dup {
				return models.NewOpError("add", fmt.Errorf("record %q already indexed: %w", p.ID, models.ErrValidation))
			}
			if err := staging.append(p.ID, p.Embedding); err != nil {
				return models.NewOpError("add", err)
			}
			prepared = append(prepared, p)
		}
		idx.logger.Debug("Staged chunk", zap.Int("from", start), zap.Int("to", end))
	}
	if !staging.ivf.Trained() {
		if err = idx.train(staging); err != nil {
			return models.NewOpError("add", err)
		}
	}
	if err = idx.catalog.Put(ctx, prepared); err != nil {
		return models.NewOpError("add", err)
	}
	idx.swap(staging)
	idx.logger.Info("Records added", zap.Int("added", len(prepared)), zap.Int("total", len(staging.ids)))
	return nil
}

// Remove deletes id from the mapping and catalog and rebuilds both engines
// from the remaining vectors, which costs O(N).
func (idx *Index) Remove(ctx context.Context, id string) (err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	defer func() { idx.observe("remove", err) }()

	if _, ok := idx.state.offsets[id]; !ok {
		return models.NewOpError("remove", fmt.Errorf("record %q: %w", id, models.ErrNotFound))
	}
	next := compact(idx.state, id)
	if err = idx.catalog.Delete(ctx, id); err != nil {
		return models.NewOpError("remove", err)
	}
	idx.swap(next)
	idx.logger.Info("Record removed", zap.String("id", id), zap.Int("total", len(next.ids)))
	return nil
}

// Upsert replaces the record with the same id in place, or appends it if new.
func (idx *Index) Upsert(ctx context.Context, r *models.Record) (err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	defer func() { idx.observe("upsert", err) }()

	p, err := idx.prepare(r)
	if err != nil {
		return models.NewOpError("upsert", err)
	}
	var next *state
	if off, ok := idx.state.offsets[p.ID]; ok {
		staging := idx.state.clone()
		if err = staging.flat.Set(off, p.Embedding); err != nil {
			return models.NewOpError("upsert", err)
		}
		next = compact(staging, "")
	} else {
		next = idx.state.clone()
		if err = next.append(p.ID, p.Embedding); err != nil {
			return models.NewOpError("upsert", err)
		}
		if !next.ivf.Trained() {
			if err = idx.train(next); err != nil {
				return models.NewOpError("upsert", err)
			}
		}
	}
	if err = idx.catalog.Put(ctx, []*models.Record{p}); err != nil {
		return models.NewOpError("upsert", err)
	}
	idx.swap(next)
	idx.logger.Info("Record upserted", zap.String("id", p.ID))
	return nil
}

// Rebuild rebuilds both engines from the indexed vectors and retrains the
// approximate engine from scratch. The catalog is untouched.
func (idx *Index) Rebuild(ctx context.Context) (err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	defer func() { idx.observe("rebuild", err) }()

	if err = ctx.Err(); err != nil {
		return models.NewOpError("rebuild", err)
	}
	cur := idx.state
	next, err := idx.emptyState()
	if err != nil {
		return models.NewOpError("rebuild", err)
	}
	for off, id := range cur.ids {
		_ = next.append(id, cur.flat.Vector(off))
	}
	if err = idx.train(next); err != nil {
		return models.NewOpError("rebuild", err)
	}
	idx.swap(next)
	idx.logger.Info("Index rebuilt", zap.Int("records", len(next.ids)), zap.Bool("trained", next.ivf.Trained()))
	return nil
}

// Search returns up to k hydrated results for query, most similar first,
// ties by ascending insertion order. Results are served through the cache.
func (idx *Index) Search(ctx context.Context, query []float32, k int, mode SearchMode) ([]*models.SearchResult, error) {
	if len(query) != idx.cfg.Dimensions {
		return nil, &models.DimensionError{Expected: idx.cfg.Dimensions, Got: len(query)}
	}
	if k <= 0 {
		return nil, nil
	}
	q := append([]float32(nil), query...)
	utils.NormalizeL2(q)

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	hits := idx.searchLocked(q, k, mode)
	return idx.hydrate(ctx, hits)
}

// SearchSimilar searches with the stored vector of id and leaves id out.
func (idx *Index) SearchSimilar(ctx context.Context, id string, k int, mode SearchMode) ([]*models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	off, ok := idx.state.offsets[id]
	if !ok {
		return nil, fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}
	hits := idx.searchLocked(idx.state.flat.Vector(off), k+1, mode)
	out := make([]Hit, 0, k)
	for _, h := range hits {
		if h.ID != id && len(out) < k {
			out = append(out, h)
		}
	}
	return idx.hydrate(ctx, out)
}

// searchLocked runs an engine query or serves it from the cache. Put happens
// under the read lock so a mutation cannot slip in between compute and store.
func (idx *Index) searchLocked(q []float32, k int, mode SearchMode) []Hit {
	key := cache.Fingerprint(q, k, string(mode))
	if hits, ok := idx.results.Get(key); ok {
		return hits
	}
	neighbors := idx.state.engine(mode).Search(q, k)
	hits := make([]Hit, len(neighbors))
	for i, n := range neighbors {
		hits[i] = Hit{ID: idx.state.ids[n.Offset], Score: n.Score}
	}
	idx.results.Put(key, hits)
	return hits
}

func (idx *Index) hydrate(ctx context.Context, hits []Hit) ([]*models.SearchResult, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	records, err := idx.catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate results: %w", err)
	}
	out := make([]*models.SearchResult, 0, len(hits))
	for _, h := range hits {
		r, ok := records[h.ID]
		if !ok {
			idx.logger.Warn("Indexed record missing from catalog", zap.String("id", h.ID))
			continue
		}
		out = append(out, &models.SearchResult{ID: h.ID, Similarity: h.Score, Record: r})
	}
	return out, nil
}
