package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/internal/storage"
)

func newTestIndex(t *testing.T, dim int) (*Index, *storage.MemoryCatalog) {
	t.Helper()
	catalog := storage.NewMemoryCatalog()
	idx, err := NewIndex(catalog, Config{Dimensions: dim, NList: 2, NProbe: 2, CacheSize: 8, CacheTTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	return idx, catalog
}

func record(id string, embedding ...float32) *models.Record {
	return &models.Record{ID: id, Text: id, Embedding: embedding, Metadata: map[string]any{"title": "Book " + id}}
}

func resultIDs(results []*models.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func TestNewIndex_Validation(t *testing.T) {
	catalog := storage.NewMemoryCatalog()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dimensions", Config{Dimensions: 0}},
		{"negative cache", Config{Dimensions: 2, CacheSize: -1}},
		{"negative ttl", Config{Dimensions: 2, CacheTTL: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewIndex(catalog, tt.cfg); !errors.Is(err, models.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestIndex_InitializeSelfSimilarity(t *testing.T) {
	idx, _ := newTestIndex(t, 3)
	ctx := context.Background()
	records := []*models.Record{
		record("a", 1, 0, 0),
		record("b", 0, 2, 0),
		record("c", 1, 1, 1),
		record("d", 0, 1, 3),
	}
	if err := idx.Initialize(ctx, records); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 4 || !idx.Trained() {
		t.Fatalf("size=%d trained=%v", idx.Size(), idx.Trained())
	}
	for _, mode := range []SearchMode{Exact, Approximate} {
		for _, r := range records {
			res, err := idx.Search(ctx, r.Embedding, 2, mode)
			if err != nil {
				t.Fatal(err)
			}
			if res[0].ID != r.ID || math.Abs(res[0].Similarity-1) > 1e-5 {
				t.Errorf("%s: query %s returned %s (%.4f) first", mode, r.ID, res[0].ID, res[0].Similarity)
			}
		}
	}
}

func TestIndex_InitializeRequiresEmbeddings(t *testing.T) {
	idx, _ := newTestIndex(t, 2)
	ctx := context.Background()

	err := idx.Initialize(ctx, []*models.Record{record("a", 1, 0), {ID: "b", Text: "b"}})
	if !errors.Is(err, models.ErrMissingEmbedding) {
		t.Errorf("expected ErrMissingEmbedding, got %v", err)
	}
	err = idx.Initialize(ctx, []*models.Record{record("a", 1, 0, 0)})
	var dimErr *models.DimensionError
	if !errors.As(err, &dimErr) || dimErr.ID != "a" {
		t.Errorf("expected DimensionError for a, got %v", err)
	}
	err = idx.Initialize(ctx, []*models.Record{record("a", 1, 0), record("a", 0, 1)})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("duplicate ids: expected ErrValidation, got %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("failed initialize changed size to %d", idx.Size())
	}
}

func TestIndex_SearchValidation(t *testing.T) {
	idx, _ := newTestIndex(t, 2)
	ctx := context.Background()
	_ = idx.Initialize(ctx, []*models.Record{record("a", 1, 0)})

	if _, err := idx.Search(ctx, []float32{1, 0, 0}, 1, Exact); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	res, err := idx.Search(ctx, []float32{1, 0}, 0, Exact)
	if err != nil || len(res) != 0 {
		t.Errorf("k=0: got %v, %v", res, err)
	}
}

func TestIndex_SearchServedFromCache(t *testing.T) {
	idx, catalog := newTestIndex(t, 2)
	ctx := context.Background()
	_ = idx.Initialize(ctx, []*models.Record{record("a", 1, 0), record("b", 0, 1), record("c", 1, 1)})

	q := []float32{0.8, 0.6}
	first, err := idx.Search(ctx, q, 2, Exact)
	if err != nil {
		t.Fatal(err)
	}
	if idx.CacheLen() != 1 {
		t.Fatalf("CacheLen=%d, want 1", idx.CacheLen())
	}
	second, _ := idx.Search(ctx, q, 2, Exact)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeat search differs: %v vs %v", resultIDs(first), resultIDs(second))
	}
	if idx.CacheLen() != 1 {
		t.Errorf("repeat search added an entry: CacheLen=%d", idx.CacheLen())
	}

	// Served results are hydrated from the catalog, not stored copies.
	_ = catalog.Put(ctx, []*models.Record{{ID: "c", Text: "changed", Embedding: []float32{1, 1}}})
	third, _ := idx.Search(ctx, q, 2, Exact)
	if third[0].ID != "c" || third[0].Record.Text != "changed" {
		t.Errorf("expected hydrated record, got %+v", third[0].Record)
	}
}

func TestIndex_CacheExpiresAfterTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	catalog := storage.NewMemoryCatalog()
	idx, err := NewIndex(catalog, Config{Dimensions: 2, CacheTTL: time.Minute},
		WithCacheClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = idx.Initialize(ctx, []*models.Record{record("a", 1, 0)})
	_, _ = idx.Search(ctx, []float32{1, 0}, 1, Exact)
	now = now.Add(2 * time.Minute)
	_, _ = idx.Search(ctx, []float32{0, 1}, 1, Exact)
	// The second Put reclaims the expired first entry.
	if idx.CacheLen() != 1 {
		t.Errorf("CacheLen=%d, want 1", idx.CacheLen())
	}
}

func TestIndex_AddAllOrNothing(t *testing.T) {
	idx, catalog := newTestIndex(t, 2)
	ctx := context.Background()
	_ = idx.Initialize(ctx, []*models.Record{record("a", 1, 0)})

	tests := []struct {
		name    string
		batch   []*models.Record
		wantErr error
	}{
		{"bad dimension mid batch", []*models.Record{record("b", 0, 1), record("c", 1)}, models.ErrDimensionMismatch},
		{"missing embedding", []*models.Record{record("b", 0, 1), {ID: "c"}}, models.ErrMissingEmbedding},
		{"already indexed", []*models.Record{record("b", 0, 1), record("a", 1, 1)}, models.ErrValidation},
		{"repeated in batch", []*models.Record{record("b", 0, 1), record("b", 1, 1)}, models.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := idx.Add(ctx, tt.batch); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if idx.Size() != 1 || idx.Contains("b") {
				t.Errorf("failed add leaked state: size=%d", idx.Size())
			}
			if n, _ := catalog.Count(ctx); n != 1 {
				t.Errorf("catalog count %d, want 1", n)
			}
		})
	}
}

func TestIndex_AddInChunksInvalidatesCache(t *testing.T) {
	catalog := storage.NewMemoryCatalog()
	idx, _ := NewIndex(catalog, Config{Dimensions: 2, NList: 4, ChunkSize: 3})
	ctx := context.Background()
	_ = idx.Initialize(ctx, []*models.Record{record("seed", 1, 0)})
	_, _ = idx.Search(ctx, []float32{1, 0}, 5, Exact)

	var batch []*models.Record
	for i := 0; i < 10; i++ {
		batch = append(batch, record(fmt.Sprintf("r%d", i), float32(i), 1))
	}
	if err := idx.Add(ctx, batch); err != nil {
		t.Fatal(err)
	}
	if idx.CacheLen() != 0 {
		t.Errorf("cache not invalidated: %d entries", idx.CacheLen())
	}
	if idx.Size() != 11 || !idx.Trained() {
		t.Errorf("size=%d trained=%v", idx.Size(), idx.Trained())
	}
	ids := idx.IDs()
	if ids[0] != "seed" || ids[10] != "r9" {
		t.Errorf("offsets not in insertion order: %v", ids)
	}
}

func TestIndex_RemoveNeverReturned(t *testing.T) {
	idx, catalog := newTestIndex(t, 2)
	ctx := context.Background()
	_ = idx.Initialize(ctx, []*models.Record{
		record("a", 1, 0), record("b", 0.9, 0.1), record("c", 0, 1), record("d", 0.5, 0.5),
	})
	q := []float32{1, 0}
	before, _ := idx.Search(ctx, q, 4, Approximate)
	if before[0].ID != "a" {
		t.Fatalf("expected a first, got %v", resultIDs(before))
	}

	if err := idx.Remove(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	for _, mode := range []SearchMode{Exact, Approximate} {
		after, _ := idx.Search(ctx, q, 4, mode)
		for _, r := range after {
			if r.ID == "a" {
				t.Errorf("%s: removed id returned: %v", mode, resultIDs(after))
			}
		}
		if len(after) != 3 || after[0].ID != "b" {
			t.Errorf("%s: got %v, want b first of 3", mode, resultIDs(after))
		}
	}
	if _, err := catalog.Get(ctx, "a"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("catalog still has a: %v", err)
	}
	if !idx.Trained() {
		t.Error("remove should keep the approximate engine trained")
	}
	if err := idx.Remove(ctx, "a"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second remove: expected ErrNotFound, got %v", err)
	}
}

func TestIndex_SearchSimilarExcludesSource(t *testing.T) {
	idx, _ := newTestIndex(t, 2)
	ctx := context.Background()
	_ = idx.Initialize(ctx, []*models.Record{record("a", 1, 0), record("b", 0.9, 0.1), record("c", 0, 1)})

	res, err := idx.SearchSimilar(ctx, "a", 2, Exact)
	if err != nil {
		t.Fatal(err)
	}
	if got := resultIDs(res); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("got %v, want [b c]", got)
	}
	if _, err := idx.SearchSimilar(ctx, "zzz", 2, Exact); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIndex_UpsertReplacesInPlace(t *testing.T) {
	idx, catalog := newTestIndex(t, 2)
	ctx := context.Background()
	_ = idx.Initialize(ctx, []*models.Record{record("a", 1, 0), record("b", 0, 1)})
	_, _ = idx.Search(ctx, []float32{1, 0}, 1, Exact)

	if err := idx.Upsert(ctx, record("b", 1, 0.01)); err != nil {
		t.Fatal(err)
	}
	if idx.CacheLen() != 0 {
		t.Error("upsert should invalidate the cache")
	}
	if ids := idx.IDs(); !reflect.DeepEqual(ids, []string{"a", "b"}) {
		t.Errorf("offsets changed: %v", ids)
	}
	res, _ := idx.Search(ctx, []float32{0, 1}, 1, Exact)
	if res[0].ID != "b" {
		t.Errorf("expected b nearest to y axis, got %s", res[0].ID)
	}

	if err := idx.Upsert(ctx, record("c", 0, 1)); err != nil {
		t.Fatal(err)
	}
	if n, _ := catalog.Count(ctx); n != 3 || idx.Size() != 3 {
		t.Errorf("after insert: catalog=%d index=%d", n, idx.Size())
	}
}

func TestIndex_RebuildKeepsResults(t *testing.T) {
	idx, _ := newTestIndex(t, 2)
	ctx := context.Background()
	_ = idx.Initialize(ctx, []*models.Record{record("a", 1, 0), record("b", 0, 1), record("c", 1, 1)})
	q := []float32{0.3, 0.7}
	before, _ := idx.Search(ctx, q, 3, Exact)
	if err := idx.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	after, _ := idx.Search(ctx, q, 3, Exact)
	if !reflect.DeepEqual(resultIDs(before), resultIDs(after)) {
		t.Errorf("rebuild changed results: %v vs %v", resultIDs(before), resultIDs(after))
	}
}

// Two books, A near the x axis and B near the y axis; a query leaning to x ranks A first.
func TestIndex_TwoBookScenario(t *testing.T) {
	idx, _ := newTestIndex(t, 4)
	ctx := context.Background()
	a := record("A", 1, 0, 0, 0)
	a.Metadata = map[string]any{"genres": []any{"fantasy"}, "average_rating": 4.5, "ratings_count": 1000.0}
	b := record("B", 0, 1, 0, 0)
	b.Metadata = map[string]any{"genres": []any{"sci-fi"}, "average_rating": 4.0, "ratings_count": 800.0}
	_ = idx.Initialize(ctx, []*models.Record{a, b})

	res, err := idx.Search(ctx, []float32{0.9, 0.1, 0, 0}, 2, Exact)
	if err != nil {
		t.Fatal(err)
	}
	if got := resultIDs(res); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("got %v, want [A B]", got)
	}
	if res[0].Similarity <= res[1].Similarity {
		t.Errorf("similarities not descending: %f, %f", res[0].Similarity, res[1].Similarity)
	}
}

func TestIndex_InitializeKeepsUnindexedCatalogRows(t *testing.T) {
	idx, catalog := newTestIndex(t, 2)
	ctx := context.Background()
	if err := catalog.Put(ctx, []*models.Record{{ID: "draft", Text: "no embedding yet"}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Initialize(ctx, []*models.Record{record("a", 1, 0), record("b", 0, 1)}); err != nil {
		t.Fatal(err)
	}
	if n, _ := catalog.Count(ctx); n != 3 {
		t.Errorf("catalog count = %d, want 3", n)
	}
	if idx.Contains("draft") || idx.Size() != 2 {
		t.Errorf("draft should stay out of the index, size %d", idx.Size())
	}
}

func TestIndex_EngineForMode(t *testing.T) {
	idx, _ := newTestIndex(t, 2)
	ctx := context.Background()
	if _, ok := idx.state.engine(Approximate).(*FlatEngine); !ok {
		t.Error("untrained approximate mode should be served by the exact engine")
	}
	if err := idx.Initialize(ctx, []*models.Record{record("a", 1, 0), record("b", 0, 1), record("c", 1, 1)}); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		mode SearchMode
		want Engine
	}{
		{Exact, idx.state.flat},
		{Approximate, idx.state.ivf},
	}
	for _, tt := range tests {
		if got := idx.state.engine(tt.mode); got != tt.want {
			t.Errorf("engine(%s) = %T, want %T", tt.mode, got, tt.want)
		}
	}
}
