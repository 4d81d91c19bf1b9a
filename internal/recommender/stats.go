package recommender

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/shelf/internal/keyword"
	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/internal/storage"
	"github.com/hyperjump/shelf/internal/vector"
)

const (
	defaultStatsLimit = 10
	titleFuzziness    = 1
)

// Status describes the catalog, the index and where they are stored.
type Status struct {
	Records        int64  `json:"records"`
	Indexed        int    `json:"indexed"`
	Trained        bool   `json:"trained"`
	Dimensions     int    `json:"dimensions"`
	SearchMode     string `json:"search_mode"`
	CacheEntries   int    `json:"cache_entries"`
	CacheCapacity  int    `json:"cache_capacity"`
	TitleDocs      uint64 `json:"title_docs,omitempty"`
	DatabasePath   string `json:"database_path,omitempty"`
	BleveIndexPath string `json:"bleve_index_path,omitempty"`
	IndexPath      string `json:"index_path,omitempty"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
}

// Status reports counts, index state and disk usage of the storage paths.
func (r *Recommender) Status(ctx context.Context) (*Status, error) {
	count, err := r.catalog.Count(ctx)
	if err != nil {
		return nil, err
	}
	st := &Status{
		Records:        count,
		Indexed:        r.index.Size(),
		Trained:        r.index.Trained(),
		Dimensions:     r.index.Dimensions(),
		SearchMode:     string(r.mode),
		CacheEntries:   r.index.CacheLen(),
		CacheCapacity:  r.index.CacheCapacity(),
		DatabasePath:   r.cfg.Storage.DatabasePath,
		BleveIndexPath: r.cfg.Storage.BleveIndexPath,
		IndexPath:      r.cfg.Storage.IndexPath,
	}
	if r.titles != nil {
		if n, err := r.titles.DocCount(); err == nil {
			st.TitleDocs = n
		}
	}
	paths := []string{r.cfg.Storage.DatabasePath, r.cfg.Storage.BleveIndexPath}
	if p := r.cfg.Storage.IndexPath; p != "" {
		paths = append(paths, p+vector.FlatSuffix, p+vector.IVFSuffix, p+vector.MappingSuffix)
	}
	if fp, err := storage.MeasurePaths(paths...); err == nil {
		st.DiskUsageBytes = fp.Total()
	} else {
		r.logger.Debug("Disk usage unavailable", zap.Error(err))
	}
	return st, nil
}

// FindByTitle looks up books by title, author or series text. When nothing
// matches and the title index has a term dictionary, the query is spelling
// corrected and looked up again with fuzzy matching.
func (r *Recommender) FindByTitle(ctx context.Context, text string, limit int) (*models.TitleSearchResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("title query cannot be empty: %w", models.ErrValidation)
	}
	if r.titles == nil {
		return nil, fmt.Errorf("title index is not configured: %w", models.ErrValidation)
	}
	if limit <= 0 {
		limit = defaultStatsLimit
	}
	resp := &models.TitleSearchResponse{Query: text}
	matches, err := r.titles.Search(ctx, text, limit, nil)
	if err != nil {
		return nil, models.NewOpError("title search", err)
	}
	if len(matches) == 0 && r.speller != nil {
		corrected, changed, err := r.speller.Correct(text)
		if err != nil {
			r.logger.Debug("Spelling correction failed", zap.Error(err))
		}
		query := text
		if changed {
			query = corrected
			resp.CorrectedQuery = corrected
		}
		matches, err = r.titles.Search(ctx, query, limit, &keyword.SearchOptions{Fuzziness: titleFuzziness})
		if err != nil {
			return nil, models.NewOpError("title search", err)
		}
	}
	resp.Results, err = r.hydrateMatches(ctx, matches)
	if err != nil {
		return nil, err
	}
	resp.Total = len(resp.Results)
	return resp, nil
}

func (r *Recommender) hydrateMatches(ctx context.Context, matches []*keyword.Match) ([]*models.TitleMatch, error) {
	out := []*models.TitleMatch{}
	if len(matches) == 0 {
		return out, nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	records, err := r.catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		rec, ok := records[m.ID]
		if !ok {
			continue
		}
		out = append(out, &models.TitleMatch{ID: m.ID, Score: m.Score, Record: rec.WithoutEmbedding()})
	}
	return out, nil
}

// PopularGenres returns the k most common genres, most frequent first and
// alphabetical among equals.
func (r *Recommender) PopularGenres(ctx context.Context, k int) ([]models.CountEntry, error) {
	records, err := r.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, rec := range records {
		for _, g := range rec.Genres() {
			counts[g]++
		}
	}
	return topCounts(counts, k), nil
}

// PopularAuthors returns the k authors with the most books.
func (r *Recommender) PopularAuthors(ctx context.Context, k int) ([]models.CountEntry, error) {
	records, err := r.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, rec := range records {
		if a := rec.Author(); a != "" {
			counts[a]++
		}
	}
	return topCounts(counts, k), nil
}

func topCounts(counts map[string]int, k int) []models.CountEntry {
	if k <= 0 {
		k = defaultStatsLimit
	}
	out := make([]models.CountEntry, 0, len(counts))
	for name, n := range counts {
		out = append(out, models.CountEntry{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// TopRated returns up to limit books by descending average rating, more
// ratings first among equals.
func (r *Recommender) TopRated(ctx context.Context, limit int) ([]*models.Record, error) {
	if limit <= 0 {
		limit = defaultStatsLimit
	}
	records, err := r.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := records[i].AverageRating(), records[j].AverageRating()
		if ri != rj {
			return ri > rj
		}
		return records[i].RatingsCount() > records[j].RatingsCount()
	})
	if len(records) > limit {
		records = records[:limit]
	}
	out := make([]*models.Record, len(records))
	for i, rec := range records {
		out[i] = rec.WithoutEmbedding()
	}
	return out, nil
}
