package recommender

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/internal/watcher"
)

// GetRecommendations returns up to k books for a free-text query.
func (r *Recommender) GetRecommendations(ctx context.Context, query string, filter *models.QueryFilter, k int) (*models.RecommendationResponse, error) {
	return withoutEmbeddings(r.engine.Recommend(ctx, query, filter, k))
}

// GetSimilarBooks returns up to k books closest to the book with id.
func (r *Recommender) GetSimilarBooks(ctx context.Context, id string, filter *models.QueryFilter, k int) (*models.RecommendationResponse, error) {
	return withoutEmbeddings(r.engine.Similar(ctx, id, filter, k))
}

// GetAuthorRecommendations returns up to k books by author.
func (r *Recommender) GetAuthorRecommendations(ctx context.Context, author string, filter *models.QueryFilter, k int) (*models.RecommendationResponse, error) {
	return withoutEmbeddings(r.engine.ByAuthor(ctx, author, filter, k))
}

// GetSeriesRecommendations returns up to k books for a series.
func (r *Recommender) GetSeriesRecommendations(ctx context.Context, series string, filter *models.QueryFilter, k int) (*models.RecommendationResponse, error) {
	return withoutEmbeddings(r.engine.BySeries(ctx, series, filter, k))
}

// SearchBooks returns the records of the top 100 recommendations for query.
func (r *Recommender) SearchBooks(ctx context.Context, query string, filter *models.QueryFilter) ([]*models.Record, error) {
	resp, err := r.engine.Recommend(ctx, query, filter, searchBooksK)
	if err != nil {
		return nil, err
	}
	books := make([]*models.Record, len(resp.Results))
	for i, res := range resp.Results {
		books[i] = res.Record.WithoutEmbedding()
	}
	return books, nil
}

// withoutEmbeddings drops the vectors from every result record.
func withoutEmbeddings(resp *models.RecommendationResponse, err error) (*models.RecommendationResponse, error) {
	if err != nil {
		return nil, err
	}
	for _, res := range resp.Results {
		res.Record = res.Record.WithoutEmbedding()
	}
	return resp, nil
}

// GetRecord returns the catalog record with id, without its embedding.
func (r *Recommender) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	rec, err := r.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.WithoutEmbedding(), nil
}

// SaveIndex writes a snapshot to path, or to the configured index path when
// path is empty.
func (r *Recommender) SaveIndex(ctx context.Context, path string) error {
	path, err := r.snapshotPath(path)
	if err != nil {
		return err
	}
	return r.index.Persist(ctx, path)
}

// LoadIndex replaces the index with the snapshot at path, or at the
// configured index path when path is empty. Snapshot records are written
// back to the catalog.
func (r *Recommender) LoadIndex(ctx context.Context, path string) error {
	path, err := r.snapshotPath(path)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.index.Restore(ctx, path); err != nil {
		return err
	}
	r.syncTitles(ctx)
	return nil
}

// ResizeCache changes how many result lists the index caches. Shrinking
// evicts the oldest entries.
func (r *Recommender) ResizeCache(capacity int) error {
	if err := r.index.SetCacheCapacity(capacity); err != nil {
		return err
	}
	r.logger.Info("Result cache resized", zap.Int("capacity", capacity))
	return nil
}

// SnapshotNamed resolves a snapshot name sent by a remote caller. The name
// must be a local relative path; it is placed in the directory of the
// configured index path. An empty name is the configured path itself.
func (r *Recommender) SnapshotNamed(name string) (string, error) {
	base, err := r.snapshotPath("")
	if err != nil {
		return "", err
	}
	if name == "" {
		return base, nil
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("snapshot name %q must be relative to the index directory: %w", name, models.ErrValidation)
	}
	return filepath.Join(filepath.Dir(base), filepath.Clean(name)), nil
}

func (r *Recommender) snapshotPath(path string) (string, error) {
	if path == "" {
		path = r.cfg.Storage.IndexPath
	}
	if path == "" {
		return "", fmt.Errorf("index path is empty: %w", models.ErrValidation)
	}
	return path, nil
}

// RebuildIndex rebuilds the index from the catalog: eligibility filters are
// applied again and records without a usable embedding are embedded.
func (r *Recommender) RebuildIndex(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.build(ctx)
}

// AddRecords indexes new records and returns their ids. Inputs without an id
// get a generated one; inputs without an embedding are embedded from their
// document text. The batch is all-or-nothing.
func (r *Recommender) AddRecords(ctx context.Context, inputs []*models.RecordInput) ([]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	now := r.now()
	records := make([]*models.Record, len(inputs))
	ids := make([]string, len(inputs))
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("record %d is empty: %w", i, models.ErrValidation)
		}
		rec := in.Record(now)
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		records[i] = rec
		ids[i] = rec.ID
	}
	records, err := r.embedMissing(ctx, records)
	if err != nil {
		return nil, models.NewOpError("add", err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.index.Add(ctx, records); err != nil {
		return nil, err
	}
	if r.titles != nil {
		r.titlesChanged("index", r.titles.Index(ctx, records...))
	}
	return ids, nil
}

// UpdateRecord replaces the record with the same id, or adds it when new.
// Without an embedding the record is re-embedded from its document text.
func (r *Recommender) UpdateRecord(ctx context.Context, in *models.RecordInput) (*models.Record, error) {
	if in == nil || in.ID == "" {
		return nil, fmt.Errorf("record id is required: %w", models.ErrValidation)
	}
	rec := in.Record(r.now())
	if prev, err := r.catalog.Get(ctx, rec.ID); err == nil && !prev.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	}
	embedded, err := r.embedMissing(ctx, []*models.Record{rec})
	if err != nil {
		return nil, models.NewOpError("update", err)
	}
	rec = embedded[0]

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.index.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	if r.titles != nil {
		r.titlesChanged("index", r.titles.Index(ctx, rec))
	}
	return rec.WithoutEmbedding(), nil
}

// RemoveRecord deletes id from the index, the catalog and the title index.
// Catalog records that are not indexed, such as those below min_ratings, are
// deleted from the catalog alone.
func (r *Recommender) RemoveRecord(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("record id is required: %w", models.ErrValidation)
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	err := r.index.Remove(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		err = r.catalog.Delete(ctx, id)
	}
	if err != nil {
		return err
	}
	if r.titles != nil {
		r.titlesChanged("delete", r.titles.Delete(ctx, id))
	}
	return nil
}

// IngestFile reads a JSONL batch file. Records whose id is already indexed
// are updated; the rest are added as one batch.
func (r *Recommender) IngestFile(ctx context.Context, path string) error {
	inputs, err := watcher.ReadBatchFile(path)
	if err != nil {
		return err
	}
	var fresh []*models.RecordInput
	updated := 0
	for _, in := range inputs {
		if in.ID != "" && r.index.Contains(in.ID) {
			if _, err := r.UpdateRecord(ctx, in); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			updated++
			continue
		}
		fresh = append(fresh, in)
	}
	if _, err := r.AddRecords(ctx, fresh); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	r.logger.Info("Ingested batch file",
		zap.String("path", path),
		zap.Int("added", len(fresh)),
		zap.Int("updated", updated))
	return nil
}

// HandleInboxFile is a watcher.Handler that ingests path and logs failures.
func (r *Recommender) HandleInboxFile(ctx context.Context, path string) {
	if err := r.IngestFile(ctx, path); err != nil {
		r.logger.Error("Failed to ingest batch file", zap.String("path", path), zap.Error(err))
	}
}
