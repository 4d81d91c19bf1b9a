package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/shelf/internal/models"
)

const (
	defaultTitleBoost  = 3.0
	defaultAuthorBoost = 2.0
	batchSize          = 500
)

var textFields = []string{"title", "author", "series"}

// bookDoc is what gets indexed for each record.
type bookDoc struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Series string `json:"series"`
}

func newBookDoc(r *models.Record) bookDoc {
	return bookDoc{Title: r.Title(), Author: r.Author(), Series: r.Series()}
}

// BleveIndex implements TitleIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

var _ TitleIndex = (*BleveIndex)(nil)

func bookMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) keeps names intact.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	for _, f := range textFields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}
	im.AddDocumentMapping("book", docMapping)
	im.DefaultType = "book"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path gives
// an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(bookMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, bookMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces records by id.
func (b *BleveIndex) Index(ctx context.Context, records ...*models.Record) error {
	batch := b.index.NewBatch()
	for _, r := range records {
		if err := batch.Index(r.ID, newBookDoc(r)); err != nil {
			return fmt.Errorf("index %q: %w", r.ID, err)
		}
		if batch.Size() >= batchSize {
			if err := b.flush(ctx, batch); err != nil {
				return err
			}
			batch = b.index.NewBatch()
		}
	}
	return b.flush(ctx, batch)
}

// Replace drops every document whose id is not among records and indexes records.
func (b *BleveIndex) Replace(ctx context.Context, records []*models.Record) error {
	keep := make(map[string]struct{}, len(records))
	for _, r := range records {
		keep[r.ID] = struct{}{}
	}
	existing, err := b.allIDs()
	if err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for _, id := range existing {
		if _, ok := keep[id]; !ok {
			batch.Delete(id)
		}
	}
	if err := b.flush(ctx, batch); err != nil {
		return err
	}
	return b.Index(ctx, records...)
}

func (b *BleveIndex) flush(ctx context.Context, batch *bleve.Batch) error {
	if batch.Size() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

func (b *BleveIndex) allIDs() ([]string, error) {
	count, err := b.index.DocCount()
	if err != nil || count == 0 {
		return nil, err
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve list failed: %w", err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Search matches query against title, author and series with per-field
// boosts and returns up to limit matches, best first, ties by id.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Match, error) {
	if limit <= 0 {
		return nil, nil
	}
	titleBoost, authorBoost, fuzziness := defaultTitleBoost, defaultAuthorBoost, 0
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		if opts.AuthorBoost > 0 {
			authorBoost = opts.AuthorBoost
		}
		fuzziness = opts.Fuzziness
	}
	boosts := map[string]float64{"title": titleBoost, "author": authorBoost, "series": 1}

	fieldQueries := make([]blevequery.Query, 0, len(textFields))
	for _, f := range textFields {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(f)
		mq.SetBoost(boosts[f])
		if fuzziness > 0 {
			mq.SetFuzziness(fuzziness)
		}
		fieldQueries = append(fieldQueries, mq)
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(fieldQueries...))
	req.Size = limit
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Match, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = &Match{ID: hit.ID, Score: hit.Score}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// TermFrequencies returns every indexed term with the number of field
// occurrences it has across title, author and series.
func (b *BleveIndex) TermFrequencies() (map[string]int, error) {
	freqs := make(map[string]int)
	for _, f := range textFields {
		dict, err := b.index.FieldDict(f)
		if err != nil {
			return nil, fmt.Errorf("field dictionary %s: %w", f, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			freqs[entry.Term] += int(entry.Count)
		}
		_ = dict.Close()
	}
	return freqs, nil
}
