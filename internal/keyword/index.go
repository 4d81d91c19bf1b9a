// Package keyword provides full-text lookup over book titles, authors and
// series, with spelling correction for near-miss queries.
package keyword

import (
	"context"

	"github.com/hyperjump/shelf/internal/models"
)

// SearchOptions tunes a title lookup. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies matches in the title field (default 3).
	TitleBoost float64
	// AuthorBoost multiplies matches in the author field (default 2).
	AuthorBoost float64
	// Fuzziness is the edit distance allowed per term; 0 disables fuzzy matching.
	Fuzziness int
}

// TitleIndex is the full-text index kept next to the similarity index.
type TitleIndex interface {
	Index(ctx context.Context, records ...*models.Record) error
	// Replace makes the index hold exactly records.
	Replace(ctx context.Context, records []*models.Record) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Match, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// Match is a single title lookup hit.
type Match struct {
	ID    string
	Score float64
}

// TermDictionary exposes indexed terms with their document frequencies.
type TermDictionary interface {
	TermFrequencies() (map[string]int, error)
}
