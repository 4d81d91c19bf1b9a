package models

import "fmt"

// QueryFilter constrains candidate records. Nil pointers and empty slices are absent predicates.
type QueryFilter struct {
	Genres          []string `json:"genres,omitempty"`
	MinRating       *float64 `json:"min_rating,omitempty"`
	MaxRating       *float64 `json:"max_rating,omitempty"`
	MinRatingsCount *int64   `json:"min_ratings_count,omitempty"`
	YearStart       *int     `json:"year_start,omitempty"`
	YearEnd         *int     `json:"year_end,omitempty"`
	Language        *string  `json:"language,omitempty"`
	EbookOnly       bool     `json:"ebook_only,omitempty"`
	Authors         []string `json:"authors,omitempty"`
}

// Validate rejects inverted bounds.
func (f *QueryFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.MinRating != nil && f.MaxRating != nil && *f.MinRating > *f.MaxRating {
		return fmt.Errorf("min_rating %.2f exceeds max_rating %.2f: %w", *f.MinRating, *f.MaxRating, ErrValidation)
	}
	if f.YearStart != nil && f.YearEnd != nil && *f.YearStart > *f.YearEnd {
		return fmt.Errorf("year_start %d exceeds year_end %d: %w", *f.YearStart, *f.YearEnd, ErrValidation)
	}
	return nil
}

// Clone returns a deep copy. A nil filter clones to an empty one.
func (f *QueryFilter) Clone() *QueryFilter {
	if f == nil {
		return &QueryFilter{}
	}
	out := *f
	out.Genres = append([]string(nil), f.Genres...)
	out.Authors = append([]string(nil), f.Authors...)
	return &out
}

// WithAuthor returns a copy of f whose author set also contains author.
func (f *QueryFilter) WithAuthor(author string) *QueryFilter {
	out := f.Clone()
	for _, a := range out.Authors {
		if a == author {
			return out
		}
	}
	out.Authors = append(out.Authors, author)
	return out
}

// RecommendQuery is the request body for free-text recommendations.
type RecommendQuery struct {
	Query  string       `json:"query"`
	Filter *QueryFilter `json:"filter,omitempty"`
	K      int          `json:"k,omitempty"`
}

// Validate ensures the query is non-empty and the filter is consistent.
func (q *RecommendQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty: %w", ErrValidation)
	}
	if q.K < 0 {
		return fmt.Errorf("k must not be negative: %w", ErrValidation)
	}
	return q.Filter.Validate()
}
