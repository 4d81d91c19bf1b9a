package search

import (
	"strings"

	"github.com/hyperjump/shelf/internal/models"
)

// PassesFilter reports whether r satisfies every predicate set in f. A nil
// filter, nil pointers and empty slices never exclude a record. Genres,
// authors and language compare case-insensitively.
func PassesFilter(r *models.Record, f *models.QueryFilter) bool {
	if r == nil {
		return false
	}
	if f == nil {
		return true
	}
	if len(f.Genres) > 0 && !anyEqualFold(r.Genres(), f.Genres) {
		return false
	}
	rating := r.AverageRating()
	if f.MinRating != nil && rating < *f.MinRating {
		return false
	}
	if f.MaxRating != nil && rating > *f.MaxRating {
		return false
	}
	if f.MinRatingsCount != nil && r.RatingsCount() < *f.MinRatingsCount {
		return false
	}
	year := r.PublicationYear()
	if f.YearStart != nil && year < *f.YearStart {
		return false
	}
	if f.YearEnd != nil && year > *f.YearEnd {
		return false
	}
	if f.Language != nil && !strings.EqualFold(r.Language(), *f.Language) {
		return false
	}
	if f.EbookOnly && !r.IsEbook() {
		return false
	}
	if len(f.Authors) > 0 && !anyEqualFold([]string{r.Author()}, f.Authors) {
		return false
	}
	return true
}

// Filter keeps the results whose record passes f, preserving order.
func Filter(results []*models.SearchResult, f *models.QueryFilter) []*models.SearchResult {
	out := make([]*models.SearchResult, 0, len(results))
	for _, res := range results {
		if PassesFilter(res.Record, f) {
			out = append(out, res)
		}
	}
	return out
}

func anyEqualFold(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}
