package search

import (
	"testing"

	"github.com/hyperjump/shelf/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestPassesFilter(t *testing.T) {
	r := &models.Record{ID: "1", Metadata: map[string]any{
		"author":           "Ursula K. Le Guin",
		"genres":           []any{"Fantasy", "Classics"},
		"average_rating":   4.2,
		"ratings_count":    float64(5000),
		"publication_date": "1968-09-01",
		"language":         "en",
		"is_ebook":         true,
	}}
	tests := []struct {
		name   string
		filter *models.QueryFilter
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &models.QueryFilter{}, true},
		{"genre match ignores case", &models.QueryFilter{Genres: []string{"fantasy"}}, true},
		{"genre any of", &models.QueryFilter{Genres: []string{"horror", "classics"}}, true},
		{"genre miss", &models.QueryFilter{Genres: []string{"horror"}}, false},
		{"min rating", &models.QueryFilter{MinRating: ptr(4.0)}, true},
		{"min rating miss", &models.QueryFilter{MinRating: ptr(4.5)}, false},
		{"max rating miss", &models.QueryFilter{MaxRating: ptr(4.0)}, false},
		{"ratings count", &models.QueryFilter{MinRatingsCount: ptr(int64(5000))}, true},
		{"ratings count miss", &models.QueryFilter{MinRatingsCount: ptr(int64(5001))}, false},
		{"year window", &models.QueryFilter{YearStart: ptr(1960), YearEnd: ptr(1970)}, true},
		{"year before start", &models.QueryFilter{YearStart: ptr(1970)}, false},
		{"year after end", &models.QueryFilter{YearEnd: ptr(1967)}, false},
		{"language", &models.QueryFilter{Language: ptr("EN")}, true},
		{"language miss", &models.QueryFilter{Language: ptr("fr")}, false},
		{"ebook only", &models.QueryFilter{EbookOnly: true}, true},
		{"author", &models.QueryFilter{Authors: []string{"ursula k. le guin"}}, true},
		{"author miss", &models.QueryFilter{Authors: []string{"Frank Herbert"}}, false},
		{"all predicates", &models.QueryFilter{
			Genres: []string{"classics"}, MinRating: ptr(4.0), MaxRating: ptr(5.0),
			MinRatingsCount: ptr(int64(1)), YearStart: ptr(1900), YearEnd: ptr(2000),
			Language: ptr("en"), EbookOnly: true, Authors: []string{"Ursula K. Le Guin"},
		}, true},
		{"one failing predicate", &models.QueryFilter{Genres: []string{"classics"}, MinRating: ptr(4.9)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PassesFilter(r, tt.filter); got != tt.want {
				t.Errorf("PassesFilter = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPassesFilter_MissingFields(t *testing.T) {
	bare := &models.Record{ID: "bare"}
	if !PassesFilter(bare, &models.QueryFilter{}) {
		t.Error("empty filter should pass a record without metadata")
	}
	if PassesFilter(bare, &models.QueryFilter{EbookOnly: true}) {
		t.Error("ebook_only should exclude a record without is_ebook")
	}
	if PassesFilter(nil, nil) {
		t.Error("nil record should never pass")
	}
}

func TestFilter_PreservesOrder(t *testing.T) {
	in := []*models.SearchResult{
		{ID: "a", Record: &models.Record{ID: "a", Metadata: map[string]any{"genres": "fantasy"}}},
		{ID: "b", Record: &models.Record{ID: "b", Metadata: map[string]any{"genres": "horror"}}},
		{ID: "c", Record: &models.Record{ID: "c", Metadata: map[string]any{"genres": "fantasy, horror"}}},
	}
	out := Filter(in, &models.QueryFilter{Genres: []string{"fantasy"}})
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "c" {
		t.Errorf("Filter returned %v", out)
	}
}
