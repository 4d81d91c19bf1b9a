package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/shelf/internal/models"
)

// Enhancer rewrites a free-text query before it is embedded. Best effort: on
// error the pipeline uses the query verbatim.
type Enhancer interface {
	Enhance(ctx context.Context, query string) (string, error)
}

// Explainer says why a book matches a query. Best effort: on error the
// pipeline uses TemplateExplanation.
type Explainer interface {
	Explain(ctx context.Context, summary models.BookSummary, query string) (string, error)
}

var (
	_ Enhancer  = KeywordEnhancer{}
	_ Explainer = TemplateExplainer{}
)

// contextPhrases are appended when the query mentions the trigger word.
var contextPhrases = []struct{ trigger, phrase string }{
	{"like", "similar books recommendations"},
	{"author", "books written by"},
	{"series", "book series sequel prequel"},
}

// genreKeywords are appended when the query mentions the genre.
var genreKeywords = []struct{ genre, keywords string }{
	{"fantasy", "magic dragons adventure quest"},
	{"science fiction", "space technology future sci-fi"},
	{"mystery", "detective crime investigation thriller"},
	{"romance", "love relationship emotional"},
	{"horror", "scary supernatural terror dark"},
}

// KeywordEnhancer expands queries locally with context phrases and genre
// keywords. It never fails.
type KeywordEnhancer struct{}

func (KeywordEnhancer) Enhance(_ context.Context, query string) (string, error) {
	lower := strings.ToLower(query)
	var b strings.Builder
	b.WriteString(query)
	for _, c := range contextPhrases {
		if strings.Contains(lower, c.trigger) {
			b.WriteByte(' ')
			b.WriteString(c.phrase)
		}
	}
	for _, g := range genreKeywords {
		if strings.Contains(lower, g.genre) {
			b.WriteByte(' ')
			b.WriteString(g.keywords)
		}
	}
	return b.String(), nil
}

// TemplateExplainer builds explanations from the book's own fields and ignores the query.
type TemplateExplainer struct{}

func (TemplateExplainer) Explain(_ context.Context, summary models.BookSummary, _ string) (string, error) {
	return TemplateExplanation(summary), nil
}

// TemplateExplanation is the deterministic explanation built from genre,
// rating, ratings count and series.
func TemplateExplanation(s models.BookSummary) string {
	var b strings.Builder
	b.WriteString("Recommended because it is ")
	if len(s.Genres) > 0 {
		fmt.Fprintf(&b, "a %s book rated ", s.Genres[0])
	} else {
		b.WriteString("rated ")
	}
	fmt.Fprintf(&b, "%.2f/5 by %d readers", s.Rating, s.RatingsCount)
	if s.Series != "" {
		fmt.Fprintf(&b, " and is part of the %s series", s.Series)
	}
	b.WriteByte('.')
	if len(s.Genres) > 0 {
		genres := s.Genres
		if len(genres) > 3 {
			genres = genres[:3]
		}
		b.WriteString(" This book combines elements of ")
		b.WriteString(joinList(genres))
		b.WriteByte('.')
	}
	return b.String()
}

// joinList renders "a", "a and b", "a, b and c".
func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
