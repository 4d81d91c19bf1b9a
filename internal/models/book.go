package models

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Metadata keys recognised by the book accessors.
const (
	KeyTitle           = "title"
	KeyAuthor          = "author"
	KeyGenres          = "genres"
	KeyDescription     = "description"
	KeyPageCount       = "page_count"
	KeyAverageRating   = "average_rating"
	KeyRatingsCount    = "ratings_count"
	KeyReviewCount     = "review_count"
	KeySeries          = "series"
	KeyLanguage        = "language"
	KeyPublisher       = "publisher"
	KeyPublicationDate = "publication_date"
	KeyPublicationYear = "publication_year"
	KeyISBN13          = "isbn13"
	KeyIsEbook         = "is_ebook"
)

var yearPattern = regexp.MustCompile(`\d{4}`)

// Title returns the book title.
func (r *Record) Title() string { return r.metaString(KeyTitle) }

// Author returns the book author.
func (r *Record) Author() string { return r.metaString(KeyAuthor) }

// Genres returns the genre list, accepting either an array or a comma-separated string.
func (r *Record) Genres() []string { return r.metaStrings(KeyGenres) }

// Description returns the book description, falling back to the record text.
func (r *Record) Description() string {
	if d := r.metaString(KeyDescription); d != "" {
		return d
	}
	return r.Text
}

func (r *Record) PageCount() int          { return int(r.metaInt(KeyPageCount)) }
func (r *Record) AverageRating() float64  { return r.metaFloat(KeyAverageRating) }
func (r *Record) RatingsCount() int64     { return r.metaInt(KeyRatingsCount) }
func (r *Record) ReviewCount() int64      { return r.metaInt(KeyReviewCount) }
func (r *Record) Series() string          { return r.metaString(KeySeries) }
func (r *Record) Language() string        { return r.metaString(KeyLanguage) }
func (r *Record) Publisher() string       { return r.metaString(KeyPublisher) }
func (r *Record) PublicationDate() string { return r.metaString(KeyPublicationDate) }
func (r *Record) ISBN13() string          { return r.metaString(KeyISBN13) }
func (r *Record) IsEbook() bool           { return r.metaBool(KeyIsEbook) }

// PublicationYear returns publication_year when set, else the first four-digit
// run in publication_date, else 0.
func (r *Record) PublicationYear() int {
	if y := r.metaInt(KeyPublicationYear); y > 0 {
		return int(y)
	}
	m := yearPattern.FindString(r.PublicationDate())
	if m == "" {
		return 0
	}
	y, _ := strconv.Atoi(m)
	return y
}

// Engagement blends rating, rating volume, and review density.
func (r *Record) Engagement() float64 {
	rc := float64(r.RatingsCount())
	if rc <= 0 {
		return 0
	}
	volume := math.Min(rc/100, 1)
	reviews := float64(r.ReviewCount()) / rc * 5
	return (r.AverageRating()*volume + reviews) / 2
}

// DocumentText is the text a record is embedded from: title, author, series,
// genres and description, in that order, skipping empty parts.
func (r *Record) DocumentText() string {
	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	add(r.Title())
	if a := r.Author(); a != "" {
		add("by " + a)
	}
	if s := r.Series(); s != "" {
		add("series " + s)
	}
	add(strings.Join(r.Genres(), " "))
	add(r.Description())
	return strings.Join(parts, ". ")
}

// HighlyRated reports whether the book has at least 4.0 from 100 or more readers.
func (r *Record) HighlyRated() bool {
	return r.AverageRating() >= 4.0 && r.RatingsCount() >= 100
}

func (r *Record) meta(key string) (any, bool) {
	if r == nil || r.Metadata == nil {
		return nil, false
	}
	v, ok := r.Metadata[key]
	return v, ok && v != nil
}

func (r *Record) metaString(key string) string {
	v, ok := r.meta(key)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

func (r *Record) metaFloat(key string) float64 {
	v, ok := r.meta(key)
	if !ok {
		return 0
	}
	return toFloat(v)
}

func (r *Record) metaInt(key string) int64 {
	v, ok := r.meta(key)
	if !ok {
		return 0
	}
	return int64(toFloat(v))
}

func (r *Record) metaBool(key string) bool {
	v, ok := r.meta(key)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(strings.TrimSpace(b))
		return parsed
	default:
		return toFloat(v) != 0
	}
}

func (r *Record) metaStrings(key string) []string {
	v, ok := r.meta(key)
	if !ok {
		return nil
	}
	var out []string
	switch list := v.(type) {
	case []string:
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range list {
			if item == nil {
				continue
			}
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(list, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// toFloat coerces JSON-decoded and native numeric values.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
