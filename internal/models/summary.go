package models

import (
	"fmt"
	"strings"

	"github.com/hyperjump/shelf/pkg/utils"
)

// summaryDescriptionLimit caps the description sent to explanation providers.
const summaryDescriptionLimit = 500

// BookSummary is the structured view of a record handed to explanation providers.
type BookSummary struct {
	Title        string   `json:"title"`
	Author       string   `json:"author"`
	Genres       []string `json:"genres,omitempty"`
	Rating       float64  `json:"rating"`
	RatingsCount int64    `json:"ratings_count"`
	Year         int      `json:"year,omitempty"`
	Series       string   `json:"series,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// Summarize builds the summary for r.
func Summarize(r *Record) BookSummary {
	return BookSummary{
		Title:        r.Title(),
		Author:       r.Author(),
		Genres:       r.Genres(),
		Rating:       r.AverageRating(),
		RatingsCount: r.RatingsCount(),
		Year:         r.PublicationYear(),
		Series:       r.Series(),
		Description:  utils.Truncate(r.Description(), summaryDescriptionLimit),
	}
}

// String renders the summary one field per line, skipping empty fields.
func (s BookSummary) String() string {
	var b strings.Builder
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	line("Title", s.Title)
	line("Author", s.Author)
	line("Genres", strings.Join(s.Genres, ", "))
	line("Rating", fmt.Sprintf("%.2f/5 from %d readers", s.Rating, s.RatingsCount))
	if s.Year > 0 {
		line("Year", fmt.Sprint(s.Year))
	}
	line("Series", s.Series)
	line("Description", s.Description)
	return strings.TrimRight(b.String(), "\n")
}
