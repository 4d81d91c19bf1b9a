// Package cli formats recommender output for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/internal/recommender"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
	}
}

const rule = "─────────────────────────────────────────────────────────"

// WriteRecommendations writes a recommendation response to w in the given format.
func WriteRecommendations(w io.Writer, resp *models.RecommendationResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	fmt.Fprintf(w, "\nFound %d recommendations for %q in %dms\n\n", resp.Total, resp.Query, resp.QueryTime)
	for i, res := range resp.Results {
		writeBook(w, i+1, res.Record)
		fmt.Fprintf(w, "Score: %.4f (similarity %.4f)\n", res.Score, res.Similarity)
		if res.Explanation != "" {
			fmt.Fprintf(w, "\n%s\n", res.Explanation)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteBooks writes a plain list of books.
func WriteBooks(w io.Writer, books []*models.Record, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, books)
	}
	fmt.Fprintf(w, "\n%d books\n\n", len(books))
	for i, b := range books {
		writeBook(w, i+1, b)
		if d := b.Description(); d != "" {
			fmt.Fprintf(w, "\n%s\n", TruncateWords(d, 40))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteTitleMatches writes a title lookup response.
func WriteTitleMatches(w io.Writer, resp *models.TitleSearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	if resp.CorrectedQuery != "" {
		fmt.Fprintf(w, "\nShowing results for %q instead of %q\n", resp.CorrectedQuery, resp.Query)
	}
	fmt.Fprintf(w, "\nFound %d titles\n\n", resp.Total)
	for i, m := range resp.Results {
		writeBook(w, i+1, m.Record)
		fmt.Fprintf(w, "Match: %.4f\n\n", m.Score)
	}
	return nil
}

// WriteCounts writes name/count pairs under a heading.
func WriteCounts(w io.Writer, heading string, entries []models.CountEntry, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, entries)
	}
	fmt.Fprintf(w, "\n%s\n\n", heading)
	for i, e := range entries {
		fmt.Fprintf(w, "%3d. %s (%d)\n", i+1, e.Name, e.Count)
	}
	return nil
}

// WriteStatus writes index and storage status.
func WriteStatus(w io.Writer, st *recommender.Status, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, st)
	}
	fmt.Fprintf(w, "Records:       %d\n", st.Records)
	fmt.Fprintf(w, "Indexed:       %d (trained: %t, dimensions: %d)\n", st.Indexed, st.Trained, st.Dimensions)
	fmt.Fprintf(w, "Search mode:   %s\n", st.SearchMode)
	fmt.Fprintf(w, "Cache entries: %d\n", st.CacheEntries)
	fmt.Fprintf(w, "Title docs:    %d\n", st.TitleDocs)
	if st.DatabasePath != "" {
		fmt.Fprintf(w, "Database:      %s\n", st.DatabasePath)
	}
	if st.IndexPath != "" {
		fmt.Fprintf(w, "Index:         %s\n", st.IndexPath)
	}
	fmt.Fprintf(w, "Disk usage:    %d bytes\n", st.DiskUsageBytes)
	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeBook(w io.Writer, rank int, r *models.Record) {
	fmt.Fprintln(w, rule)
	title := r.Title()
	if title == "" {
		title = r.ID
	}
	fmt.Fprintf(w, "%d. %s", rank, title)
	if a := r.Author(); a != "" {
		fmt.Fprintf(w, " by %s", a)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "ID: %s\n", r.ID)
	if g := r.Genres(); len(g) > 0 {
		fmt.Fprintf(w, "Genres: %s\n", strings.Join(g, ", "))
	}
	if s := r.Series(); s != "" {
		fmt.Fprintf(w, "Series: %s\n", s)
	}
	if r.RatingsCount() > 0 {
		fmt.Fprintf(w, "Rating: %.2f/5 (%d ratings)\n", r.AverageRating(), r.RatingsCount())
	}
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
