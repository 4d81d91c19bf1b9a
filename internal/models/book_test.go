package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestRecord_BookAccessorsFromJSON(t *testing.T) {
	raw := `{
		"id": "b1",
		"text": "A wizard of Earthsea",
		"metadata": {
			"title": "A Wizard of Earthsea",
			"author": "Ursula K. Le Guin",
			"genres": ["fantasy", "classics"],
			"average_rating": 4.01,
			"ratings_count": 250000,
			"review_count": 9000,
			"page_count": 183,
			"series": "Earthsea Cycle",
			"language": "en",
			"publication_date": "September 1968",
			"is_ebook": true
		}
	}`
	var r Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatal(err)
	}
	if r.Title() != "A Wizard of Earthsea" || r.Author() != "Ursula K. Le Guin" {
		t.Errorf("title/author = %q/%q", r.Title(), r.Author())
	}
	if !reflect.DeepEqual(r.Genres(), []string{"fantasy", "classics"}) {
		t.Errorf("Genres = %v", r.Genres())
	}
	if r.RatingsCount() != 250000 || r.ReviewCount() != 9000 || r.PageCount() != 183 {
		t.Errorf("counts = %d %d %d", r.RatingsCount(), r.ReviewCount(), r.PageCount())
	}
	if r.PublicationYear() != 1968 {
		t.Errorf("PublicationYear = %d", r.PublicationYear())
	}
	if !r.IsEbook() || !r.HighlyRated() {
		t.Error("expected ebook and highly rated")
	}
	if r.Description() != r.Text {
		t.Errorf("Description should fall back to text, got %q", r.Description())
	}
}

func TestRecord_NativeMetadataTypes(t *testing.T) {
	r := &Record{Metadata: map[string]any{
		"genres":           "mystery, thriller ,",
		"ratings_count":    int64(42),
		"average_rating":   "3.5",
		"publication_year": 2001,
		"is_ebook":         "false",
	}}
	if !reflect.DeepEqual(r.Genres(), []string{"mystery", "thriller"}) {
		t.Errorf("Genres = %v", r.Genres())
	}
	if r.RatingsCount() != 42 || r.AverageRating() != 3.5 {
		t.Errorf("got %d %.2f", r.RatingsCount(), r.AverageRating())
	}
	if r.PublicationYear() != 2001 {
		t.Errorf("PublicationYear = %d", r.PublicationYear())
	}
	if r.IsEbook() {
		t.Error("is_ebook \"false\" should be false")
	}
	if r.HighlyRated() {
		t.Error("should not be highly rated")
	}
}

func TestRecord_Clone(t *testing.T) {
	r := &Record{ID: "x", Metadata: map[string]any{"title": "T"}, Embedding: []float32{1, 2}}
	c := r.Clone()
	c.Metadata["title"] = "changed"
	c.Embedding[0] = 9
	if r.Title() != "T" || r.Embedding[0] != 1 {
		t.Error("Clone shares state with the original")
	}
	if r.WithoutEmbedding().Embedding != nil {
		t.Error("WithoutEmbedding kept the vector")
	}
}

func TestRecord_Engagement(t *testing.T) {
	r := &Record{Metadata: map[string]any{"average_rating": 4.0, "ratings_count": 50, "review_count": 10}}
	// volume = 0.5, reviews = 10/50*5 = 1
	want := (4.0*0.5 + 1) / 2
	if got := r.Engagement(); got != want {
		t.Errorf("Engagement = %v, want %v", got, want)
	}
	if (&Record{}).Engagement() != 0 {
		t.Error("zero ratings should give zero engagement")
	}
}

func TestSummarize(t *testing.T) {
	r := &Record{ID: "1", Text: strings.Repeat("x", 600), Metadata: map[string]any{
		"title":            "Dune",
		"author":           "Frank Herbert",
		"genres":           []any{"science fiction", "classics"},
		"average_rating":   4.25,
		"ratings_count":    float64(12000),
		"publication_date": "1965-08-01",
	}}
	s := Summarize(r)
	if s.Year != 1965 || s.RatingsCount != 12000 || len(s.Genres) != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if n := len([]rune(s.Description)); n != summaryDescriptionLimit+3 {
		t.Errorf("description not truncated: %d runes", n)
	}
	out := s.String()
	for _, want := range []string{"Title: Dune", "Genres: science fiction, classics", "Rating: 4.25/5 from 12000 readers", "Year: 1965"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Series:") {
		t.Error("empty series should be omitted")
	}
}

func TestRecord_DocumentText(t *testing.T) {
	tests := []struct {
		name string
		r    *Record
		want string
	}{
		{
			name: "all fields",
			r: &Record{Text: "A boy learns magic.", Metadata: map[string]any{
				"title": "A Wizard of Earthsea", "author": "Ursula K. Le Guin",
				"series": "Earthsea", "genres": []any{"fantasy", "classics"},
			}},
			want: "A Wizard of Earthsea. by Ursula K. Le Guin. series Earthsea. fantasy classics. A boy learns magic.",
		},
		{
			name: "text only",
			r:    &Record{Text: "just text"},
			want: "just text",
		},
		{name: "empty", r: &Record{}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.DocumentText(); got != tt.want {
				t.Errorf("DocumentText() = %q, want %q", got, tt.want)
			}
		})
	}
}
