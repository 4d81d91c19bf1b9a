// Package e2e provides end-to-end tests with a generated book catalog and multiple queries.
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/shelf/internal/models"
)

// CorpusBook is a book entry in the E2E corpus.
type CorpusBook struct {
	ID          string
	Title       string
	Author      string
	Series      string
	Genre       string
	Description string
}

// QueryTestCase defines a query and the book ID(s) of which at least one must
// appear in the recommendations.
type QueryTestCase struct {
	Query       string
	ExpectedIDs []string
	Description string
}

// Corpus holds books and query test cases for E2E tests.
type Corpus struct {
	Books        []CorpusBook
	TestCases    []QueryTestCase
	TotalBooks   int
	TotalQueries int
}

// Every corpus book gets the same rating and volume so ranking order follows similarity.
const (
	corpusRating       = 4.0
	corpusRatingsCount = 5000
)

// topics are two-volume series. Each has a signature phrase of words no other
// topic uses, so a query for the phrase must surface that series.
var topics = []struct {
	title     string
	author    string
	genre     string
	signature string
}{
	{"The Clockwork Lighthouse", "Mara Quell", "fantasy", "clockwork lighthouse keeper brass gears"},
	{"Salt and Saffron", "Idris Vane", "historical fiction", "spice merchant caravan saffron desert"},
	{"Orbit of Glass", "Tove Arden", "science fiction", "glass orbital habitat vacuum shipyard"},
	{"The Quiet Orchard", "Lena Brisk", "literary fiction", "orchard widow apples harvest grief"},
	{"Murder at Marrow Hall", "Cecil Thorne", "mystery", "inspector manor poison butler inheritance"},
	{"The Iron Ledger", "Basil Crane", "thriller", "accountant ledger embezzlement cartel banker"},
	{"Moths of Winter", "Sable Ochoa", "horror", "moths frozen village hunger chapel"},
	{"A Map of Tides", "Ren Halloway", "adventure", "cartographer tides archipelago smuggler compass"},
	{"Second Spring", "Nadia Frost", "romance", "florist greenhouse rival wedding bouquet"},
	{"The Cipher Garden", "Ottilie Marsh", "historical fiction", "codebreaker wartime cipher garden radio"},
	{"Engines of Rain", "Kasim Dahl", "science fiction", "weather engines drought terraform cloudseeding"},
	{"The Hollow Crown Wood", "Ysolde Penn", "fantasy", "druid oak crown forest wolves"},
	{"Letters to Nobody", "Priya Sand", "literary fiction", "postman undelivered letters island loneliness"},
	{"Chess in Vienna", "Anton Wex", "thriller", "grandmaster chess defector vienna embassy"},
	{"The Bone Archivist", "Hester Lume", "horror", "catacombs skulls ossuary lantern whispers"},
	{"Beekeeping for Ghosts", "Juno Ambrose", "mystery", "apiary bees honey ghost parish"},
	{"The Last Glacier", "Soren Ekdal", "literary fiction", "glacier fjord climber ice retreat"},
	{"Starlit Diner", "Rosa Quint", "romance", "diner waitress trucker midnight pie"},
	{"Circuit Saints", "Dmitri Holm", "science fiction", "android monastery prayer circuits relic"},
	{"The Paper Dragon", "Mei Lin Tsao", "fantasy", "origami dragon paper folding temple"},
	{"River of Copper", "Augustin Bell", "historical fiction", "copper mine strike miners union"},
	{"Ashes of Harbor Town", "Corin Blaise", "mystery", "arson harbor fireman dockworkers insurance"},
	{"The Violin Thief", "Odile Marchand", "thriller", "stradivarius violin heist auction conservatory"},
	{"Soup for the Stars", "Pim Okafor", "children", "astronaut grandmother soup rocket kitchen"},
}

// BuildCorpus returns two books per topic and one query test case per topic.
func BuildCorpus() *Corpus {
	books := buildBooks()
	cases := buildQueryTestCases(books)
	return &Corpus{
		Books:        books,
		TestCases:    cases,
		TotalBooks:   len(books),
		TotalQueries: len(cases),
	}
}

func buildBooks() []CorpusBook {
	out := make([]CorpusBook, 0, 2*len(topics))
	for i, t := range topics {
		for vol := 1; vol <= 2; vol++ {
			title := t.title
			if vol == 2 {
				title = t.title + ": The Return"
			}
			out = append(out, CorpusBook{
				ID:          fmt.Sprintf("e2e-book-%02d-%d", i+1, vol),
				Title:       title,
				Author:      t.author,
				Series:      t.title,
				Genre:       t.genre,
				Description: fmt.Sprintf("Volume %d. A tale of %s.", vol, t.signature),
			})
		}
	}
	return out
}

func buildQueryTestCases(books []CorpusBook) []QueryTestCase {
	var cases []QueryTestCase
	for _, t := range topics {
		var ids []string
		for _, b := range books {
			if containsPhrase(b, t.signature) {
				ids = append(ids, b.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		cases = append(cases, QueryTestCase{
			Query:       t.signature,
			ExpectedIDs: ids,
			Description: fmt.Sprintf("query %q should return %s", t.signature, t.title),
		})
	}
	return cases
}

func containsPhrase(b CorpusBook, phrase string) bool {
	return strings.Contains(b.Title, phrase) || strings.Contains(b.Description, phrase)
}

// ToRecordInputs converts the corpus books to record inputs for indexing.
func (c *Corpus) ToRecordInputs() []*models.RecordInput {
	out := make([]*models.RecordInput, len(c.Books))
	for i := range c.Books {
		b := &c.Books[i]
		out[i] = &models.RecordInput{
			ID:   b.ID,
			Text: b.Description,
			Metadata: map[string]any{
				models.KeyTitle:         b.Title,
				models.KeyAuthor:        b.Author,
				models.KeySeries:        b.Series,
				models.KeyGenres:        []string{b.Genre},
				models.KeyDescription:   b.Description,
				models.KeyAverageRating: corpusRating,
				models.KeyRatingsCount:  corpusRatingsCount,
				models.KeyLanguage:      "en",
			},
		}
	}
	return out
}

// WriteJSONL writes the corpus as a record batch, one JSON record per line.
func (c *Corpus) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, in := range c.ToRecordInputs() {
		if err := enc.Encode(in); err != nil {
			return err
		}
	}
	return nil
}
