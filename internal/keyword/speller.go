package keyword

import (
	"sort"
	"strings"
	"sync"
)

// Suggestion is a candidate correction for one query term.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int
	Score     float64
}

// Speller corrects query terms against the indexed vocabulary. The
// vocabulary is loaded lazily and reloaded after Invalidate.
type Speller struct {
	dictionary     TermDictionary
	maxDistance    int
	minFreq        int
	maxSuggestions int

	mu    sync.RWMutex
	terms map[string]int // nil until loaded
}

// SpellerOption configures a Speller.
type SpellerOption func(*Speller)

// WithMaxDistance sets the maximum edit distance for suggestions.
func WithMaxDistance(d int) SpellerOption {
	return func(s *Speller) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinFrequency ignores terms seen fewer than f times.
func WithMinFrequency(f int) SpellerOption {
	return func(s *Speller) {
		if f >= 0 {
			s.minFreq = f
		}
	}
}

// WithMaxSuggestions caps the suggestions returned per term.
func WithMaxSuggestions(n int) SpellerOption {
	return func(s *Speller) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// NewSpeller creates a Speller over dict.
func NewSpeller(dict TermDictionary, opts ...SpellerOption) *Speller {
	s := &Speller{
		dictionary:     dict,
		maxDistance:    2,
		minFreq:        1,
		maxSuggestions: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate drops the cached vocabulary so the next call reloads it.
func (s *Speller) Invalidate() {
	s.mu.Lock()
	s.terms = nil
	s.mu.Unlock()
}

func (s *Speller) vocabulary() (map[string]int, error) {
	s.mu.RLock()
	terms := s.terms
	s.mu.RUnlock()
	if terms != nil {
		return terms, nil
	}
	loaded, err := s.dictionary.TermFrequencies()
	if err != nil {
		return nil, err
	}
	terms = make(map[string]int, len(loaded))
	for t, f := range loaded {
		terms[strings.ToLower(t)] += f
	}
	s.mu.Lock()
	s.terms = terms
	s.mu.Unlock()
	return terms, nil
}

// Suggest returns corrections for term, best first: closer terms first,
// then more frequent, then alphabetical.
func (s *Speller) Suggest(term string) ([]Suggestion, error) {
	terms, err := s.vocabulary()
	if err != nil {
		return nil, err
	}
	return s.suggest(terms, strings.ToLower(term)), nil
}

func (s *Speller) suggest(terms map[string]int, term string) []Suggestion {
	var out []Suggestion
	n := len([]rune(term))
	for cand, freq := range terms {
		if cand == term || freq < s.minFreq {
			continue
		}
		if d := len([]rune(cand)) - n; d > s.maxDistance || -d > s.maxDistance {
			continue
		}
		dist := EditDistance(term, cand)
		if dist > s.maxDistance {
			continue
		}
		out = append(out, Suggestion{
			Term:      cand,
			Distance:  dist,
			Frequency: freq,
			Score:     float64(freq) / float64(dist+1),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > s.maxSuggestions {
		out = out[:s.maxSuggestions]
	}
	return out
}

// Correct replaces every unknown term of query with its best suggestion.
// It reports whether anything changed. Terms shorter than three runes are
// left alone.
func (s *Speller) Correct(query string) (string, bool, error) {
	terms, err := s.vocabulary()
	if err != nil {
		return query, false, err
	}
	words := strings.Fields(strings.ToLower(query))
	changed := false
	for i, w := range words {
		if _, known := terms[w]; known || len([]rune(w)) < 3 {
			continue
		}
		if sugg := s.suggest(terms, w); len(sugg) > 0 {
			words[i] = sugg[0].Term
			changed = true
		}
	}
	if !changed {
		return query, false, nil
	}
	return strings.Join(words, " "), true, nil
}
