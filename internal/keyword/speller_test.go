package keyword

import (
	"errors"
	"testing"
)

type staticDictionary struct {
	terms map[string]int
	err   error
	loads int
}

func (d *staticDictionary) TermFrequencies() (map[string]int, error) {
	d.loads++
	return d.terms, d.err
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"dune", "", 4},
		{"", "emma", 4},
		{"dune", "dune", 0},
		{"dune", "dnue", 1},
		{"kitten", "sitting", 3},
		{"herbert", "hebert", 1},
		{"café", "cafe", 1},
		{"ca", "abc", 3},
	}
	for _, tt := range tests {
		if got := EditDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("EditDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSpeller_Suggest(t *testing.T) {
	dict := &staticDictionary{terms: map[string]int{"dune": 5, "done": 9, "dunes": 1, "emma": 3}}
	s := NewSpeller(dict, WithMaxDistance(1))

	got, err := s.Suggest("dnue")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Term != "dune" || got[0].Distance != 1 {
		t.Fatalf("Suggest(dnue) = %+v", got)
	}

	got, _ = s.Suggest("dune")
	// done and dunes are both one edit away; done is more frequent.
	if len(got) != 2 || got[0].Term != "done" || got[1].Term != "dunes" {
		t.Errorf("Suggest(dune) = %+v", got)
	}
}

func TestSpeller_Options(t *testing.T) {
	dict := &staticDictionary{terms: map[string]int{"aaab": 1, "aaac": 5, "aaad": 5, "aaae": 5}}
	s := NewSpeller(dict, WithMinFrequency(2), WithMaxSuggestions(2))
	got, _ := s.Suggest("aaaa")
	if len(got) != 2 || got[0].Term != "aaac" || got[1].Term != "aaad" {
		t.Errorf("Suggest = %+v", got)
	}
}

func TestSpeller_Correct(t *testing.T) {
	dict := &staticDictionary{terms: map[string]int{"wizard": 2, "of": 9, "earthsea": 2}}
	s := NewSpeller(dict)

	got, changed, err := s.Correct("Wizrd of Erthsea")
	if err != nil {
		t.Fatal(err)
	}
	if !changed || got != "wizard of earthsea" {
		t.Errorf("Correct = %q changed=%v", got, changed)
	}

	got, changed, _ = s.Correct("wizard of earthsea")
	if changed || got != "wizard of earthsea" {
		t.Errorf("known terms should be left alone, got %q changed=%v", got, changed)
	}

	if _, changed, _ := s.Correct("xq"); changed {
		t.Error("short terms should not be corrected")
	}
}

func TestSpeller_InvalidateReloads(t *testing.T) {
	dict := &staticDictionary{terms: map[string]int{"emma": 1}}
	s := NewSpeller(dict)
	_, _ = s.Suggest("emm")
	_, _ = s.Suggest("emm")
	if dict.loads != 1 {
		t.Errorf("vocabulary loaded %d times, want 1", dict.loads)
	}
	s.Invalidate()
	_, _ = s.Suggest("emm")
	if dict.loads != 2 {
		t.Errorf("vocabulary not reloaded after Invalidate: %d loads", dict.loads)
	}
}

func TestSpeller_DictionaryError(t *testing.T) {
	s := NewSpeller(&staticDictionary{err: errors.New("closed")})
	if _, err := s.Suggest("x"); err == nil {
		t.Error("expected error from Suggest")
	}
	got, changed, err := s.Correct("query")
	if err == nil || changed || got != "query" {
		t.Errorf("Correct = %q %v %v", got, changed, err)
	}
}

func TestSpeller_WithBleveIndex(t *testing.T) {
	idx := newMemIndex(t, titled("1", "Neuromancer", "William Gibson", "Sprawl"))
	s := NewSpeller(idx)
	got, changed, err := s.Correct("neuromancr gibsn")
	if err != nil {
		t.Fatal(err)
	}
	if !changed || got != "neuromancer gibson" {
		t.Errorf("Correct = %q changed=%v", got, changed)
	}
}
