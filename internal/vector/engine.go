// Package vector provides exact and approximate nearest-neighbor engines and
// the similarity index that keeps them aligned with the catalog.
package vector

import (
	"encoding"
	"fmt"
	"sort"
	"strings"
)

// SearchMode selects the engine that serves a query.
type SearchMode string

const (
	// Exact scans every vector.
	Exact SearchMode = "exact"
	// Approximate probes the nearest inverted lists; it falls back to Exact until trained.
	Approximate SearchMode = "approximate"
)

// ParseSearchMode accepts "exact", "flat", "approximate", "ivf" (case-insensitive); empty means Exact.
func ParseSearchMode(s string) (SearchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exact", "flat":
		return Exact, nil
	case "approximate", "ivf", "ann":
		return Approximate, nil
	default:
		return "", fmt.Errorf("unknown search mode: %s (supported: exact, approximate)", s)
	}
}

// Neighbor is an engine hit addressed by insertion offset.
type Neighbor struct {
	Offset int
	Score  float64 // inner product; cosine similarity for normalized vectors
}

// Engine stores vectors at dense offsets and answers k-nearest queries.
// Engines are not safe for concurrent mutation; Index serializes access.
type Engine interface {
	Add(vectors ...[]float32) error
	Search(query []float32, k int) []Neighbor
	Size() int
	Dimensions() int
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

var (
	_ Engine = (*FlatEngine)(nil)
	_ Engine = (*IVFEngine)(nil)
)

// sortNeighbors orders by descending score, then ascending offset.
func sortNeighbors(n []Neighbor) {
	sort.Slice(n, func(i, j int) bool {
		if n[i].Score != n[j].Score {
			return n[i].Score > n[j].Score
		}
		return n[i].Offset < n[j].Offset
	})
}

func topK(n []Neighbor, k int) []Neighbor {
	sortNeighbors(n)
	if k < len(n) {
		n = n[:k]
	}
	return n
}
