package vector

import (
	"fmt"

	"github.com/hyperjump/shelf/internal/models"
)

// FlatEngine is the exact engine: a brute-force inner-product scan over
// contiguously stored vectors.
type FlatEngine struct {
	dimensions int
	data       []float32 // size*dimensions, offset-major
}

// NewFlatEngine creates an empty exact engine.
func NewFlatEngine(dimensions int) (*FlatEngine, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive: %w", models.ErrValidation)
	}
	return &FlatEngine{dimensions: dimensions}, nil
}

// Add appends vectors at the next offsets. Either all are added or none.
func (f *FlatEngine) Add(vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != f.dimensions {
			return &models.DimensionError{Expected: f.dimensions, Got: len(v)}
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Set overwrites the vector at offset.
func (f *FlatEngine) Set(offset int, v []float32) error {
	if offset < 0 || offset >= f.Size() {
		return fmt.Errorf("offset %d out of range [0,%d)", offset, f.Size())
	}
	if len(v) != f.dimensions {
		return &models.DimensionError{Expected: f.dimensions, Got: len(v)}
	}
	copy(f.data[offset*f.dimensions:], v)
	return nil
}

// Vector returns the stored vector at offset. The slice aliases engine storage.
func (f *FlatEngine) Vector(offset int) []float32 {
	start := offset * f.dimensions
	return f.data[start : start+f.dimensions : start+f.dimensions]
}

// Vectors returns every stored vector in offset order, aliasing engine storage.
func (f *FlatEngine) Vectors() [][]float32 {
	out := make([][]float32, f.Size())
	for i := range out {
		out[i] = f.Vector(i)
	}
	return out
}

// Search returns the top-k offsets by inner product.
func (f *FlatEngine) Search(query []float32, k int) []Neighbor {
	n := f.Size()
	if k <= 0 || n == 0 || len(query) != f.dimensions {
		return nil
	}
	scores := make([]Neighbor, n)
	for i := 0; i < n; i++ {
		scores[i] = Neighbor{Offset: i, Score: InnerProduct(query, f.Vector(i))}
	}
	return topK(scores, k)
}

// Size returns the number of vectors.
func (f *FlatEngine) Size() int { return len(f.data) / f.dimensions }

// Dimensions returns the vector dimension.
func (f *FlatEngine) Dimensions() int { return f.dimensions }

// Clone returns an independent copy.
func (f *FlatEngine) Clone() *FlatEngine {
	return &FlatEngine{dimensions: f.dimensions, data: append([]float32(nil), f.data...)}
}

// MarshalBinary encodes the engine: header, u64 count, then count*dimensions float32.
func (f *FlatEngine) MarshalBinary() ([]byte, error) {
	w := newBlobWriter(flatMagic, f.dimensions)
	w.u64(uint64(f.Size()))
	w.floats(f.data)
	return w.bytes(), nil
}

// UnmarshalBinary replaces the engine contents. The blob's dimension must match.
func (f *FlatEngine) UnmarshalBinary(data []byte) error {
	r, err := newBlobReader(data, flatMagic, f.dimensions)
	if err != nil {
		return err
	}
	n, err := r.count(f.dimensions * 4)
	if err != nil {
		return err
	}
	vecs, err := r.floats(n * f.dimensions)
	if err != nil {
		return err
	}
	if err := r.done(); err != nil {
		return err
	}
	f.data = vecs
	return nil
}
