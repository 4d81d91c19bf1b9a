package vector

import (
	"fmt"
	"math/rand/v2"

	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/pkg/utils"
)

const (
	// DefaultNList is the number of inverted lists (k-means centroids).
	DefaultNList = 100
	// DefaultNProbe is the number of lists scanned per query.
	DefaultNProbe = 10

	kmeansIterations = 25
	kmeansSeed       = 0x5eed
)

// IVFEngine is the approximate engine: vectors are bucketed by nearest
// centroid and a query scans only the nprobe closest buckets. It must be
// trained before Search returns anything; until then Add only stores vectors.
type IVFEngine struct {
	dimensions int
	nlist      int
	nprobe     int
	centroids  [][]float32
	lists      [][]int
	data       []float32
	trained    bool
}

// NewIVFEngine creates an untrained approximate engine.
func NewIVFEngine(dimensions, nlist, nprobe int) (*IVFEngine, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive: %w", models.ErrValidation)
	}
	if nlist <= 0 {
		nlist = DefaultNList
	}
	if nprobe <= 0 {
		nprobe = DefaultNProbe
	}
	if nprobe > nlist {
		nprobe = nlist
	}
	return &IVFEngine{dimensions: dimensions, nlist: nlist, nprobe: nprobe}, nil
}

// Trained reports whether centroids exist.
func (e *IVFEngine) Trained() bool { return e.trained }

// NList returns the number of inverted lists.
func (e *IVFEngine) NList() int { return e.nlist }

// Train runs spherical k-means over samples and reassigns every stored vector.
// It needs at least nlist samples.
func (e *IVFEngine) Train(samples [][]float32) error {
	if len(samples) < e.nlist {
		return fmt.Errorf("ivf training needs at least %d samples, got %d: %w", e.nlist, len(samples), models.ErrValidation)
	}
	for _, s := range samples {
		if len(s) != e.dimensions {
			return &models.DimensionError{Expected: e.dimensions, Got: len(s)}
		}
	}
	e.centroids = kmeans(samples, e.nlist, e.dimensions)
	e.trained = true
	e.reassign()
	return nil
}

// Add appends vectors at the next offsets, assigning them to lists when trained.
func (e *IVFEngine) Add(vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != e.dimensions {
			return &models.DimensionError{Expected: e.dimensions, Got: len(v)}
		}
	}
	for _, v := range vectors {
		offset := e.Size()
		e.data = append(e.data, v...)
		if e.trained {
			c := nearest(e.centroids, v)
			e.lists[c] = append(e.lists[c], offset)
		}
	}
	return nil
}

// Reset drops stored vectors but keeps the trained centroids.
func (e *IVFEngine) Reset() {
	e.data = nil
	if e.trained {
		e.lists = make([][]int, e.nlist)
	}
}

// Search probes the nprobe nearest lists. An untrained engine returns nothing.
func (e *IVFEngine) Search(query []float32, k int) []Neighbor {
	if !e.trained || k <= 0 || e.Size() == 0 || len(query) != e.dimensions {
		return nil
	}
	coarse := make([]Neighbor, len(e.centroids))
	for i, c := range e.centroids {
		coarse[i] = Neighbor{Offset: i, Score: InnerProduct(query, c)}
	}
	coarse = topK(coarse, e.nprobe)

	var candidates []Neighbor
	for _, c := range coarse {
		for _, offset := range e.lists[c.Offset] {
			candidates = append(candidates, Neighbor{Offset: offset, Score: InnerProduct(query, e.vector(offset))})
		}
	}
	return topK(candidates, k)
}

// Size returns the number of stored vectors.
func (e *IVFEngine) Size() int { return len(e.data) / e.dimensions }

// Dimensions returns the vector dimension.
func (e *IVFEngine) Dimensions() int { return e.dimensions }

// Clone returns an independent copy.
func (e *IVFEngine) Clone() *IVFEngine {
	out := &IVFEngine{
		dimensions: e.dimensions,
		nlist:      e.nlist,
		nprobe:     e.nprobe,
		trained:    e.trained,
		data:       append([]float32(nil), e.data...),
	}
	if e.trained {
		out.centroids = make([][]float32, len(e.centroids))
		for i, c := range e.centroids {
			out.centroids[i] = append([]float32(nil), c...)
		}
		out.lists = make([][]int, len(e.lists))
		for i, l := range e.lists {
			out.lists[i] = append([]int(nil), l...)
		}
	}
	return out
}

func (e *IVFEngine) vector(offset int) []float32 {
	start := offset * e.dimensions
	return e.data[start : start+e.dimensions]
}

func (e *IVFEngine) reassign() {
	e.lists = make([][]int, e.nlist)
	for offset := 0; offset < e.Size(); offset++ {
		c := nearest(e.centroids, e.vector(offset))
		e.lists[c] = append(e.lists[c], offset)
	}
}

// MarshalBinary encodes: header, u32 nlist, u32 nprobe, u8 trained,
// [nlist*dimensions centroids], u64 count, vectors, [per list: u64 len, u32 offsets].
func (e *IVFEngine) MarshalBinary() ([]byte, error) {
	w := newBlobWriter(ivfMagic, e.dimensions)
	w.u32(uint32(e.nlist))
	w.u32(uint32(e.nprobe))
	if e.trained {
		w.u8(1)
		for _, c := range e.centroids {
			w.floats(c)
		}
	} else {
		w.u8(0)
	}
	w.u64(uint64(e.Size()))
	w.floats(e.data)
	if e.trained {
		for _, l := range e.lists {
			w.u64(uint64(len(l)))
			for _, offset := range l {
				w.u32(uint32(offset))
			}
		}
	}
	return w.bytes(), nil
}

// UnmarshalBinary replaces the engine contents. The blob's dimension must match;
// list layout and training state come from the blob.
func (e *IVFEngine) UnmarshalBinary(data []byte) error {
	r, err := newBlobReader(data, ivfMagic, e.dimensions)
	if err != nil {
		return err
	}
	nlist, err := r.u32()
	if err != nil {
		return err
	}
	nprobe, err := r.u32()
	if err != nil {
		return err
	}
	if nlist == 0 || nprobe == 0 || nprobe > nlist {
		return corrupt("invalid ivf parameters nlist=%d nprobe=%d", nlist, nprobe)
	}
	flag, err := r.u8()
	if err != nil {
		return err
	}
	if flag > 1 {
		return corrupt("invalid trained flag %d", flag)
	}
	trained := flag == 1

	var centroids [][]float32
	if trained {
		flat, err := r.floats(int(nlist) * e.dimensions)
		if err != nil {
			return err
		}
		centroids = make([][]float32, nlist)
		for i := range centroids {
			centroids[i] = flat[i*e.dimensions : (i+1)*e.dimensions]
		}
	}
	n, err := r.count(e.dimensions * 4)
	if err != nil {
		return err
	}
	vecs, err := r.floats(n * e.dimensions)
	if err != nil {
		return err
	}
	var lists [][]int
	if trained {
		lists = make([][]int, nlist)
		listed := make([]bool, n)
		seen := 0
		for i := range lists {
			size, err := r.count(4)
			if err != nil {
				return err
			}
			lists[i] = make([]int, size)
			for j := range lists[i] {
				offset, err := r.u32()
				if err != nil {
					return err
				}
				if int(offset) >= n {
					return corrupt("list %d references offset %d of %d", i, offset, n)
				}
				if listed[offset] {
					return corrupt("offset %d appears in more than one inverted list slot", offset)
				}
				listed[offset] = true
				lists[i][j] = int(offset)
			}
			seen += size
		}
		if seen != n {
			return corrupt("inverted lists hold %d offsets, blob has %d vectors", seen, n)
		}
	}
	if err := r.done(); err != nil {
		return err
	}
	e.nlist = int(nlist)
	e.nprobe = int(nprobe)
	e.trained = trained
	e.centroids = centroids
	e.lists = lists
	e.data = vecs
	return nil
}

// nearest returns the index of the centroid with the highest inner product; ties go to the lower index.
func nearest(centroids [][]float32, v []float32) int {
	best, bestScore := 0, InnerProduct(v, centroids[0])
	for i := 1; i < len(centroids); i++ {
		if s := InnerProduct(v, centroids[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// kmeans runs seeded spherical k-means and returns k unit-norm centroids.
func kmeans(samples [][]float32, k, dimensions int) [][]float32 {
	rng := rand.New(rand.NewPCG(kmeansSeed, uint64(len(samples))))
	perm := rng.Perm(len(samples))
	centroids := make([][]float32, k)
	for i := range centroids {
		centroids[i] = append([]float32(nil), samples[perm[i]]...)
		utils.NormalizeL2(centroids[i])
	}

	assign := make([]int, len(samples))
	for i := range assign {
		assign[i] = -1
	}
	sums := make([][]float64, k)
	for i := range sums {
		sums[i] = make([]float64, dimensions)
	}
	counts := make([]int, k)

	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, s := range samples {
			c := nearest(centroids, s)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		for c := range sums {
			counts[c] = 0
			for d := range sums[c] {
				sums[c][d] = 0
			}
		}
		for i, s := range samples {
			c := assign[i]
			counts[c]++
			for d, v := range s {
				sums[c][d] += float64(v)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
			utils.NormalizeL2(centroids[c])
		}
	}
	return centroids
}
