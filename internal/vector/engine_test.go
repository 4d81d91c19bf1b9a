package vector

import (
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/shelf/internal/models"
)

func TestParseSearchMode(t *testing.T) {
	tests := []struct {
		in      string
		want    SearchMode
		wantErr bool
	}{
		{"", Exact, false},
		{"exact", Exact, false},
		{"FLAT", Exact, false},
		{"approximate", Approximate, false},
		{" ivf ", Approximate, false},
		{"hnsw", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSearchMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSearchMode(%q) err=%v, wantErr=%v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSearchMode(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFlatEngine_SearchOrdering(t *testing.T) {
	f, err := NewFlatEngine(2)
	if err != nil {
		t.Fatal(err)
	}
	// b and c tie; the earlier offset wins.
	if err := f.Add([]float32{0, 1}, []float32{1, 0}, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	got := f.Search([]float32{1, 0}, 3)
	want := []int{1, 2, 0}
	if len(got) != len(want) {
		t.Fatalf("got %d neighbors, want %d", len(got), len(want))
	}
	for i, n := range got {
		if n.Offset != want[i] {
			t.Errorf("position %d: offset %d, want %d", i, n.Offset, want[i])
		}
	}
	if math.Abs(got[0].Score-1) > 1e-6 {
		t.Errorf("top score %f, want 1", got[0].Score)
	}
	if got := f.Search([]float32{1, 0}, 0); got != nil {
		t.Errorf("k=0 should return nil, got %v", got)
	}
}

func TestFlatEngine_AddAllOrNothing(t *testing.T) {
	f, _ := NewFlatEngine(3)
	err := f.Add([]float32{1, 0, 0}, []float32{1, 0})
	var dimErr *models.DimensionError
	if !errors.As(err, &dimErr) || dimErr.Got != 2 {
		t.Fatalf("expected DimensionError, got %v", err)
	}
	if f.Size() != 0 {
		t.Errorf("Size=%d after failed add, want 0", f.Size())
	}
}

func TestFlatEngine_BinaryRoundTrip(t *testing.T) {
	f, _ := NewFlatEngine(2)
	_ = f.Add([]float32{0.6, 0.8}, []float32{1, 0})
	blob, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	g, _ := NewFlatEngine(2)
	if err := g.UnmarshalBinary(blob); err != nil {
		t.Fatal(err)
	}
	if g.Size() != 2 || g.Vector(0)[1] != 0.8 {
		t.Errorf("round trip lost data: size=%d v0=%v", g.Size(), g.Vector(0))
	}
}

func TestFlatEngine_UnmarshalRejects(t *testing.T) {
	f, _ := NewFlatEngine(2)
	_ = f.Add([]float32{1, 0})
	blob, _ := f.MarshalBinary()

	wrongDim, _ := NewFlatEngine(3)
	badVersion := append([]byte(nil), blob...)
	badVersion[4] = 9
	overrun := append([]byte(nil), blob...)
	overrun[headerSize] = 0xff // count low byte

	tests := []struct {
		name   string
		engine *FlatEngine
		data   []byte
	}{
		{"truncated header", f, blob[:6]},
		{"bad magic", f, append([]byte("XXXX"), blob[4:]...)},
		{"bad version", f, badVersion},
		{"wrong dimension", wrongDim, blob},
		{"count overruns", f, overrun},
		{"truncated body", f, blob[:len(blob)-1]},
		{"trailing bytes", f, append(append([]byte(nil), blob...), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.engine.UnmarshalBinary(tt.data); !errors.Is(err, models.ErrIndexCorrupt) {
				t.Errorf("expected ErrIndexCorrupt, got %v", err)
			}
		})
	}
}

func TestInnerProductAndNorm(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"short", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"unrolled with tail", []float32{1, 1, 1, 1, 1, 2}, []float32{1, 2, 3, 4, 5, 6}, 27},
		{"mismatched length", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InnerProduct(tt.a, tt.b); got != tt.want {
				t.Errorf("InnerProduct = %f, want %f", got, tt.want)
			}
		})
	}
	if got := L2Norm([]float32{3, 4}); math.Abs(got-5) > 1e-9 {
		t.Errorf("L2Norm=%f, want 5", got)
	}
}
