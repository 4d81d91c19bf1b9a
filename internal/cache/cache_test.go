package cache

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hyperjump/shelf/internal/models"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(t *testing.T, capacity int, ttl time.Duration) (*Cache[[]string], *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c, err := New[[]string](capacity, ttl, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	return c, clock
}

func TestNew_RejectsNonPositive(t *testing.T) {
	if _, err := New[int](0, time.Minute); !errors.Is(err, models.ErrValidation) {
		t.Errorf("capacity 0: got %v", err)
	}
	if _, err := New[int](1, 0); !errors.Is(err, models.ErrValidation) {
		t.Errorf("ttl 0: got %v", err)
	}
}

func TestCache_GetPut(t *testing.T) {
	c, _ := newTestCache(t, 2, time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss")
	}
	c.Put("a", []string{"x", "y"})
	v, ok := c.Get("a")
	if !ok || len(v) != 2 || v[0] != "x" {
		t.Errorf("Get: got %v, %v", v, ok)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c, clock := newTestCache(t, 4, time.Minute)
	c.Put("a", []string{"x"})
	clock.Advance(59 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Error("entry younger than ttl should hit")
	}
	clock.Advance(time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("entry at ttl should miss")
	}
	if c.Len() != 1 {
		t.Errorf("Get must not purge; Len = %d", c.Len())
	}
	c.Put("b", []string{"y"})
	if c.Len() != 1 {
		t.Errorf("Put should reclaim expired entries; Len = %d", c.Len())
	}
}

func TestCache_EvictsEarliestCreated(t *testing.T) {
	const size = 3
	c, clock := newTestCache(t, size, time.Hour)
	for i := 0; i <= size; i++ {
		// Reading the first key keeps it "recent" under LRU, but eviction is by creation time.
		_, _ = c.Get("k0")
		c.Put(fmt.Sprintf("k%d", i), []string{fmt.Sprint(i)})
		clock.Advance(time.Second)
	}
	if c.Len() != size {
		t.Fatalf("Len = %d, want %d", c.Len(), size)
	}
	if _, ok := c.Get("k0"); ok {
		t.Error("earliest-created entry should have been evicted")
	}
	for i := 1; i <= size; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("k%d should remain", i)
		}
	}
}

func TestCache_OverwriteResetsCreation(t *testing.T) {
	c, clock := newTestCache(t, 2, time.Hour)
	c.Put("a", []string{"1"})
	clock.Advance(time.Second)
	c.Put("b", []string{"2"})
	clock.Advance(time.Second)
	c.Put("a", []string{"3"})
	c.Put("c", []string{"4"})
	if _, ok := c.Get("b"); ok {
		t.Error("b is now the earliest-created and should be evicted")
	}
	if v, ok := c.Get("a"); !ok || v[0] != "3" {
		t.Errorf("a = %v, %v", v, ok)
	}
}

func TestCache_InvalidateAllAndSetCapacity(t *testing.T) {
	c, clock := newTestCache(t, 4, time.Hour)
	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprint(i), nil)
		clock.Advance(time.Second)
	}
	if err := c.SetCapacity(2); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 || c.Capacity() != 2 {
		t.Errorf("Len=%d Capacity=%d", c.Len(), c.Capacity())
	}
	if _, ok := c.Get("3"); !ok {
		t.Error("newest entry should survive shrink")
	}
	if err := c.SetCapacity(0); !errors.Is(err, models.ErrValidation) {
		t.Errorf("SetCapacity(0) = %v", err)
	}
	c.InvalidateAll()
	if c.Len() != 0 {
		t.Errorf("Len after InvalidateAll = %d", c.Len())
	}
}

func TestCache_Counter(t *testing.T) {
	total := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
	c, err := New[int](2, time.Minute, WithCounter(total))
	if err != nil {
		t.Fatal(err)
	}
	c.Get("a")
	c.Put("a", 1)
	c.Get("a")
	if got := testutil.ToFloat64(total.WithLabelValues("hit")); got != 1 {
		t.Errorf("hits = %v", got)
	}
	if got := testutil.ToFloat64(total.WithLabelValues("miss")); got != 1 {
		t.Errorf("misses = %v", got)
	}
}

func TestFingerprint(t *testing.T) {
	q := []float32{0.1, 0.2, 0.3}
	a := Fingerprint(q, 5, "exact")
	if a != Fingerprint([]float32{0.1, 0.2, 0.3}, 5, "exact") {
		t.Error("fingerprint should be deterministic")
	}
	if a == Fingerprint(q, 6, "exact") || a == Fingerprint(q, 5, "approximate") {
		t.Error("k and mode must change the fingerprint")
	}
	if a == Fingerprint([]float32{0.1, 0.2, -0.3}, 5, "exact") {
		t.Error("distinct vectors should differ")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %q", a)
	}
}

func TestCache_GetSharesLockWithReaders(t *testing.T) {
	c, _ := newTestCache(t, 4, time.Minute)
	c.Put("q", []string{"dune"})

	// A reader already holds the lock; Get must not wait for it.
	c.mu.RLock()
	defer c.mu.RUnlock()
	done := make(chan bool, 1)
	go func() {
		_, ok := c.Get("q")
		done <- ok
	}()
	select {
	case ok := <-done:
		if !ok {
			t.Error("Get missed a fresh entry")
		}
	case <-time.After(time.Second):
		t.Fatal("Get blocked behind another reader")
	}
}
