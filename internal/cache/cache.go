// Package cache provides a bounded, time-expiring result cache keyed by query fingerprint.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hyperjump/shelf/internal/models"
)

const (
	// DefaultCapacity is the number of entries kept when no capacity is configured.
	DefaultCapacity = 1000
	// DefaultTTL is the maximum entry age when no TTL is configured.
	DefaultTTL = time.Hour
)

// Cache holds values by key for at most ttl. When full, the entry created
// earliest is evicted regardless of how recently it was read.
type Cache[V any] struct {
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = newest creation time
	now      func() time.Time
	total    *prometheus.CounterVec
	mu       sync.RWMutex
}

type entry[V any] struct {
	key     string
	value   V
	created time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now   func() time.Time
	total *prometheus.CounterVec
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCounter counts lookups on a vec with a single "result" label ("hit"/"miss").
func WithCounter(total *prometheus.CounterVec) Option {
	return func(o *options) { o.total = total }
}

// New creates a cache. Capacity and ttl must be positive.
func New[V any](capacity int, ttl time.Duration, opts ...Option) (*Cache[V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d: %w", capacity, models.ErrValidation)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s: %w", ttl, models.ErrValidation)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      o.now,
		total:    o.total,
	}, nil
}

// Get returns the value for key if it is younger than the TTL. It takes a
// shared lock, so lookups run concurrently. Expired entries are left in
// place; Put reclaims them.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	elem, ok := c.entries[key]
	if !ok {
		c.inc("miss")
		return zero, false
	}
	e := elem.Value.(*entry[V])
	if c.now().Sub(e.created) >= c.ttl {
		c.inc("miss")
		return zero, false
	}
	c.inc("hit")
	return e.value, true
}

// Put stores value under key. Overwriting an entry resets its creation time.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
	c.purgeExpiredLocked(now)
	for c.order.Len() >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[key] = c.order.PushFront(&entry[V]{key: key, value: value, created: now})
}

// InvalidateAll drops every entry.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Capacity returns the maximum number of entries.
func (c *Cache[V]) Capacity() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capacity
}

// SetCapacity changes the bound, evicting the oldest entries if needed.
func (c *Cache[V]) SetCapacity(capacity int) error {
	if capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d: %w", capacity, models.ErrValidation)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = capacity
	for c.order.Len() > c.capacity {
		c.evictOldestLocked()
	}
	return nil
}

func (c *Cache[V]) purgeExpiredLocked(now time.Time) {
	for {
		oldest := c.order.Back()
		if oldest == nil || now.Sub(oldest.Value.(*entry[V]).created) < c.ttl {
			return
		}
		c.evictOldestLocked()
	}
}

func (c *Cache[V]) evictOldestLocked() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.order.Remove(oldest)
	delete(c.entries, oldest.Value.(*entry[V]).key)
}

func (c *Cache[V]) inc(result string) {
	if c.total != nil {
		c.total.WithLabelValues(result).Inc()
	}
}
