package embedding

import (
	"container/list"
	"context"
	"sync"
)

// DefaultCacheSize is the number of embeddings kept by NewCachedEmbedder when size <= 0.
const DefaultCacheSize = 1000

// CachedEmbedder memoizes another embedder's results in an LRU keyed by text.
// Failed calls are not cached.
type CachedEmbedder struct {
	next     Embedder
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewCachedEmbedder wraps next with an LRU of the given size.
func NewCachedEmbedder(next Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &CachedEmbedder{
		next:     next,
		capacity: size,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Embed returns a copy of the cached embedding for text, computing it on a miss.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.get(text); ok {
		return v, nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.set(text, v)
	return append([]float32(nil), v...), nil
}

// Dimensions returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimensions() int { return c.next.Dimensions() }

// Close closes the wrapped embedder.
func (c *CachedEmbedder) Close() error { return Close(c.next) }

// Len returns the number of cached embeddings.
func (c *CachedEmbedder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *CachedEmbedder) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return append([]float32(nil), elem.Value.(*cacheEntry).value...), true
	}
	return nil, false
}

func (c *CachedEmbedder) set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value = append([]float32(nil), value...)
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, value: value})
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.cache, oldest.Value.(*cacheEntry).key)
	}
}
