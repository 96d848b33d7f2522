package geocode

import (
	"context"
	"fmt"
	"sync"

	"github.com/airshedlab/airward/internal/domain"
	"github.com/airshedlab/airward/internal/observability"
)

// CachedResolver wraps a RegionResolver with an in-memory LRU cache. FIRMS
// detections cluster tightly, so most lookups in a cycle hit the cache.
type CachedResolver struct {
	inner   domain.RegionResolver
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedResolver creates a cache decorator around a resolver.
func NewCachedResolver(inner domain.RegionResolver, maxEntries int, metrics *observability.Metrics) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// Resolve serves from cache when possible. Coordinates are rounded to four
// decimals (roughly 10 m), so re-detections of the same fire share an entry.
func (c *CachedResolver) Resolve(ctx context.Context, lat, lon float64) (domain.RegionInfo, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	if info, ok := c.cache.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return info, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	info, err := c.inner.Resolve(ctx, lat, lon)
	if err != nil {
		return info, err
	}
	// Only cache resolved regions so transient empty responses can be retried.
	if info.Region != "" {
		c.cache.put(key, info)
	}
	return info, nil
}

// lruCache is a simple thread-safe LRU cache for RegionInfo values.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.RegionInfo
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.RegionInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.RegionInfo{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.RegionInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
