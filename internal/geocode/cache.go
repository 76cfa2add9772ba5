package geocode

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/mr1hm/go-flood-risk/internal/models"
	"github.com/mr1hm/go-flood-risk/internal/observability"
)

// Cache stores resolved coordinates by normalized locality.
type Cache interface {
	Get(ctx context.Context, key string) (models.Coordinates, bool, error)
	Put(ctx context.Context, key string, coords models.Coordinates) error
}

// CachedResolver wraps a Resolver with a Cache. Only successful matches are
// cached so "not found" answers are retried on the next request.
type CachedResolver struct {
	inner   Resolver
	cache   Cache
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewCachedResolver(inner Resolver, cache Cache, metrics *observability.Metrics, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *CachedResolver) Resolve(ctx context.Context, locality string) (models.Coordinates, bool, error) {
	key := cacheKey(locality)

	coords, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		// A broken cache degrades to a direct lookup.
		c.logger.Warn("geocode cache read failed", "locality", locality, "error", err)
	}
	if ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return coords, true, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	coords, found, err := c.inner.Resolve(ctx, locality)
	if err != nil || !found {
		return coords, found, err
	}
	if err := c.cache.Put(ctx, key, coords); err != nil {
		c.logger.Warn("geocode cache write failed", "locality", locality, "error", err)
	}
	return coords, true, nil
}

func cacheKey(locality string) string {
	return strings.Join(strings.Fields(strings.ToLower(locality)), " ")
}

// LRUCache is a thread-safe in-memory Cache bounded by entry count.
type LRUCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value models.Coordinates
	prev  *entry
	next  *entry
}

func NewLRUCache(maxEntries int) *LRUCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &LRUCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *LRUCache) Get(_ context.Context, key string) (models.Coordinates, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return models.Coordinates{}, false, nil
	}
	c.moveToFront(e)
	return e.value, true, nil
}

func (c *LRUCache) Put(_ context.Context, key string, value models.Coordinates) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return nil
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
	return nil
}

func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *LRUCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *LRUCache) addToFront(e *entry) {
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

func (c *LRUCache) remove(e *entry) {
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

func (c *LRUCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
