package resolve

import (
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/propertydigital/pdimport/pkg/core"
)

// memoryCache is a mutex-guarded LRU keyed "entityType:id". Capacity is
// enforced by the underlying lru.Cache; Get promotes recency. A side keys
// set supports prefix invalidation, kept in sync through OnEvicted.
type memoryCache struct {
	mu    sync.Mutex
	cache *lru.Cache
	keys  map[string]struct{}

	hits   int64
	misses int64
}

func newMemoryCache(maxEntries int) *memoryCache {
	c := &memoryCache{
		cache: lru.New(maxEntries),
		keys:  make(map[string]struct{}),
	}
	c.cache.OnEvicted = func(key lru.Key, _ any) {
		delete(c.keys, key.(string))
	}
	return c
}

func (c *memoryCache) Get(key string) (core.Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.cache.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return v.(core.Entity), true
}

func (c *memoryCache) Add(key string, entity core.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, entity)
	c.keys[key] = struct{}{}
}

// warm inserts without touching the hit/miss counters.
func (c *memoryCache) warm(key string, entity core.Entity) {
	c.Add(key, entity)
}

func (c *memoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// RemovePrefix drops every key starting with prefix.
func (c *memoryCache) RemovePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.keys {
		if strings.HasPrefix(key, prefix) {
			c.cache.Remove(key)
		}
	}
}

// Clear drops everything and resets the counters.
func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Clear()
	c.keys = make(map[string]struct{})
	c.hits, c.misses = 0, 0
}

func (c *memoryCache) Counters() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
