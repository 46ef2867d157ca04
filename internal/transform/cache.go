package transform

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// Cache stores the results of the cached transformer. A zero ttl never
// expires.
type Cache interface {
	Get(key string) (any, bool, error)
	Set(key string, value any, ttl time.Duration) error
}

type memoryItem struct {
	value   any
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu    sync.Mutex
	clock clockz.Clock
	items map[string]memoryItem
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: map[string]memoryItem{}}
}

func (c *MemoryCache) WithClock(clock clockz.Clock) *MemoryCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
	return c
}

func (c *MemoryCache) getClock() clockz.Clock {
	if c.clock == nil {
		return clockz.RealClock
	}
	return c.clock
}

func (c *MemoryCache) Get(key string) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if !it.expires.IsZero() && !c.getClock().Now().Before(it.expires) {
		delete(c.items, key)
		return nil, false, nil
	}
	return it.value, true, nil
}

func (c *MemoryCache) Set(key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := memoryItem{value: value}
	if ttl > 0 {
		it.expires = c.getClock().Now().Add(ttl)
	}
	c.items[key] = it
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
