// Package cache keeps upstream responses in memory for a short time to spare
// the provider's request quota.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is how long an upstream result stays fresh.
const DefaultTTL = 60 * time.Second

// Key prefixes, one per upstream endpoint.
const (
	KindQuote         = "global_quote"
	KindDaily         = "daily"
	KindDailyAdjusted = "daily_adjusted"
	KindOverview      = "overview"
	KindNews          = "news"
)

// Key builds a cache key such as "daily:IBM".
func Key(kind, symbol string) string {
	return kind + ":" + symbol
}

type entry struct {
	value      any
	insertedAt time.Time
}

// TTLCache is a process-wide map of expiring entries.
// Thread-safe with sync.RWMutex; expired entries are removed lazily on read.
type TTLCache struct {
	mu    sync.RWMutex
	items map[string]entry
	ttl   time.Duration
	now   func() time.Time
}

// New creates a cache whose entries expire ttl after insertion.
func New(ttl time.Duration) *TTLCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTLCache{
		items: make(map[string]entry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the value stored under key when it has not expired.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if c.now().Sub(e.insertedAt) > c.ttl {
		c.mu.Lock()
		if e2, ok2 := c.items[key]; ok2 && c.now().Sub(e2.insertedAt) > c.ttl {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return e.value, true
}

// Set stores value under key, replacing any previous entry.
func (c *TTLCache) Set(key string, value any) {
	c.mu.Lock()
	c.items[key] = entry{value: value, insertedAt: c.now()}
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// TTL returns the configured lifetime.
func (c *TTLCache) TTL() time.Duration {
	return c.ttl
}
