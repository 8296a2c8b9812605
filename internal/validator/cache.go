package validator

import (
	"sync"
	"time"
)

// TTLs maps tiers to cache lifetimes. Higher scrutiny gets a shorter TTL;
// critical never caches.
type TTLs struct {
	Low    time.Duration
	Medium time.Duration
	High   time.Duration
}

// For returns the cache TTL for a tier. Zero means no caching.
func (t TTLs) For(tier Tier) time.Duration {
	switch tier {
	case TierLow:
		return t.Low
	case TierMedium:
		return t.Medium
	case TierHigh:
		return t.High
	}
	return 0
}

type cacheEntry struct {
	result    Result
	createdAt time.Time
	ttl       time.Duration
}

func (e cacheEntry) fresh(now time.Time) bool {
	return now.Sub(e.createdAt) <= e.ttl
}

// resultCache is a process-local TTL cache over check results. Expired
// entries are dropped lazily on lookup and swept when the map is written.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newResultCache() *resultCache {
	return &resultCache{entries: make(map[string]cacheEntry)}
}

// get returns the cached result for key if it is still within its TTL.
func (c *resultCache) get(key string, now time.Time) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if !entry.fresh(now) {
		delete(c.entries, key)
		return Result{}, false
	}
	return entry.result, true
}

// put stores a result under key. A non-positive TTL stores nothing.
func (c *resultCache) put(key string, result Result, now time.Time, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistic sweep keeps the map bounded by live entries without a
	// background goroutine.
	for k, e := range c.entries {
		if !e.fresh(now) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{result: result, createdAt: now, ttl: ttl}
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
