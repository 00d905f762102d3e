package fetch

import (
	"sync"
	"time"
)

// cache is a size-bounded map of fetched bodies with a time to live.
type cache struct {
	entries map[string]*cacheEntry
	mu      sync.RWMutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

func newCache(maxSize int, ttl time.Duration) *cache {
	return &cache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *cache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

func (c *cache) set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[key] = &cacheEntry{
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}
}

// evictLocked drops expired entries, or the one closest to expiry when
// none have expired.
func (c *cache) evictLocked() {
	now := c.now()
	var oldest string
	var oldestAt time.Time
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		if oldest == "" || e.expiresAt.Before(oldestAt) {
			oldest, oldestAt = k, e.expiresAt
		}
	}
	if len(c.entries) >= c.maxSize && oldest != "" {
		delete(c.entries, oldest)
	}
}

func (c *cache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}
