// Package cache provides an in-memory TTL cache for API responses.
//
// This is a memoization layer, not an eviction engine: entries have no
// size bound and expired entries are reclaimed lazily, on the next Get
// or Has that observes them.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL applies when SetDefault is used.
const DefaultTTL = 5 * time.Minute

type entry struct {
	value     any
	writtenAt time.Time
	ttl       time.Duration
}

// Cache maps caller-composed string keys to values with a per-entry TTL.
// Keys are typically "<operation>_<params>"; callers own the key space of
// the instance they hold. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, writtenAt: c.now(), ttl: ttl}
}

// SetDefault stores value under key with DefaultTTL.
func (c *Cache) SetDefault(key string, value any) {
	c.Set(key, value, DefaultTTL)
}

// Get returns the value stored under key, or (nil, false) if the key is
// absent or expired. An expired entry is deleted as a side effect.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(ent.writtenAt) > ent.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return ent.value, true
}

// Has reports whether key holds a live entry, evicting it if expired.
func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Remove deletes key regardless of expiry.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the number of stored entries, including any not yet
// observed as expired.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetAs retrieves the entry under key and type-asserts it to T.
// A present entry of the wrong type counts as a miss.
func GetAs[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
