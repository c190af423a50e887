package memory

import (
	"sync"
	"time"
)

// entry wraps a cached value with its expiry deadline.
type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// cache is a minimal concurrent TTL map. Consume removes the entry under the
// write lock, which is what gives issued codes their exactly-once semantics.
type cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
}

func newCache[T any]() *cache[T] {
	return &cache[T]{entries: make(map[string]entry[T])}
}

// put stores value under key until expiresAt.
func (c *cache[T]) put(key string, value T, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{value: value, expiresAt: expiresAt}
}

// get returns the live value for key. Expired entries are never returned.
func (c *cache[T]) get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// consume returns the live value for key and removes it in the same critical
// section. Two concurrent calls for the same key see exactly one success.
func (c *cache[T]) consume(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	delete(c.entries, key)
	if time.Now().After(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// purgeExpired removes all entries past their deadline and reports how many
// were removed.
func (c *cache[T]) purgeExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// len reports the current entry count, expired entries included.
func (c *cache[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
