package realtime

import (
	"sync"
	"time"
)

// Entry is a cached value with its fetch time and version
type Entry[T any] struct {
	Value     T
	FetchedAt time.Time
	Version   uint64
}

// Cache holds the last fetched server truth. Version increases on every
// Set; Invalidate marks the value stale without dropping it.
type Cache[T any] struct {
	mu          sync.RWMutex
	entry       Entry[T]
	valid       bool
	invalidated string
}

// NewCache creates an empty, invalid cache
func NewCache[T any]() *Cache[T] {
	return &Cache[T]{}
}

// Set stores a freshly fetched value and returns its version
func (c *Cache[T]) Set(v T) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = Entry[T]{
		Value:     v,
		FetchedAt: time.Now(),
		Version:   c.entry.Version + 1,
	}
	c.valid = true
	c.invalidated = ""
	return c.entry.Version
}

// Get returns the entry and whether it is still valid
func (c *Cache[T]) Get() (Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry, c.valid
}

// Invalidate marks the value stale
func (c *Cache[T]) Invalidate(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.invalidated = reason
}

// InvalidatedBy returns the reason of the last invalidation, empty when valid
func (c *Cache[T]) InvalidatedBy() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.invalidated
}
