// Package cache provides the keyed collection abstraction shared by the
// rooms, servers and messages caches, and the session-scoped cache
// service that replaces any process-wide singleton.
package cache

import (
	"sync"
)

// Collection is an ordered, keyed collection of entities. Every
// mutation is idempotent with respect to repeated application of the
// same logical change: Add preserves insertion order and re-adding an
// existing key replaces in place, Update and PartialUpdate replace
// positionally, Remove of a missing key is a no-op.
type Collection[T any] struct {
	mu    sync.RWMutex
	keyOf func(T) string
	index map[string]int
	items []T
}

// NewCollection creates a collection keyed by keyOf, which must be
// total and stable for a given entity.
func NewCollection[T any](keyOf func(T) string) *Collection[T] {
	return &Collection[T]{
		keyOf: keyOf,
		index: make(map[string]int),
	}
}

func (c *Collection[T]) Add(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.keyOf(item)
	if i, ok := c.index[key]; ok {
		c.items[i] = item
		return
	}

	c.index[key] = len(c.items)
	c.items = append(c.items, item)
}

func (c *Collection[T]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[key]
	if !ok {
		return
	}

	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, key)
	for j := i; j < len(c.items); j++ {
		c.index[c.keyOf(c.items[j])] = j
	}
}

// Update replaces the stored entity in place, reporting whether the key
// was present.
func (c *Collection[T]) Update(item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[c.keyOf(item)]
	if !ok {
		return false
	}

	c.items[i] = item
	return true
}

// PartialUpdate applies a patch to the stored entity in place. The
// patch receives the current value and returns the replacement.
func (c *Collection[T]) PartialUpdate(key string, patch func(T) T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[key]
	if !ok {
		return false
	}

	c.items[i] = patch(c.items[i])
	return true
}

func (c *Collection[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i, ok := c.index[key]; ok {
		return c.items[i], true
	}

	var zero T
	return zero, false
}

// Items returns a copy of the collection in insertion order.
func (c *Collection[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

func (c *Collection[T]) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	c.index = make(map[string]int)
}
