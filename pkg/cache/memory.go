package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Memory is an in-process Store backed by a map. Expiry is lazy: an
// entry past its deadline is discarded the next time it is read. There
// is no background sweep, so memory for dead entries is reclaimed only
// on access or Flush.
type Memory[V any] struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry[V]
	group   singleflight.Group
}

type memoryEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{
		entries: make(map[string]memoryEntry[V]),
	}
}

// GetOrAdd implements Store.
func (m *Memory[V]) GetOrAdd(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (V, error)) (V, error) {
	if v, ok := m.lookup(key); ok {
		CacheHits.WithLabelValues("memory").Inc()
		return v, nil
	}
	CacheMisses.Inc()

	ch := m.group.DoChan(key, func() (any, error) {
		// Another caller may have populated the entry between our
		// lookup and joining the group.
		if v, ok := m.lookup(key); ok {
			return v, nil
		}

		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.entries[key] = memoryEntry[V]{value: v, expiresAt: time.Now().Add(ttl)}
		m.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		if res.Shared {
			SharedResults.Inc()
		}
		return res.Val.(V), nil
	}
}

// lookup returns the live value for key, discarding the entry if it
// has expired.
func (m *Memory[V]) lookup(key string) (V, bool) {
	var zero V

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock: a fresh entry may have
		// replaced the expired one in the meantime.
		if cur, ok := m.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Delete removes the entry for key, if any.
func (m *Memory[V]) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Flush removes all entries.
func (m *Memory[V]) Flush() {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry[V])
	m.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
