package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLMap is a small concurrency-safe map whose entries expire. A zero expiry
// never expires.
type TTLMap[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
}

func NewTTLMap[K comparable, V any]() *TTLMap[K, V] {
	return &TTLMap[K, V]{items: map[K]entry[V]{}}
}

// Get returns the value for key if present and not expired at now.
func (m *TTLMap[K, V]) Get(key K, now time.Time) (V, bool) {
	var zero V
	if m == nil {
		return zero, false
	}
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if !it.expiresAt.IsZero() && !now.Before(it.expiresAt) {
		return zero, false
	}
	return it.value, true
}

func (m *TTLMap[K, V]) Set(key K, value V, now time.Time, ttl time.Duration) {
	if m == nil {
		return
	}
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = entry[V]{value: value, expiresAt: exp}
	m.mu.Unlock()
}

func (m *TTLMap[K, V]) Delete(key K) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}

// Clear drops every entry.
func (m *TTLMap[K, V]) Clear() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.items = map[K]entry[V]{}
	m.mu.Unlock()
}

// Sweep removes entries expired at now and reports how many were dropped.
func (m *TTLMap[K, V]) Sweep(now time.Time) int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, it := range m.items {
		if !it.expiresAt.IsZero() && !now.Before(it.expiresAt) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

func (m *TTLMap[K, V]) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
