package cache

import (
	"sync"
	"time"
)

type TTLEntry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// TTLMap is a thread-safe map whose entries expire after TTL. When MaxEntries
// is set, Set evicts expired entries first and then the oldest one.
type TTLMap[V any] struct {
	mu         sync.RWMutex
	data       map[string]*TTLEntry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewTTLMap[V any](ttl time.Duration, maxEntries int) *TTLMap[V] {
	return &TTLMap[V]{
		data:       make(map[string]*TTLEntry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *TTLMap[V]) Get(key string) (V, bool) {
	var zero V
	m.mu.RLock()
	entry, exists := m.data[key]
	m.mu.RUnlock()
	if !exists {
		return zero, false
	}
	if m.now().After(entry.ExpiresAt) {
		m.mu.Lock()
		if current, ok := m.data[key]; ok && m.now().After(current.ExpiresAt) {
			delete(m.data, key)
		}
		m.mu.Unlock()
		return zero, false
	}
	return entry.Value, true
}

func (m *TTLMap[V]) Set(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; !exists && m.maxEntries > 0 && len(m.data) >= m.maxEntries {
		m.evictLocked()
	}
	m.data[key] = &TTLEntry[V]{
		Value:     value,
		ExpiresAt: m.now().Add(m.ttl),
	}
}

func (m *TTLMap[V]) evictLocked() {
	now := m.now()
	oldestKey := ""
	var oldest time.Time
	for k, e := range m.data {
		if now.After(e.ExpiresAt) {
			delete(m.data, k)
			continue
		}
		if oldestKey == "" || e.ExpiresAt.Before(oldest) {
			oldestKey, oldest = k, e.ExpiresAt
		}
	}
	if len(m.data) >= m.maxEntries && oldestKey != "" {
		delete(m.data, oldestKey)
	}
}

func (m *TTLMap[V]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *TTLMap[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Drain removes and returns every live entry.
func (m *TTLMap[V]) Drain() map[string]V {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make(map[string]V, len(m.data))
	for k, e := range m.data {
		if !now.After(e.ExpiresAt) {
			out[k] = e.Value
		}
	}
	m.data = make(map[string]*TTLEntry[V])
	return out
}
