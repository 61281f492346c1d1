package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count   int
	expires time.Time
}

// MemoryStore is a process-local CounterStore.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	counters map[string]*counter
}

// NewMemoryStore creates an empty store. A nil clock means time.Now.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{now: clock, counters: make(map[string]*counter)}
}

// live returns the unexpired counter for key, dropping it if expired.
// Callers hold mu.
func (m *MemoryStore) live(key string) *counter {
	c, ok := m.counters[key]
	if !ok {
		return nil
	}
	if !m.now().Before(c.expires) {
		delete(m.counters, key)
		return nil
	}
	return c
}

func (m *MemoryStore) incr(key string, window time.Duration) int {
	c := m.live(key)
	if c == nil {
		c = &counter{expires: m.now().Add(window)}
		m.counters[key] = c
	}
	c.count++
	return c.count
}

func (m *MemoryStore) Count(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.live(key); c != nil {
		return c.count, nil
	}
	return 0, nil
}

func (m *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incr(key, window), nil
}

func (m *MemoryStore) IncrementIfBelow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.live(key); c != nil && c.count >= limit {
		return false, nil
	}
	m.incr(key, window)
	return true, nil
}

func (m *MemoryStore) Decrement(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.live(key); c != nil && c.count > 0 {
		c.count--
	}
	return nil
}
