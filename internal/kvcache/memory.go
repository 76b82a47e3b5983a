package kvcache

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time for expiry (for testing).
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Cache. Expired entries are dropped lazily on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	clock   Clock
}

func NewMemory() *Memory {
	return NewMemoryWithClock(realClock{})
}

// NewMemoryWithClock creates a Memory cache with a custom clock (for testing).
func NewMemoryWithClock(clock Clock) *Memory {
	return &Memory{entries: make(map[string]memEntry), clock: clock}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set stores a copy of value. A non-positive ttl never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
