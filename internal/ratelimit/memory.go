package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Compile-time interface check
var _ CounterStore = (*MemoryCounters)(nil)

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounters is the in-process counter backend. Entries auto-expire
// lazily: an elapsed window is treated as absent and overwritten.
type MemoryCounters struct {
	mu       sync.Mutex
	counters map[string]memoryCounter
}

func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{counters: make(map[string]memoryCounter)}
}

func (m *MemoryCounters) IncrBelow(ctx context.Context, key string, limit int, window time.Duration) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	c, ok := m.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = memoryCounter{count: 0, expiresAt: now.Add(window)}
	}

	if c.count >= int64(limit) {
		return c.count, false, nil
	}

	c.count++
	m.counters[key] = c
	return c.count, true, nil
}

func (m *MemoryCounters) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters = nil
	return nil
}
