// Package sketch wraps the probabilistic frequency structures the
// pipeline counts traffic with. The production implementation is a
// RedisBloom Count-Min Sketch; the store itself is treated as an
// external capability, so everything here is a client, not a sketch.
package sketch

import (
	"context"
	"sync"
)

// Counter is an approximate per-item frequency counter. Counts may
// over-estimate within the structure's error bound but never go
// negative. Unknown items query as zero, not as an error.
type Counter interface {
	// IncrBy adds delta occurrences of item.
	IncrBy(ctx context.Context, item string, delta int64) error
	// Query returns the estimated count for each item, in order.
	Query(ctx context.Context, items []string) ([]int64, error)
	// Reset clears the counter back to its empty state.
	Reset(ctx context.Context) error
}

// Memory is an exact in-process Counter. It backs tests and the
// embedded standalone mode; it is safe for concurrent writers.
type Memory struct {
	mu     sync.RWMutex
	counts map[string]int64
}

// NewMemory returns an empty in-memory counter.
func NewMemory() *Memory {
	return &Memory{counts: make(map[string]int64)}
}

func (m *Memory) IncrBy(_ context.Context, item string, delta int64) error {
	m.mu.Lock()
	m.counts[item] += delta
	m.mu.Unlock()
	return nil
}

func (m *Memory) Query(_ context.Context, items []string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = m.counts[it]
	}
	return out, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	m.counts = make(map[string]int64)
	m.mu.Unlock()
	return nil
}
