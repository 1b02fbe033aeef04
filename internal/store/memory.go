package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryDriver is a minimal in-memory Driver intended for tests and for
// records that must never reach durable storage. Values are copied on the way
// in and out so callers cannot alias stored bytes.
type MemoryDriver struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{records: map[string][]byte{}}
}

func (m *MemoryDriver) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	v, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

func (m *MemoryDriver) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.records[key] = cloneBytes(value)
	m.mu.Unlock()
	return nil
}

func (m *MemoryDriver) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

// Keys lists stored keys with the given prefix in lexical order.
func (m *MemoryDriver) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.records))
	for k := range m.records {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Len returns the number of stored keys.
func (m *MemoryDriver) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
