package store

import (
	"context"
	"sync"
)

// MemoryKV keeps settings in process memory. Used in tests and when
// SETTINGS_PATH=memory with no DATABASE_URL.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[name]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, name, value string) error {
	m.mu.Lock()
	m.data[name] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.data, name)
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Close() error { return nil }
