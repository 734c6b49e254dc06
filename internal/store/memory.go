package store

import (
	"context"
	"sync"
)

// Memory keeps fingerprints in process. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]string
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]string)}
}

// Get implements collector.Persister.
func (m *Memory) Get(_ context.Context, key string) ([]string, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.data[key]...), nil
}

// Set implements collector.Persister.
func (m *Memory) Set(_ context.Context, key string, fingerprints []string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]string{}, fingerprints...)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}
