package payloadcache

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a map-backed Cache for tests and single-process deployments.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory creates an empty in-memory payload cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, sdkKey string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[sdkKey]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, sdkKey)
	}
	return entry, nil
}

func (m *Memory) Set(_ context.Context, entry Entry) error {
	if entry.SDKKey == "" {
		return fmt.Errorf("%w: sdk key is required", ErrInvalidEntry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.SDKKey] = entry
	return nil
}

func (m *Memory) Delete(_ context.Context, sdkKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sdkKey)
	return nil
}

// Len reports the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
