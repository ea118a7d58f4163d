package session

import (
	"context"
	"sync"
)

// MemoryBackend keeps transcripts in process memory.
// It is used by tests and by deployments that do not need durability.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[string][]Message
	closed bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]Message)}
}

// LoadHistory returns a copy of the transcript stored under key.
func (m *MemoryBackend) LoadHistory(ctx context.Context, key string) ([]Message, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	stored := m.data[key]
	out := make([]Message, len(stored))
	copy(out, stored)
	return out, nil
}

// SaveHistory replaces the transcript stored under key.
func (m *MemoryBackend) SaveHistory(ctx context.Context, key string, messages []Message) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	stored := make([]Message, len(messages))
	copy(stored, messages)
	m.data[key] = stored
	return nil
}

// Ping reports whether the backend is still open.
func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStorageClosed
	}
	return nil
}

// Name returns "memory".
func (m *MemoryBackend) Name() string { return "memory" }

// Close marks the backend closed. Stored data is discarded.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}
