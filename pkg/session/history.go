package session

import (
	"context"
	"fmt"
	"sync"
)

// History is the bounded, ordered transcript of one session.
//
// History keeps the working copy in memory and writes it through to a
// StorageBackend on Persist. It is safe for concurrent use, but the
// sequence Append -> Truncate -> Persist is only meaningful when driven by
// a single writer.
type History struct {
	backend StorageBackend
	key     string
	maxLen  int

	mu       sync.RWMutex
	messages []Message
}

// NewHistory creates a history bound to key in backend.
// maxLen <= 0 selects DefaultMaxHistory.
func NewHistory(backend StorageBackend, key string, maxLen int) *History {
	if key == "" {
		key = DefaultHistoryKey
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxHistory
	}
	return &History{
		backend:  backend,
		key:      key,
		maxLen:   maxLen,
		messages: make([]Message, 0, maxLen+2),
	}
}

// Key returns the storage key.
func (h *History) Key() string { return h.key }

// MaxLen returns the retention cap.
func (h *History) MaxLen() int { return h.maxLen }

// Load replaces the in-memory transcript with the persisted one.
// A stored transcript longer than the retention cap is trimmed oldest-first.
func (h *History) Load(ctx context.Context) error {
	msgs, err := h.backend.LoadHistory(ctx, h.key)
	if err != nil {
		return fmt.Errorf("load history %q: %w", h.key, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages[:0], msgs...)
	h.truncateLocked(h.maxLen)
	return nil
}

// Append adds msg to the end of the transcript.
func (h *History) Append(msg Message) {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
}

// Truncate keeps only the newest maxLen messages and returns how many were dropped.
func (h *History) Truncate(maxLen int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.truncateLocked(maxLen)
}

func (h *History) truncateLocked(maxLen int) int {
	if maxLen < 0 {
		maxLen = 0
	}
	excess := len(h.messages) - maxLen
	if excess <= 0 {
		return 0
	}
	// Shift in place so the backing array does not grow without bound.
	n := copy(h.messages, h.messages[excess:])
	clear(h.messages[n:])
	h.messages = h.messages[:n]
	return excess
}

// Snapshot returns a copy of the transcript.
func (h *History) Snapshot() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Restore replaces the in-memory transcript with msgs without persisting.
func (h *History) Restore(msgs []Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages[:0], msgs...)
}

// Len returns the number of messages held in memory.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Persist writes the full transcript under the history key, replacing any
// previous value. It returns once the backend has acknowledged the write.
func (h *History) Persist(ctx context.Context) error {
	snapshot := h.Snapshot()
	if err := h.backend.SaveHistory(ctx, h.key, snapshot); err != nil {
		return fmt.Errorf("persist history %q: %w", h.key, err)
	}
	return nil
}

// BackendName returns the name of the underlying storage backend.
func (h *History) BackendName() string { return h.backend.Name() }
