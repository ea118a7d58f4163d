package session

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	// ErrStorageClosed is returned when operating on a closed storage backend.
	ErrStorageClosed = errors.New("storage backend is closed")
	// ErrInvalidKey is returned for keys a backend cannot store safely.
	ErrInvalidKey = errors.New("invalid history key")
	// ErrUnknownStore is returned by NewBackend for an unrecognized store type.
	ErrUnknownStore = errors.New("unknown session store")
)

// StorageBackend abstracts transcript persistence.
// Implementations must be safe for concurrent use.
type StorageBackend interface {
	// LoadHistory returns the transcript stored under key.
	// A missing key yields an empty slice and a nil error.
	LoadHistory(ctx context.Context, key string) ([]Message, error)

	// SaveHistory replaces the transcript stored under key.
	SaveHistory(ctx context.Context, key string, messages []Message) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Name returns a short backend identifier used in logs and metrics.
	Name() string

	// Close releases any resources held by the backend.
	Close() error
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
