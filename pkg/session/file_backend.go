package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInvalidPathComponent is returned when a path component contains unsafe characters.
var ErrInvalidPathComponent = errors.New("invalid path component: contains path separator or traversal sequence")

// validatePathComponent checks that a string is safe to use as a path component.
// It rejects empty strings, path separators, and traversal sequences.
func validatePathComponent(s string) error {
	if s == "" {
		return errors.New("path component cannot be empty")
	}
	if strings.ContainsAny(s, `/\`) || strings.Contains(s, "..") {
		return ErrInvalidPathComponent
	}
	return nil
}

// FileBackend implements StorageBackend with one JSON document per key.
// Storage layout:
//
//	~/.chatrelay/history/
//	  ├── conversationHistory.json
//	  └── <other-key>.json
//
// Writes go to a temporary file in the same directory and are renamed into
// place, so a crash leaves either the old or the new transcript on disk.
type FileBackend struct {
	baseDir string
	mu      sync.RWMutex
	closed  bool
}

// NewFileBackend creates a new file-based storage backend.
// If baseDir is empty, uses ~/.chatrelay/history.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".chatrelay", "history")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &FileBackend{baseDir: baseDir}, nil
}

func (f *FileBackend) path(key string) (string, error) {
	if err := validatePathComponent(key); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return filepath.Join(f.baseDir, key+".json"), nil
}

// LoadHistory reads the transcript stored under key.
func (f *FileBackend) LoadHistory(ctx context.Context, key string) ([]Message, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrStorageClosed
	}

	path, err := f.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 - key validated to prevent traversal
	if err != nil {
		if os.IsNotExist(err) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("read history file: %w", err)
	}

	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse history file: %w", err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// SaveHistory atomically replaces the transcript stored under key.
func (f *FileBackend) SaveHistory(ctx context.Context, key string, messages []Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStorageClosed
	}

	path, err := f.path(key)
	if err != nil {
		return err
	}

	if messages == nil {
		messages = []Message{}
	}
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	tmp, err := os.CreateTemp(f.baseDir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename history file: %w", err)
	}

	return nil
}

// Ping checks that the base directory is still accessible.
func (f *FileBackend) Ping(ctx context.Context) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrStorageClosed
	}
	if _, err := os.Stat(f.baseDir); err != nil {
		return fmt.Errorf("stat base directory: %w", err)
	}
	return nil
}

// Name returns "file".
func (f *FileBackend) Name() string { return "file" }

// BaseDir returns the directory transcripts are written to.
func (f *FileBackend) BaseDir() string { return f.baseDir }

// Close marks the backend as closed.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
