package session

import (
	"context"
	"fmt"
)

// Config holds session storage configuration from YAML.
type Config struct {
	// Name is the session actor name all connections are routed to.
	// Default: "chat-session"
	Name string `yaml:"name"`

	// Store specifies the storage backend type.
	// Options: "memory", "file", "redis", "firestore"
	// Default: "file"
	Store string `yaml:"store"`

	// HistoryKey is the key the transcript is stored under.
	// Default: "conversationHistory"
	HistoryKey string `yaml:"history_key"`

	// MaxHistory is the retention cap.
	// Default: 20
	MaxHistory int `yaml:"max_history"`

	// BaseDir is the base directory for file-based storage.
	// Default: ~/.chatrelay/history
	BaseDir string `yaml:"base_dir"`

	// Redis configures the redis store.
	Redis RedisConfig `yaml:"redis,omitempty"`

	// Firestore configures the firestore store.
	Firestore FirestoreConfig `yaml:"firestore,omitempty"`
}

// DefaultSessionName is used when no session name is configured.
const DefaultSessionName = "chat-session"

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Name:       DefaultSessionName,
		Store:      "file",
		HistoryKey: DefaultHistoryKey,
		MaxHistory: DefaultMaxHistory,
	}
}

// NewBackend builds the storage backend selected by cfg.Store.
func NewBackend(ctx context.Context, cfg Config) (StorageBackend, error) {
	switch cfg.Store {
	case "", "file":
		return NewFileBackend(cfg.BaseDir)
	case "memory":
		return NewMemoryBackend(), nil
	case "redis":
		return NewRedisBackend(cfg.Redis)
	case "firestore":
		return NewFirestoreBackend(ctx, cfg.Firestore)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.Store)
	}
}

// KeyFor returns the storage key for the named session. The configured
// session keeps HistoryKey unchanged; any other name is prefixed so
// sessions sharing a backend never collide.
func (c Config) KeyFor(name string) string {
	key := c.HistoryKey
	if key == "" {
		key = DefaultHistoryKey
	}
	if name == "" || name == c.Name {
		return key
	}
	return name + "." + key
}
