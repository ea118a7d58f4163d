package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds Firestore connection configuration.
type FirestoreConfig struct {
	// ProjectID is the Google Cloud project holding the database.
	ProjectID string `yaml:"project_id"`
	// Collection stores one document per history key (default: "chat_history").
	Collection string `yaml:"collection"`
	// CredentialsFile is an optional service account key path.
	CredentialsFile string `yaml:"credentials_file"`
}

const defaultFirestoreCollection = "chat_history"

// firestoreHistory is the stored document shape.
type firestoreHistory struct {
	Messages  []firestoreMessage `firestore:"messages"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type firestoreMessage struct {
	Role    string `firestore:"role"`
	Content string `firestore:"content"`
}

// FirestoreBackend implements StorageBackend on Cloud Firestore.
// Each key maps to one document; a save is a single Set, which Firestore
// applies atomically.
type FirestoreBackend struct {
	client  *firestore.Client
	collRef *firestore.CollectionRef
	mu      sync.RWMutex
	closed  bool
}

// NewFirestoreBackend connects to Firestore.
// FIRESTORE_EMULATOR_HOST is honored by the client library.
func NewFirestoreBackend(ctx context.Context, cfg FirestoreConfig) (*FirestoreBackend, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project ID is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}

	return NewFirestoreBackendFromClient(client, cfg.Collection), nil
}

// NewFirestoreBackendFromClient wraps an existing client.
func NewFirestoreBackendFromClient(client *firestore.Client, collection string) *FirestoreBackend {
	if collection == "" {
		collection = defaultFirestoreCollection
	}
	return &FirestoreBackend{
		client:  client,
		collRef: client.Collection(collection),
	}
}

func (b *FirestoreBackend) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

func (b *FirestoreBackend) doc(key string) (*firestore.DocumentRef, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	// Firestore document IDs may not contain slashes.
	if strings.Contains(key, "/") {
		return nil, fmt.Errorf("%w: %q contains '/'", ErrInvalidKey, key)
	}
	return b.collRef.Doc(key), nil
}

// LoadHistory reads the transcript document for key.
func (b *FirestoreBackend) LoadHistory(ctx context.Context, key string) ([]Message, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	ref, err := b.doc(key)
	if err != nil {
		return nil, err
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("get history document: %w", err)
	}

	var stored firestoreHistory
	if err := snap.DataTo(&stored); err != nil {
		return nil, fmt.Errorf("decode history document: %w", err)
	}

	msgs := make([]Message, 0, len(stored.Messages))
	for _, m := range stored.Messages {
		msgs = append(msgs, Message{Role: Role(m.Role), Content: m.Content})
	}
	return msgs, nil
}

// SaveHistory overwrites the transcript document for key.
func (b *FirestoreBackend) SaveHistory(ctx context.Context, key string, messages []Message) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	ref, err := b.doc(key)
	if err != nil {
		return err
	}

	stored := firestoreHistory{
		Messages:  make([]firestoreMessage, 0, len(messages)),
		UpdatedAt: time.Now().UTC(),
	}
	for _, m := range messages {
		stored.Messages = append(stored.Messages, firestoreMessage{Role: string(m.Role), Content: m.Content})
	}

	if _, err := ref.Set(ctx, stored); err != nil {
		return fmt.Errorf("set history document: %w", err)
	}
	return nil
}

// Ping reads a sentinel document to confirm the database is reachable.
func (b *FirestoreBackend) Ping(ctx context.Context) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	_, err := b.collRef.Doc("_ping").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

// Name returns "firestore".
func (b *FirestoreBackend) Name() string { return "firestore" }

// Close closes the Firestore client.
func (b *FirestoreBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}
