package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aixgo-dev/chatrelay/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id      string
	mu      sync.Mutex
	events  []Event
	state   atomic.Int32
	sendErr error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ctx context.Context, ev Event) error {
	if c.State() == ConnDetached {
		return ErrConnClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) State() ConnState { return ConnState(c.state.Load()) }

func (c *fakeConn) close() { c.state.Store(int32(ConnDetached)) }

func (c *fakeConn) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) hasType(t EventType) bool {
	for _, ev := range c.Events() {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// genFunc adapts a function to Generator.
type genFunc func(ctx context.Context, history []session.Message, latest string) (string, bool)

func (f genFunc) Reply(ctx context.Context, history []session.Message, latest string) (string, bool) {
	return f(ctx, history, latest)
}

func staticGen(reply string) genFunc {
	return func(context.Context, []session.Message, string) (string, bool) { return reply, false }
}

// testBackend wraps MemoryBackend with hooks.
type testBackend struct {
	*session.MemoryBackend
	loadGate chan struct{}
	loadErr  error
	saveErr  error
	onSave   func([]session.Message)
	saves    atomic.Int32
}

func newTestBackend() *testBackend {
	return &testBackend{MemoryBackend: session.NewMemoryBackend()}
}

func (b *testBackend) LoadHistory(ctx context.Context, key string) ([]session.Message, error) {
	if b.loadGate != nil {
		select {
		case <-b.loadGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return b.MemoryBackend.LoadHistory(ctx, key)
}

func (b *testBackend) SaveHistory(ctx context.Context, key string, msgs []session.Message) error {
	if b.onSave != nil {
		b.onSave(msgs)
	}
	if b.saveErr != nil {
		return b.saveErr
	}
	b.saves.Add(1)
	return b.MemoryBackend.SaveHistory(ctx, key, msgs)
}

func (b *testBackend) stored(t *testing.T) []session.Message {
	t.Helper()
	msgs, err := b.MemoryBackend.LoadHistory(context.Background(), testKey)
	require.NoError(t, err)
	return msgs
}

const testKey = "conversationHistory"

func numbered(n int) []session.Message {
	out := make([]session.Message, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, session.UserMessage(fmt.Sprintf("m%d", i)))
	}
	return out
}

func newTestActor(t *testing.T, backend session.StorageBackend, gen Generator, mutate ...func(*Options)) *Actor {
	t.Helper()
	opts := Options{
		Name:      "test-session",
		History:   session.NewHistory(backend, testKey, session.DefaultMaxHistory),
		Generator: gen,
		Logger:    zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	a := NewActor(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return a
}

func readyActor(t *testing.T, backend session.StorageBackend, gen Generator, mutate ...func(*Options)) *Actor {
	t.Helper()
	a := newTestActor(t, backend, gen, mutate...)
	require.NoError(t, a.Ready(context.Background()))
	return a
}

func chat(content string) []byte {
	return []byte(fmt.Sprintf(`{"type":"chat","content":%q}`, content))
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}
