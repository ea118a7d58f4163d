package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aixgo-dev/chatrelay/pkg/relay"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsConn adapts a websocket to relay.Conn. Writes are serialized; the
// connection is detached once the peer goes away or a write fails.
type wsConn struct {
	id           string
	ws           *websocket.Conn
	writeMu      sync.Mutex
	closed       atomic.Bool
	writeTimeout time.Duration
}

func newWSConn(ws *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		id:           uuid.NewString(),
		ws:           ws,
		writeTimeout: writeTimeout,
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) State() relay.ConnState {
	if c.closed.Load() {
		return relay.ConnDetached
	}
	return relay.ConnAttached
}

func (c *wsConn) Send(ctx context.Context, ev relay.Event) error {
	if c.closed.Load() {
		return relay.ErrConnClosed
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.closed.Store(true)
		return fmt.Errorf("%w: %w", relay.ErrConnClosed, err)
	}
	return nil
}

// Close marks the connection detached and closes the socket.
func (c *wsConn) Close() error {
	c.closed.Store(true)
	return c.ws.Close()
}
