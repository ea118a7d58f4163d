package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the set of connections attached to one actor.
// Membership is unordered. Sends never fail the caller.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		logger: logger,
	}
}

// Add inserts conn. It reports false if a connection with the same ID was
// already present.
func (r *Registry) Add(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID()]; ok {
		return false
	}
	r.conns[conn.ID()] = conn
	return true
}

// Remove deletes conn and reports whether it was present.
func (r *Registry) Remove(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID()]; !ok {
		return false
	}
	delete(r.conns, conn.ID())
	return true
}

// Has reports whether conn is registered.
func (r *Registry) Has(conn Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[conn.ID()]
	return ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the registered connections in no particular order.
func (r *Registry) Snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Send delivers ev to conn if it is still registered. Transport errors are
// logged and swallowed.
func (r *Registry) Send(ctx context.Context, conn Conn, ev Event) {
	if !r.Has(conn) {
		r.logger.Debug().Str("conn_id", conn.ID()).Str("type", string(ev.Type)).Msg("dropping event for detached connection")
		return
	}
	r.deliver(ctx, conn, ev)
}

// Broadcast delivers ev to every registered connection.
func (r *Registry) Broadcast(ctx context.Context, ev Event) {
	for _, c := range r.Snapshot() {
		r.deliver(ctx, c, ev)
	}
}

func (r *Registry) deliver(ctx context.Context, conn Conn, ev Event) {
	if err := conn.Send(ctx, ev); err != nil {
		lvl := zerolog.WarnLevel
		if errors.Is(err, ErrConnClosed) {
			lvl = zerolog.DebugLevel
		}
		r.logger.WithLevel(lvl).Err(err).Str("conn_id", conn.ID()).Str("type", string(ev.Type)).Msg("send failed")
	}
}

// Sweep removes every connection whose state is ConnDetached and returns them.
func (r *Registry) Sweep() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Conn
	for id, c := range r.conns {
		if c.State() == ConnDetached {
			delete(r.conns, id)
			removed = append(removed, c)
		}
	}
	return removed
}
