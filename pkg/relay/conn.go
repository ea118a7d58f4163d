package relay

import (
	"context"
	"errors"
)

// ErrConnClosed is returned by Conn.Send once the transport has closed.
var ErrConnClosed = errors.New("connection closed")

// ConnState is the lifecycle state of one client attachment.
type ConnState int32

const (
	// ConnAttached means the transport is open and may receive events.
	ConnAttached ConnState = iota
	// ConnDetached means the transport has closed or failed. Terminal.
	ConnDetached
)

func (s ConnState) String() string {
	switch s {
	case ConnAttached:
		return "attached"
	case ConnDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Conn is one live client attachment as seen by the actor.
// Implementations must be safe for concurrent use.
type Conn interface {
	// ID uniquely identifies the connection within the process.
	ID() string
	// Send delivers one event. It returns ErrConnClosed after close.
	Send(ctx context.Context, ev Event) error
	// State reports the transport state.
	State() ConnState
}
