package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aixgo-dev/chatrelay/internal/observability"
	metrics "github.com/aixgo-dev/chatrelay/pkg/observability"
	"github.com/aixgo-dev/chatrelay/pkg/security"
	"github.com/aixgo-dev/chatrelay/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrInitialization wraps a history load failure. An actor that failed
	// to initialize never serves chat traffic.
	ErrInitialization = errors.New("session actor initialization failed")
	// ErrActorClosed is returned for work submitted after Close.
	ErrActorClosed = errors.New("session actor closed")
)

const (
	defaultMailboxSize    = 64
	defaultPersistTimeout = 10 * time.Second
	defaultLoadTimeout    = 30 * time.Second
)

// Generator produces the assistant reply for a turn. It must not fail;
// fallback reports whether a substitute text was returned.
type Generator interface {
	Reply(ctx context.Context, history []session.Message, latestUserText string) (text string, fallback bool)
}

// Options configures an Actor.
type Options struct {
	// Name identifies the session.
	Name string
	// History is the actor's transcript. It is loaded by NewActor.
	History *session.History
	// Generator produces replies.
	Generator Generator
	// Logger receives actor logs; a "session" field is added.
	Logger zerolog.Logger
	// BroadcastReplies sends message events to every attached connection
	// instead of only the one that sent the chat event.
	BroadcastReplies bool
	// RateLimiter, if non-nil, limits chat events per connection.
	RateLimiter *security.RateLimiter
	// MailboxSize bounds queued chat turns (default 64).
	MailboxSize int
	// PersistTimeout bounds one history write (default 10s).
	PersistTimeout time.Duration
	// LoadTimeout bounds the initial history load (default 30s).
	LoadTimeout time.Duration
}

type turn struct {
	conn    Conn
	content string
	done    chan struct{}
}

// Actor is the single authority over one session. Chat turns run one at a
// time on the actor's own goroutine in arrival order; attach, detach and
// sweep only touch the registry and may run concurrently with a turn.
type Actor struct {
	name     string
	history  *session.History
	gen      Generator
	registry *Registry
	limiter  *security.RateLimiter
	logger   zerolog.Logger

	broadcast      bool
	persistTimeout time.Duration

	ready   chan struct{}
	loadErr error

	inbox     chan *turn
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewActor creates an actor and starts loading its history in the
// background. Use Ready to wait for the load; chat events submitted before
// it completes are held until it does.
func NewActor(opts Options) *Actor {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = defaultMailboxSize
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = defaultLoadTimeout
	}

	logger := opts.Logger.With().Str("component", "actor").Str("session", opts.Name).Logger()
	a := &Actor{
		name:           opts.Name,
		history:        opts.History,
		gen:            opts.Generator,
		registry:       NewRegistry(logger),
		limiter:        opts.RateLimiter,
		logger:         logger,
		broadcast:      opts.BroadcastReplies,
		persistTimeout: opts.PersistTimeout,
		ready:          make(chan struct{}),
		inbox:          make(chan *turn, opts.MailboxSize),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	go a.run(opts.LoadTimeout)
	return a
}

// Name returns the session name.
func (a *Actor) Name() string { return a.name }

// Ready blocks until the initial history load has finished. It returns an
// error wrapping ErrInitialization if the load failed.
func (a *Actor) Ready(ctx context.Context) error {
	select {
	case <-a.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if a.loadErr != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, a.loadErr)
	}
	return nil
}

// Attach registers conn and greets it.
func (a *Actor) Attach(ctx context.Context, conn Conn) {
	if !a.registry.Add(conn) {
		a.logger.Debug().Str("conn_id", conn.ID()).Msg("connection already attached")
		return
	}
	metrics.SetActiveConnections(a.name, a.registry.Len())
	a.logger.Info().Str("conn_id", conn.ID()).Int("connections", a.registry.Len()).Msg("connection attached")

	a.registry.Send(ctx, conn, Connected(WelcomeText))
}

// Detach removes conn from the registry. Detaching twice is a no-op.
func (a *Actor) Detach(conn Conn) {
	if !a.registry.Remove(conn) {
		return
	}
	a.limiter.Forget(conn.ID())
	metrics.SetActiveConnections(a.name, a.registry.Len())
	a.logger.Info().Str("conn_id", conn.ID()).Int("connections", a.registry.Len()).Msg("connection detached")
}

// Sweep removes connections whose transport has already closed and
// returns how many were removed.
func (a *Actor) Sweep() int {
	removed := a.registry.Sweep()
	for _, c := range removed {
		a.limiter.Forget(c.ID())
	}
	if n := len(removed); n > 0 {
		metrics.RecordSweep(a.name, n)
		metrics.SetActiveConnections(a.name, a.registry.Len())
		a.logger.Debug().Int("removed", n).Msg("swept closed connections")
	}
	return len(removed)
}

// Connections returns the number of attached connections.
func (a *Actor) Connections() int { return a.registry.Len() }

// History returns a copy of the current transcript.
func (a *Actor) History() []session.Message { return a.history.Snapshot() }

// HandleInbound processes one raw frame from conn. Undecodable frames get an
// error event; unknown types and empty chats are ignored. A chat event is
// queued behind any turn already in progress and HandleInbound returns once
// it has completed, ctx is done, or the actor closes.
func (a *Actor) HandleInbound(ctx context.Context, conn Conn, raw []byte) error {
	ev, err := DecodeEvent(raw)
	if err != nil {
		metrics.RecordProtocolError(a.name)
		a.logger.Debug().Err(err).Str("conn_id", conn.ID()).Msg("malformed inbound frame")
		a.registry.Send(ctx, conn, Error(ParseErrorText))
		return nil
	}

	if ev.Type != EventChat {
		a.logger.Debug().Str("conn_id", conn.ID()).Str("type", string(ev.Type)).Msg("ignoring event")
		return nil
	}
	if ev.Content == "" {
		a.logger.Debug().Str("conn_id", conn.ID()).Msg("ignoring empty chat")
		return nil
	}

	if !a.limiter.Allow(conn.ID()) {
		metrics.RecordRateLimited(a.name)
		a.registry.Send(ctx, conn, Error(RateLimitedText))
		return nil
	}

	return a.submit(ctx, conn, ev.Content)
}

func (a *Actor) submit(ctx context.Context, conn Conn, content string) error {
	if err := a.Ready(ctx); err != nil {
		return err
	}

	t := &turn{conn: conn, content: content, done: make(chan struct{})}
	select {
	case a.inbox <- t:
	case <-a.quit:
		return ErrActorClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-t.done:
		return nil
	case <-a.done:
		return ErrActorClosed
	case <-ctx.Done():
		// The turn still runs to completion; only the wait is abandoned.
		return ctx.Err()
	}
}

// run loads history, then drains the mailbox until Close.
func (a *Actor) run(loadTimeout time.Duration) {
	defer close(a.done)

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	a.loadErr = a.history.Load(ctx)
	cancel()
	close(a.ready)

	if a.loadErr != nil {
		a.logger.Error().Err(a.loadErr).Msg("history load failed")
		return
	}
	a.logger.Info().Int("messages", a.history.Len()).Msg("history loaded")

	for {
		select {
		case <-a.quit:
			return
		case t := <-a.inbox:
			a.processChat(t.conn, t.content)
			close(t.done)
		}
	}
}

// processChat runs one turn. Persistence completes before the reply is
// sent, and typing(false) is always the last event to the originator.
func (a *Actor) processChat(conn Conn, content string) {
	ctx, span := observability.StartSpan(context.Background(), "relay.chat_turn",
		trace.WithAttributes(
			attribute.String("chat.session", a.name),
			attribute.String("chat.conn_id", conn.ID()),
		),
	)
	defer span.End()

	before := a.history.Snapshot()
	a.history.Append(session.UserMessage(content))

	a.registry.Send(ctx, conn, Typing(true))
	defer a.registry.Send(ctx, conn, Typing(false))

	ev, outcome := a.completeTurn(ctx, before, content)
	metrics.RecordChatTurn(a.name, outcome)
	span.SetAttributes(attribute.String("chat.outcome", outcome))

	if ev.Type == EventMessage && a.broadcast {
		a.registry.Broadcast(ctx, ev)
		return
	}
	a.registry.Send(ctx, conn, ev)
}

// completeTurn generates, appends, truncates and persists. On any failure
// the transcript is rolled back to before, so a turn is stored whole or not
// at all.
func (a *Actor) completeTurn(ctx context.Context, before []session.Message, content string) (ev Event, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			a.history.Restore(before)
			a.logger.Error().Interface("panic", r).Msg("chat turn panicked")
			ev, outcome = Error(TurnErrorText), metrics.TurnOutcomeError
		}
	}()

	reply, fallback := a.gen.Reply(ctx, a.history.Snapshot(), content)

	a.history.Append(session.AssistantMessage(reply))
	if dropped := a.history.Truncate(a.history.MaxLen()); dropped > 0 {
		a.logger.Debug().Int("dropped", dropped).Msg("trimmed history")
	}

	pctx, cancel := context.WithTimeout(ctx, a.persistTimeout)
	start := time.Now()
	err := a.history.Persist(pctx)
	cancel()
	metrics.RecordPersist(a.history.BackendName(), err, time.Since(start))

	if err != nil {
		a.history.Restore(before)
		a.logger.Error().Err(err).Msg("persist failed, turn discarded")
		return Error(TurnErrorText), metrics.TurnOutcomePersistError
	}

	if fallback {
		return Reply(reply), metrics.TurnOutcomeFallback
	}
	return Reply(reply), metrics.TurnOutcomeOK
}

// Close stops the mailbox after the turn in progress, if any, and waits for
// it up to ctx. Queued turns are abandoned.
func (a *Actor) Close(ctx context.Context) error {
	a.closeOnce.Do(func() { close(a.quit) })

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
