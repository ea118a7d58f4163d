package relay

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// ActorFactory builds a fresh, not yet loaded actor for a session name.
type ActorFactory func(name string) *Actor

// Router maps session names to actors. Actors are created lazily on first
// use, and concurrent first requests for the same name share one actor and
// one history load. An actor whose load fails is evicted so the next
// request starts over.
type Router struct {
	mu      sync.Mutex
	actors  map[string]*Actor
	factory ActorFactory
	logger  zerolog.Logger
	closed  bool
}

// NewRouter creates a router using factory to construct actors.
func NewRouter(factory ActorFactory, logger zerolog.Logger) *Router {
	return &Router{
		actors:  make(map[string]*Actor),
		factory: factory,
		logger:  logger.With().Str("component", "router").Logger(),
	}
}

// GetOrCreate returns the ready actor for name, constructing it if needed.
func (r *Router) GetOrCreate(ctx context.Context, name string) (*Actor, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrActorClosed
	}
	a, ok := r.actors[name]
	if !ok {
		a = r.factory(name)
		r.actors[name] = a
		r.logger.Debug().Str("session", name).Msg("created session actor")
	}
	r.mu.Unlock()

	if err := a.Ready(ctx); err != nil {
		if errors.Is(err, ErrInitialization) {
			r.evict(name, a)
		}
		return nil, err
	}
	return a, nil
}

func (r *Router) evict(name string, a *Actor) {
	r.mu.Lock()
	if r.actors[name] == a {
		delete(r.actors, name)
		r.logger.Warn().Str("session", name).Msg("evicted actor after failed initialization")
	}
	r.mu.Unlock()
	_ = a.Close(context.Background())
}

// Get returns the actor for name if one exists.
func (r *Router) Get(name string) (*Actor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[name]
	return a, ok
}

// Names returns the names of all known actors, sorted.
func (r *Router) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.actors))
	for name := range r.actors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) snapshot() []*Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Actor, 0, len(r.actors))
	for _, a := range r.actors {
		out = append(out, a)
	}
	return out
}

// Sweep sweeps every actor and returns the total number of connections removed.
func (r *Router) Sweep() int {
	total := 0
	for _, a := range r.snapshot() {
		total += a.Sweep()
	}
	return total
}

// Close stops every actor and refuses new ones.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for _, a := range r.snapshot() {
		if err := a.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
