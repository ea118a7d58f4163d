// Package server is the HTTP edge of the relay: it upgrades websocket
// requests, binds each connection to a session actor and serves the
// health and metrics endpoints.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	metrics "github.com/aixgo-dev/chatrelay/pkg/observability"
	"github.com/aixgo-dev/chatrelay/pkg/relay"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultReadLimit    = 64 << 10
	defaultWriteTimeout = 10 * time.Second
)

var sessionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Options configures a Server.
type Options struct {
	Router *relay.Router
	// SessionName is the actor every connection is routed to.
	SessionName string
	// AllowSessionOverride lets clients pick a session with ?session=.
	AllowSessionOverride bool
	// AIAvailable is reported by /api/health.
	AIAvailable bool
	Health      *metrics.HealthChecker
	Logger      zerolog.Logger
	// ReadLimit caps inbound frame size in bytes (default 64KiB).
	ReadLimit int64
	// WriteTimeout bounds a single outbound frame (default 10s).
	WriteTimeout time.Duration
}

// Server routes websocket upgrades to session actors.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	logger   zerolog.Logger
}

// New builds a Server.
func New(opts Options) *Server {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Health == nil {
		opts.Health = metrics.NewHealthChecker("")
	}

	s := &Server{
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		mux:      http.NewServeMux(),
		logger:   opts.Logger.With().Str("component", "server").Logger(),
	}

	s.mux.HandleFunc("GET /api/health", s.handleAPIHealth)
	metrics.Mount(s.mux, opts.Health)
	s.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Expected WebSocket", http.StatusBadRequest)
	})
	return s
}

// ServeHTTP sends upgrade requests on any path to the session actor and
// everything else to the HTTP routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}
	s.mux.ServeHTTP(w, r)
}

type apiHealth struct {
	Status      string `json:"status"`
	Timestamp   int64  `json:"timestamp"`
	AIAvailable bool   `json:"ai_available"`
}

func (s *Server) handleAPIHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(apiHealth{
		Status:      "ok",
		Timestamp:   time.Now().UnixMilli(),
		AIAvailable: s.opts.AIAvailable,
	})
}

func (s *Server) sessionName(r *http.Request) (string, bool) {
	if !s.opts.AllowSessionOverride {
		return s.opts.SessionName, true
	}
	name := r.URL.Query().Get("session")
	if name == "" {
		return s.opts.SessionName, true
	}
	return name, sessionNamePattern.MatchString(name)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	name, ok := s.sessionName(r)
	if !ok {
		http.Error(w, "invalid session name", http.StatusBadRequest)
		return
	}

	actor, err := s.opts.Router.GetOrCreate(r.Context(), name)
	if err != nil {
		s.logger.Error().Err(err).Str("session", name).Msg("session unavailable, rejecting upgrade")
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(s.opts.ReadLimit)

	conn := newWSConn(ws, s.opts.WriteTimeout)
	logger := s.logger.With().Str("session", name).Str("conn_id", conn.ID()).Logger()
	defer func() {
		actor.Detach(conn)
		_ = conn.Close()
	}()

	ctx := r.Context()
	actor.Attach(ctx, conn)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Debug().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}
		if err := actor.HandleInbound(ctx, conn, data); err != nil {
			if errors.Is(err, relay.ErrActorClosed) {
				return
			}
			logger.Warn().Err(err).Msg("chat turn not completed")
		}
	}
}
