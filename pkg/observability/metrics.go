// Package observability exposes Prometheus metrics and health endpoints.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes recorded by RecordChatTurn.
const (
	TurnOutcomeOK           = "ok"
	TurnOutcomeFallback     = "fallback"
	TurnOutcomePersistError = "persist_error"
	TurnOutcomeError        = "error"
)

var (
	// Connection metrics
	activeConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatrelay_active_connections",
			Help: "Number of attached connections per session",
		},
		[]string{"session"},
	)

	sweptConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_swept_connections_total",
			Help: "Total number of closed connections removed by sweeps",
		},
		[]string{"session"},
	)

	// Chat metrics
	chatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_chat_turns_total",
			Help: "Total number of chat turns by outcome",
		},
		[]string{"session", "outcome"},
	)

	protocolErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_protocol_errors_total",
			Help: "Total number of inbound frames that could not be decoded",
		},
		[]string{"session"},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_rate_limited_total",
			Help: "Total number of chat events rejected by the rate limiter",
		},
		[]string{"session"},
	)

	// Generation metrics
	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_generation_duration_seconds",
			Help:    "Generation call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "status"},
	)

	generationTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_generation_tokens_total",
			Help: "Total number of tokens reported by the generation backend",
		},
		[]string{"provider", "kind"},
	)

	// Storage metrics
	persistDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_persist_duration_seconds",
			Help:    "History persist duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"backend", "status"},
	)

	initOnce sync.Once
)

// InitMetrics registers the relay metrics with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			activeConnections,
			sweptConnectionsTotal,
			chatTurnsTotal,
			protocolErrorsTotal,
			rateLimitedTotal,
			generationDuration,
			generationTokens,
			persistDuration,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// SetActiveConnections records the registry size for a session.
func SetActiveConnections(session string, count int) {
	activeConnections.WithLabelValues(session).Set(float64(count))
}

// RecordSweep records connections removed by a sweep.
func RecordSweep(session string, removed int) {
	if removed > 0 {
		sweptConnectionsTotal.WithLabelValues(session).Add(float64(removed))
	}
}

// RecordChatTurn records a completed chat turn.
func RecordChatTurn(session, outcome string) {
	chatTurnsTotal.WithLabelValues(session, outcome).Inc()
}

// RecordProtocolError records an undecodable inbound frame.
func RecordProtocolError(session string) {
	protocolErrorsTotal.WithLabelValues(session).Inc()
}

// RecordRateLimited records a chat event dropped by the rate limiter.
func RecordRateLimited(session string) {
	rateLimitedTotal.WithLabelValues(session).Inc()
}

// RecordGeneration records one generation call.
func RecordGeneration(provider string, err error, duration time.Duration, promptTokens, completionTokens int) {
	status := "success"
	if err != nil {
		status = "error"
	}
	generationDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	if promptTokens > 0 {
		generationTokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		generationTokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

// RecordPersist records one history persist.
func RecordPersist(backend string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	persistDuration.WithLabelValues(backend, status).Observe(duration.Seconds())
}
