// Package security holds abuse controls for inbound chat traffic.
package security

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-client limits. A zero RequestsPerSecond
// disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Enabled reports whether the config imposes a limit.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerSecond > 0
}

// RateLimiter applies a token bucket per client ID.
type RateLimiter struct {
	clientLimiters map[string]*rate.Limiter
	mu             sync.RWMutex

	requestsPerSecond float64
	burst             int
}

// NewRateLimiter creates a new rate limiter. A burst below 1 is raised to 1.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clientLimiters:    make(map[string]*rate.Limiter),
		requestsPerSecond: cfg.RequestsPerSecond,
		burst:             burst,
	}
}

// Allow checks if a request should be allowed. A nil limiter allows everything.
func (rl *RateLimiter) Allow(clientID string) bool {
	if rl == nil {
		return true
	}
	return rl.getClientLimiter(clientID).Allow()
}

// Forget drops the bucket kept for clientID.
func (rl *RateLimiter) Forget(clientID string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.clientLimiters, clientID)
	rl.mu.Unlock()
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.clientLimiters)
}

func (rl *RateLimiter) getClientLimiter(clientID string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.clientLimiters[clientID]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := rl.clientLimiters[clientID]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(rl.requestsPerSecond), rl.burst)
	rl.clientLimiters[clientID] = limiter
	return limiter
}
