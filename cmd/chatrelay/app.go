package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aixgo-dev/chatrelay/internal/llm/provider"
	"github.com/aixgo-dev/chatrelay/internal/orchestration"
	"github.com/aixgo-dev/chatrelay/pkg/config"
	metrics "github.com/aixgo-dev/chatrelay/pkg/observability"
	"github.com/aixgo-dev/chatrelay/pkg/relay"
	"github.com/aixgo-dev/chatrelay/pkg/security"
	"github.com/aixgo-dev/chatrelay/pkg/session"
	"github.com/rs/zerolog"
)

// app holds the long-lived components shared by the relay.
type app struct {
	cfg         *config.Config
	backend     session.StorageBackend
	router      *relay.Router
	health      *metrics.HealthChecker
	aiAvailable bool
}

// newApp wires storage, generation and the session router from cfg.
// A provider that cannot be built leaves the relay running with fallback
// replies; a storage backend that cannot be built is fatal.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	backend, err := session.NewBackend(ctx, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("open %s history store: %w", cfg.Session.Store, err)
	}

	p, providerErr := provider.Create(cfg.LLM.Provider, cfg.LLM.ProviderOptions())
	if providerErr != nil {
		logger.Warn().Err(providerErr).Str("provider", cfg.LLM.Provider).Msg("generation backend unavailable, replies will use fallback text")
		p = provider.NewMockProvider(provider.MockResult{Err: providerErr})
	}
	gen := orchestration.NewChatOrchestrator(provider.NewInstrumentedProvider(p), cfg.Orchestration(), logger)

	var limiter *security.RateLimiter
	if cfg.Relay.RateLimit.Enabled() {
		limiter = security.NewRateLimiter(cfg.Relay.RateLimit)
	}

	router := relay.NewRouter(func(name string) *relay.Actor {
		return relay.NewActor(relay.Options{
			Name:             name,
			History:          session.NewHistory(backend, cfg.Session.KeyFor(name), cfg.Session.MaxHistory),
			Generator:        gen,
			Logger:           logger,
			BroadcastReplies: cfg.Relay.BroadcastReplies,
			RateLimiter:      limiter,
		})
	}, logger)

	health := metrics.NewHealthChecker(Version)
	health.RegisterCheck(metrics.StorageCheck(backend.Ping))
	health.RegisterCheck(metrics.ExternalServiceCheck("llm", func(context.Context) error {
		if providerErr != nil {
			return providerErr
		}
		return nil
	}))

	return &app{
		cfg:         cfg,
		backend:     backend,
		router:      router,
		health:      health,
		aiAvailable: providerErr == nil,
	}, nil
}

// Close stops every actor, then releases the store.
func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.router.Close(ctx), a.backend.Close())
}
