package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aixgo-dev/chatrelay/internal/observability"
	"github.com/aixgo-dev/chatrelay/internal/server"
	metrics "github.com/aixgo-dev/chatrelay/pkg/observability"
	"github.com/aixgo-dev/chatrelay/pkg/relay"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := observability.Init(cfg.Observability, logger); err != nil {
		return err
	}
	metrics.InitMetrics()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sweeper, err := relay.NewSweeper(a.router, cfg.Relay.SweepSchedule, logger)
	if err != nil {
		_ = a.Close(context.Background())
		return err
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: server.New(server.Options{
			Router:               a.router,
			SessionName:          cfg.Session.Name,
			AllowSessionOverride: cfg.Relay.AllowSessionOverride,
			AIAvailable:          a.aiAvailable,
			Health:               a.health,
			Logger:               logger,
			WriteTimeout:         cfg.Server.WriteTimeout,
		}),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", srv.Addr).
			Str("session", cfg.Session.Name).
			Str("store", a.backend.Name()).
			Str("provider", cfg.LLM.Provider).
			Str("version", Version).
			Msg("chatrelay listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	runErr := g.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Close(sctx); err != nil {
		logger.Error().Err(err).Msg("closing sessions")
	}
	if err := observability.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("flushing traces")
	}
	return runErr
}
