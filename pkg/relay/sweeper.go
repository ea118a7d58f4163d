package relay

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSweepSchedule runs a sweep every thirty seconds.
const DefaultSweepSchedule = "@every 30s"

// Sweeper periodically removes closed connections from every actor.
type Sweeper struct {
	cron   *cron.Cron
	router *Router
	logger zerolog.Logger
}

// NewSweeper schedules router sweeps. schedule is a cron spec or a
// descriptor such as "@every 1m"; empty selects DefaultSweepSchedule.
func NewSweeper(router *Router, schedule string, logger zerolog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	s := &Sweeper{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		router: router,
		logger: logger.With().Str("component", "sweeper").Logger(),
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) sweep() {
	if n := s.router.Sweep(); n > 0 {
		s.logger.Info().Int("removed", n).Msg("sweep removed closed connections")
	}
}

// Start begins running the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, up to ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the sweeper and stops it when ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	return s.Stop(context.Background())
}
