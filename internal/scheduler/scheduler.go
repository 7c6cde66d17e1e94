// Package scheduler fires digest runs on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunFunc executes one digest run.
type RunFunc func(ctx context.Context, now time.Time) error

// Scheduler triggers runs on an interval. Runs never overlap: a tick that
// arrives while a run is in flight is dropped.
type Scheduler struct {
	interval time.Duration
	run      RunFunc
	trigger  chan struct{}
	logger   zerolog.Logger
}

// New creates a scheduler.
func New(interval time.Duration, run RunFunc, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		run:      run,
		trigger:  make(chan struct{}, 1),
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Trigger requests an immediate run outside the schedule. Non-blocking;
// a pending trigger is coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until the context is cancelled, firing the run function on
// every tick and on manual triggers.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.fire(ctx, "schedule")
		case <-s.trigger:
			s.fire(ctx, "manual")
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, cause string) {
	start := time.Now()
	if err := s.run(ctx, start); err != nil {
		s.logger.Error().Err(err).Str("cause", cause).Msg("scheduled run failed")
		return
	}
	s.logger.Info().Str("cause", cause).Dur("elapsed", time.Since(start)).Msg("scheduled run complete")
}
