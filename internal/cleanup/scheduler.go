// Package cleanup fails dataset jobs that never received a result.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// StaleFailer fails pending records created before a cutoff.
type StaleFailer interface {
	FailStalePending(ctx context.Context, olderThan time.Time, reason string) (int64, error)
}

// Sweeper periodically fails pending jobs older than a timeout. With a zero
// timeout it does nothing and jobs stay pending until the worker reports.
type Sweeper struct {
	store    StaleFailer
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper. The schedule uses standard cron syntax or a
// descriptor such as "@every 1m".
func NewSweeper(store StaleFailer, schedule string, timeout time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout > 0 {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("invalid sweeper schedule %q: %w", schedule, err)
		}
	}
	return &Sweeper{
		store:    store,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Enabled reports whether the sweeper fails anything.
func (s *Sweeper) Enabled() bool {
	return s.timeout > 0
}

// Run sweeps on schedule until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.Enabled() {
		s.logger.Info("stale job sweeper disabled")
		<-ctx.Done()
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}

	c.Start()
	s.logger.Info("stale job sweeper started", "schedule", s.schedule, "pending_timeout", s.timeout)

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("stale job sweeper stopped")
	return nil
}

// Sweep fails every pending job created more than the timeout ago and
// returns how many were failed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}

	cutoff := s.now().Add(-s.timeout)
	n, err := s.store.FailStalePending(ctx, cutoff, fmt.Sprintf("no result received within %s", s.timeout))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("failed stale pending jobs", "count", n, "older_than", cutoff)
	}
	return n, nil
}
