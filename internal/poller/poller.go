// Package poller follows a dataset job until it reaches a terminal status.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/codebuildervaibhav/abacus/internal/client"
	"github.com/codebuildervaibhav/abacus/internal/types"
)

// DefaultInterval is the delay between fetches of a pending job.
const DefaultInterval = 2 * time.Second

// Fetcher reads the current record for an id.
type Fetcher interface {
	GetJob(ctx context.Context, id string) (*types.Record, error)
}

// Poller re-fetches a pending job at a fixed interval.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	onError  func(id string, err error)
	logger   *slog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the delay between fetches.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithErrorHandler is called for fetch errors that do not stop polling.
func WithErrorHandler(fn func(id string, err error)) Option {
	return func(p *Poller) {
		if fn != nil {
			p.onError = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a poller.
func New(fetcher Fetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.onError == nil {
		p.onError = func(id string, err error) {
			p.logger.Warn("poll failed, retrying", "job_id", id, "error", err)
		}
	}
	return p
}

// Watch fetches id immediately and then every interval while it is pending.
// onUpdate sees every fetched record. It returns the terminal record, or the
// error that ended polling: the first fetch failing, the job disappearing, or
// ctx ending. Only one fetch is in flight at a time.
func (p *Poller) Watch(ctx context.Context, id string, onUpdate func(*types.Record)) (*types.Record, error) {
	rec, err := p.fetcher.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.deliver(ctx, rec, onUpdate); err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() {
		return rec, nil
	}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		next, err := p.fetcher.GetJob(ctx, id)
		switch {
		case err == nil:
			if err := p.deliver(ctx, next, onUpdate); err != nil {
				return nil, err
			}
			if next.Status.IsTerminal() {
				return next, nil
			}
		case errors.Is(err, client.ErrNotFound):
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			p.onError(id, err)
		}
		timer.Reset(p.interval)
	}
}

// deliver hands rec to onUpdate unless the watch was cancelled meanwhile.
func (p *Poller) deliver(ctx context.Context, rec *types.Record, onUpdate func(*types.Record)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(rec)
	}
	return nil
}
