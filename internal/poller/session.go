package poller

import (
	"context"
	"sync"

	"github.com/codebuildervaibhav/abacus/internal/types"
)

// Session owns the poll loop of the job currently on display. Switching to
// another job stops the previous loop before the new one starts, so updates
// for a job that is no longer selected never arrive.
type Session struct {
	poller   *Poller
	onUpdate func(*types.Record)

	switchMu sync.Mutex

	mu     sync.Mutex
	id     string
	page   int
	latest *types.Record
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates an idle session.
func NewSession(p *Poller, onUpdate func(*types.Record)) *Session {
	return &Session{poller: p, onUpdate: onUpdate, page: 1}
}

// Switch selects id. It stops the current loop and waits for it, resets the
// page to 1, then fetches id and keeps polling while it is pending. An empty
// id only stops the current loop.
func (s *Session) Switch(id string) {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.page = 1
	s.latest = nil
	s.err = nil
	if id == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		_, err := s.poller.Watch(ctx, id, func(rec *types.Record) {
			s.mu.Lock()
			s.latest = rec
			s.mu.Unlock()
			if s.onUpdate != nil {
				s.onUpdate(rec)
			}
		})
		if err != nil && ctx.Err() == nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
}

// stop cancels the running loop, if any, and waits for it to exit.
func (s *Session) stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until the current loop ends and returns its last record and
// error.
func (s *Session) Wait() (*types.Record, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.err
}

// Current returns the selected id, the latest record seen for it and the
// page on display.
func (s *Session) Current() (string, *types.Record, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.latest, s.page
}

// SetPage moves to page n. Values below 1 are ignored.
func (s *Session) SetPage(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	s.page = n
	s.mu.Unlock()
}

// Close stops polling.
func (s *Session) Close() {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	s.stop()
}
