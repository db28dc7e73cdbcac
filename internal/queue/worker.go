package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codebuildervaibhav/abacus/internal/types"
)

// HandOff delivers a task to the analysis worker. A nil error means the
// worker accepted the request.
type HandOff interface {
	HandOff(ctx context.Context, task Task) error
}

// Resolver records a terminal outcome for a pending job.
type Resolver interface {
	Resolve(ctx context.Context, id string, outcome types.Outcome) (bool, error)
}

// Failure reasons for jobs that were never handed off.
var (
	ErrQueueFull    = errors.New("dispatch queue is full")
	ErrShuttingDown = errors.New("dispatcher is shutting down")
)

const resolveTimeout = 10 * time.Second

// Dispatcher hands stored uploads to the analysis worker from a fixed pool of
// goroutines. Each job id is attempted at most once per process and failed
// attempts are never retried.
type Dispatcher struct {
	handOff  HandOff
	resolver Resolver
	logger   *slog.Logger
	workers  int
	timeout  time.Duration

	tasks chan Task
	wg    sync.WaitGroup
	once  sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	claimed map[string]struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the number of concurrent hand-offs.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets how many tasks may wait for a free worker.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.tasks = make(chan Task, n)
		}
	}
}

// WithTimeout bounds a single hand-off attempt.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher. Start must be called before tasks are
// processed.
func NewDispatcher(handOff HandOff, resolver Resolver, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handOff:  handOff,
		resolver: resolver,
		logger:   slog.Default(),
		workers:  4,
		timeout:  30 * time.Second,
		tasks:    make(chan Task, 100),
		ctx:      ctx,
		cancel:   cancel,
		claimed:  make(map[string]struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Start initializes all workers
func (d *Dispatcher) Start() {
	d.once.Do(func() {
		d.logger.Info("starting dispatcher", "workers", d.workers, "queue_size", cap(d.tasks))
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker(i + 1)
		}
	})
}

// Dispatch schedules the hand-off of blob for jobID and returns immediately.
// A call for a job id that is still queued or in flight is ignored. When the
// queue is full the job is failed instead of waiting for a slot, and after
// Shutdown it is failed before Dispatch returns.
func (d *Dispatcher) Dispatch(blob types.BlobRef, jobID string) {
	d.mu.Lock()
	if _, dup := d.claimed[jobID]; dup {
		d.mu.Unlock()
		d.logger.Warn("ignoring repeated dispatch", "job_id", jobID)
		return
	}
	d.claimed[jobID] = struct{}{}

	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("cannot dispatch: dispatcher is shutting down", "job_id", jobID)
		d.settle(jobID, ErrShuttingDown)
		return
	}
	defer d.mu.Unlock()

	select {
	case d.tasks <- NewTask(jobID, blob):
		d.logger.Debug("job dispatched", "job_id", jobID, "blob", blob.Key)
	default:
		d.logger.Error("dispatch queue full", "job_id", jobID)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.settle(jobID, ErrQueueFull)
		}()
	}
}

// settle fails the job when cause is non-nil and drops its claim.
func (d *Dispatcher) settle(jobID string, cause error) {
	if cause != nil {
		d.fail(jobID, cause)
	}
	d.mu.Lock()
	delete(d.claimed, jobID)
	d.mu.Unlock()
}

// Pending returns the number of jobs queued or in flight.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.claimed)
}

// Shutdown stops accepting tasks and waits for queued hand-offs to settle.
// In-flight hand-offs are cancelled when ctx expires.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); d.wg.Wait() }()

	select {
	case <-done:
		d.logger.Info("dispatcher drained")
	case <-ctx.Done():
		d.logger.Warn("dispatcher shutdown interrupted, cancelling hand-offs")
		d.cancel()
		<-done
	}
	d.cancel()
}

// worker processes tasks from the queue
func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	d.logger.Debug("dispatch worker started", "worker_id", id)

	for task := range d.tasks {
		d.process(id, task)
	}
	d.logger.Debug("dispatch worker stopped", "worker_id", id)
}

func (d *Dispatcher) process(workerID int, task Task) {
	err := d.attempt(task)
	if err == nil {
		d.logger.Info("hand-off accepted",
			"worker_id", workerID,
			"job_id", task.JobID,
			"queued_for", time.Since(task.EnqueuedAt).Round(time.Millisecond),
		)
	} else {
		d.logger.Error("hand-off failed", "worker_id", workerID, "job_id", task.JobID, "error", err)
	}
	d.settle(task.JobID, err)
}

// attempt runs one hand-off, converting a panic into an error.
func (d *Dispatcher) attempt(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic during hand-off", "job_id", task.JobID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("hand-off panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	return d.handOff.HandOff(ctx, task)
}

// fail moves the job to failed. A job that already reached a terminal state
// is left alone.
func (d *Dispatcher) fail(jobID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	applied, err := d.resolver.Resolve(ctx, jobID, types.Failure("dispatch failed: "+cause.Error()))
	switch {
	case err != nil:
		d.logger.Error("failed to record dispatch failure", "job_id", jobID, "error", err)
	case !applied:
		d.logger.Info("dispatch failure ignored, job already terminal", "job_id", jobID)
	default:
		d.logger.Info("job failed at dispatch", "job_id", jobID)
	}
}
