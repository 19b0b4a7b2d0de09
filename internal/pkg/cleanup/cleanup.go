// Package cleanup runs best-effort storage cleanup off the request path.
//
// Jobs are retried with a fixed backoff and dropped after the last attempt;
// callers never learn the outcome beyond logs and metrics.
package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devplan",
		Subsystem: "cleanup",
		Name:      "jobs_total",
		Help:      "Cleanup jobs by final result.",
	}, []string{"result"})

	pendingJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "devplan",
		Subsystem: "cleanup",
		Name:      "pending_jobs",
		Help:      "Cleanup jobs waiting for a worker.",
	})
)

// ErrClosed is returned by Close on a pool that is already closed.
var ErrClosed = errors.New("cleanup pool closed")

// Job is one unit of cleanup, e.g. removing an orphaned object.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Stats is a snapshot of the pool counters.
type Stats struct {
	Submitted int64
	Succeeded int64
	Failed    int64 // gave up after the last attempt
	Inline    int64 // ran on the caller because the pool was full or closed
	Panics    int64
}

// Pool is a fixed set of workers draining a bounded job channel.
type Pool struct {
	logger   *slog.Logger
	workers  int
	attempts int
	backoff  time.Duration
	timeout  time.Duration

	jobs   chan Job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc

	submitted, succeeded, failed, inline, panics atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithRetry sets the attempts per job and the pause between them.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *Pool) {
		if attempts > 0 {
			p.attempts = attempts
		}
		p.backoff = backoff
	}
}

// WithJobTimeout bounds each attempt.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) { p.timeout = d }
}

// New creates and starts a pool. workers and capacity are at least 1.
func New(logger *slog.Logger, workers, capacity int, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	p := &Pool{
		logger:   logger,
		workers:  workers,
		attempts: 3,
		backoff:  500 * time.Millisecond,
		timeout:  30 * time.Second,
		jobs:     make(chan Job, capacity),
	}
	for _, opt := range opts {
		opt(p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return p
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		pendingJobs.Dec()
		p.execute(ctx, job, id)
	}
}

// errPanicked marks an attempt that panicked; it is never retried.
var errPanicked = errors.New("cleanup job panicked")

// attempt runs job once under the per-attempt timeout and turns a panic into
// errPanicked.
func (p *Pool) attempt(ctx context.Context, job Job, workerID int) (err error) {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("cleanup job panic recovered",
				slog.String("job", job.Name),
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = errPanicked
		}
	}()
	return job.Run(runCtx)
}

// execute runs job until it succeeds, attempts are exhausted or ctx ends.
func (p *Pool) execute(ctx context.Context, job Job, workerID int) {
	var err error
	for n := 1; n <= p.attempts; n++ {
		err = p.attempt(ctx, job, workerID)
		if err == nil {
			p.succeeded.Add(1)
			jobsTotal.WithLabelValues("success").Inc()
			return
		}
		if errors.Is(err, errPanicked) {
			p.failed.Add(1)
			jobsTotal.WithLabelValues("panic").Inc()
			return
		}
		if n == p.attempts {
			break
		}
		p.logger.Debug("cleanup job retry",
			slog.String("job", job.Name),
			slog.Int("attempt", n),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			n = p.attempts
		case <-time.After(p.backoff):
		}
	}
	p.failed.Add(1)
	jobsTotal.WithLabelValues("failed").Inc()
	p.logger.Warn("cleanup job gave up",
		slog.String("job", job.Name),
		slog.Int("worker_id", workerID),
		slog.String("error", err.Error()))
}

// Submit queues job without blocking. When the pool is full or closed the
// job runs once on the caller's goroutine, under the job timeout and with
// panic recovery.
func (p *Pool) Submit(ctx context.Context, job Job) {
	if job.Run == nil {
		return
	}
	p.mu.RLock()
	if !p.closed {
		select {
		case p.jobs <- job:
			p.mu.RUnlock()
			p.submitted.Add(1)
			pendingJobs.Inc()
			return
		default:
		}
	}
	p.mu.RUnlock()

	// single attempt on the caller, bounded like a worker attempt
	p.inline.Add(1)
	if err := p.attempt(ctx, job, -1); err != nil {
		p.failed.Add(1)
		result := "failed"
		if errors.Is(err, errPanicked) {
			result = "panic"
		}
		jobsTotal.WithLabelValues(result).Inc()
		p.logger.Warn("cleanup job failed", slog.String("job", job.Name), slog.String("error", err.Error()))
		return
	}
	p.succeeded.Add(1)
	jobsTotal.WithLabelValues("success").Inc()
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When
// timeout passes first, in-flight attempts are cancelled.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		<-done
		p.logger.Error("cleanup pool shutdown timeout", slog.String("timeout", timeout.String()))
		return context.DeadlineExceeded
	}
}

// Close drains the pool with a five second limit.
func (p *Pool) Close() error {
	return p.Shutdown(5 * time.Second)
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Inline:    p.inline.Load(),
		Panics:    p.panics.Load(),
	}
}
