// Package async provides a bounded task runner whose work executes under
// scoped pool leases.
package async

import (
	"context"
	"fmt"
	"sync"

	concpool "github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/calvale/berth/errs"
	"github.com/calvale/berth/observability"
	"github.com/calvale/berth/pool"
)

const runnerName = "runner"

// Task represents a unit of work executed by the runner workers. Each
// invocation receives a handle leased from the runner's pool for exactly the
// duration of the call.
type Task func(context.Context, *pool.Handle) error

// Runner is a bounded worker pool enforcing backpressure when saturated.
// Every task runs under a scoped lease, so a task can never outlive its
// handle.
type Runner struct {
	ctx     context.Context
	cancel  context.CancelFunc
	source  *pool.Pool
	jobs    chan job
	wg      sync.WaitGroup
	once    sync.Once
	workers *concpool.Pool
	limiter *rate.Limiter
	log     observability.Logger
}

type job struct {
	ctx context.Context
	fn  Task
}

// Option configures a Runner during construction.
type Option func(*Runner)

// WithLogger sets the logger used for task failure diagnostics.
func WithLogger(logger observability.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.log = logger
		}
	}
}

// WithRate paces submissions to perSecond with the given burst. A
// non-positive rate leaves submissions unpaced.
func WithRate(perSecond float64, burst int) Option {
	return func(r *Runner) {
		if perSecond <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewRunner creates a runner with the given concurrency and queue depth,
// leasing handles from source.
func NewRunner(source *pool.Pool, workers, queue int, opts ...Option) (*Runner, error) {
	if source == nil {
		return nil, errs.New(runnerName, errs.CodeInvalidConfiguration,
			errs.WithMessage("handle pool required"))
	}
	if workers <= 0 {
		return nil, errs.New(runnerName, errs.CodeInvalidConfiguration,
			errs.WithMessage("workers must be >0"))
	}
	if queue < 0 {
		queue = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := new(Runner)
	r.ctx = ctx
	r.cancel = cancel
	r.source = source
	r.jobs = make(chan job, queue)
	r.log = observability.NopLogger()
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	r.workers = concpool.New().WithMaxGoroutines(workers)
	for i := 0; i < workers; i++ {
		r.workers.Go(r.worker)
	}
	return r, nil
}

// Submit schedules the provided task respecting runner backpressure. A full
// queue or an exceeded submission rate fails immediately with
// resource_exhausted; the runner never queues beyond its depth.
func (r *Runner) Submit(ctx context.Context, fn Task) error {
	if fn == nil {
		return errs.New(runnerName, errs.CodeInvalidConfiguration,
			errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if r.limiter != nil && !r.limiter.Allow() {
		return errs.New(runnerName, errs.CodeExhausted,
			errs.WithMessage("submission rate exceeded"))
	}

	r.wg.Add(1)
	select {
	case <-r.ctx.Done():
		r.wg.Done()
		return errs.New(runnerName, errs.CodeUnavailable,
			errs.WithMessage("runner closed"))
	case <-ctx.Done():
		r.wg.Done()
		return fmt.Errorf("submit context: %w", ctx.Err())
	case r.jobs <- job{ctx: ctx, fn: fn}:
		return nil
	default:
		r.wg.Done()
		return errs.New(runnerName, errs.CodeExhausted,
			errs.WithMessage("queue full"))
	}
}

// Close stops accepting new tasks and cancels workers.
func (r *Runner) Close() {
	r.once.Do(func() {
		r.cancel()
		close(r.jobs)
	})
}

// Shutdown waits for in-flight tasks to complete or until the context
// expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.Close()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		r.workers.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (r *Runner) worker() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case j, ok := <-r.jobs:
			if !ok {
				return
			}
			ctx := j.ctx
			if ctx == nil {
				ctx = r.ctx
			}
			r.run(ctx, j.fn)
			r.wg.Done()
		}
	}
}

// run executes one task under a leased handle. Exhaustion is absorbed by a
// retry policy so a runner sized larger than its pool degrades to waiting
// rather than failing. Panics are contained to keep the worker alive; the
// lease is already released by the time they surface here.
func (r *Runner) run(ctx context.Context, fn Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("task panic", observability.F("panic", rec))
		}
	}()
	err := r.source.WithRetry(ctx, nil, func(ctx context.Context, h *pool.Handle) error {
		return fn(ctx, h)
	})
	if err != nil {
		r.log.Error("task failed", observability.F("error", err))
	}
}
