// Package pool implements fixed-size, non-blocking resource handle pools.
//
// A Pool owns a set of opaque handles sized at construction. Acquire hands out
// the first free handle or fails immediately with a resource_exhausted error;
// it never blocks and never queues waiters. With wraps an acquire/release pair
// around a unit of work and guarantees the release on every exit path,
// including panics.
package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/calvale/berth/errs"
)

// DefaultName is used when no pool name is configured.
const DefaultName = "berth"

// Handle is an opaque token representing one unit of a shared, reusable
// resource. Handles are created at pool construction and live until teardown.
type Handle struct {
	id    string
	slot  int
	owner *Pool

	// inUse is the single source of truth for availability. It is read and
	// written only while holding the owning pool's mutex.
	inUse bool
}

// ID returns the stable identifier assigned to the handle at construction.
func (h *Handle) ID() string {
	if h == nil {
		return ""
	}
	return h.id
}

// Slot returns the creation-order index of the handle within its pool.
func (h *Handle) Slot() int {
	if h == nil {
		return -1
	}
	return h.slot
}

// Pool manages a fixed-size ordered collection of handles. The handle count
// never changes after construction; at most one caller holds a given handle at
// a time.
type Pool struct {
	name    string
	mu      sync.Mutex
	handles []*Handle
	held    int
	closed  bool

	acquires    atomic.Uint64
	releases    atomic.Uint64
	exhaustions atomic.Uint64
}

// Option configures a Pool during construction.
type Option func(*Pool)

// WithName sets the pool name used in errors, stats, and metric labels.
func WithName(name string) Option {
	return func(p *Pool) {
		if name != "" {
			p.name = name
		}
	}
}

// New constructs a pool with the given capacity. All handles start free.
// Capacity must be positive; anything else fails with invalid_configuration.
func New(capacity int, opts ...Option) (*Pool, error) {
	p := new(Pool)
	p.name = DefaultName
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if capacity <= 0 {
		return nil, errs.New(p.name, errs.CodeInvalidConfiguration,
			errs.WithMessage("capacity must be positive"))
	}
	p.handles = make([]*Handle, capacity)
	for i := range p.handles {
		p.handles[i] = &Handle{
			id:    uuid.NewString(),
			slot:  i,
			owner: p,
			inUse: false,
		}
	}
	return p, nil
}

// Name returns the configured pool name.
func (p *Pool) Name() string { return p.name }

// Capacity returns the fixed number of handles owned by the pool.
func (p *Pool) Capacity() int { return len(p.handles) }

// Free returns the number of handles currently available.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles) - p.held
}

// InUse returns the number of handles currently held by callers.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held
}

// Acquire claims the first free handle in creation order. The whole
// scan-and-mark runs in one critical section, so two callers can never claim
// the same handle. When no handle is free it fails immediately with
// resource_exhausted; the pool never waits for a handle to free up.
func (p *Pool) Acquire() (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errs.New(p.name, errs.CodeUnavailable,
			errs.WithMessage("pool closed"))
	}
	for _, h := range p.handles {
		if !h.inUse {
			h.inUse = true
			p.held++
			p.acquires.Add(1)
			return h, nil
		}
	}
	p.exhaustions.Add(1)
	return nil, errs.New(p.name, errs.CodeExhausted,
		errs.WithMessage("no free handles"),
		errs.WithRemediation("retry later, back off, or raise pool capacity"))
}

// Release returns a held handle to the pool. Releasing a nil handle, a handle
// owned by another pool, or a handle that is not currently held fails with
// conflict. Release is permitted after Close so outstanding handles can still
// drain.
func (p *Pool) Release(h *Handle) error {
	if h == nil {
		return errs.New(p.name, errs.CodeConflict,
			errs.WithMessage("cannot release nil handle"))
	}
	if h.owner != p {
		return errs.New(p.name, errs.CodeConflict,
			errs.WithHandle(h.id),
			errs.WithMessage("handle belongs to another pool"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !h.inUse {
		return errs.New(p.name, errs.CodeConflict,
			errs.WithHandle(h.id),
			errs.WithMessage("handle not currently held"),
			errs.WithRemediation("release only handles returned by Acquire, exactly once"))
	}
	h.inUse = false
	p.held--
	p.releases.Add(1)
	return nil
}

// With acquires a handle, runs fn with the pool mutex released, and guarantees
// the handle is freed on every exit path. Errors from fn propagate to the
// caller untranslated; panics are re-raised after the release.
func (p *Pool) With(ctx context.Context, fn func(context.Context, *Handle) error) (err error) {
	if fn == nil {
		return errs.New(p.name, errs.CodeInvalidConfiguration,
			errs.WithMessage("work function required"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h, acquireErr := p.Acquire()
	if acquireErr != nil {
		return acquireErr
	}
	defer func() {
		if releaseErr := p.Release(h); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn(ctx, h)
}

// Close marks the pool as shut down. Subsequent acquires fail with
// unavailable; handles already out may still be released. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Lease acquires a handle from p, runs fn, and returns its result alongside
// any error. Release is guaranteed exactly as for With.
func Lease[T any](ctx context.Context, p *Pool, fn func(context.Context, *Handle) (T, error)) (T, error) {
	var out T
	if fn == nil {
		return out, errs.New(p.name, errs.CodeInvalidConfiguration,
			errs.WithMessage("work function required"))
	}
	err := p.With(ctx, func(ctx context.Context, h *Handle) error {
		result, workErr := fn(ctx, h)
		if workErr != nil {
			return workErr
		}
		out = result
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
