// Package registry coordinates named berth pools, providing lifecycle
// management, in-flight lease tracking, and graceful shutdown semantics.
//
// A Registry is injected explicitly wherever shared pools are needed; there is
// no process-wide instance.
package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/calvale/berth/config"
	"github.com/calvale/berth/errs"
	"github.com/calvale/berth/observability"
	"github.com/calvale/berth/pool"
)

const registryName = "registry"

// DefaultShutdownTimeout bounds Shutdown when the caller's context carries no
// deadline.
const DefaultShutdownTimeout = 5 * time.Second

// Registry owns a set of named pools.
type Registry struct {
	mu           sync.RWMutex
	pools        map[string]*pool.Pool
	order        []string
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	inFlight     sync.WaitGroup
	active       atomic.Int64
	log          observability.Logger
}

// Option configures a Registry during construction.
type Option func(*Registry)

// WithLogger sets the logger used for shutdown diagnostics.
func WithLogger(logger observability.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.log = logger
		}
	}
}

// New constructs an empty registry ready for pool registration.
func New(opts ...Option) *Registry {
	r := new(Registry)
	r.pools = make(map[string]*pool.Pool)
	r.shutdownCh = make(chan struct{})
	r.log = observability.NopLogger()
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// FromConfig builds a registry containing one pool per configured spec.
func FromConfig(specs []config.PoolSpec, opts ...Option) (*Registry, error) {
	r := New(opts...)
	for _, spec := range specs {
		if err := r.Register(spec.Name, spec.Capacity); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register creates a pool with the provided name and capacity. Registering a
// duplicate name or registering after shutdown fails.
func (r *Registry) Register(name string, capacity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.shutdownCh:
		return errs.New(registryName, errs.CodeUnavailable,
			errs.WithMessage("shutdown in progress"))
	default:
	}

	if _, exists := r.pools[name]; exists {
		return errs.New(name, errs.CodeConflict,
			errs.WithMessage("pool already registered"))
	}

	p, err := pool.New(capacity, pool.WithName(name))
	if err != nil {
		return err
	}
	r.pools[name] = p
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the named pool.
func (r *Registry) Lookup(name string) (*pool.Pool, error) {
	r.mu.RLock()
	p, ok := r.pools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.New(name, errs.CodeNotFound,
			errs.WithMessage("pool not registered"))
	}
	return p, nil
}

// With runs fn under a scoped lease from the named pool, tracking the lease so
// Shutdown can wait for it.
func (r *Registry) With(ctx context.Context, name string, fn func(context.Context, *pool.Handle) error) error {
	select {
	case <-r.shutdownCh:
		return errs.New(registryName, errs.CodeUnavailable,
			errs.WithMessage("shutdown in progress"))
	default:
	}

	p, err := r.Lookup(name)
	if err != nil {
		return err
	}

	r.inFlight.Add(1)
	r.active.Add(1)
	defer func() {
		r.active.Add(-1)
		r.inFlight.Done()
	}()
	return p.With(ctx, fn)
}

// Pools returns the registered pools in registration order.
func (r *Registry) Pools() []*pool.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*pool.Pool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.pools[name])
	}
	return out
}

// Stats snapshots every registered pool in registration order.
func (r *Registry) Stats() []pool.Stats {
	pools := r.Pools()
	out := make([]pool.Stats, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.Stats())
	}
	return out
}

// ObserveMetrics registers metric instruments for every pool in the registry.
func (r *Registry) ObserveMetrics(provider metric.MeterProvider) error {
	return pool.ObserveMetrics(provider, r.Pools()...)
}

// Shutdown closes every pool and waits for in-flight scoped leases to finish,
// bounded by the context deadline (defaulting to DefaultShutdownTimeout). On
// timeout it reports how many leases remained outstanding.
func (r *Registry) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, DefaultShutdownTimeout)
	}
	if cancel != nil {
		defer cancel()
	}

	r.shutdownOnce.Do(func() {
		close(r.shutdownCh)
	})
	for _, p := range r.Pools() {
		p.Close()
	}

	done := make(chan struct{})
	go func() {
		r.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("registry drained", observability.F("pools", len(r.Pools())))
		return nil
	case <-ctx.Done():
		remaining := r.active.Load()
		r.log.Error("registry shutdown timed out",
			observability.F("outstanding", remaining))
		return errs.New(registryName, errs.CodeUnavailable,
			errs.WithMessage("shutdown timeout with leases outstanding"),
			errs.WithCause(ctx.Err()))
	}
}
