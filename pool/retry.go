package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/calvale/berth/errs"
)

// DefaultRetryPolicy returns the exponential policy used when callers pass a
// nil policy to the retry helpers.
func DefaultRetryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	return policy
}

// AcquireWithRetry drives the non-blocking Acquire under a caller-supplied
// backoff policy. The pool itself never waits; this helper sleeps between
// attempts on resource_exhausted only, returning the last exhaustion error
// when the policy stops. Any other error aborts immediately, as does context
// cancellation.
func (p *Pool) AcquireWithRetry(ctx context.Context, policy backoff.BackOff) (*Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	policy.Reset()

	for {
		h, err := p.Acquire()
		if err == nil {
			return h, nil
		}
		if !errs.IsExhausted(err) {
			return nil, err
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return nil, err
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("acquire retry: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// WithRetry behaves like With but acquires via AcquireWithRetry, so callers
// that opt into backing off on exhaustion keep the same guaranteed-release
// semantics.
func (p *Pool) WithRetry(ctx context.Context, policy backoff.BackOff, fn func(context.Context, *Handle) error) (err error) {
	if fn == nil {
		return errs.New(p.name, errs.CodeInvalidConfiguration,
			errs.WithMessage("work function required"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h, acquireErr := p.AcquireWithRetry(ctx, policy)
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
