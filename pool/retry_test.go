package pool

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/calvale/berth/errs"
)

// stepPolicy yields a fixed schedule of waits, then stops.
type stepPolicy struct {
	waits []time.Duration
	next  int
}

func (s *stepPolicy) NextBackOff() time.Duration {
	if s.next >= len(s.waits) {
		return backoff.Stop
	}
	wait := s.waits[s.next]
	s.next++
	return wait
}

func (s *stepPolicy) Reset() { s.next = 0 }

func TestAcquireWithRetrySucceedsImmediatelyWhenFree(t *testing.T) {
	p := mustPool(t, 1)
	h, err := p.AcquireWithRetry(context.Background(), &stepPolicy{waits: nil})
	if err != nil {
		t.Fatalf("retry acquire: %v", err)
	}
	if err := p.Release(h); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestAcquireWithRetrySucceedsOnceHandleFrees(t *testing.T) {
	p := mustPool(t, 1)
	held, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	timer := time.AfterFunc(10*time.Millisecond, func() {
		if err := p.Release(held); err != nil {
			t.Errorf("background release: %v", err)
		}
	})
	defer timer.Stop()

	waits := make([]time.Duration, 100)
	for i := range waits {
		waits[i] = 5 * time.Millisecond
	}
	h, err := p.AcquireWithRetry(context.Background(), &stepPolicy{waits: waits})
	if err != nil {
		t.Fatalf("expected retry to pick up freed handle: %v", err)
	}
	if h.ID() != held.ID() {
		t.Fatalf("expected the freed handle back, got %s", h.ID())
	}
}

func TestAcquireWithRetrySurfacesExhaustionWhenPolicyStops(t *testing.T) {
	p := mustPool(t, 1)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	_, err := p.AcquireWithRetry(context.Background(), &stepPolicy{
		waits: []time.Duration{time.Millisecond, time.Millisecond},
	})
	if !errs.IsExhausted(err) {
		t.Fatalf("expected exhaustion once policy stops, got %v", err)
	}
}

func TestAcquireWithRetryHonorsContextCancellation(t *testing.T) {
	p := mustPool(t, 1)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.AcquireWithRetry(ctx, &stepPolicy{waits: []time.Duration{time.Minute}})
	if err == nil || ctx.Err() == nil {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if errs.IsExhausted(err) {
		t.Fatalf("cancellation must not be reported as exhaustion: %v", err)
	}
}

func TestAcquireWithRetryAbortsOnNonExhaustionError(t *testing.T) {
	p := mustPool(t, 1)
	p.Close()

	_, err := p.AcquireWithRetry(context.Background(), &stepPolicy{
		waits: []time.Duration{time.Minute},
	})
	if !errs.IsUnavailable(err) {
		t.Fatalf("expected immediate unavailable, got %v", err)
	}
}

func TestWithRetryReleasesHandle(t *testing.T) {
	p := mustPool(t, 1)
	err := p.WithRetry(context.Background(), &stepPolicy{waits: nil}, func(_ context.Context, h *Handle) error {
		if h == nil {
			t.Errorf("expected handle in scoped work")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with retry: %v", err)
	}
	if got := p.Free(); got != 1 {
		t.Fatalf("expected handle freed after scope, got %d free", got)
	}
}
