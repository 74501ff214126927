package pool

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "berth.pool"

// ObserveMetrics registers observable instruments that report pool health
// against the provided meter provider. Gauges emit capacity, in-use, and free
// handle counts; counters emit lifetime acquire, release, and exhaustion
// totals. Passing a noop provider keeps the pool silent.
func ObserveMetrics(provider metric.MeterProvider, pools ...*Pool) error {
	if provider == nil {
		return nil
	}
	meter := provider.Meter(meterName)
	for _, p := range pools {
		if p == nil {
			continue
		}
		if err := observePool(meter, p); err != nil {
			return fmt.Errorf("observe pool %s: %w", p.Name(), err)
		}
	}
	return nil
}

func observePool(meter metric.Meter, p *Pool) error {
	attrs := metric.WithAttributes(attribute.String("pool", p.Name()))

	if _, err := meter.Int64ObservableGauge("berth_pool_handles_total",
		metric.WithDescription("Fixed handle capacity of the pool"),
		metric.WithUnit("{handle}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(p.Capacity()), attrs)
			return nil
		}),
	); err != nil {
		return err
	}
	if _, err := meter.Int64ObservableGauge("berth_pool_handles_in_use",
		metric.WithDescription("Handles currently held by callers"),
		metric.WithUnit("{handle}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(p.InUse()), attrs)
			return nil
		}),
	); err != nil {
		return err
	}
	if _, err := meter.Int64ObservableGauge("berth_pool_handles_free",
		metric.WithDescription("Handles available for acquisition"),
		metric.WithUnit("{handle}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(p.Free()), attrs)
			return nil
		}),
	); err != nil {
		return err
	}
	if _, err := meter.Int64ObservableCounter("berth_pool_acquires_total",
		metric.WithDescription("Successful acquisitions since construction"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(p.acquires.Load()), attrs)
			return nil
		}),
	); err != nil {
		return err
	}
	if _, err := meter.Int64ObservableCounter("berth_pool_releases_total",
		metric.WithDescription("Releases since construction"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(p.releases.Load()), attrs)
			return nil
		}),
	); err != nil {
		return err
	}
	if _, err := meter.Int64ObservableCounter("berth_pool_exhaustions_total",
		metric.WithDescription("Acquire attempts that found no free handle"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(p.exhaustions.Load()), attrs)
			return nil
		}),
	); err != nil {
		return err
	}
	return nil
}
