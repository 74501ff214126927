package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Gauge[int64]:
				require.NotEmpty(t, data.DataPoints, "gauge %s has no datapoints", name)
				return data.DataPoints[0].Value
			case metricdata.Sum[int64]:
				require.NotEmpty(t, data.DataPoints, "sum %s has no datapoints", name)
				return data.DataPoints[0].Value
			}
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

func TestObserveMetricsReportsOccupancy(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	p := mustPool(t, 3, WithName("instrumented"))
	require.NoError(t, ObserveMetrics(provider, p))

	require.EqualValues(t, 3, collectValue(t, reader, "berth_pool_handles_total"))
	require.EqualValues(t, 0, collectValue(t, reader, "berth_pool_handles_in_use"))
	require.EqualValues(t, 3, collectValue(t, reader, "berth_pool_handles_free"))

	h, err := p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.Error(t, err)

	require.EqualValues(t, 3, collectValue(t, reader, "berth_pool_handles_in_use"))
	require.EqualValues(t, 0, collectValue(t, reader, "berth_pool_handles_free"))
	require.EqualValues(t, 3, collectValue(t, reader, "berth_pool_acquires_total"))
	require.EqualValues(t, 1, collectValue(t, reader, "berth_pool_exhaustions_total"))

	require.NoError(t, p.Release(h))
	require.EqualValues(t, 1, collectValue(t, reader, "berth_pool_releases_total"))
	require.EqualValues(t, 1, collectValue(t, reader, "berth_pool_handles_free"))
}

func TestObserveMetricsToleratesNilInputs(t *testing.T) {
	require.NoError(t, ObserveMetrics(nil))

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	require.NoError(t, ObserveMetrics(provider, nil))
}
