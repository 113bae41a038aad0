// Package telemetrytest records storefront metrics in memory for tests.
package telemetrytest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"storefront/internal/telemetry"
)

// Recorder collects counters through a manual reader.
type Recorder struct {
	t      testing.TB
	reader *sdkmetric.ManualReader
}

func NewMetrics(t testing.TB) (*telemetry.Metrics, *Recorder) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := telemetry.NewMetrics(provider.Meter(telemetry.TracerName))
	require.NoError(t, err)
	return m, &Recorder{t: t, reader: reader}
}

// Count sums every data point of the named counter whose attributes include
// all of attrs (given as key, value pairs).
func (r *Recorder) Count(name string, attrs ...string) int64 {
	r.t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(r.t, r.reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(r.t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if matches(dp, attrs) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func matches(dp metricdata.DataPoint[int64], attrs []string) bool {
	for i := 0; i+1 < len(attrs); i += 2 {
		v, ok := dp.Attributes.Value(attribute.Key(attrs[i]))
		if !ok || v.Emit() != attrs[i+1] {
			return false
		}
	}
	return true
}
