package overdue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"libraryrental/internal/circulation"
)

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestSweepCounters(t *testing.T) {
	prev := otel.GetMeterProvider()
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	first := overdueItem("a@example.com", "Dune", today.AddDays(-3), today.AddDays(-1))
	second := overdueItem("b@example.com", "Emma", today.AddDays(-3), today.AddDays(-1))
	n := &recordingNotifier{failFor: map[int64]bool{1: true, 2: true}}
	links := staticLinks{first.UserID: 1, second.UserID: 2}
	s := NewSweeper(&staticSource{items: []circulation.Overdue{first, second}}, n, links, fixedClock)

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), sumOf(t, reader, "overdue_sweeps_total"))
	assert.Equal(t, int64(4), sumOf(t, reader, "overdue_notification_failures_total"))
}
