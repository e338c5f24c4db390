package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/pmetric"
)

func TestBuildMetrics(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snapshot := Snapshot{
		Granularity: 5,
		Samples: []Sample{
			NewSample(at, 1, 2, 3),
			NewSample(at.Add(5*time.Minute), 4, 5, 6),
		},
	}

	md := BuildMetrics(snapshot)
	require.Equal(t, 1, md.ResourceMetrics().Len())

	rm := md.ResourceMetrics().At(0)
	g, ok := rm.Resource().Attributes().Get("statlens.granularity_minutes")
	require.True(t, ok)
	assert.Equal(t, int64(5), g.Int())

	metrics := rm.ScopeMetrics().At(0).Metrics()
	require.Equal(t, 3, metrics.Len())

	calls := metrics.At(1)
	assert.Equal(t, "statlens.calls", calls.Name())
	assert.Equal(t, pmetric.MetricTypeGauge, calls.Type())

	dps := calls.Gauge().DataPoints()
	require.Equal(t, 2, dps.Len())
	assert.Equal(t, 2.0, dps.At(0).DoubleValue())
	assert.Equal(t, 5.0, dps.At(1).DoubleValue())
	assert.True(t, dps.At(1).Timestamp().AsTime().Equal(at.Add(5*time.Minute)))
}
