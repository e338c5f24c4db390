package model

import (
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/pmetric"
)

const scopeName = "github.com/utrack/statlens"

// BuildMetrics projects a snapshot into OTLP gauges, one data point per sample.
func BuildMetrics(snapshot Snapshot) pmetric.Metrics {
	md := pmetric.NewMetrics()
	rm := md.ResourceMetrics().AppendEmpty()
	rm.Resource().Attributes().PutStr("service.name", "statlens")
	rm.Resource().Attributes().PutInt("statlens.granularity_minutes", int64(snapshot.Granularity))

	sm := rm.ScopeMetrics().AppendEmpty()
	sm.Scope().SetName(scopeName)

	fields := []struct {
		name  string
		value func(Sample) float64
	}{
		{name: "statlens.messages", value: func(s Sample) float64 { return s.MessageCount }},
		{name: "statlens.calls", value: func(s Sample) float64 { return s.CallCount }},
		{name: "statlens.successes", value: func(s Sample) float64 { return s.SuccessCount }},
	}

	for _, field := range fields {
		metric := sm.Metrics().AppendEmpty()
		metric.SetName(field.name)
		metric.SetUnit("{count}")
		dps := metric.SetEmptyGauge().DataPoints()
		dps.EnsureCapacity(len(snapshot.Samples))
		for _, sample := range snapshot.Samples {
			dp := dps.AppendEmpty()
			dp.SetTimestamp(pcommon.NewTimestampFromTime(sample.At))
			dp.SetDoubleValue(field.value(sample))
		}
	}

	return md
}
