package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hazz-dev/availmon/internal/probe"
)

const (
	MetricProbeTotal   = "availmon.probe.total"
	MetricProbeLatency = "availmon.probe.latency_ms"
)

// Metrics records probe outcomes. It is safe for concurrent use.
type Metrics struct {
	total   metric.Int64Counter
	latency metric.Float64Histogram
}

// NewMetrics registers the probe instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	total, err := meter.Int64Counter(
		MetricProbeTotal,
		metric.WithDescription("Total number of probes by host and outcome"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram(
		MetricProbeLatency,
		metric.WithDescription("Probe latency in milliseconds, including the response body"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{total: total, latency: latency}, nil
}

// Record counts o and, when a response arrived, records its latency.
func (m *Metrics) Record(ctx context.Context, o probe.Outcome) {
	outcome := "healthy"
	if !o.Success {
		outcome = "unhealthy"
	}
	m.total.Add(ctx, 1, metric.WithAttributes(
		attribute.String("host", o.Host),
		attribute.String("outcome", outcome),
	))

	if o.StatusCode != 0 {
		m.latency.Record(ctx, o.LatencyMS(), metric.WithAttributes(
			attribute.String("host", o.Host),
		))
	}
}
