package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "decisiongate"

// Metrics holds all decision routing metric instruments. A nil *Metrics is
// valid and records nothing, so tests can pass nil.
type Metrics struct {
	DecisionsRouted metric.Int64Counter
	Approvals       metric.Int64Counter
	Rejections      metric.Int64Counter
	Expiries        metric.Int64Counter
	RouteDuration   metric.Float64Histogram
	Confidence      metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.DecisionsRouted, err = meter.Int64Counter("decisiongate.decisions.routed",
		metric.WithDescription("Decisions routed, by outcome"))
	if err != nil {
		return nil, err
	}

	m.Approvals, err = meter.Int64Counter("decisiongate.approvals",
		metric.WithDescription("Pending decisions approved by a human"))
	if err != nil {
		return nil, err
	}

	m.Rejections, err = meter.Int64Counter("decisiongate.rejections",
		metric.WithDescription("Pending decisions rejected by a human"))
	if err != nil {
		return nil, err
	}

	m.Expiries, err = meter.Int64Counter("decisiongate.expiries",
		metric.WithDescription("Pending decisions expired by the sweep"))
	if err != nil {
		return nil, err
	}

	m.RouteDuration, err = meter.Float64Histogram("decisiongate.route.duration_seconds",
		metric.WithDescription("Route call duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.Confidence, err = meter.Float64Histogram("decisiongate.confidence",
		metric.WithDescription("Confidence score distribution of routed decisions"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRouted records a completed route call.
func (m *Metrics) RecordRouted(ctx context.Context, outcome string, confidence float64, dur time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.DecisionsRouted.Add(ctx, 1, attrs)
	m.Confidence.Record(ctx, confidence, attrs)
	m.RouteDuration.Record(ctx, dur.Seconds(), attrs)
}

// RecordResolution records a human or sweep resolution of a pending decision.
func (m *Metrics) RecordResolution(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	switch outcome {
	case "approved":
		m.Approvals.Add(ctx, 1)
	case "rejected":
		m.Rejections.Add(ctx, 1)
	case "expired":
		m.Expiries.Add(ctx, 1)
	}
}
