package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics wraps the control runtime's OpenTelemetry instruments: step
// latency (C4), telemetry queue depth and drop counters (C6), and the
// fan-out subscriber gauge (C8). A *Metrics with nil instruments is valid
// and records nothing.
type Metrics struct {
	stepLatency metric.Float64Histogram
	queueDepth  metric.Int64Gauge
	drops       metric.Int64Counter
	subscribers metric.Int64Gauge
}

// NewMetrics builds the instrument set against the given meter provider.
// Passing a noop.NewMeterProvider() (the default when no OTLP endpoint is
// configured) yields a Metrics whose recordings are dropped cheaply by the
// SDK rather than by branching in this package.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter("controlrunner")

	stepLatency, err := meter.Float64Histogram("control.step.latency",
		metric.WithUnit("s"),
		metric.WithDescription("wall-clock duration of one graph step"))
	if err != nil {
		return nil, err
	}
	queueDepth, err := meter.Int64Gauge("telemetry.queue.depth",
		metric.WithDescription("current depth of a telemetry entry's bounded channel"))
	if err != nil {
		return nil, err
	}
	drops, err := meter.Int64Counter("telemetry.drops",
		metric.WithDescription("samples dropped by a non-blocking send to a full telemetry queue"))
	if err != nil {
		return nil, err
	}
	subscribers, err := meter.Int64Gauge("telemetry.subscribers",
		metric.WithDescription("active fan-out subscriber count"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		stepLatency: stepLatency,
		queueDepth:  queueDepth,
		drops:       drops,
		subscribers: subscribers,
	}, nil
}

// RecordStepLatency records how long a single Driver.Step call took.
func (m *Metrics) RecordStepLatency(ctx context.Context, seconds float64) {
	if m == nil || m.stepLatency == nil {
		return
	}
	m.stepLatency.Record(ctx, seconds)
}

// RecordQueueDepth records the current depth of a telemetry entry's queue.
func (m *Metrics) RecordQueueDepth(ctx context.Context, signalName string, depth int64) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.Record(ctx, depth, metric.WithAttributes(attribute.String("signal", signalName)))
}

// IncDrops adds delta to the drop counter for signalName.
func (m *Metrics) IncDrops(ctx context.Context, signalName string, delta int64) {
	if m == nil || m.drops == nil || delta == 0 {
		return
	}
	m.drops.Add(ctx, delta, metric.WithAttributes(attribute.String("signal", signalName)))
}

// SetSubscribers records the fan-out actor's current subscriber count.
func (m *Metrics) SetSubscribers(ctx context.Context, n int64) {
	if m == nil || m.subscribers == nil {
		return
	}
	m.subscribers.Record(ctx, n)
}
