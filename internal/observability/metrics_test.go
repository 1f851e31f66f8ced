package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewMetricsRecordsAgainstNoopProviderWithoutError(t *testing.T) {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.RecordStepLatency(ctx, 0.001)
	m.RecordQueueDepth(ctx, "/cart/pos", 3)
	m.IncDrops(ctx, "/cart/pos", 2)
	m.SetSubscribers(ctx, 1)
}

func TestNewMetricsDefaultsToNoopProviderWhenNil(t *testing.T) {
	m, err := NewMetrics(nil)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordStepLatency(context.Background(), 0.5)
}

func TestNilMetricsRecordingsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordStepLatency(context.Background(), 1)
	m.RecordQueueDepth(context.Background(), "x", 1)
	m.IncDrops(context.Background(), "x", 1)
	m.SetSubscribers(context.Background(), 1)
}
