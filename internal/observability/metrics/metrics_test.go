package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("facility", "Helium Recovery"),
		attribute.String("product_usage_id", "456"),
		attribute.String("outcome", "success"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "facility" && attrs[1].Key != "facility" {
		t.Fatalf("expected facility to be retained")
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordBillingRecordCreated(context.Background(), "f", 10)
	m.RecordUsageOutcome(context.Background(), "f", "error", "allocation_error")
	m.RecordFinalizationError(context.Background(), "f", "basic")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "ifxbilling"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordBillingRecordCreated(context.Background(), "f", 100)
}
