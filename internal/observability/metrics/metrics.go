package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes billing engine instruments.
type Metrics struct {
	recordsCreated     metric.Int64Counter
	usageOutcomes      metric.Int64Counter
	finalizationErrors metric.Int64Counter
	chargeTotal        metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "ifxbilling"
	}
	meter := provider.Meter(name)

	recordsCreated, err := meter.Int64Counter("ifxbilling_billing_records_created_total")
	if err != nil {
		return nil, err
	}
	usageOutcomes, err := meter.Int64Counter("ifxbilling_usage_outcomes_total")
	if err != nil {
		return nil, err
	}
	finalizationErrors, err := meter.Int64Counter("ifxbilling_finalization_errors_total")
	if err != nil {
		return nil, err
	}
	chargeTotal, err := meter.Int64Counter("ifxbilling_charge_minor_units_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		recordsCreated:     recordsCreated,
		usageOutcomes:      usageOutcomes,
		finalizationErrors: finalizationErrors,
		chargeTotal:        chargeTotal,
	}, nil
}

// RecordBillingRecordCreated counts a created billing record and its charge.
func (m *Metrics) RecordBillingRecordCreated(ctx context.Context, facility string, charge int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("facility", strings.TrimSpace(facility)))
	m.recordsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
	if charge > 0 {
		m.chargeTotal.Add(ctx, charge, metric.WithAttributes(attrs...))
	}
}

// RecordUsageOutcome counts one usage record by outcome (success, skipped, error).
func (m *Metrics) RecordUsageOutcome(ctx context.Context, facility, outcome, errorCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("facility", strings.TrimSpace(facility)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
		attribute.String("error_code", strings.TrimSpace(errorCode)),
	)
	m.usageOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFinalizationError counts a failed finalization hook.
func (m *Metrics) RecordFinalizationError(ctx context.Context, facility, calculator string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("facility", strings.TrimSpace(facility)),
		attribute.String("calculator", strings.TrimSpace(calculator)),
	)
	m.finalizationErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"facility":   {},
	"outcome":    {},
	"error_code": {},
	"calculator": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
