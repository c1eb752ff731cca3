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

// Metrics exposes application-level instruments.
type Metrics struct {
	donationsResolved   metric.Int64Counter
	donationsCreated    metric.Int64Counter
	notificationsSent   metric.Int64Counter
	aggregationFailures metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
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
		name = "donara"
	}
	meter := provider.Meter(name)

	donationsResolved, err := meter.Int64Counter("donara_donations_resolved_total")
	if err != nil {
		return nil, err
	}
	donationsCreated, err := meter.Int64Counter("donara_donations_created_total")
	if err != nil {
		return nil, err
	}
	notificationsSent, err := meter.Int64Counter("donara_notifications_sent_total")
	if err != nil {
		return nil, err
	}
	aggregationFailures, err := meter.Int64Counter("donara_gateway_aggregation_failures_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("donara_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		donationsResolved:   donationsResolved,
		donationsCreated:    donationsCreated,
		notificationsSent:   notificationsSent,
		aggregationFailures: aggregationFailures,
		rateLimitDenied:     rateLimitDenied,
	}, nil
}

// RecordResolution counts a resolve call by outcome (existing, created, failed).
func (m *Metrics) RecordResolution(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.donationsResolved.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDonationCreated counts persisted donations by source (gateway, manual).
func (m *Metrics) RecordDonationCreated(ctx context.Context, source string, live bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.Bool("livemode", live),
	)
	m.donationsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordNotification(ctx context.Context, notificationType string, delivered bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("type", strings.TrimSpace(notificationType)),
		attribute.Bool("delivered", delivered),
	)
	m.notificationsSent.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordAggregationFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.aggregationFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"operation":   {},
	"outcome":     {},
	"source":      {},
	"livemode":    {},
	"type":        {},
	"delivered":   {},
	"reason":      {},
	"endpoint":    {},
	"status_code": {},
	"route":       {},
	"method":      {},
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
