package metrics

import (
	"context"
	"errors"
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
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 10 * time.Second

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

func (c Config) meterName() string {
	if name := strings.TrimSpace(c.ServiceName); name != "" {
		return name
	}
	return "lms"
}

// Metrics holds the enrollment workflow instruments. A nil *Metrics records
// nothing, so callers never need to check for it.
type Metrics struct {
	enrollmentOutcomes  metric.Int64Counter
	gatewayCalls        metric.Int64Counter
	gatewayDuration     metric.Float64Histogram
	notifications       metric.Int64Counter
	reconciliationItems metric.Int64Counter
	rateLimitAllowed    metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
}

// NewProvider registers the global meter provider. Without export enabled it
// is a noop provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.meterName()),
			attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
		)),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("flushing meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}
	log.Info("metrics export enabled",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
		zap.Duration("interval", exportInterval),
	)
	return provider, nil
}

// New creates the domain instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(cfg.meterName())

	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	m := &Metrics{
		enrollmentOutcomes:  counter("lms_enrollment_outcomes_total", "Enrollment attempts by flow and outcome."),
		gatewayCalls:        counter("lms_payment_gateway_calls_total", "Payment gateway calls by provider, operation and outcome."),
		notifications:       counter("lms_notifications_total", "Enrollment notifications by delivery outcome."),
		reconciliationItems: counter("lms_reconciliation_items_total", "Captured payments queued for manual reconciliation."),
		rateLimitAllowed:    counter("lms_rate_limit_allowed_total", "Enrollment requests admitted by the rate limiter."),
		rateLimitDenied:     counter("lms_rate_limit_denied_total", "Enrollment requests rejected by the rate limiter."),
	}
	hist, err := meter.Float64Histogram("lms_payment_gateway_duration_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("Payment gateway call latency."),
	)
	errs = append(errs, err)
	m.gatewayDuration = hist

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	return m, nil
}

func (m *Metrics) inc(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if m == nil || c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

// RecordEnrollmentOutcome counts workflow results by flow and outcome.
func (m *Metrics) RecordEnrollmentOutcome(ctx context.Context, flow, outcome string) {
	if m == nil {
		return
	}
	m.inc(ctx, m.enrollmentOutcomes, label("flow", flow), label("outcome", outcome))
}

// RecordGatewayCall counts a gateway call and records its latency.
func (m *Metrics) RecordGatewayCall(ctx context.Context, provider, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inc(ctx, m.gatewayCalls, label("provider", provider), label("operation", operation), label("outcome", outcome))
	m.gatewayDuration.Record(ctx, float64(elapsed.Microseconds())/1000,
		metric.WithAttributes(label("provider", provider), label("operation", operation)))
}

func (m *Metrics) RecordNotification(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.inc(ctx, m.notifications, label("outcome", outcome))
}

func (m *Metrics) RecordReconciliationItem(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.inc(ctx, m.reconciliationItems, label("reason", reason))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.inc(ctx, m.rateLimitAllowed, label("endpoint", endpoint))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.inc(ctx, m.rateLimitDenied, label("endpoint", endpoint), label("reason", reason))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch p := strings.ToLower(strings.TrimSpace(protocol)); p {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", p)
	}
}

// Label keys that may reach an exporter. Anything else (ids, emails,
// references) would blow up series cardinality.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"flow":        {},
	"outcome":     {},
	"provider":    {},
	"operation":   {},
	"reason":      {},
	"endpoint":    {},
	"method":      {},
	"status_code": {},
}

// FilterAttributes drops any attribute whose key is not allowlisted.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
