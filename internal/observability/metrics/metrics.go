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
	revenuesConfirmed   metric.Int64Counter
	paymentsGenerated   metric.Int64Counter
	settlementsApplied  metric.Int64Counter
	codeRedemptions     metric.Int64Counter
	isolationViolations metric.Int64Counter
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
		name = "opsledger"
	}
	meter := provider.Meter(name)

	revenuesConfirmed, err := meter.Int64Counter("opsledger_revenues_confirmed_total")
	if err != nil {
		return nil, err
	}
	paymentsGenerated, err := meter.Int64Counter("opsledger_payments_generated_total")
	if err != nil {
		return nil, err
	}
	settlementsApplied, err := meter.Int64Counter("opsledger_settlements_applied_total")
	if err != nil {
		return nil, err
	}
	codeRedemptions, err := meter.Int64Counter("opsledger_access_code_redemptions_total")
	if err != nil {
		return nil, err
	}
	isolationViolations, err := meter.Int64Counter("opsledger_isolation_violations_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("opsledger_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		revenuesConfirmed:   revenuesConfirmed,
		paymentsGenerated:   paymentsGenerated,
		settlementsApplied:  settlementsApplied,
		codeRedemptions:     codeRedemptions,
		isolationViolations: isolationViolations,
		rateLimitDenied:     rateLimitDenied,
	}, nil
}

// RecordRevenueConfirmed counts a confirmation and the payments it generated.
func (m *Metrics) RecordRevenueConfirmed(ctx context.Context, companyID string, payments int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("company_id", strings.TrimSpace(companyID)))
	m.revenuesConfirmed.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.paymentsGenerated.Add(ctx, int64(payments), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordSettlement(ctx context.Context, companyID string, settled int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("company_id", strings.TrimSpace(companyID)))
	m.settlementsApplied.Add(ctx, int64(settled), metric.WithAttributes(attrs...))
}

// RecordRedemption counts redemption attempts by outcome (ok, not_found, already_used, ...).
func (m *Metrics) RecordRedemption(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.codeRedemptions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordIsolationViolation(ctx context.Context, table string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("table", strings.TrimSpace(table)))
	m.isolationViolations.Add(ctx, count, metric.WithAttributes(attrs...))
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
	"company_id":  {},
	"endpoint":    {},
	"status_code": {},
	"outcome":     {},
	"table":       {},
	"job":         {},
	"reason":      {},
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
