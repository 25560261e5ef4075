package observability

import (
	"github.com/smallbiznis/opsledger/internal/observability/logger"
	"github.com/smallbiznis/opsledger/internal/observability/metrics"
	"github.com/smallbiznis/opsledger/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the process logger, the tracer provider and the metric
// instruments. Each reads its settings from the shared Config.
var Module = fx.Module("observability",
	fx.Provide(
		NewConfig,
		func(c Config) logger.Config {
			return logger.Config{
				ServiceName: c.ServiceName,
				Environment: c.Environment,
				Version:     c.Version,
				Level:       c.LogLevel,
				Format:      c.LogFormat,
				Debug:       c.Debug(),
				Burst:       c.LogBurst,
				Thereafter:  100,
				Tick:        c.LogSampling,
			}
		},
		func(c Config) tracing.Config {
			return tracing.Config{
				Enabled:          c.OtelEnabled,
				ServiceName:      c.ServiceName,
				ServiceVersion:   c.Version,
				Environment:      c.Environment,
				ExporterEndpoint: c.OtelEndpoint,
				ExporterProtocol: c.OtelProtocol,
				SamplingRatio:    c.SamplingRatio,
			}
		},
		func(c Config) metrics.Config {
			return metrics.Config{
				Enabled:          c.OtelEnabled,
				ExporterEndpoint: c.OtelEndpoint,
				ExporterProtocol: c.OtelProtocol,
				ServiceName:      c.ServiceName,
				Environment:      c.Environment,
			}
		},
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.Jobs,
	),
	// The tracer provider has no consumer in the graph; requesting it here
	// installs the global provider at startup.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
