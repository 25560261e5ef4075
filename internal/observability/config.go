package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/opsledger/internal/config"
	"github.com/spf13/viper"
)

// Config is the observability view of the process configuration. The
// standard OTEL_* variables override the application's OTLP settings so a
// collector sidecar can be configured without touching app env.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel    string
	LogFormat   string
	LogBurst    int
	LogSampling time.Duration

	OtelEnabled   bool
	OtelEndpoint  string
	OtelProtocol  string
	SamplingRatio float64
}

func NewConfig(app config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DEPLOYMENT_ENV", app.Environment)
	v.SetDefault("SERVICE_VERSION", app.AppVersion)
	v.SetDefault("LOG_LEVEL", app.LogLevel)
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_SAMPLING_BURST", 100)
	v.SetDefault("LOG_SAMPLING_TICK", time.Second)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", app.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", app.OTLPProtocol)
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)

	cfg := Config{
		ServiceName:   strings.TrimSpace(app.AppName),
		Environment:   strings.TrimSpace(v.GetString("DEPLOYMENT_ENV")),
		Version:       strings.TrimSpace(v.GetString("SERVICE_VERSION")),
		LogLevel:      lower(v.GetString("LOG_LEVEL")),
		LogFormat:     lower(v.GetString("LOG_FORMAT")),
		LogBurst:      v.GetInt("LOG_SAMPLING_BURST"),
		LogSampling:   v.GetDuration("LOG_SAMPLING_TICK"),
		OtelEndpoint:  strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelProtocol:  lower(v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL")),
		SamplingRatio: v.GetFloat64("OTEL_SAMPLING_RATIO"),
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "opsledger"
	}
	if traces := lower(v.GetString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		cfg.OtelProtocol = traces
	}
	// Exporters stay off unless a collector endpoint is known.
	v.SetDefault("OTEL_ENABLED", cfg.OtelEndpoint != "")
	cfg.OtelEnabled = v.GetBool("OTEL_ENABLED")
	return cfg
}

// Debug is true for debug logging or any non-shared environment.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
