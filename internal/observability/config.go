package observability

import (
	"strings"

	"github.com/smallbiznis/lms/internal/config"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Config is the normalized telemetry view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	TracingEnabled   bool
	MetricsEnabled   bool
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	tel := cfg.Telemetry

	out := Config{
		ServiceName:      strings.TrimSpace(cfg.AppName),
		Environment:      strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:          strings.TrimSpace(cfg.AppVersion),
		LogLevel:         strings.ToLower(strings.TrimSpace(tel.LogLevel)),
		LogFormat:        strings.ToLower(strings.TrimSpace(tel.LogFormat)),
		TracingEnabled:   tel.TracingEnabled,
		MetricsEnabled:   tel.MetricsEnabled,
		ExporterEndpoint: strings.TrimSpace(tel.OTLPEndpoint),
		ExporterProtocol: normalizeProtocol(tel.OTLPProtocol),
		SamplingRatio:    clampRatio(tel.SamplingRatio),
	}
	if out.ServiceName == "" {
		out.ServiceName = "lms"
	}
	if out.LogLevel == "" {
		out.LogLevel = "info"
	}
	if out.LogFormat != "console" {
		out.LogFormat = "json"
	}
	// Nothing to export to.
	if out.ExporterEndpoint == "" {
		out.TracingEnabled = false
		out.MetricsEnabled = false
	}
	return out
}

// Debug turns on console-friendly logging and stack traces. Production never
// runs in debug mode, whatever the log level says.
func (c Config) Debug() bool {
	if c.Environment == config.EnvProduction {
		return false
	}
	if c.LogLevel == "debug" {
		return true
	}
	switch c.Environment {
	case "dev", config.EnvDevelopment, "local", "test":
		return true
	default:
		return false
	}
}

func normalizeProtocol(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case ProtocolHTTP, "http/protobuf":
		return ProtocolHTTP
	default:
		return ProtocolGRPC
	}
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}
