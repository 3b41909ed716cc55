package observability

import (
	"strings"

	"github.com/digiurban/billing/internal/config"
)

const defaultServiceName = "digiurban-billing"

// Config is the observability slice of the application config, normalised.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	environment := obs.DeploymentEnv
	if environment == "" {
		environment = strings.TrimSpace(cfg.Environment)
	}

	sampling := obs.OtelSampling
	switch {
	case sampling < 0:
		sampling = 0
	case sampling > 1:
		sampling = 1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          environment,
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             orDefault(obs.LogLevel, "info"),
		LogFormat:            orDefault(obs.LogFormat, "json"),
		OtelEnabled:          obs.OtelEnabled,
		OtelExporterEndpoint: obs.OtelEndpoint,
		OtelExporterProtocol: orDefault(obs.OtelProtocol, "grpc"),
		OtelSamplingRatio:    sampling,
	}
}

// Debug turns on verbose request logging and stack traces.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func orDefault(value, def string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return def
}
