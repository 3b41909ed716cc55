package observability

import (
	"github.com/digiurban/billing/internal/observability/logger"
	"github.com/digiurban/billing/internal/observability/metrics"
	"github.com/digiurban/billing/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the zap logger, the tracer provider and the prometheus
// collectors shared by the API and the scheduler.
var Module = fx.Module("observability",
	fx.Provide(LoadConfig),
	fx.Provide(
		func(cfg Config) logger.Config {
			return logger.Config{
				ServiceName: cfg.ServiceName,
				Environment: cfg.Environment,
				Version:     cfg.Version,
				Level:       cfg.LogLevel,
				Format:      cfg.LogFormat,
				Debug:       cfg.Debug(),
			}
		},
		func(cfg Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.OtelEnabled,
				ServiceName:      cfg.ServiceName,
				ServiceVersion:   cfg.Version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.OtelExporterEndpoint,
				ExporterProtocol: cfg.OtelExporterProtocol,
				SamplingRatio:    cfg.OtelSamplingRatio,
			}
		},
		func(cfg Config) metrics.Config {
			return metrics.Config{ServiceName: cfg.ServiceName, Environment: cfg.Environment}
		},
	),
	fx.Provide(logger.New, tracing.NewProvider, metrics.New, metrics.NewHTTPMetrics),
	fx.Invoke(announce),
)

// announce forces the tracer provider and the scheduler collectors into the
// graph even when nothing else depends on them.
func announce(log *zap.Logger, cfg Config, _ *sdktrace.TracerProvider, metricsCfg metrics.Config) {
	metrics.SchedulerWithConfig(metricsCfg)
	log.Info("observability ready",
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("tracing", cfg.OtelEnabled),
		zap.Float64("trace_sampling", cfg.OtelSamplingRatio),
	)
}
