package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/cobranza/internal/config"
	"github.com/smallbiznis/cobranza/internal/observability/logger"
	"github.com/smallbiznis/cobranza/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideLoggerConfig,
		logger.New,
		provideBillingMetrics,
	),
)

func provideLoggerConfig(cfg config.Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.AppName,
		Environment:         cfg.Environment,
		Version:             cfg.AppVersion,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Environment != "production",
	}
}

func provideBillingMetrics() *metrics.BillingMetrics {
	return metrics.New(prometheus.DefaultRegisterer)
}
