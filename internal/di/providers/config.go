// Package providers holds the samber/do constructors of the dsein server.
// Resources that need closing are wrapped in *Handle types implementing
// do.Shutdownable.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/dseinapp/dsein-server/internal/config"
	"github.com/dseinapp/dsein-server/internal/logger"
	"github.com/dseinapp/dsein-server/internal/metrics"
	"github.com/dseinapp/dsein-server/internal/validation"
)

// ProvideConfig resolves configuration from the process arguments.
func ProvideConfig(do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger builds the process logger: pretty output with source
// locations in development, JSON with redacted codes in production.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	env := cfg.App.Environment

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   env == "development",
		Environment: env,
	})
	log.Info("Starting dsein server", "environment", env, "store_driver", cfg.Store.Driver, "data_path", cfg.Store.DataPath)
	return log, nil
}

// ProvideMetrics provides the Prometheus collectors.
func ProvideMetrics(do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}

// ProvideValidator provides the request validator.
func ProvideValidator(do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}
