package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/api"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/logging"
	"github.com/mikey/llm-mail-triage/internal/metrics"
)

// BuildContainer creates and configures a dependency injection container
// for the daemon. An empty configPath searches the default locations.
func BuildContainer(configPath string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return config.Load(configPath)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(metrics.NewMetrics); err != nil {
		return nil, err
	}
	if err := container.Provide(func(m *metrics.Metrics) core.Observer {
		return m
	}); err != nil {
		return nil, err
	}

	if err := provideTriage(container); err != nil {
		return nil, err
	}

	// Register API server
	if err := container.Provide(newAPIServer); err != nil {
		return nil, err
	}

	return container, nil
}

func newAPIServer(cfg *config.Config, logger *zap.Logger, svc *core.TriageService) *api.Server {
	apiCfg := cfg.GetAPI()
	handler := api.NewHandler(api.Deps{
		Service: svc,
		Logger:  logger,
		Token:   apiCfg.Token,
		PersistThresholds: func(t core.Thresholds) error {
			if err := cfg.SetThresholds(t); err != nil {
				return err
			}
			if cfg.GetViper().ConfigFileUsed() == "" {
				logger.Warn("No configuration file loaded, tuned thresholds are kept in memory only")
				return nil
			}
			path, err := cfg.Persist("")
			if err != nil {
				return err
			}
			logger.Info("Persisted thresholds", zap.String("file", path))
			return nil
		},
	})
	return api.NewServer(apiCfg.ListenAddress, handler, logger)
}
