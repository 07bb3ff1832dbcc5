package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/logging"
)

// CLIFlags contains the global command line flags of the CLI application
type CLIFlags struct {
	ConfigFile string
	Provider   string
	Store      string
	DBPath     string
	Verbose    bool
	JSONLog    bool
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Info("Loaded configuration from file", zap.String("file", used))
		}
		applyFlags(cfg, flags)
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := provideTriage(container); err != nil {
		return nil, err
	}

	return container, nil
}

// applyFlags overrides configuration with the flags that were set
func applyFlags(cfg *config.Config, flags *CLIFlags) {
	cfg.Set("server.filter_type", "cli")
	cfg.Set("cli.verbose", flags.Verbose)
	// One-shot runs have no use for background cleanup
	cfg.Set("store.cleanup_frequency", "0s")

	if flags.Provider != "" {
		cfg.Set("spam.provider", flags.Provider)
	}
	if flags.Store != "" {
		cfg.Set("store.type", flags.Store)
	}
	if flags.DBPath != "" {
		cfg.Set("store.sqlite_path", flags.DBPath)
	}
}
