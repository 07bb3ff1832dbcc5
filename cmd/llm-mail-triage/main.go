package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/api"
	"github.com/mikey/llm-mail-triage/internal/adapters/store"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/di"
	"github.com/mikey/llm-mail-triage/internal/factory"
	"github.com/mikey/llm-mail-triage/internal/ports"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "llm-mail-triage",
	Short: "Email triage daemon",
	Long: `llm-mail-triage runs as a Postfix content filter. Every message is scored
for attention, checked for spam and stamped with the queue it belongs to.
An HTTP API exposes batch triage, feedback and learning insights.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		container, err := di.BuildContainer(configPath)
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}
		if err := container.Invoke(run); err != nil {
			fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: search standard locations)")
}

type daemon struct {
	dig.In

	Config      *config.Config
	Logger      *zap.Logger
	Service     *core.TriageService
	EmailFilter ports.EmailFilter
	API         *api.Server
	Store       store.Store
	Classifiers *factory.ClassifierFactory
}

// run is the main application function that gets all dependencies injected
func run(d daemon) error {
	logger := d.Logger
	defer logger.Sync()

	ctx := context.Background()
	if err := d.Service.LoadLearningState(ctx); err != nil && !errors.Is(err, core.ErrLearningState) {
		return err
	}

	runners := []ports.Runner{d.EmailFilter}
	if d.Config.GetAPI().Enabled {
		runners = append(runners, d.API)
	}
	for i, r := range runners {
		if err := r.Start(); err != nil {
			logger.Error("Failed to start component", zap.Error(err))
			for _, started := range runners[:i] {
				started.Stop()
			}
			return err
		}
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	for i := len(runners) - 1; i >= 0; i-- {
		if err := runners[i].Stop(); err != nil {
			logger.Error("Failed to stop component", zap.Error(err))
		}
	}

	if err := d.Service.SaveLearningState(ctx); err != nil {
		logger.Error("Failed to save learning state on shutdown", zap.Error(err))
	}
	if err := d.Classifiers.Close(); err != nil {
		logger.Error("Failed to close spam classifier", zap.Error(err))
	}
	d.Store.Stop()

	logger.Info("Shutdown complete")
	return nil
}
