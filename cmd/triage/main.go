package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/store"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/di"
	"github.com/mikey/llm-mail-triage/internal/factory"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

var (
	flags      di.CLIFlags
	jsonOutput bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Score, route and teach the email triage engine",
	Long: `triage scores messages for attention, routes them into priority,
regular, archive and spam queues and learns from corrections.

Learning state and triage snapshots live in the configured store; use
--store sqlite so that feedback can refer to messages scored earlier.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.ConfigFile, "config", "", "path to config file")
	pf.StringVar(&flags.Provider, "provider", "", "spam provider (heuristic, bedrock, gemini, openai)")
	pf.StringVar(&flags.Store, "store", "", "store type (memory, sqlite, mysql)")
	pf.StringVar(&flags.DBPath, "db", "", "SQLite database path")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose output and debug logging")
	pf.BoolVar(&flags.JSONLog, "json-log", false, "output logs in JSON format")
	pf.BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(scoreCmd, feedbackCmd, insightsCmd, statsCmd, exportCmd, tuneCmd)
}

// app holds what a command needs from the container
type app struct {
	dig.In

	Logger        *zap.Logger
	Service       *core.TriageService
	Store         store.Store
	Classifiers   *factory.ClassifierFactory
	TextProcessor *utils.TextProcessor
}

// withApp builds the container, loads learning state and runs fn
func withApp(ctx context.Context, fn func(a app) error) error {
	container, err := di.BuildCLIContainer(&flags)
	if err != nil {
		return err
	}
	return container.Invoke(func(a app) error {
		defer a.Logger.Sync()
		defer a.Store.Stop()
		defer a.Classifiers.Close()

		if err := a.Service.LoadLearningState(ctx); err != nil && !errors.Is(err, core.ErrLearningState) {
			return err
		}
		return fn(a)
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show what has been learned from feedback",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		topN, _ := cmd.Flags().GetInt("top")
		return withApp(cmd.Context(), func(a app) error {
			return printJSON(cmd.OutOrStdout(), a.Service.Insights(topN))
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learning statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a app) error {
			return printJSON(cmd.OutOrStdout(), a.Service.Stats())
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump the learning state, including recent feedback, as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		output, _ := cmd.Flags().GetString("output")
		return withApp(cmd.Context(), func(a app) error {
			if output == "" || output == "-" {
				return printJSON(cmd.OutOrStdout(), a.Service.Export())
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			if err := printJSON(f, a.Service.Export()); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		})
	},
}

func init() {
	insightsCmd.Flags().Int("top", 0, "number of senders and keywords to show (default from config)")
	exportCmd.Flags().StringP("output", "o", "", "write the export to this file instead of stdout")
}
