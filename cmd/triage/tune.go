package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Change and persist the decision thresholds",
	Long: `Change the priority and archive thresholds and write them to the
configuration file. Omitted thresholds keep their current value.

Examples:
  triage tune --priority 0.8
  triage --config /etc/llm-mail-triage/config.yaml tune --archive 0.2`,
	Args: cobra.NoArgs,
	RunE: runTune,
}

func init() {
	tuneCmd.Flags().Float64("priority", core.DefaultPriorityThreshold, "priority threshold in [0,1]")
	tuneCmd.Flags().Float64("archive", core.DefaultArchiveThreshold, "archive threshold in [0,1]")
}

func runTune(cmd *cobra.Command, _ []string) error {
	// A fresh config so CLI overrides are not written back
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return err
	}
	current, err := cfg.GetThresholds(nil)
	if err != nil {
		current = core.DefaultThresholds()
	}

	next := current
	if cmd.Flags().Changed("priority") {
		next.Priority, _ = cmd.Flags().GetFloat64("priority")
	}
	if cmd.Flags().Changed("archive") {
		next.Archive, _ = cmd.Flags().GetFloat64("archive")
	}
	if err := cfg.SetThresholds(next); err != nil {
		return err
	}

	path, err := cfg.Persist(flags.ConfigFile)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), next)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Thresholds: priority %.2f, archive %.2f (was %.2f, %.2f), saved to %s\n",
		next.Priority, next.Archive, current.Priority, current.Archive, path)
	return nil
}
