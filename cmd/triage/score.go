package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mikey/llm-mail-triage/internal/adapters/filter"
	"github.com/mikey/llm-mail-triage/internal/core"
)

var scoreCmd = &cobra.Command{
	Use:   "score [file...]",
	Short: "Triage messages from .eml or JSON files",
	Long: `Triage one or more messages. Each argument is a raw RFC 5322 message
(.eml) or a JSON message object or array. With no arguments, or "-", the
input is read from stdin. More than one message is processed as a batch.

Examples:
  triage score message.eml
  triage --store sqlite score --json inbox.json
  cat message.eml | triage score`,
	RunE: runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{"-"}
	}

	var msgs []core.Message
	for _, arg := range args {
		raw, err := readInput(cmd.InOrStdin(), arg)
		if err != nil {
			return err
		}
		parsed, err := parseInput(raw)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", arg, err)
		}
		msgs = append(msgs, parsed...)
	}
	if len(msgs) == 0 {
		return fmt.Errorf("no messages to score")
	}

	return withApp(cmd.Context(), func(a app) error {
		out := cmd.OutOrStdout()
		cli := filter.NewCliFilter(a.Service, a.Logger, a.TextProcessor, out, flags.Verbose)

		if len(msgs) == 1 {
			if jsonOutput {
				result, err := a.Service.TriageMessage(cmd.Context(), &msgs[0], a.Service.Thresholds())
				if err != nil {
					return err
				}
				return printJSON(out, result)
			}
			_, err := cli.ProcessEmail(cmd.Context(), &msgs[0])
			return err
		}

		result, err := a.Service.ProcessBatch(cmd.Context(), msgs, a.Service.Thresholds())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, result)
		}
		cli.PrintBatch(result)
		return nil
	})
}

func readInput(stdin io.Reader, arg string) ([]byte, error) {
	if arg == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", arg, err)
	}
	return raw, nil
}

// parseInput accepts a JSON message, a JSON array of messages or a raw email
func parseInput(raw []byte) ([]core.Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	switch trimmed[0] {
	case '[':
		var msgs []core.Message
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, err
		}
		return msgs, nil
	case '{':
		var msg core.Message
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return nil, err
		}
		return []core.Message{msg}, nil
	}

	msg, err := filter.ParseMessage(raw, "")
	if err != nil {
		return nil, err
	}
	return []core.Message{*msg}, nil
}
