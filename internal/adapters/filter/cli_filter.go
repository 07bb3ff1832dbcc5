package filter

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/utils"
	"go.uber.org/zap"
)

// CliFilter triages messages handed to it on the command line and prints
// a human readable report
type CliFilter struct {
	triager Triager
	logger  *zap.Logger
	tp      *utils.TextProcessor
	out     io.Writer
	verbose bool
}

// NewCliFilter creates a new CLI filter writing to out, or stdout when out is nil
func NewCliFilter(triager Triager, logger *zap.Logger, tp *utils.TextProcessor, out io.Writer, verbose bool) *CliFilter {
	if out == nil {
		out = os.Stdout
	}
	return &CliFilter{
		triager: triager,
		logger:  logger,
		tp:      tp,
		out:     out,
		verbose: verbose,
	}
}

// ProcessEmail triages a message and prints the results
func (f *CliFilter) ProcessEmail(ctx context.Context, msg *core.Message) (*core.TriagedMessage, error) {
	f.logger.Debug("Processing email", zap.String("message_id", msg.ID), zap.String("sender", msg.From.Email))

	fmt.Fprintf(f.out, "\n=== Email Summary ===\n")
	fmt.Fprintf(f.out, "ID: %s\n", msg.ID)
	fmt.Fprintf(f.out, "From: %s\n", msg.From.Email)
	fmt.Fprintf(f.out, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(f.out, "Category: %s\n", msg.Category)
	fmt.Fprintf(f.out, "Body length: %d bytes\n", len(msg.Body))
	if f.verbose {
		fmt.Fprintf(f.out, "\nBody preview:\n%s\n", f.tp.ProcessText(msg.Body, 500))
	}

	start := time.Now()
	result, err := f.triager.TriageMessage(ctx, msg, f.triager.Thresholds())
	if err != nil {
		f.logger.Error("Failed to triage email", zap.Error(err))
		fmt.Fprintf(f.out, "Error: %v\n", err)
		return nil, err
	}
	f.PrintResult(result, time.Since(start))

	return result, nil
}

// PrintResult writes the report for one triaged message
func (f *CliFilter) PrintResult(result *core.TriagedMessage, duration time.Duration) {
	fmt.Fprintf(f.out, "\n=== Results ===\n")
	fmt.Fprintf(f.out, "Decision: %s\n", result.Decision)
	fmt.Fprintf(f.out, "Attention score: %.4f\n", result.Attention.Score)
	fmt.Fprintf(f.out, "Explanation: %s\n", result.Attention.Explanation)
	fmt.Fprintf(f.out, "Spam: %t (score %.4f, model %s)\n", result.Spam.IsSpam, result.Spam.Score, result.Spam.ModelUsed)

	if f.verbose {
		names := make([]string, 0, len(result.Attention.Factors))
		for name := range result.Attention.Factors {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(f.out, "Factors:\n")
		for _, name := range names {
			fmt.Fprintf(f.out, "  %-10s %.4f\n", name, result.Attention.Factors[name])
		}
	}
	if duration > 0 {
		fmt.Fprintf(f.out, "Processing time: %v\n", duration)
	}
}

// PrintBatch writes a per-queue summary of a batch result
func (f *CliFilter) PrintBatch(result *core.BatchResult) {
	fmt.Fprintf(f.out, "\n=== Batch %s ===\n", result.BatchID)
	for _, d := range core.Decisions {
		queue := result.Queue(d)
		fmt.Fprintf(f.out, "%s (%d)\n", d, len(queue))
		for _, t := range queue {
			fmt.Fprintf(f.out, "  %.2f  %-30s  %s\n", t.Attention.Score, t.Message.From.Email, t.Message.Subject)
		}
	}
	fmt.Fprintf(f.out, "Total: %d, average score: %.4f\n", result.Stats.Total, result.Stats.AverageScore)
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
