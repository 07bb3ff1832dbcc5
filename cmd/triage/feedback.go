package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikey/llm-mail-triage/internal/core"
)

var feedbackOpts struct {
	action   string
	sender   string
	category string
	keywords []string
	received string
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <message-id> <decision>",
	Short: "Record where a message should have gone",
	Long: `Record a correction for a triaged message. decision is one of
priority_inbox, regular_inbox, auto_archive or spam_folder.

The message must have been scored against the same store unless --sender
is given, in which case the message details are taken from the flags.

Examples:
  triage --store sqlite feedback abc@corp.com priority_inbox
  triage feedback m1 auto_archive --sender deals@shop.example --category promotions`,
	Args: cobra.ExactArgs(2),
	RunE: runFeedback,
}

func init() {
	f := feedbackCmd.Flags()
	f.StringVar(&feedbackOpts.action, "action", "cli", "user action that produced the correction")
	f.StringVar(&feedbackOpts.sender, "sender", "", "sender address of the message")
	f.StringVar(&feedbackOpts.category, "category", "", "category of the message")
	f.StringSliceVar(&feedbackOpts.keywords, "keyword", nil, "urgency keyword matched in the message (repeatable)")
	f.StringVar(&feedbackOpts.received, "received", "", "time the message was received (RFC 3339)")
}

func runFeedback(cmd *cobra.Command, args []string) error {
	req := core.FeedbackRequest{
		MessageID: args[0],
		Decision:  args[1],
		Action:    feedbackOpts.action,
	}

	if feedbackOpts.sender != "" {
		snap := &core.TriageSnapshot{
			Sender:          feedbackOpts.sender,
			MatchedKeywords: feedbackOpts.keywords,
		}
		if feedbackOpts.category != "" {
			c, ok := core.ParseCategory(feedbackOpts.category)
			if !ok {
				return fmt.Errorf("unknown category %q", feedbackOpts.category)
			}
			snap.Category = c
		}
		if feedbackOpts.received != "" {
			t, err := time.Parse(time.RFC3339, feedbackOpts.received)
			if err != nil {
				return fmt.Errorf("invalid --received: %w", err)
			}
			snap.ReceivedAt = t
		}
		req.Snapshot = snap
	}

	return withApp(cmd.Context(), func(a app) error {
		receipt, err := a.Service.RecordFeedback(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), receipt)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Recorded %s for %s (event %s)\n", receipt.Decision, receipt.MessageID, receipt.EventID)
		fmt.Fprintf(out, "Sender importance: %.4f -> %.4f\n", receipt.SenderBefore, receipt.SenderAfter)
		if len(receipt.Keywords) > 0 {
			fmt.Fprintf(out, "Keywords adjusted: %v\n", receipt.Keywords)
		}
		return nil
	})
}
