package ports

import (
	"context"

	"github.com/mikey/llm-mail-triage/internal/core"
)

// Runner is a long-running component started and stopped by the daemon
type Runner interface {
	// Start starts the component without blocking
	Start() error

	// Stop stops the component
	Stop() error
}

// EmailFilter defines the interface for email filtering
type EmailFilter interface {
	Runner

	// ProcessEmail triages a message and returns the annotated result
	ProcessEmail(ctx context.Context, msg *core.Message) (*core.TriagedMessage, error)
}
