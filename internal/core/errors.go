package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for messages that cannot be triaged
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidConfiguration is returned for out-of-range thresholds or weights
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrLearningState is returned when persisted learning state cannot be used
	ErrLearningState = errors.New("learning state unavailable")
	// ErrInvalidFeedback is returned when a feedback event fails validation
	ErrInvalidFeedback = errors.New("invalid feedback")
	// ErrUnknownMessage is returned when feedback references a message that was never triaged
	ErrUnknownMessage = errors.New("unknown message")
	// ErrNotFound is returned by repositories when an entry does not exist
	ErrNotFound = errors.New("not found")
)

// InputError describes a malformed message.
// Position is the 1-based position within a batch, or 0 for a single message.
type InputError struct {
	Position  int
	MessageID string
	Reason    string
}

func (e *InputError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("invalid message at position %d: %s", e.Position, e.Reason)
	}
	return fmt.Sprintf("invalid message: %s", e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// ConfigurationError describes a rejected configuration value
type ConfigurationError struct {
	Field string
	Value float64
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s must be within [0,1], got %v", e.Field, e.Value)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfiguration }

// LearningStateError wraps a failure to load or decode learning state
type LearningStateError struct {
	Op  string
	Err error
}

func (e *LearningStateError) Error() string {
	return fmt.Sprintf("learning state %s: %v", e.Op, e.Err)
}

func (e *LearningStateError) Unwrap() []error { return []error{ErrLearningState, e.Err} }

// FeedbackValidationError explains why a feedback event was rejected
type FeedbackValidationError struct {
	MessageID string
	Value     string
	Reason    string
}

func (e *FeedbackValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid feedback for message %q: %s %q", e.MessageID, e.Reason, e.Value)
	}
	return fmt.Sprintf("invalid feedback for message %q: %s", e.MessageID, e.Reason)
}

func (e *FeedbackValidationError) Unwrap() error { return ErrInvalidFeedback }
