package core

import (
	"context"
	"time"
)

// SpamClassifier decides whether a message is spam
type SpamClassifier interface {
	// Classify analyzes a message and returns a spam verdict
	Classify(ctx context.Context, msg *Message) (*SpamVerdict, error)
}

// ThreadHistory records threads the user has replied to or marked as priority
type ThreadHistory interface {
	// HasPriorityReply reports whether the thread was previously replied to or prioritized
	HasPriorityReply(ctx context.Context, threadID string) (bool, error)

	// MarkPriority records the thread as one the user cares about
	MarkPriority(ctx context.Context, threadID string) error
}

// LearningRepository persists learning state snapshots
type LearningRepository interface {
	// Load returns the last saved state, or ErrNotFound if none was saved
	Load(ctx context.Context) (*LearningState, error)

	// Save stores a full snapshot of the state
	Save(ctx context.Context, state *LearningState) error
}

// SnapshotRepository remembers triage snapshots keyed by message id
type SnapshotRepository interface {
	// Get retrieves an unexpired snapshot, or ErrNotFound
	Get(ctx context.Context, messageID string) (*TriageSnapshot, error)

	// Set stores a snapshot
	Set(ctx context.Context, snapshot *TriageSnapshot) error

	// Delete removes a snapshot
	Delete(ctx context.Context, messageID string) error

	// Cleanup removes expired snapshots
	Cleanup(ctx context.Context) error
}

// VerdictCache caches spam verdicts per sender
type VerdictCache interface {
	// GetVerdict retrieves an unexpired verdict, or ErrNotFound
	GetVerdict(ctx context.Context, sender string) (*SpamVerdict, error)

	// SetVerdict stores a verdict for ttl
	SetVerdict(ctx context.Context, sender string, verdict *SpamVerdict, ttl time.Duration) error
}
