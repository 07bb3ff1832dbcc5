package store

import (
	"github.com/mikey/llm-mail-triage/internal/core"
)

// Store bundles the repositories backing a triage service
type Store interface {
	core.SnapshotRepository
	core.LearningRepository
	core.ThreadHistory
	core.VerdictCache

	// Stop stops background cleanup and releases resources
	Stop()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MySQLStore)(nil)
)
