package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS triage_snapshots (
		message_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_expires_at ON triage_snapshots(expires_at)`,
	`CREATE TABLE IF NOT EXISTS learning_state (
		id INTEGER PRIMARY KEY,
		schema_version INTEGER NOT NULL,
		payload TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS priority_threads (
		thread_id TEXT PRIMARY KEY,
		marked_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS spam_verdicts (
		sender_email TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_verdicts_expires_at ON spam_verdicts(expires_at)`,
}

// SQLiteStore is a SQLite implementation of the triage repositories
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens (and if needed creates) a SQLite store
func NewSQLiteStore(dbPath string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	base, err := newSQLStore(db, "sqlite", sqliteSchema, logger, cleanupFreq)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{sqlStore: base}, nil
}
