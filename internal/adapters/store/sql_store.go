package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

// learningStateRow is the id of the single learning state row
const learningStateRow = 1

// sqlStore implements the triage repositories on top of database/sql.
// The SQLite and MySQL stores differ only in driver and schema.
type sqlStore struct {
	db          *sql.DB
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
	name        string
}

func newSQLStore(db *sql.DB, name string, schema []string, logger *zap.Logger, cleanupFreq time.Duration) (*sqlStore, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s schema: %w", name, err)
		}
	}

	s := &sqlStore{
		db:          db,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
		name:        name,
	}

	// Start background cleanup
	if cleanupFreq > 0 {
		go s.startCleanupTask()
	}

	return s, nil
}

// expiry converts an expiry time to a column value; 0 never expires
func expiry(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// Get retrieves an unexpired triage snapshot
func (s *sqlStore) Get(ctx context.Context, messageID string) (*core.TriageSnapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload
		FROM triage_snapshots
		WHERE message_id = ? AND (expires_at = 0 OR expires_at > ?)
	`, messageID, s.now().Unix()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	var snap core.TriageSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", messageID, err)
	}
	return &snap, nil
}

// Set stores a triage snapshot
func (s *sqlStore) Set(ctx context.Context, snap *core.TriageSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		REPLACE INTO triage_snapshots (message_id, payload, expires_at)
		VALUES (?, ?, ?)
	`, snap.MessageID, string(payload), expiry(snap.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Delete removes a triage snapshot
func (s *sqlStore) Delete(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM triage_snapshots WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Cleanup removes expired snapshots and spam verdicts
func (s *sqlStore) Cleanup(ctx context.Context) error {
	now := s.now().Unix()
	var total int64
	for _, table := range []string{"triage_snapshots", "spam_verdicts"} {
		result, err := s.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE expires_at > 0 AND expires_at <= ?", now)
		if err != nil {
			return fmt.Errorf("failed to clean up %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
			continue
		}
		total += n
	}
	s.logger.Debug("Cleaned up expired entries", zap.String("store", s.name), zap.Int64("expired_count", total))
	return nil
}

// Load returns the persisted learning state
func (s *sqlStore) Load(ctx context.Context) (*core.LearningState, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM learning_state WHERE id = ?`, learningStateRow).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, &core.LearningStateError{Op: "load", Err: err}
	}
	return core.DecodeLearningState([]byte(payload))
}

// Save persists the learning state, replacing the previous snapshot
func (s *sqlStore) Save(ctx context.Context, state *core.LearningState) error {
	payload, err := core.EncodeLearningState(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		REPLACE INTO learning_state (id, schema_version, payload, updated_at)
		VALUES (?, ?, ?, ?)
	`, learningStateRow, core.LearningSchemaVersion, string(payload), s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save learning state: %w", err)
	}
	return nil
}

// HasPriorityReply reports whether the thread was marked as priority
func (s *sqlStore) HasPriorityReply(ctx context.Context, threadID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM priority_threads WHERE thread_id = ?`, threadID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query thread history: %w", err)
	}
	return n > 0, nil
}

// MarkPriority records the thread as priority
func (s *sqlStore) MarkPriority(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `
		REPLACE INTO priority_threads (thread_id, marked_at)
		VALUES (?, ?)
	`, threadID, s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to mark thread: %w", err)
	}
	return nil
}

// GetVerdict retrieves a cached spam verdict for a sender
func (s *sqlStore) GetVerdict(ctx context.Context, sender string) (*core.SpamVerdict, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload
		FROM spam_verdicts
		WHERE sender_email = ? AND expires_at > ?
	`, sender, s.now().Unix()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query verdict cache: %w", err)
	}

	var v core.SpamVerdict
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("failed to decode cached verdict: %w", err)
	}
	return &v, nil
}

// SetVerdict caches a spam verdict for a sender
func (s *sqlStore) SetVerdict(ctx context.Context, sender string, v *core.SpamVerdict, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		REPLACE INTO spam_verdicts (sender_email, payload, expires_at)
		VALUES (?, ?, ?)
	`, sender, string(payload), s.now().Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to cache verdict: %w", err)
	}
	return nil
}

// startCleanupTask starts a background task to clean up expired entries
func (s *sqlStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background()); err != nil {
				s.logger.Error("Failed to clean up store", zap.String("store", s.name), zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task and closes the database connection
func (s *sqlStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.String("store", s.name), zap.Error(err))
		}
	})
}
