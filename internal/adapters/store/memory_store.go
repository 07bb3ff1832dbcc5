package store

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

type verdictEntry struct {
	verdict   core.SpamVerdict
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of the triage repositories.
// Learning state is kept encoded so Load always returns an independent copy.
type MemoryStore struct {
	mu          sync.RWMutex
	snapshots   map[string]core.TriageSnapshot
	verdicts    map[string]verdictEntry
	threads     map[string]time.Time
	learning    []byte
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger, cleanupFreq time.Duration) *MemoryStore {
	s := &MemoryStore{
		snapshots:   make(map[string]core.TriageSnapshot),
		verdicts:    make(map[string]verdictEntry),
		threads:     make(map[string]time.Time),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	// Start background cleanup
	if cleanupFreq > 0 {
		go s.startCleanupTask()
	}

	return s
}

func (s *MemoryStore) expired(t time.Time) bool {
	return !t.IsZero() && !s.now().Before(t)
}

// Get retrieves an unexpired triage snapshot
func (s *MemoryStore) Get(ctx context.Context, messageID string) (*core.TriageSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[messageID]
	if !ok || s.expired(snap.ExpiresAt) {
		return nil, core.ErrNotFound
	}
	snap.MatchedKeywords = append([]string(nil), snap.MatchedKeywords...)
	return &snap, nil
}

// Set stores a triage snapshot
func (s *MemoryStore) Set(ctx context.Context, snap *core.TriageSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *snap
	cp.MatchedKeywords = append([]string(nil), snap.MatchedKeywords...)
	s.snapshots[snap.MessageID] = cp
	return nil
}

// Delete removes a triage snapshot
func (s *MemoryStore) Delete(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, messageID)
	return nil
}

// Cleanup removes expired snapshots and verdicts
func (s *MemoryStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiredCount := 0
	for id, snap := range s.snapshots {
		if s.expired(snap.ExpiresAt) {
			delete(s.snapshots, id)
			expiredCount++
		}
	}
	for sender, entry := range s.verdicts {
		if s.expired(entry.expiresAt) {
			delete(s.verdicts, sender)
			expiredCount++
		}
	}

	s.logger.Debug("Cleaned up expired entries", zap.String("store", "memory"), zap.Int("expired_count", expiredCount))
	return nil
}

// Load returns the last saved learning state
func (s *MemoryStore) Load(ctx context.Context) (*core.LearningState, error) {
	s.mu.RLock()
	data := s.learning
	s.mu.RUnlock()

	if data == nil {
		return nil, core.ErrNotFound
	}
	return core.DecodeLearningState(data)
}

// Save stores the learning state
func (s *MemoryStore) Save(ctx context.Context, state *core.LearningState) error {
	data, err := core.EncodeLearningState(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.learning = data
	return nil
}

// HasPriorityReply reports whether the thread was marked as priority
func (s *MemoryStore) HasPriorityReply(ctx context.Context, threadID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.threads[threadID]
	return ok, nil
}

// MarkPriority records the thread as priority
func (s *MemoryStore) MarkPriority(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[threadID] = s.now()
	return nil
}

// GetVerdict retrieves a cached spam verdict for a sender
func (s *MemoryStore) GetVerdict(ctx context.Context, sender string) (*core.SpamVerdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.verdicts[sender]
	if !ok || s.expired(entry.expiresAt) {
		return nil, core.ErrNotFound
	}
	v := entry.verdict
	return &v, nil
}

// SetVerdict caches a spam verdict for a sender
func (s *MemoryStore) SetVerdict(ctx context.Context, sender string, v *core.SpamVerdict, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.verdicts[sender] = verdictEntry{verdict: *v, expiresAt: s.now().Add(ttl)}
	return nil
}

// startCleanupTask starts a background task to clean up expired entries
func (s *MemoryStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background()); err != nil {
				s.logger.Error("Failed to clean up store", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}
