package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubThreads struct {
	priority map[string]bool
	err      error
}

func (s *stubThreads) HasPriorityReply(_ context.Context, threadID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.priority[threadID], nil
}

func (s *stubThreads) MarkPriority(_ context.Context, threadID string) error {
	if s.err != nil {
		return s.err
	}
	if s.priority == nil {
		s.priority = make(map[string]bool)
	}
	s.priority[threadID] = true
	return nil
}

func TestRecencyFactor(t *testing.T) {
	assert.Equal(t, 1.0, RecencyFactor(0, false))
	assert.Equal(t, 1.0, RecencyFactor(-2*time.Hour, false), "future timestamps count as now")
	assert.Equal(t, 1.0, RecencyFactor(time.Hour, false))
	assert.InDelta(t, 0.3, RecencyFactor(48*time.Hour, false), 1e-9)
	assert.InDelta(t, 0.1, RecencyFactor(30*24*time.Hour, false), 1e-6)
	assert.Equal(t, 0.5, RecencyFactor(0, true))

	prev := RecencyFactor(0, false)
	for h := 1; h < 24*20; h++ {
		v := RecencyFactor(time.Duration(h)*time.Hour, false)
		assert.LessOrEqual(t, v, prev)
		assert.GreaterOrEqual(t, v, 0.1)
		prev = v
	}
}

func TestExtract(t *testing.T) {
	store := NewLearningStore(nil)
	threads := &stubThreads{priority: map[string]bool{"t-1": true}}
	ex := NewSignalExtractor(store, threads, zap.NewNop())
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	ex.now = func() time.Time { return now }

	sig := ex.Extract(context.Background(), &Message{
		ID:         "m1",
		Subject:    "URGENT: deadline today",
		From:       Address{Email: "someone@example.com"},
		Category:   CategoryPrimary,
		ReceivedAt: now.Add(-10 * time.Minute),
		ThreadID:   "t-1",
		IsFlagged:  true,
	})

	assert.Equal(t, NeutralImportance, sig.SenderImportance)
	assert.Equal(t, 1.0, sig.UrgencyHits)
	assert.Equal(t, []string{"deadline", "urgent"}, sig.MatchedKeywords)
	assert.Equal(t, NeutralTendency, sig.CategoryTendency)
	assert.Equal(t, 1.0, sig.Recency)
	assert.Equal(t, 1.0, sig.ThreadContinuity)
	assert.True(t, sig.ExplicitFlag)
}

func TestExtractEmptyMessage(t *testing.T) {
	ex := NewSignalExtractor(NewLearningStore(nil), &stubThreads{err: errors.New("db down")}, zap.NewNop())

	sig := ex.Extract(context.Background(), &Message{ID: "m1", ThreadID: "t-9"})
	assert.Zero(t, sig.UrgencyHits)
	assert.Empty(t, sig.MatchedKeywords)
	assert.Equal(t, NeutralTendency, sig.CategoryTendency)
	assert.Equal(t, 0.5, sig.Recency)
	assert.Zero(t, sig.ThreadContinuity)
}
