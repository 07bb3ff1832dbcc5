package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memSnapshots struct {
	mu    sync.Mutex
	items map[string]*TriageSnapshot
}

func (m *memSnapshots) Get(_ context.Context, id string) (*TriageSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSnapshots) Set(_ context.Context, s *TriageSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]*TriageSnapshot)
	}
	cp := *s
	m.items[s.MessageID] = &cp
	return nil
}

func (m *memSnapshots) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *memSnapshots) Cleanup(context.Context) error { return nil }

type memLearning struct {
	data    []byte
	err     error
	saveErr error
	saves   int
}

func (m *memLearning) Load(context.Context) (*LearningState, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.data == nil {
		return nil, ErrNotFound
	}
	return DecodeLearningState(m.data)
}

func (m *memLearning) Save(_ context.Context, st *LearningState) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	data, err := EncodeLearningState(st)
	if err != nil {
		return err
	}
	m.data = data
	m.saves++
	return nil
}

type stubClassifier struct {
	spam map[string]bool
	err  error
}

func (c *stubClassifier) Classify(_ context.Context, msg *Message) (*SpamVerdict, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.spam[msg.ID] {
		return &SpamVerdict{IsSpam: true, Score: 0.95, ModelUsed: "stub"}, nil
	}
	return &SpamVerdict{Score: 0.05, ModelUsed: "stub"}, nil
}

type serviceFixture struct {
	svc       *TriageService
	store     *LearningStore
	snapshots *memSnapshots
	repo      *memLearning
	threads   *stubThreads
	now       time.Time
}

func newServiceFixture(t *testing.T, classifier SpamClassifier) *serviceFixture {
	t.Helper()
	logger := zap.NewNop()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	store := NewLearningStore(nil)
	threads := &stubThreads{}
	extractor := NewSignalExtractor(store, threads, logger)
	extractor.now = func() time.Time { return now }
	learner := newTestLearner(t, store)
	snapshots := &memSnapshots{}
	repo := &memLearning{}

	svc, err := NewTriageService(store, extractor, newTestScorer(t), learner, classifier, snapshots, repo, threads, nil, logger, ServiceOptions{
		Thresholds:    DefaultThresholds(),
		SpamThreshold: 0.7,
		Concurrency:   4,
		SnapshotTTL:   time.Hour,
		InsightsTopN:  10,
		Autosave:      true,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return now }

	return &serviceFixture{svc: svc, store: store, snapshots: snapshots, repo: repo, threads: threads, now: now}
}

func (f *serviceFixture) messages() []Message {
	return []Message{
		{ID: "1", Subject: "Lunch?", From: Address{Email: "friend@example.com"}, Category: CategoryPrimary, ReceivedAt: f.now.Add(-2 * time.Hour)},
		{ID: "2", Subject: "Sale", From: Address{Email: "deals@shop.example"}, Category: CategoryPromotions, ReceivedAt: f.now.Add(-240 * time.Hour)},
		{ID: "3", Subject: "Prod outage", From: Address{Email: "oncall@corp.com"}, Category: CategoryPrimary, ReceivedAt: f.now, IsFlagged: true},
		{ID: "4", Subject: "You've won", From: Address{Email: "winner@lottery.example"}, Category: CategoryPrimary, ReceivedAt: f.now},
		{ID: "5", Subject: "New follower", From: Address{Email: "noreply@social.example"}, Category: CategorySocial, ReceivedAt: f.now.Add(-200 * time.Hour)},
		{ID: "6", Subject: "Thread update", From: Address{Email: "team@corp.com"}, Category: CategoryForums, ReceivedAt: f.now.Add(-3 * time.Hour)},
		{ID: "7", Subject: "Coupon", From: Address{Email: "deals@shop.example"}, Category: CategoryPromotions, ReceivedAt: f.now.Add(-300 * time.Hour)},
	}
}

func TestProcessBatchPartitions(t *testing.T) {
	f := newServiceFixture(t, &stubClassifier{spam: map[string]bool{"4": true}})

	res, err := f.svc.ProcessBatch(context.Background(), f.messages(), DefaultThresholds())
	require.NoError(t, err)
	require.NotEmpty(t, res.BatchID)

	ids := func(q []TriagedMessage) []string {
		out := make([]string, 0, len(q))
		for _, m := range q {
			out = append(out, m.Message.ID)
		}
		return out
	}
	assert.Equal(t, []string{"3"}, ids(res.PriorityInbox))
	assert.Equal(t, []string{"1", "6"}, ids(res.RegularInbox))
	assert.Equal(t, []string{"2", "5", "7"}, ids(res.AutoArchive))
	assert.Equal(t, []string{"4"}, ids(res.SpamFolder))

	assert.Equal(t, 7, res.Stats.Total)
	assert.Equal(t, res.Stats.Total, res.Stats.Priority+res.Stats.Regular+res.Stats.Archived+res.Stats.Spam)
	assert.Greater(t, res.Stats.AverageScore, 0.0)

	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		_, err := f.snapshots.Get(context.Background(), id)
		assert.NoError(t, err, "snapshot for %s", id)
	}
	assert.Equal(t, 7, f.svc.Stats().Triaged)
}

func TestProcessBatchEmpty(t *testing.T) {
	f := newServiceFixture(t, nil)
	res, err := f.svc.ProcessBatch(context.Background(), nil, DefaultThresholds())
	require.NoError(t, err)
	assert.Zero(t, res.Stats.Total)
	assert.Empty(t, res.PriorityInbox)
	assert.NotNil(t, res.RegularInbox)
}

func TestProcessBatchRejectsInvalidMessage(t *testing.T) {
	f := newServiceFixture(t, nil)
	msgs := f.messages()
	msgs[4].ID = " "

	_, err := f.svc.ProcessBatch(context.Background(), msgs, DefaultThresholds())
	require.Error(t, err)
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 5, ie.Position)
	assert.Zero(t, f.svc.Stats().Triaged, "nothing is triaged when validation fails")
}

func TestProcessBatchRejectsThresholds(t *testing.T) {
	f := newServiceFixture(t, nil)
	_, err := f.svc.ProcessBatch(context.Background(), f.messages(), Thresholds{Priority: 2, Archive: 0.3})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestProcessBatchCancelled(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.ProcessBatch(ctx, f.messages(), DefaultThresholds())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTriageMessageClassifierFailure(t *testing.T) {
	f := newServiceFixture(t, &stubClassifier{err: errors.New("timeout")})
	msg := f.messages()[0]

	res, err := f.svc.TriageMessage(context.Background(), &msg, DefaultThresholds())
	require.NoError(t, err)
	assert.False(t, res.Spam.IsSpam)
	assert.Equal(t, "error", res.Spam.ModelUsed)
	assert.NotEqual(t, SpamFolder, res.Decision)
}

func TestTriageMessageSpamOverride(t *testing.T) {
	f := newServiceFixture(t, &stubClassifier{spam: map[string]bool{"3": true}})
	msg := f.messages()[2]

	res, err := f.svc.TriageMessage(context.Background(), &msg, DefaultThresholds())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Attention.Score, 0.75)
	assert.Equal(t, SpamFolder, res.Decision)
}

func TestRecordFeedback(t *testing.T) {
	f := newServiceFixture(t, nil)
	msg := Message{ID: "42", Subject: "Deadline moved", From: Address{Email: "Boss@Corp.com"}, Category: CategoryPrimary, ThreadID: "t-1", ReceivedAt: f.now}

	_, err := f.svc.TriageMessage(context.Background(), &msg, DefaultThresholds())
	require.NoError(t, err)

	receipt, err := f.svc.RecordFeedback(context.Background(), FeedbackRequest{MessageID: "42", Decision: "PRIORITY_INBOX", Action: "starred"})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.EventID)
	assert.InDelta(t, 0.55, receipt.SenderAfter, 1e-9)
	assert.Equal(t, []string{"deadline"}, receipt.Keywords)

	v, _ := f.store.SenderImportance("boss@corp.com")
	assert.InDelta(t, 0.55, v, 1e-9)
	assert.True(t, f.threads.priority["t-1"])
	assert.Equal(t, 1, f.repo.saves)
}

func TestRecordFeedbackErrors(t *testing.T) {
	f := newServiceFixture(t, nil)
	before := f.store.Snapshot()

	_, err := f.svc.RecordFeedback(context.Background(), FeedbackRequest{MessageID: "nope", Decision: "auto_archive"})
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = f.svc.RecordFeedback(context.Background(), FeedbackRequest{MessageID: "nope", Decision: "delete"})
	assert.ErrorIs(t, err, ErrInvalidFeedback)

	_, err = f.svc.RecordFeedback(context.Background(), FeedbackRequest{Decision: "auto_archive"})
	assert.ErrorIs(t, err, ErrInvalidFeedback)

	assert.Equal(t, before, f.store.Snapshot())
	assert.Zero(t, f.repo.saves)
}

func TestRecordFeedbackWithExplicitSnapshot(t *testing.T) {
	f := newServiceFixture(t, nil)
	receipt, err := f.svc.RecordFeedback(context.Background(), FeedbackRequest{
		MessageID: "external-1",
		Decision:  "auto_archive",
		Snapshot:  &TriageSnapshot{Sender: "news@shop.example", Category: CategoryPromotions, Decision: AutoArchive},
	})
	require.NoError(t, err)
	assert.True(t, receipt.Agreed)
	assert.InDelta(t, 0.45, receipt.SenderAfter, 1e-9)
}

func TestRecordFeedbackNotAppliedWhenSaveFails(t *testing.T) {
	f := newServiceFixture(t, nil)
	msg := Message{ID: "1", Subject: "Deadline moved", From: Address{Email: "boss@corp.com"}, Category: CategoryPrimary, ThreadID: "t-1", ReceivedAt: f.now}
	_, err := f.svc.TriageMessage(context.Background(), &msg, DefaultThresholds())
	require.NoError(t, err)

	before := f.store.Snapshot()
	f.repo.saveErr = errors.New("disk full")
	for i := 0; i < 3; i++ {
		receipt, err := f.svc.RecordFeedback(context.Background(), FeedbackRequest{MessageID: "1", Decision: "priority_inbox"})
		require.Error(t, err)
		assert.Nil(t, receipt)
		assert.Contains(t, err.Error(), "disk full")
		assert.NotErrorIs(t, err, ErrInvalidFeedback)
	}
	assert.Equal(t, before, f.store.Snapshot())
	assert.False(t, f.threads.priority["t-1"])

	// A retry after the store recovers applies the correction exactly once
	f.repo.saveErr = nil
	receipt, err := f.svc.RecordFeedback(context.Background(), FeedbackRequest{MessageID: "1", Decision: "priority_inbox"})
	require.NoError(t, err)
	assert.InDelta(t, 0.55, receipt.SenderAfter, 1e-9)
	assert.Equal(t, 1, f.store.Snapshot().Feedback.Total)
	assert.Equal(t, 1, f.repo.saves)
}

func TestRecordFeedbackKeepsEventLog(t *testing.T) {
	f := newServiceFixture(t, nil)
	msg := Message{ID: "42", Subject: "Weekly digest", From: Address{Email: "news@corp.com"}, Category: CategoryUpdates, ReceivedAt: f.now}
	triaged, err := f.svc.TriageMessage(context.Background(), &msg, DefaultThresholds())
	require.NoError(t, err)

	receipt, err := f.svc.RecordFeedback(context.Background(), FeedbackRequest{MessageID: "42", Decision: "auto_archive", Action: "archived without reading"})
	require.NoError(t, err)

	recent := f.svc.Insights(0).RecentFeedback
	require.Len(t, recent, 1)
	rec := recent[0]
	assert.Equal(t, receipt.EventID, rec.EventID)
	assert.Equal(t, "42", rec.MessageID)
	assert.Equal(t, "news@corp.com", rec.Sender)
	assert.Equal(t, CategoryUpdates, rec.Category)
	assert.Equal(t, triaged.Decision, rec.OriginalDecision)
	assert.Equal(t, AutoArchive, rec.CorrectDecision)
	assert.Equal(t, "archived without reading", rec.Action)
	assert.False(t, rec.RecordedAt.IsZero())

	saved, err := DecodeLearningState(f.repo.data)
	require.NoError(t, err)
	require.Len(t, saved.RecentFeedback, 1)
	assert.Equal(t, receipt.EventID, saved.RecentFeedback[0].EventID)

	export := f.svc.Export()
	assert.Equal(t, f.now, export.ExportedAt)
	assert.Equal(t, 1, export.Stats.Feedback)
	assert.Equal(t, recent, export.Insights.RecentFeedback)
	require.Len(t, export.State.RecentFeedback, 1)
	assert.Equal(t, "archived without reading", export.State.RecentFeedback[0].Action)
}

func TestTune(t *testing.T) {
	f := newServiceFixture(t, nil)

	p := 0.8
	th, err := f.svc.Tune(&p, nil)
	require.NoError(t, err)
	assert.Equal(t, Thresholds{Priority: 0.8, Archive: 0.3}, th)

	bad := 1.3
	_, err = f.svc.Tune(nil, &bad)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Equal(t, th, f.svc.Thresholds())
}

func TestLoadLearningState(t *testing.T) {
	f := newServiceFixture(t, nil)
	require.NoError(t, f.svc.LoadLearningState(context.Background()), "missing state is not an error")

	f.repo.data = []byte(`{"schema_version": 1, "senders": {"boss@corp.com": {"importance": 0.9, "update_count": 3}}}`)
	require.NoError(t, f.svc.LoadLearningState(context.Background()))
	v, ok := f.store.SenderImportance("boss@corp.com")
	assert.True(t, ok)
	assert.Equal(t, 0.9, v)

	f.repo.data = []byte(`{{{`)
	err := f.svc.LoadLearningState(context.Background())
	assert.ErrorIs(t, err, ErrLearningState)
	_, ok = f.store.SenderImportance("boss@corp.com")
	assert.False(t, ok, "unreadable state degrades to baseline")

	f.repo.data = nil
	f.repo.err = fmt.Errorf("connection refused")
	err = f.svc.LoadLearningState(context.Background())
	assert.ErrorIs(t, err, ErrLearningState)
}
