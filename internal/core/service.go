package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Observer receives triage and feedback events, e.g. for metrics
type Observer interface {
	ObserveTriage(decision Decision, score float64, elapsed time.Duration)
	ObserveBatch(size int)
	ObserveFeedback(decision Decision, agreed bool)
	ObserveFeedbackRejected(reason string)
	ObserveClassifierError()
}

type noopObserver struct{}

func (noopObserver) ObserveTriage(Decision, float64, time.Duration) {}
func (noopObserver) ObserveBatch(int)                               {}
func (noopObserver) ObserveFeedback(Decision, bool)                 {}
func (noopObserver) ObserveFeedbackRejected(string)                 {}
func (noopObserver) ObserveClassifierError()                        {}

// ServiceOptions configures a TriageService
type ServiceOptions struct {
	Thresholds    Thresholds
	SpamThreshold float64
	Concurrency   int
	SnapshotTTL   time.Duration
	InsightsTopN  int
	Autosave      bool
}

// FeedbackRequest is a user correction as received from a caller.
// Snapshot is optional; when nil the snapshot recorded at triage time is used.
type FeedbackRequest struct {
	MessageID string          `json:"message_id"`
	Decision  string          `json:"decision"`
	Action    string          `json:"action"`
	Snapshot  *TriageSnapshot `json:"snapshot,omitempty"`
}

// FeedbackReceipt acknowledges an applied feedback event
type FeedbackReceipt struct {
	EventID   string   `json:"event_id"`
	MessageID string   `json:"message_id"`
	Decision  Decision `json:"decision"`
	FeedbackOutcome
}

// TriageStats are running counters since the service started
type TriageStats struct {
	Triaged     int              `json:"emails_triaged"`
	ByDecision  map[Decision]int `json:"by_decision"`
	LastTriage  time.Time        `json:"last_triage"`
	Feedback    int              `json:"feedback_count"`
	Agreement   float64          `json:"agreement_rate"`
	KnownSender int              `json:"sender_patterns"`
}

// TriageService is the entry point to the triage core
type TriageService struct {
	store      *LearningStore
	extractor  *SignalExtractor
	scorer     *AttentionScorer
	learner    *FeedbackLearner
	classifier SpamClassifier
	snapshots  SnapshotRepository
	repo       LearningRepository
	threads    ThreadHistory
	observer   Observer
	logger     *zap.Logger
	opts       ServiceOptions
	now        func() time.Time

	mu         sync.RWMutex
	thresholds Thresholds

	statsMu    sync.Mutex
	triaged    int
	byDecision map[Decision]int
	lastTriage time.Time
}

// NewTriageService creates a new triage service. classifier, snapshots,
// repo, threads and observer may be nil.
func NewTriageService(
	store *LearningStore,
	extractor *SignalExtractor,
	scorer *AttentionScorer,
	learner *FeedbackLearner,
	classifier SpamClassifier,
	snapshots SnapshotRepository,
	repo LearningRepository,
	threads ThreadHistory,
	observer Observer,
	logger *zap.Logger,
	opts ServiceOptions,
) (*TriageService, error) {
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &TriageService{
		store:      store,
		extractor:  extractor,
		scorer:     scorer,
		learner:    learner,
		classifier: classifier,
		snapshots:  snapshots,
		repo:       repo,
		threads:    threads,
		observer:   observer,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
		thresholds: opts.Thresholds,
		byDecision: make(map[Decision]int),
	}, nil
}

// Thresholds returns the currently tuned default thresholds
func (s *TriageService) Thresholds() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// Tune replaces the default thresholds. Nil values keep the current setting.
func (s *TriageService) Tune(priority, archive *float64) (Thresholds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.thresholds
	if priority != nil {
		next.Priority = *priority
	}
	if archive != nil {
		next.Archive = *archive
	}
	if err := next.Validate(); err != nil {
		return s.thresholds, err
	}
	s.logger.Info("Tuned triage thresholds",
		zap.Float64("priority_threshold", next.Priority),
		zap.Float64("archive_threshold", next.Archive))
	s.thresholds = next
	return next, nil
}

// ScoreMessage extracts signals and scores a single message
func (s *TriageService) ScoreMessage(ctx context.Context, msg *Message) (*AttentionScore, Signals, error) {
	if err := msg.Validate(); err != nil {
		return nil, Signals{}, err
	}
	sig := s.extractor.Extract(ctx, msg)
	score := s.scorer.Score(msg, sig)
	return &score, sig, nil
}

// Decide applies the decision table with explicitly supplied thresholds
func (s *TriageService) Decide(score AttentionScore, category Category, spam bool, t Thresholds) (Decision, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return Decide(score.Score, category, spam, t), nil
}

// TriageMessage scores, classifies and routes a single message
func (s *TriageService) TriageMessage(ctx context.Context, msg *Message, t Thresholds) (*TriagedMessage, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	result := s.triage(ctx, msg, t)
	s.remember(ctx, &result)
	s.count(result.Decision, 1)
	return &result, nil
}

// ProcessBatch triages messages in parallel and groups them by queue.
// Every message is validated before any is scored. Within each queue the
// input order is preserved.
func (s *TriageService) ProcessBatch(ctx context.Context, msgs []Message, t Thresholds) (*BatchResult, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	for i := range msgs {
		if err := msgs[i].Validate(); err != nil {
			var ie *InputError
			if errors.As(err, &ie) {
				ie.Position = i + 1
				ie.MessageID = msgs[i].ID
			}
			return nil, err
		}
	}

	batchID := uuid.NewString()
	s.observer.ObserveBatch(len(msgs))
	s.logger.Debug("Processing batch", zap.String("batch_id", batchID), zap.Int("size", len(msgs)))

	results := make([]TriagedMessage, len(msgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i := range msgs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.triage(gctx, &msgs[i], t)
			s.remember(gctx, &results[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch %s interrupted: %w", batchID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch %s interrupted: %w", batchID, err)
	}

	out := &BatchResult{
		BatchID:       batchID,
		PriorityInbox: []TriagedMessage{},
		RegularInbox:  []TriagedMessage{},
		AutoArchive:   []TriagedMessage{},
		SpamFolder:    []TriagedMessage{},
	}
	total := 0.0
	for _, r := range results {
		switch r.Decision {
		case PriorityInbox:
			out.PriorityInbox = append(out.PriorityInbox, r)
		case AutoArchive:
			out.AutoArchive = append(out.AutoArchive, r)
		case SpamFolder:
			out.SpamFolder = append(out.SpamFolder, r)
		default:
			out.RegularInbox = append(out.RegularInbox, r)
		}
		total += r.Attention.Score
		s.count(r.Decision, 1)
	}

	out.Stats = BatchStats{
		Total:    len(results),
		Priority: len(out.PriorityInbox),
		Regular:  len(out.RegularInbox),
		Archived: len(out.AutoArchive),
		Spam:     len(out.SpamFolder),
	}
	if len(results) > 0 {
		out.Stats.AverageScore = total / float64(len(results))
	}

	s.logger.Info("Processed batch",
		zap.String("batch_id", batchID),
		zap.Int("total", out.Stats.Total),
		zap.Int("priority_inbox", out.Stats.Priority),
		zap.Int("regular_inbox", out.Stats.Regular),
		zap.Int("auto_archive", out.Stats.Archived),
		zap.Int("spam_folder", out.Stats.Spam))

	return out, nil
}

// triage runs one message through the pipeline. It never fails: classifier
// errors degrade to a non-spam verdict.
func (s *TriageService) triage(ctx context.Context, msg *Message, t Thresholds) TriagedMessage {
	start := s.now()
	annotated := *msg
	annotated.Tags = append([]string(nil), msg.Tags...)

	sig := s.extractor.Extract(ctx, &annotated)
	attention := s.scorer.Score(&annotated, sig)
	verdict := s.classify(ctx, &annotated)
	decision := Decide(attention.Score, annotated.Category, s.isSpam(verdict), t)

	s.observer.ObserveTriage(decision, attention.Score, s.now().Sub(start))
	s.logger.Debug("Triaged message",
		zap.String("message_id", annotated.ID),
		zap.String("decision", string(decision)),
		zap.Float64("score", attention.Score),
		zap.Bool("spam", verdict.IsSpam))

	return TriagedMessage{
		Message:   annotated,
		Signals:   sig,
		Attention: attention,
		Spam:      verdict,
		Decision:  decision,
		TriagedAt: s.now(),
	}
}

func (s *TriageService) classify(ctx context.Context, msg *Message) SpamVerdict {
	if s.classifier == nil {
		return SpamVerdict{ModelUsed: "none", AnalyzedAt: s.now()}
	}
	verdict, err := s.classifier.Classify(ctx, msg)
	if err != nil || verdict == nil {
		s.observer.ObserveClassifierError()
		s.logger.Warn("Spam classification failed, treating message as not spam",
			zap.String("message_id", msg.ID),
			zap.String("sender", msg.From.Email),
			zap.Error(err))
		return SpamVerdict{
			Explanation: fmt.Sprintf("Error during analysis: %v", err),
			ModelUsed:   "error",
			AnalyzedAt:  s.now(),
		}
	}
	return *verdict
}

// isSpam applies the configured spam threshold to a verdict
func (s *TriageService) isSpam(v SpamVerdict) bool {
	if v.IsSpam {
		return true
	}
	return s.opts.SpamThreshold > 0 && v.Score >= s.opts.SpamThreshold
}

// remember stores the triage snapshot so feedback can find it later
func (s *TriageService) remember(ctx context.Context, t *TriagedMessage) {
	if s.snapshots == nil {
		return
	}
	snap := NewTriageSnapshot(t)
	if s.opts.SnapshotTTL > 0 {
		snap.ExpiresAt = t.TriagedAt.Add(s.opts.SnapshotTTL)
	}
	if err := s.snapshots.Set(ctx, snap); err != nil {
		s.logger.Error("Failed to store triage snapshot",
			zap.String("message_id", t.Message.ID),
			zap.Error(err))
	}
}

func (s *TriageService) count(d Decision, n int) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.triaged += n
	s.byDecision[d] += n
	s.lastTriage = s.now()
}

// RecordFeedback applies a user correction to the learning store
func (s *TriageService) RecordFeedback(ctx context.Context, req FeedbackRequest) (*FeedbackReceipt, error) {
	if strings.TrimSpace(req.MessageID) == "" {
		s.observer.ObserveFeedbackRejected("missing_message_id")
		return nil, &FeedbackValidationError{Reason: "message id is required"}
	}
	decision, err := ParseDecision(req.Decision)
	if err != nil {
		s.observer.ObserveFeedbackRejected("invalid_decision")
		var fe *FeedbackValidationError
		if errors.As(err, &fe) {
			fe.MessageID = req.MessageID
		}
		return nil, err
	}

	snapshot, err := s.lookupSnapshot(ctx, req)
	if err != nil {
		s.observer.ObserveFeedbackRejected("unknown_message")
		return nil, err
	}

	var commit func(*LearningState) error
	if s.opts.Autosave && s.repo != nil {
		commit = func(st *LearningState) error {
			if err := s.repo.Save(ctx, st); err != nil {
				return &persistError{err: err}
			}
			return nil
		}
	}

	eventID := uuid.NewString()
	outcome, err := s.learner.LearnAndCommit(FeedbackEvent{
		EventID:   eventID,
		MessageID: req.MessageID,
		Decision:  decision,
		Snapshot:  *snapshot,
		Action:    req.Action,
	}, commit)
	if err != nil {
		var pe *persistError
		if errors.As(err, &pe) {
			s.observer.ObserveFeedbackRejected("persist_failed")
			s.logger.Error("Failed to persist learning state, feedback not applied",
				zap.String("message_id", req.MessageID),
				zap.Error(pe.err))
			return nil, fmt.Errorf("failed to persist learning state: %w", pe.err)
		}
		s.observer.ObserveFeedbackRejected("invalid_feedback")
		return nil, err
	}
	s.observer.ObserveFeedback(decision, outcome.Agreed)

	if decision == PriorityInbox && snapshot.ThreadID != "" && s.threads != nil {
		if err := s.threads.MarkPriority(ctx, snapshot.ThreadID); err != nil {
			s.logger.Warn("Failed to mark priority thread",
				zap.String("thread_id", snapshot.ThreadID),
				zap.Error(err))
		}
	}

	return &FeedbackReceipt{
		EventID:         eventID,
		MessageID:       req.MessageID,
		Decision:        decision,
		FeedbackOutcome: *outcome,
	}, nil
}

// persistError marks a commit failure so it is not mistaken for a rejected event
type persistError struct {
	err error
}

func (e *persistError) Error() string { return e.err.Error() }
func (e *persistError) Unwrap() error { return e.err }

func (s *TriageService) lookupSnapshot(ctx context.Context, req FeedbackRequest) (*TriageSnapshot, error) {
	if req.Snapshot != nil {
		snap := *req.Snapshot
		snap.MessageID = req.MessageID
		return &snap, nil
	}
	if s.snapshots == nil {
		return nil, fmt.Errorf("message %q: %w", req.MessageID, ErrUnknownMessage)
	}
	snap, err := s.snapshots.Get(ctx, req.MessageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("message %q was never triaged or its snapshot expired: %w", req.MessageID, ErrUnknownMessage)
		}
		return nil, fmt.Errorf("failed to look up message %q: %w", req.MessageID, err)
	}
	return snap, nil
}

// Insights returns the learning insights; topN <= 0 uses the configured default
func (s *TriageService) Insights(topN int) LearningInsights {
	if topN <= 0 {
		topN = s.opts.InsightsTopN
	}
	return s.store.Insights(topN)
}

// LearningExport is a full dump of what the service has learned
type LearningExport struct {
	ExportedAt time.Time        `json:"exported_at"`
	Stats      TriageStats      `json:"stats"`
	Insights   LearningInsights `json:"insights"`
	State      *LearningState   `json:"state"`
}

// Export returns the stats, insights and a copy of the full learning state,
// including the feedback log
func (s *TriageService) Export() LearningExport {
	return LearningExport{
		ExportedAt: s.now(),
		Stats:      s.Stats(),
		Insights:   s.Insights(0),
		State:      s.store.Snapshot(),
	}
}

// Stats returns running counters
func (s *TriageService) Stats() TriageStats {
	s.statsMu.Lock()
	by := make(map[Decision]int, len(s.byDecision))
	for d, n := range s.byDecision {
		by[d] = n
	}
	stats := TriageStats{
		Triaged:    s.triaged,
		ByDecision: by,
		LastTriage: s.lastTriage,
	}
	s.statsMu.Unlock()

	snap := s.store.current()
	stats.Feedback = snap.Feedback.Total
	if snap.Feedback.Total > 0 {
		stats.Agreement = float64(snap.Feedback.Agreements) / float64(snap.Feedback.Total)
	}
	stats.KnownSender = len(snap.Senders)
	return stats
}

// LoadLearningState replaces the store's state with the persisted one.
// When nothing was saved yet it returns nil. When the persisted state is
// unreadable the store is reset to a neutral state and a
// *LearningStateError is returned so the caller can log it and carry on.
func (s *TriageService) LoadLearningState(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	state, err := s.repo.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Info("No saved learning state, starting from baseline")
			return nil
		}
		s.store.Replace(nil)
		var lse *LearningStateError
		if !errors.As(err, &lse) {
			err = &LearningStateError{Op: "load", Err: err}
		}
		s.logger.Warn("Learning state unavailable, continuing with baseline heuristics", zap.Error(err))
		return err
	}
	s.store.Replace(state)
	s.logger.Info("Loaded learning state",
		zap.Int("senders", len(state.Senders)),
		zap.Int("keywords", len(state.Keywords)),
		zap.Int("feedback", state.Feedback.Total))
	return nil
}

// SaveLearningState persists the current learning state
func (s *TriageService) SaveLearningState(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Save(ctx, s.store.Snapshot()); err != nil {
		s.logger.Error("Failed to persist learning state", zap.Error(err))
		return fmt.Errorf("failed to persist learning state: %w", err)
	}
	return nil
}
