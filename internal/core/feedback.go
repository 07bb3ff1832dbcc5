package core

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Learning defaults
const (
	DefaultDamping     = 0.1
	DefaultKeywordStep = 0.05
)

// FeedbackEvent is one user correction. EventID is generated when empty.
type FeedbackEvent struct {
	EventID   string
	MessageID string
	Decision  Decision
	Snapshot  TriageSnapshot
	Action    string
}

// FeedbackOutcome reports what a feedback event changed
type FeedbackOutcome struct {
	SenderBefore float64  `json:"sender_importance_before"`
	SenderAfter  float64  `json:"sender_importance_after"`
	Agreed       bool     `json:"agreed"`
	Keywords     []string `json:"keywords_adjusted,omitempty"`
}

// FeedbackLearner applies damped updates to the learning store
type FeedbackLearner struct {
	store       *LearningStore
	damping     float64
	keywordStep float64
	logger      *zap.Logger
	now         func() time.Time
}

// NewFeedbackLearner creates a new learner. damping is the fraction of the
// remaining distance to the target covered by one update and must lie in
// (0,1); keywordStep is the fixed keyword weight adjustment.
func NewFeedbackLearner(store *LearningStore, damping, keywordStep float64, logger *zap.Logger) (*FeedbackLearner, error) {
	if math.IsNaN(damping) || damping <= 0 || damping >= 1 {
		return nil, &ConfigurationError{Field: "learning.damping", Value: damping}
	}
	if math.IsNaN(keywordStep) || keywordStep < 0 || keywordStep > 1 {
		return nil, &ConfigurationError{Field: "learning.keyword_step", Value: keywordStep}
	}
	return &FeedbackLearner{
		store:       store,
		damping:     damping,
		keywordStep: keywordStep,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Learn applies one feedback event. Validation happens before any state is
// touched and all updates are published together, so a rejected event
// leaves the store unchanged.
func (l *FeedbackLearner) Learn(ev FeedbackEvent) (*FeedbackOutcome, error) {
	return l.LearnAndCommit(ev, nil)
}

// LearnAndCommit is Learn with a commit step, typically persistence, that
// must succeed before the updated state is published
func (l *FeedbackLearner) LearnAndCommit(ev FeedbackEvent, commit func(*LearningState) error) (*FeedbackOutcome, error) {
	if strings.TrimSpace(ev.MessageID) == "" {
		return nil, &FeedbackValidationError{Reason: "message id is required"}
	}
	if !ev.Decision.Valid() {
		return nil, &FeedbackValidationError{MessageID: ev.MessageID, Value: string(ev.Decision), Reason: "unknown decision"}
	}
	if ev.Snapshot.Category != "" {
		if _, ok := ParseCategory(string(ev.Snapshot.Category)); !ok {
			return nil, &FeedbackValidationError{MessageID: ev.MessageID, Value: string(ev.Snapshot.Category), Reason: "unknown category"}
		}
	}

	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	now := l.now()
	sender := NormalizeKey(ev.Snapshot.Sender)
	outcome := &FeedbackOutcome{Agreed: ev.Snapshot.Decision == ev.Decision}

	err := l.store.UpdateAndCommit(func(st *LearningState) error {
		// Sender importance
		profile, ok := st.Senders[sender]
		if !ok {
			profile = SenderProfile{Importance: NeutralImportance}
		}
		outcome.SenderBefore = profile.Importance
		if sender != "" {
			profile.Importance = l.step(profile.Importance, senderTarget(ev.Decision))
			profile.UpdateCount++
			profile.LastUpdated = now
			st.Senders[sender] = profile
		}
		outcome.SenderAfter = profile.Importance

		// Category tendencies
		if ev.Snapshot.Category != "" {
			pref, ok := st.Categories[ev.Snapshot.Category]
			if !ok {
				pref = CategoryPreference{PriorityTendency: NeutralTendency, ArchiveTendency: NeutralTendency}
			}
			priorityTarget, archiveTarget := categoryTargets(ev.Decision)
			pref.PriorityTendency = l.step(pref.PriorityTendency, priorityTarget)
			pref.ArchiveTendency = l.step(pref.ArchiveTendency, archiveTarget)
			pref.FeedbackCount++
			st.Categories[ev.Snapshot.Category] = pref
		}

		// Urgency keywords
		var delta float64
		switch ev.Decision {
		case PriorityInbox:
			delta = l.keywordStep
		case AutoArchive, SpamFolder:
			delta = -l.keywordStep
		}
		if delta != 0 {
			for _, kw := range ev.Snapshot.MatchedKeywords {
				key := keywordKey(kw)
				if key == "" {
					continue
				}
				w, ok := st.Keywords[key]
				if !ok {
					w = BaselineUrgencyLexicon[key]
				}
				st.Keywords[key] = clamp01(w + delta)
				outcome.Keywords = append(outcome.Keywords, key)
			}
		}

		// Time of day
		if ev.Decision == PriorityInbox && !ev.Snapshot.ReceivedAt.IsZero() {
			st.Hours[ev.Snapshot.ReceivedAt.Hour()]++
		}

		st.Feedback.Total++
		if outcome.Agreed {
			st.Feedback.Agreements++
		}
		if st.Feedback.ByDecision == nil {
			st.Feedback.ByDecision = make(map[Decision]int)
		}
		st.Feedback.ByDecision[ev.Decision]++

		st.appendFeedback(FeedbackRecord{
			EventID:          ev.EventID,
			MessageID:        ev.MessageID,
			Sender:           sender,
			Category:         ev.Snapshot.Category,
			OriginalDecision: ev.Snapshot.Decision,
			CorrectDecision:  ev.Decision,
			Action:           ev.Action,
			RecordedAt:       now,
		})
		st.UpdatedAt = now
		return nil
	}, commit)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Learned from feedback",
		zap.String("event_id", ev.EventID),
		zap.String("message_id", ev.MessageID),
		zap.String("decision", string(ev.Decision)),
		zap.String("sender", sender),
		zap.Float64("importance_before", outcome.SenderBefore),
		zap.Float64("importance_after", outcome.SenderAfter),
		zap.Bool("agreed", outcome.Agreed),
		zap.String("action", ev.Action))

	return outcome, nil
}

// step moves v a damped fraction of the way toward target
func (l *FeedbackLearner) step(v, target float64) float64 {
	return clamp01(v + l.damping*(target-v))
}

func senderTarget(d Decision) float64 {
	switch d {
	case PriorityInbox:
		return 1
	case AutoArchive, SpamFolder:
		return 0
	default:
		return NeutralImportance
	}
}

// categoryTargets returns the priority and archive tendency targets
func categoryTargets(d Decision) (float64, float64) {
	switch d {
	case PriorityInbox:
		return 1, 0
	case AutoArchive, SpamFolder:
		return 0, 1
	default:
		return NeutralTendency, 0
	}
}
