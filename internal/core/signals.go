package core

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Recency curve parameters
const (
	recencyFullWindow  = time.Hour
	recencyLinearEnd   = 48 * time.Hour
	recencyLinearFloor = 0.3
	recencyFloor       = 0.1
	recencyDecay       = 24 * time.Hour
	recencyUnknown     = 0.5
)

// SignalExtractor derives raw signals from a single message
type SignalExtractor struct {
	store   *LearningStore
	threads ThreadHistory
	logger  *zap.Logger
	now     func() time.Time
}

// NewSignalExtractor creates a new signal extractor. threads may be nil,
// in which case thread continuity is always 0.
func NewSignalExtractor(store *LearningStore, threads ThreadHistory, logger *zap.Logger) *SignalExtractor {
	return &SignalExtractor{
		store:   store,
		threads: threads,
		logger:  logger,
		now:     time.Now,
	}
}

// Extract produces the signal bundle for msg. It never fails: missing
// data and failing lookups degrade to neutral values.
func (e *SignalExtractor) Extract(ctx context.Context, msg *Message) Signals {
	importance, _ := e.store.SenderImportance(msg.From.Email)
	pref, _ := e.store.CategoryPreference(msg.Category)
	hits, matched := e.store.MatchUrgency(msg.Subject + "\n" + msg.Body)

	return Signals{
		SenderImportance: importance,
		UrgencyHits:      hits,
		MatchedKeywords:  matched,
		CategoryTendency: pref.PriorityTendency,
		Recency:          RecencyFactor(e.now().Sub(msg.ReceivedAt), msg.ReceivedAt.IsZero()),
		ThreadContinuity: e.threadContinuity(ctx, msg),
		ExplicitFlag:     msg.IsFlagged,
	}
}

func (e *SignalExtractor) threadContinuity(ctx context.Context, msg *Message) float64 {
	if e.threads == nil || msg.ThreadID == "" {
		return 0
	}
	ok, err := e.threads.HasPriorityReply(ctx, msg.ThreadID)
	if err != nil {
		e.logger.Warn("Thread history lookup failed",
			zap.String("message_id", msg.ID),
			zap.String("thread_id", msg.ThreadID),
			zap.Error(err))
		return 0
	}
	if ok {
		return 1
	}
	return 0
}

// RecencyFactor maps message age to [0.1, 1]. Messages under an hour old
// (or dated in the future) get 1.0; the factor then falls linearly to 0.3
// at 48 hours and decays exponentially toward 0.1 afterwards. An unknown
// receive time yields a neutral 0.5.
func RecencyFactor(age time.Duration, unknown bool) float64 {
	switch {
	case unknown:
		return recencyUnknown
	case age <= recencyFullWindow:
		return 1
	case age <= recencyLinearEnd:
		span := float64(recencyLinearEnd - recencyFullWindow)
		progress := float64(age-recencyFullWindow) / span
		return 1 - progress*(1-recencyLinearFloor)
	default:
		over := float64(age-recencyLinearEnd) / float64(recencyDecay)
		return recencyFloor + (recencyLinearFloor-recencyFloor)*math.Exp(-over)
	}
}
