package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// LearningSchemaVersion is the current persisted layout of LearningState
const LearningSchemaVersion = 1

// MaxFeedbackLog is how many feedback records LearningState keeps
const MaxFeedbackLog = 200

// SenderProfile is the learned importance of a single sender address
type SenderProfile struct {
	Importance  float64   `json:"importance"`
	UpdateCount int       `json:"update_count"`
	LastUpdated time.Time `json:"last_updated"`
}

// CategoryPreference is the learned routing tendency of a category
type CategoryPreference struct {
	PriorityTendency float64 `json:"priority_tendency"`
	ArchiveTendency  float64 `json:"archive_tendency"`
	FeedbackCount    int     `json:"feedback_count"`
}

// FeedbackTally counts feedback events, and how many confirmed the original decision
type FeedbackTally struct {
	Total      int              `json:"total"`
	Agreements int              `json:"agreements"`
	ByDecision map[Decision]int `json:"by_decision,omitempty"`
}

// FeedbackRecord is one applied feedback event, oldest first in the log
type FeedbackRecord struct {
	EventID          string    `json:"event_id"`
	MessageID        string    `json:"message_id"`
	Sender           string    `json:"sender,omitempty"`
	Category         Category  `json:"category,omitempty"`
	OriginalDecision Decision  `json:"original_decision,omitempty"`
	CorrectDecision  Decision  `json:"correct_decision"`
	Action           string    `json:"action,omitempty"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// LearningState is the complete adaptive state, as persisted
type LearningState struct {
	SchemaVersion  int                             `json:"schema_version"`
	Senders        map[string]SenderProfile        `json:"senders"`
	Categories     map[Category]CategoryPreference `json:"categories"`
	Keywords       map[string]float64              `json:"keywords"`
	Hours          map[int]int                     `json:"hours"`
	Feedback       FeedbackTally                   `json:"feedback"`
	RecentFeedback []FeedbackRecord                `json:"recent_feedback,omitempty"`
	UpdatedAt      time.Time                       `json:"updated_at"`
}

// appendFeedback adds rec to the log, dropping the oldest records beyond MaxFeedbackLog
func (s *LearningState) appendFeedback(rec FeedbackRecord) {
	s.RecentFeedback = append(s.RecentFeedback, rec)
	if n := len(s.RecentFeedback) - MaxFeedbackLog; n > 0 {
		s.RecentFeedback = append([]FeedbackRecord(nil), s.RecentFeedback[n:]...)
	}
}

// NewLearningState returns an empty state seeded with the baseline urgency lexicon
func NewLearningState() *LearningState {
	st := &LearningState{
		SchemaVersion: LearningSchemaVersion,
		Senders:       make(map[string]SenderProfile),
		Categories:    make(map[Category]CategoryPreference),
		Keywords:      make(map[string]float64, len(BaselineUrgencyLexicon)),
		Hours:         make(map[int]int),
		Feedback:      FeedbackTally{ByDecision: make(map[Decision]int)},
	}
	for k, w := range BaselineUrgencyLexicon {
		st.Keywords[k] = w
	}
	return st
}

// Clone returns a deep copy of the state
func (s *LearningState) Clone() *LearningState {
	c := &LearningState{
		SchemaVersion: s.SchemaVersion,
		Senders:       make(map[string]SenderProfile, len(s.Senders)),
		Categories:    make(map[Category]CategoryPreference, len(s.Categories)),
		Keywords:      make(map[string]float64, len(s.Keywords)),
		Hours:         make(map[int]int, len(s.Hours)),
		Feedback: FeedbackTally{
			Total:      s.Feedback.Total,
			Agreements: s.Feedback.Agreements,
			ByDecision: make(map[Decision]int, len(s.Feedback.ByDecision)),
		},
		RecentFeedback: append([]FeedbackRecord(nil), s.RecentFeedback...),
		UpdatedAt:      s.UpdatedAt,
	}
	for k, v := range s.Senders {
		c.Senders[k] = v
	}
	for k, v := range s.Categories {
		c.Categories[k] = v
	}
	for k, v := range s.Keywords {
		c.Keywords[k] = v
	}
	for k, v := range s.Hours {
		c.Hours[k] = v
	}
	for k, v := range s.Feedback.ByDecision {
		c.Feedback.ByDecision[k] = v
	}
	return c
}

// EncodeLearningState serializes the state with the current schema version
func EncodeLearningState(s *LearningState) ([]byte, error) {
	out := s.Clone()
	out.SchemaVersion = LearningSchemaVersion
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode learning state: %w", err)
	}
	return data, nil
}

// DecodeLearningState parses a persisted snapshot. Untagged (version 0)
// snapshots are migrated; snapshots from a newer schema are rejected.
// The result is normalized: keys are folded and merged, values clamped.
func DecodeLearningState(data []byte) (*LearningState, error) {
	var version struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &version); err != nil {
		return nil, &LearningStateError{Op: "decode", Err: err}
	}
	if version.SchemaVersion > LearningSchemaVersion {
		return nil, &LearningStateError{
			Op:  "decode",
			Err: fmt.Errorf("schema version %d is newer than supported version %d", version.SchemaVersion, LearningSchemaVersion),
		}
	}

	var raw LearningState
	if version.SchemaVersion == 0 {
		legacy, err := decodeLegacyState(data)
		if err != nil {
			return nil, &LearningStateError{Op: "migrate", Err: err}
		}
		raw = *legacy
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &LearningStateError{Op: "decode", Err: err}
	}

	return normalizeState(&raw), nil
}

// decodeLegacyState reads the untagged layout, which stored sender
// importance as a bare number per address
func decodeLegacyState(data []byte) (*LearningState, error) {
	var legacy struct {
		Senders    map[string]float64              `json:"senders"`
		Categories map[Category]CategoryPreference `json:"categories"`
		Keywords   map[string]float64              `json:"keywords"`
		Hours      map[int]int                     `json:"hours"`
	}
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, err
	}
	st := &LearningState{
		Senders:    make(map[string]SenderProfile, len(legacy.Senders)),
		Categories: legacy.Categories,
		Keywords:   legacy.Keywords,
		Hours:      legacy.Hours,
	}
	for addr, importance := range legacy.Senders {
		st.Senders[addr] = SenderProfile{Importance: importance, UpdateCount: 1}
	}
	return st, nil
}

// normalizeState folds keys, merges duplicates and clamps every value
func normalizeState(raw *LearningState) *LearningState {
	st := NewLearningState()
	st.UpdatedAt = raw.UpdatedAt

	for addr, p := range raw.Senders {
		key := NormalizeKey(addr)
		if key == "" {
			continue
		}
		p.Importance = clamp01(p.Importance)
		if existing, ok := st.Senders[key]; ok && !outranks(p.UpdateCount, p.Importance, existing.UpdateCount, existing.Importance) {
			continue
		}
		st.Senders[key] = p
	}

	for cat, pref := range raw.Categories {
		parsed, ok := ParseCategory(string(cat))
		if !ok {
			continue
		}
		pref.PriorityTendency = clamp01(pref.PriorityTendency)
		pref.ArchiveTendency = clamp01(pref.ArchiveTendency)
		if existing, ok := st.Categories[parsed]; ok && !outranks(pref.FeedbackCount, pref.PriorityTendency, existing.FeedbackCount, existing.PriorityTendency) {
			continue
		}
		st.Categories[parsed] = pref
	}

	seen := make(map[string]bool, len(raw.Keywords))
	for kw, w := range raw.Keywords {
		key := keywordKey(kw)
		if key == "" {
			continue
		}
		w = clamp01(w)
		if seen[key] && st.Keywords[key] >= w {
			continue
		}
		seen[key] = true
		st.Keywords[key] = w
	}

	for h, n := range raw.Hours {
		if h < 0 || h > 23 || n <= 0 {
			continue
		}
		st.Hours[h] += n
	}

	st.Feedback.Total = raw.Feedback.Total
	st.Feedback.Agreements = raw.Feedback.Agreements
	for d, n := range raw.Feedback.ByDecision {
		if d.Valid() {
			st.Feedback.ByDecision[d] = n
		}
	}

	for _, rec := range raw.RecentFeedback {
		if rec.MessageID == "" || !rec.CorrectDecision.Valid() {
			continue
		}
		st.appendFeedback(rec)
	}
	return st
}

// outranks decides which of two entries folded onto the same key survives:
// the one with more updates, then the one with the higher value
func outranks(count int, value float64, otherCount int, otherValue float64) bool {
	if count != otherCount {
		return count > otherCount
	}
	return value > otherValue
}

// keywordKey normalizes a keyword or bigram to its token form
func keywordKey(s string) string {
	return strings.Join(tokenize(s), " ")
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
