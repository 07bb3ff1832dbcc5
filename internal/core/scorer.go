package core

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Factor names used in AttentionScore.Factors
const (
	FactorSender   = "sender"
	FactorUrgency  = "urgency"
	FactorCategory = "category"
	FactorRecency  = "recency"
	FactorThread   = "thread"
	FactorFlagged  = "flagged"
)

// factorOrder breaks ties between equal contributions
var factorOrder = []string{FactorSender, FactorUrgency, FactorCategory, FactorRecency, FactorThread, FactorFlagged}

// DefaultFlagFloor is the minimum score of a message the user flagged
const DefaultFlagFloor = 0.75

// Weights are the per-factor multipliers of the attention model
type Weights struct {
	Sender   float64 `json:"sender"`
	Urgency  float64 `json:"urgency"`
	Category float64 `json:"category"`
	Recency  float64 `json:"recency"`
	Thread   float64 `json:"thread"`
	Flagged  float64 `json:"flagged"`
}

// DefaultWeights returns the standard factor weights
func DefaultWeights() Weights {
	return Weights{
		Sender:   0.30,
		Urgency:  0.25,
		Category: 0.15,
		Recency:  0.15,
		Thread:   0.10,
		Flagged:  0.05,
	}
}

// Validate checks that every weight lies within [0,1]
func (w Weights) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"weights.sender", w.Sender},
		{"weights.urgency", w.Urgency},
		{"weights.category", w.Category},
		{"weights.recency", w.Recency},
		{"weights.thread", w.Thread},
		{"weights.flagged", w.Flagged},
	} {
		if math.IsNaN(f.value) || f.value < 0 || f.value > 1 {
			return &ConfigurationError{Field: f.name, Value: f.value}
		}
	}
	return nil
}

// AttentionScorer combines signals into a bounded attention score
type AttentionScorer struct {
	weights   Weights
	flagFloor float64
	logger    *zap.Logger
}

// NewAttentionScorer creates a new scorer
func NewAttentionScorer(weights Weights, flagFloor float64, logger *zap.Logger) (*AttentionScorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(flagFloor) || flagFloor < 0 || flagFloor > 1 {
		return nil, &ConfigurationError{Field: "flag_floor", Value: flagFloor}
	}
	return &AttentionScorer{
		weights:   weights,
		flagFloor: flagFloor,
		logger:    logger,
	}, nil
}

// Score computes the attention score of msg from its signals
func (s *AttentionScorer) Score(msg *Message, sig Signals) AttentionScore {
	factors := map[string]float64{
		FactorSender:   clamp01(sig.SenderImportance) * s.weights.Sender,
		FactorUrgency:  clamp01(sig.UrgencyHits) * s.weights.Urgency,
		FactorCategory: clamp01(sig.CategoryTendency) * s.weights.Category,
		FactorRecency:  clamp01(sig.Recency) * s.weights.Recency,
		FactorThread:   clamp01(sig.ThreadContinuity) * s.weights.Thread,
	}
	if sig.ExplicitFlag {
		factors[FactorFlagged] = s.weights.Flagged
	}

	total := 0.0
	for _, name := range factorOrder {
		total += factors[name]
	}
	score := clamp01(total)

	floored := false
	if sig.ExplicitFlag && score < s.flagFloor {
		score = s.flagFloor
		floored = true
	}

	explanation := explain(score, factors, sig, msg.Category, floored)
	s.logger.Debug("Scored message",
		zap.String("message_id", msg.ID),
		zap.Float64("score", score),
		zap.String("explanation", explanation))

	return AttentionScore{
		Score:       score,
		Factors:     factors,
		Explanation: explanation,
	}
}

// explain names the two factors that contributed most to the score
func explain(score float64, factors map[string]float64, sig Signals, category Category, floored bool) string {
	names := make([]string, 0, len(factors))
	for name := range factors {
		names = append(names, name)
	}
	rank := make(map[string]int, len(factorOrder))
	for i, name := range factorOrder {
		rank[name] = i
	}
	sort.Slice(names, func(i, j int) bool {
		if factors[names[i]] != factors[names[j]] {
			return factors[names[i]] > factors[names[j]]
		}
		return rank[names[i]] < rank[names[j]]
	})
	if len(names) > 2 {
		names = names[:2]
	}

	reasons := make([]string, 0, len(names))
	for _, name := range names {
		reasons = append(reasons, fmt.Sprintf("%s (+%.2f)", describeFactor(name, sig, category), factors[name]))
	}

	var level string
	switch {
	case score > 0.7:
		level = "High attention"
	case score > 0.4:
		level = "Medium attention"
	default:
		level = "Low attention"
	}

	out := fmt.Sprintf("%s (%.2f): %s", level, score, strings.Join(reasons, "; "))
	if floored {
		out += "; flagged by user, raised to floor"
	}
	return out
}

func describeFactor(name string, sig Signals, category Category) string {
	switch name {
	case FactorSender:
		return "sender has " + grade(sig.SenderImportance, 0.7, 0.4, "high", "medium", "low") + " importance"
	case FactorUrgency:
		if len(sig.MatchedKeywords) == 0 {
			return "content shows no urgency indicators"
		}
		return fmt.Sprintf("content shows %s urgency (%s)",
			grade(sig.UrgencyHits, 0.7, 0.3, "high", "some", "little"),
			strings.Join(sig.MatchedKeywords, ", "))
	case FactorCategory:
		return fmt.Sprintf("%s category leans %s", categoryLabel(category),
			grade(sig.CategoryTendency, 0.6, 0.4, "priority", "neutral", "low"))
	case FactorRecency:
		return "message is " + grade(sig.Recency, 0.8, 0.5, "very recent", "recent", "older")
	case FactorThread:
		if sig.ThreadContinuity > 0.5 {
			return "thread you replied to or prioritized"
		}
		return "standalone message"
	case FactorFlagged:
		return "flagged by user"
	}
	return name
}

func grade(v, high, mid float64, hi, md, lo string) string {
	switch {
	case v > high:
		return hi
	case v > mid:
		return md
	default:
		return lo
	}
}

func categoryLabel(c Category) string {
	if c == "" {
		return "uncategorized"
	}
	return string(c)
}
