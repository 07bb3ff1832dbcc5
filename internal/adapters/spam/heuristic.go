package spam

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// HeuristicModel is reported as ModelUsed by the heuristic classifier
const HeuristicModel = "heuristic"

// minIndicatorHits is how many content indicators make a message spam
const minIndicatorHits = 2

// DefaultIndicators are phrases typical of unsolicited mail
var DefaultIndicators = []string{
	"you've won",
	"claim now",
	"limited time",
	"click here immediately",
	"congratulations",
	"prize",
	"lottery",
	"million dollars",
	"urgent action required",
	"verify account",
	"suspended",
	"free money",
	"inheritance",
	"nigerian prince",
}

// DefaultSenderTokens mark a sender address as suspicious on their own
var DefaultSenderTokens = []string{"suspicious", "prize", "lottery", "winner", "claim"}

// HeuristicClassifier flags spam by counting indicator phrases
type HeuristicClassifier struct {
	indicators   []string
	senderTokens []string
	logger       *zap.Logger
}

// NewHeuristicClassifier creates a heuristic classifier with the default indicator lists
func NewHeuristicClassifier(logger *zap.Logger) *HeuristicClassifier {
	return &HeuristicClassifier{
		indicators:   DefaultIndicators,
		senderTokens: DefaultSenderTokens,
		logger:       logger,
	}
}

// Classify scores msg by indicator hits. It never fails.
func (h *HeuristicClassifier) Classify(ctx context.Context, msg *core.Message) (*core.SpamVerdict, error) {
	// A Caser is stateful, so each call gets its own
	fold := cases.Fold()
	text := fold.String(msg.Subject + "\n" + msg.Body)
	text = strings.ReplaceAll(text, "’", "'")

	var hits []string
	for _, phrase := range h.indicators {
		if strings.Contains(text, phrase) {
			hits = append(hits, phrase)
		}
	}

	sender := fold.String(msg.From.Email)
	var senderHit string
	for _, token := range h.senderTokens {
		if strings.Contains(sender, token) {
			senderHit = token
			break
		}
	}

	isSpam := len(hits) >= minIndicatorHits || senderHit != ""
	score := float64(len(hits)) / float64(minIndicatorHits*2)
	if senderHit != "" {
		score += 0.5
	}
	if score > 1 {
		score = 1
	}

	var explanation string
	switch {
	case senderHit != "":
		explanation = fmt.Sprintf("sender address contains %q", senderHit)
	case len(hits) > 0:
		explanation = fmt.Sprintf("matched spam indicators: %s", strings.Join(hits, ", "))
	default:
		explanation = "no spam indicators"
	}

	confidence := 0.6
	if isSpam {
		confidence = 0.8
	}

	h.logger.Debug("Heuristic spam check",
		zap.String("message_id", msg.ID),
		zap.Int("indicator_hits", len(hits)),
		zap.Bool("is_spam", isSpam))

	return &core.SpamVerdict{
		IsSpam:      isSpam,
		Score:       score,
		Confidence:  confidence,
		Explanation: explanation,
		ModelUsed:   HeuristicModel,
		AnalyzedAt:  time.Now(),
	}, nil
}
