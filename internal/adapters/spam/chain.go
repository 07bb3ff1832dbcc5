package spam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/whitelist"
	"go.uber.org/zap"
)

// Chain guards a primary classifier. Whitelisted senders skip
// classification, verdicts are cached per sender, and a primary failure
// falls back to the secondary classifier.
type Chain struct {
	primary   core.SpamClassifier
	fallback  core.SpamClassifier
	whitelist *whitelist.Checker
	cache     core.VerdictCache
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewChain creates a classifier chain. fallback, checker and cache may be nil.
func NewChain(primary, fallback core.SpamClassifier, checker *whitelist.Checker, cache core.VerdictCache, cacheTTL time.Duration, logger *zap.Logger) *Chain {
	return &Chain{
		primary:   primary,
		fallback:  fallback,
		whitelist: checker,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// Classify returns a spam verdict for msg
func (c *Chain) Classify(ctx context.Context, msg *core.Message) (*core.SpamVerdict, error) {
	sender := core.NormalizeKey(msg.From.Email)

	// Skip whitelisted senders
	if c.whitelist != nil && c.whitelist.IsWhitelisted(sender) {
		return &core.SpamVerdict{
			Score:       0,
			Confidence:  1,
			Explanation: "Domain is whitelisted",
			ModelUsed:   "whitelist",
			AnalyzedAt:  time.Now(),
		}, nil
	}

	// Check cache if enabled
	if c.cache != nil && sender != "" {
		cached, err := c.cache.GetVerdict(ctx, sender)
		switch {
		case err == nil:
			c.logger.Debug("Using cached spam verdict", zap.String("sender", sender))
			return cached, nil
		case !errors.Is(err, core.ErrNotFound):
			c.logger.Warn("Failed to read verdict cache", zap.String("sender", sender), zap.Error(err))
		}
	}

	verdict, err := c.primary.Classify(ctx, msg)
	if err != nil {
		if c.fallback == nil {
			return nil, err
		}
		c.logger.Warn("Spam classifier failed, using fallback",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		verdict, err = c.fallback.Classify(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("fallback classifier failed: %w", err)
		}
		// Fallback verdicts are not cached so the primary gets another chance
		return verdict, nil
	}

	// Update cache if enabled
	if c.cache != nil && sender != "" {
		if err := c.cache.SetVerdict(ctx, sender, verdict, c.cacheTTL); err != nil {
			c.logger.Error("Failed to update verdict cache", zap.Error(err))
		}
	}

	return verdict, nil
}
