package factory

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mikey/llm-mail-triage/internal/adapters/bedrock"
	"github.com/mikey/llm-mail-triage/internal/adapters/gemini"
	"github.com/mikey/llm-mail-triage/internal/adapters/openai"
	"github.com/mikey/llm-mail-triage/internal/adapters/spam"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/utils"
	"github.com/mikey/llm-mail-triage/internal/whitelist"
	"go.uber.org/zap"
)

// Spam providers
const (
	ProviderHeuristic = "heuristic"
	ProviderBedrock   = "bedrock"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
)

// ClassifierFactory creates spam classifiers
type ClassifierFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	closers       []io.Closer
}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateClassifier creates the configured spam classifier. LLM providers
// are wrapped in a chain that consults the whitelist and the verdict
// cache first and falls back to the heuristic classifier when the model
// fails. cache may be nil.
func (f *ClassifierFactory) CreateClassifier(ctx context.Context, cache core.VerdictCache) (core.SpamClassifier, error) {
	spamCfg, err := f.cfg.GetSpam()
	if err != nil {
		return nil, err
	}

	heuristic := spam.NewHeuristicClassifier(f.logger)
	checker := whitelist.NewChecker(spamCfg.WhitelistedDomains, f.logger)
	if domains := checker.Domains(); len(domains) > 0 {
		f.logger.Info("Loaded whitelisted domains", zap.Strings("domains", domains))
	}

	var primary core.SpamClassifier
	switch spamCfg.Provider {
	case "", ProviderHeuristic:
		return spam.NewChain(heuristic, nil, checker, nil, 0, f.logger), nil
	case ProviderBedrock:
		c := f.cfg.GetBedrock()
		primary, err = bedrock.NewClassifierForRegion(ctx, c.Region, c.ModelID, c.MaxTokens, c.Temperature, c.TopP, c.MaxBodySize, f.logger, f.textProcessor)
		if err != nil {
			return nil, err
		}
	case ProviderGemini:
		c := f.cfg.GetGemini()
		gc, err := gemini.NewClassifier(ctx, c.APIKey, c.ModelName, c.MaxTokens, c.Temperature, c.TopP, c.MaxBodySize, f.logger, f.textProcessor)
		if err != nil {
			return nil, err
		}
		f.closers = append(f.closers, gc)
		primary = gc
	case ProviderOpenAI:
		c := f.cfg.GetOpenAI()
		primary = openai.NewClassifierFromKey(c.APIKey, c.ModelName, c.MaxTokens, c.Temperature, c.TopP, c.MaxBodySize, f.logger, f.textProcessor)
	default:
		return nil, fmt.Errorf("unsupported spam provider: %s", spamCfg.Provider)
	}

	if !spamCfg.CacheEnabled {
		cache = nil
	}
	f.logger.Info("Using LLM spam classifier",
		zap.String("provider", spamCfg.Provider),
		zap.Bool("cache_enabled", cache != nil))
	return spam.NewChain(primary, heuristic, checker, cache, spamCfg.CacheTTL, f.logger), nil
}

// Close releases clients opened by CreateClassifier
func (f *ClassifierFactory) Close() error {
	var errs []error
	for _, c := range f.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.closers = nil
	return errors.Join(errs...)
}
