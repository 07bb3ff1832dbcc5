package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/filter"
	"github.com/mikey/llm-mail-triage/internal/adapters/store"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/factory"
	"github.com/mikey/llm-mail-triage/internal/ports"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

// provideTriage registers everything from the store up to the triage
// service and the email filter. It expects *config.Config, *zap.Logger
// and core.Observer to be provided already.
func provideTriage(container *dig.Container) error {
	// Register text processor and factories
	for _, ctor := range []any{
		utils.NewTextProcessor,
		factory.NewStoreFactory,
		factory.NewClassifierFactory,
		factory.NewFilterFactory,
	} {
		if err := container.Provide(ctor); err != nil {
			return err
		}
	}

	// Register store
	if err := container.Provide(func(f *factory.StoreFactory) (store.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return err
	}

	// Register spam classifier
	if err := container.Provide(func(f *factory.ClassifierFactory, st store.Store) (core.SpamClassifier, error) {
		return f.CreateClassifier(context.Background(), st)
	}); err != nil {
		return err
	}

	// Register learning components
	if err := container.Provide(func() *core.LearningStore {
		return core.NewLearningStore(nil)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(ls *core.LearningStore, st store.Store, logger *zap.Logger) *core.SignalExtractor {
		return core.NewSignalExtractor(ls, st, logger)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*core.AttentionScorer, error) {
		triage, err := cfg.GetTriage()
		if err != nil {
			return nil, err
		}
		return core.NewAttentionScorer(triage.Weights, triage.FlagFloor, logger)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(cfg *config.Config, ls *core.LearningStore, logger *zap.Logger) (*core.FeedbackLearner, error) {
		learning := cfg.GetLearning()
		return core.NewFeedbackLearner(ls, learning.Damping, learning.KeywordStep, logger)
	}); err != nil {
		return err
	}

	// Register triage service
	if err := container.Provide(newTriageService); err != nil {
		return err
	}
	if err := container.Provide(func(svc *core.TriageService) filter.Triager {
		return svc
	}); err != nil {
		return err
	}

	// Register email filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	}); err != nil {
		return err
	}

	return nil
}

type serviceParams struct {
	dig.In

	Config     *config.Config
	Logger     *zap.Logger
	Learning   *core.LearningStore
	Extractor  *core.SignalExtractor
	Scorer     *core.AttentionScorer
	Learner    *core.FeedbackLearner
	Classifier core.SpamClassifier
	Store      store.Store
	Observer   core.Observer `optional:"true"`
}

func newTriageService(p serviceParams) (*core.TriageService, error) {
	thresholds, err := p.Config.GetThresholds(p.Logger)
	if err != nil {
		return nil, err
	}
	triage, err := p.Config.GetTriage()
	if err != nil {
		return nil, err
	}
	spamCfg, err := p.Config.GetSpam()
	if err != nil {
		return nil, err
	}
	storeCfg, err := p.Config.GetStore()
	if err != nil {
		return nil, err
	}
	learning := p.Config.GetLearning()

	return core.NewTriageService(
		p.Learning,
		p.Extractor,
		p.Scorer,
		p.Learner,
		p.Classifier,
		p.Store,
		p.Store,
		p.Store,
		p.Observer,
		p.Logger,
		core.ServiceOptions{
			Thresholds:    thresholds,
			SpamThreshold: spamCfg.Threshold,
			Concurrency:   triage.Concurrency,
			SnapshotTTL:   storeCfg.SnapshotTTL,
			InsightsTopN:  learning.InsightsTopN,
			Autosave:      learning.Autosave,
		},
	)
}
