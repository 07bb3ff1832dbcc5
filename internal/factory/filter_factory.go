package factory

import (
	"fmt"
	"os"

	"github.com/mikey/llm-mail-triage/internal/adapters/filter"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/ports"
	"github.com/mikey/llm-mail-triage/internal/utils"
	"go.uber.org/zap"
)

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	triager       filter.Triager
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor, triager filter.Triager) *FilterFactory {
	return &FilterFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
		triager:       triager,
	}
}

// CreateEmailFilter creates an email filter based on the configuration
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	server := f.cfg.GetServer()

	switch server.FilterType {
	case "postfix":
		return filter.NewPostfixFilter(
			f.triager,
			f.logger,
			server.ListenAddress,
			server.BlockSpam,
			filter.Headers{
				Decision: server.Headers.Decision,
				Score:    server.Headers.Score,
				Reason:   server.Headers.Reason,
			},
			server.Postfix.Address,
			server.Postfix.Port,
			server.Postfix.Enabled,
		), nil
	case "cli":
		return filter.NewCliFilter(f.triager, f.logger, f.textProcessor, os.Stdout, f.cfg.GetBool("cli.verbose")), nil
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", server.FilterType)
	}
}
