package parser

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/config"
	"github.com/sells-group/menu-cli/pkg/anthropic"
)

// NewExtractor builds the configured extraction capability. The "auto"
// provider uses Claude when anthropic.key is set and the heuristic parser
// otherwise.
func NewExtractor(cfg *config.Config, opts Options) (Extractor, error) {
	switch cfg.Extraction.Provider {
	case "", "auto":
		if cfg.Anthropic.Key == "" {
			zap.L().Warn("parser: no anthropic.key configured, using heuristic extraction")
			return HeuristicExtractor{}, nil
		}
		return newAnthropic(cfg, opts), nil
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("parser: anthropic provider requires anthropic.key")
		}
		return newAnthropic(cfg, opts), nil
	case "heuristic":
		return HeuristicExtractor{}, nil
	default:
		return nil, eris.Errorf("parser: unknown extraction provider %q", cfg.Extraction.Provider)
	}
}

func newAnthropic(cfg *config.Config, opts Options) *AnthropicExtractor {
	client := anthropic.NewClient(cfg.Anthropic.Key)
	timeout := time.Duration(cfg.Extraction.TimeoutSecs) * time.Second
	return NewAnthropicExtractor(client, cfg.Anthropic, timeout, opts)
}

// OptionsFromConfig reads parser limits from the pipeline config.
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		TopBlocks:          cfg.TopBlocks,
		PriceMin:           cfg.PriceMin,
		PriceMax:           cfg.PriceMax,
		MaxSections:        cfg.MaxSections,
		MaxItemsPerSection: cfg.MaxItemsPerSection,
		MaxItemsTotal:      cfg.MaxItemsTotal,
	}
}
