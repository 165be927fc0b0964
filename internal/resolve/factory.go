package resolve

import (
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/config"
	"github.com/sells-group/menu-cli/internal/fetcher"
	"github.com/sells-group/menu-cli/pkg/google"
	"github.com/sells-group/menu-cli/pkg/jina"
	"github.com/sells-group/menu-cli/pkg/perplexity"
)

// NewFromConfig wires the configured search providers and, when a Places
// key is set, the website finder. Providers without a key are skipped.
func NewFromConfig(cfg *config.Config, f fetcher.Fetcher) *Resolver {
	var searchers []Searcher
	for _, name := range cfg.Search.Providers {
		switch name {
		case "jina":
			if cfg.Jina.Key == "" {
				zap.L().Debug("resolve: jina search disabled, no key")
				continue
			}
			client := jina.NewClient(cfg.Jina.Key,
				jina.WithBaseURL(cfg.Jina.BaseURL),
				jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL),
			)
			searchers = append(searchers, NewJinaSearcher(client, cfg.Search.MaxHits))
		case "perplexity":
			if cfg.Perplexity.Key == "" {
				zap.L().Debug("resolve: perplexity search disabled, no key")
				continue
			}
			client := perplexity.NewClient(cfg.Perplexity.Key,
				perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
				perplexity.WithModel(cfg.Perplexity.Model),
			)
			searchers = append(searchers, NewPerplexitySearcher(client))
		default:
			zap.L().Warn("resolve: unknown search provider", zap.String("provider", name))
		}
	}

	var finder WebsiteFinder
	if cfg.Google.Key != "" {
		finder = NewPlacesFinder(google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL)))
	}

	return New(f, searchers, finder, OptionsFromConfig(cfg))
}
