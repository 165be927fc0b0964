package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/config"
	"github.com/sells-group/menu-cli/internal/extract"
	"github.com/sells-group/menu-cli/internal/fetcher"
	"github.com/sells-group/menu-cli/internal/ocr"
	"github.com/sells-group/menu-cli/internal/parser"
	"github.com/sells-group/menu-cli/internal/resolve"
	"github.com/sells-group/menu-cli/pkg/jina"
)

// Build wires a Pipeline from configuration. The returned cleanup releases
// provider clients and must be called when the pipeline is no longer used.
func Build(ctx context.Context, cfg *config.Config) (*Pipeline, func(), error) {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgents:   cfg.Fetch.UserAgents,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxAttempts:  cfg.Fetch.MaxAttempts,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		RatePerHost:  cfg.Fetch.RatePerHost,
	})

	pdf, err := ocr.NewTextExtractor(cfg.PDF, cfg.OCR)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: pdf extractor")
	}
	images, err := ocr.NewImageReader(ctx, cfg.OCR)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: image reader")
	}
	cleanup := func() {
		if c, ok := images.(io.Closer); ok {
			if err := c.Close(); err != nil {
				zap.L().Warn("pipeline: close image reader", zap.Error(err))
			}
		}
	}

	popts := parser.OptionsFromConfig(cfg.Pipeline)
	ext, err := parser.NewExtractor(cfg, popts)
	if err != nil {
		cleanup()
		return nil, nil, eris.Wrap(err, "pipeline: extraction provider")
	}
	taxonomy, err := parser.LoadTaxonomy(cfg.Extraction.TaxonomyPath)
	if err != nil {
		cleanup()
		return nil, nil, eris.Wrap(err, "pipeline: taxonomy")
	}

	var reader jina.Client
	if cfg.Render.Enabled {
		if cfg.Jina.Key == "" {
			zap.L().Warn("pipeline: render enabled without jina.key, fallback disabled")
		} else {
			reader = jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
		}
	}

	p := New(Deps{
		Resolver:  resolve.NewFromConfig(cfg, f),
		Fetcher:   f,
		Extractor: extract.New(pdf, images),
		Parser:    parser.New(ext, taxonomy, popts),
		Reader:    reader,
	}, OptionsFromConfig(cfg))
	return p, cleanup, nil
}
