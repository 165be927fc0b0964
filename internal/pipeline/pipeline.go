// Package pipeline drives one menu discovery run: resolve candidate URLs,
// fetch and extract blocks, parse the best blocks and assemble a
// MenuDocument.
package pipeline

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/menu-cli/internal/config"
	"github.com/sells-group/menu-cli/internal/extract"
	"github.com/sells-group/menu-cli/internal/fetcher"
	"github.com/sells-group/menu-cli/internal/merge"
	"github.com/sells-group/menu-cli/internal/metrics"
	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/resolve"
	"github.com/sells-group/menu-cli/pkg/jina"
)

// Resolver produces ranked menu candidates for a business.
type Resolver interface {
	Resolve(ctx context.Context, desc model.BusinessDescriptor) []model.Candidate
}

// BlockExtractor turns a fetched payload into menu blocks.
type BlockExtractor interface {
	Extract(ctx context.Context, p *fetcher.Payload) ([]model.Block, error)
}

// SectionParser turns ranked blocks into canonical sections.
type SectionParser interface {
	Parse(ctx context.Context, blocks []model.Block, desc model.BusinessDescriptor) ([]model.Section, error)
}

// Deps are the collaborators of a Pipeline. Reader is optional; when set,
// script-only pages are re-read through it.
type Deps struct {
	Resolver  Resolver
	Fetcher   fetcher.Fetcher
	Extractor BlockExtractor
	Parser    SectionParser
	Reader    jina.Client
}

// Options bounds a run.
type Options struct {
	Concurrency     int
	MaxFetch        int
	TopBlocks       int
	MaxBlockChars   int
	TopItemsCap     int
	ThinBrunchItems int
	MergeOverlap    float64
	Deadline        time.Duration
}

// DefaultOptions returns the production limits.
func DefaultOptions() Options {
	return Options{
		Concurrency:     4,
		MaxFetch:        8,
		TopBlocks:       3,
		MaxBlockChars:   extract.DefaultMaxBlockChars,
		TopItemsCap:     merge.DefaultTopItems,
		ThinBrunchItems: 15,
		MergeOverlap:    merge.DefaultOverlap,
		Deadline:        90 * time.Second,
	}
}

// OptionsFromConfig maps configuration onto Options, keeping defaults for
// unset values.
func OptionsFromConfig(cfg *config.Config) Options {
	o := DefaultOptions()
	pc := cfg.Pipeline
	if pc.Concurrency > 0 {
		o.Concurrency = pc.Concurrency
	}
	if pc.MaxFetch > 0 {
		o.MaxFetch = pc.MaxFetch
	}
	if pc.TopBlocks > 0 {
		o.TopBlocks = pc.TopBlocks
	}
	if pc.MaxBlockChars > 0 {
		o.MaxBlockChars = pc.MaxBlockChars
	}
	if pc.TopItemsCap > 0 {
		o.TopItemsCap = pc.TopItemsCap
	}
	if pc.ThinBrunchItems > 0 {
		o.ThinBrunchItems = pc.ThinBrunchItems
	}
	if pc.DeadlineSecs > 0 {
		o.Deadline = time.Duration(pc.DeadlineSecs) * time.Second
	}
	if cfg.Guard.MergeOverlap > 0 {
		o.MergeOverlap = cfg.Guard.MergeOverlap
	}
	return o
}

// Pipeline orchestrates menu discovery for a single business. It holds no
// per-run state and may serve concurrent runs.
type Pipeline struct {
	deps Deps
	opts Options
}

// New creates a Pipeline. Zero options take their defaults.
func New(deps Deps, opts Options) *Pipeline {
	def := DefaultOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.MaxFetch <= 0 {
		opts.MaxFetch = def.MaxFetch
	}
	if opts.TopBlocks <= 0 {
		opts.TopBlocks = def.TopBlocks
	}
	if opts.ThinBrunchItems <= 0 {
		opts.ThinBrunchItems = def.ThinBrunchItems
	}
	return &Pipeline{deps: deps, opts: opts}
}

var (
	brunchRe     = regexp.MustCompile(`(?i)\bbrunch\b`)
	allDayMealRe = regexp.MustCompile(`(?i)\b(dinner|lunch|all-?day)\b`)
	brunchNameRe = regexp.MustCompile(`(?i)brunch`)
)

// Run discovers the menu of desc. The only error is an invalid descriptor;
// every other failure degrades to fewer items, down to an empty document.
func (p *Pipeline) Run(ctx context.Context, desc model.BusinessDescriptor) (*model.MenuDocument, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	log := zap.L().With(zap.String("business", desc.Name))
	log.Info("pipeline: starting discovery")

	// The deadline stops new fetches only; parsing uses ctx.
	gatherCtx := ctx
	if p.opts.Deadline > 0 {
		var cancel context.CancelFunc
		gatherCtx, cancel = context.WithTimeout(ctx, p.opts.Deadline)
		defer cancel()
	}

	r := &run{p: p, desc: desc, memo: fetcher.NewMemo(p.deps.Fetcher), log: log}

	resolver := p.deps.Resolver
	if rr, ok := resolver.(*resolve.Resolver); ok {
		resolver = rr.WithFetcher(r.memo)
	}
	candidates := resolver.Resolve(gatherCtx, desc)

	doc := r.pass(ctx, gatherCtx, 1, candidates)

	if doc.IsEmpty() || p.thinBrunch(doc) {
		rest := WithoutBrunchOnly(candidates)
		if len(rest) > 0 && len(rest) < len(candidates) {
			log.Info("pipeline: retrying without brunch-only candidates",
				zap.Int("excluded", len(candidates)-len(rest)),
			)
			if second := r.pass(ctx, gatherCtx, 2, rest); !second.IsEmpty() {
				doc = second
			}
		}
	}

	if doc.IsEmpty() {
		doc = model.EmptyDocument()
	}

	log.Info("pipeline: discovery complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("sections", len(doc.Sections)),
		zap.Int("items", doc.ItemCount()),
		zap.Float64("quality", metrics.Quality(doc)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return doc, nil
}

// thinBrunch reports a single brunch section with few items, which usually
// means only the brunch page of a fuller menu was found.
func (p *Pipeline) thinBrunch(doc *model.MenuDocument) bool {
	return len(doc.Sections) == 1 &&
		brunchNameRe.MatchString(doc.Sections[0].Name) &&
		doc.ItemCount() < p.opts.ThinBrunchItems
}

// BrunchOnly reports whether a URL or label names brunch without also naming
// dinner, lunch or all-day service.
func BrunchOnly(s string) bool {
	return brunchRe.MatchString(s) && !allDayMealRe.MatchString(s)
}

// WithoutBrunchOnly drops candidates whose URL or label is brunch-only.
func WithoutBrunchOnly(cs []model.Candidate) []model.Candidate {
	out := make([]model.Candidate, 0, len(cs))
	for _, c := range cs {
		if BrunchOnly(c.URL) || BrunchOnly(c.Label) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// run is the state of one Run call.
type run struct {
	p    *Pipeline
	desc model.BusinessDescriptor
	memo *fetcher.Memo
	log  *zap.Logger
}

// collected is what one candidate contributed.
type collected struct {
	blocks  []model.Block
	fetched bool
}

// pass gathers blocks from candidates, parses the top ranked ones and
// assembles a document. It returns an empty document when nothing parsed.
func (r *run) pass(ctx, gatherCtx context.Context, n int, candidates []model.Candidate) *model.MenuDocument {
	start := time.Now()
	log := r.log.With(zap.Int("pass", n))

	blocks := r.gather(gatherCtx, log, candidates)
	ranked := extract.Rank(blocks, r.p.opts.MaxBlockChars)
	if len(ranked) == 0 {
		log.Info("pipeline: pass found no blocks",
			zap.Int("candidates", len(candidates)),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return model.EmptyDocument()
	}

	sections, err := r.p.deps.Parser.Parse(ctx, ranked, r.desc)
	if err != nil {
		log.Warn("pipeline: parse failed, treating pass as empty", zap.Error(err))
		sections = nil
	}

	used := ranked[:min(len(ranked), r.p.opts.TopBlocks)]
	doc := r.p.assemble(sections, used)

	log.Info("pipeline: pass complete",
		zap.Int("blocks", len(ranked)),
		zap.Int("sections", len(doc.Sections)),
		zap.Int("items", doc.ItemCount()),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return doc
}

// gather fetches and extracts candidates in order until MaxFetch of them
// were fetched. Candidates run in windows through a bounded worker pool;
// results are index-addressed so the output does not depend on timing.
func (r *run) gather(ctx context.Context, log *zap.Logger, candidates []model.Candidate) []model.Block {
	var blocks []model.Block
	fetched, next := 0, 0

	for fetched < r.p.opts.MaxFetch && next < len(candidates) && ctx.Err() == nil {
		window := candidates[next:min(len(candidates), next+r.p.opts.MaxFetch-fetched)]
		next += len(window)

		results := make([]collected, len(window))
		var g errgroup.Group
		g.SetLimit(r.p.opts.Concurrency)
		for i, c := range window {
			g.Go(func() error {
				results[i] = r.collect(ctx, log, c)
				return nil
			})
		}
		_ = g.Wait()

		for _, res := range results {
			if res.fetched {
				fetched++
			}
			blocks = append(blocks, res.blocks...)
		}
	}

	if ctx.Err() != nil {
		log.Warn("pipeline: deadline reached, continuing with gathered blocks",
			zap.Int("fetched", fetched),
			zap.Int("blocks", len(blocks)),
		)
	}
	return blocks
}

// collect fetches and extracts one candidate. Every failure is logged and
// dropped.
func (r *run) collect(ctx context.Context, log *zap.Logger, c model.Candidate) collected {
	if ctx.Err() != nil {
		return collected{}
	}
	log = log.With(zap.String("candidate", c.URL))

	payload, err := r.memo.Fetch(ctx, c.URL)
	if err != nil {
		log.Debug("pipeline: fetch failed", zap.Error(err))
		return collected{}
	}

	blocks, err := r.p.deps.Extractor.Extract(ctx, payload)
	if err != nil {
		if errors.Is(err, model.ErrUnsupportedFormat) {
			log.Debug("pipeline: unsupported payload", zap.String("content_type", payload.ContentType))
		} else {
			log.Warn("pipeline: extract failed", zap.Error(err))
		}
		return collected{fetched: true}
	}

	if len(blocks) == 0 && payload.Block == fetcher.BlockJSShell {
		blocks = r.render(ctx, log, payload.URL)
	}

	for i := range blocks {
		if blocks[i].Label == "" {
			blocks[i].Label = c.Label
		}
	}
	return collected{blocks: blocks, fetched: true}
}

// render re-reads a script-only page through the reader service.
func (r *run) render(ctx context.Context, log *zap.Logger, pageURL string) []model.Block {
	if r.p.deps.Reader == nil {
		return nil
	}
	resp, err := r.p.deps.Reader.Read(ctx, pageURL)
	if err != nil {
		log.Debug("pipeline: render failed", zap.Error(err))
		return nil
	}
	blocks := extract.FromMarkdown(resp.Data.Content, pageURL, resp.Data.Title)
	log.Debug("pipeline: rendered page", zap.Int("blocks", len(blocks)))
	return blocks
}

// assemble merges sections and computes top items, metrics and sources.
func (p *Pipeline) assemble(sections []model.Section, used []model.Block) *model.MenuDocument {
	merged := merge.Sections(sections, p.opts.MergeOverlap)
	if len(merged) == 0 {
		return model.EmptyDocument()
	}
	top := merge.TopItems(merged, p.opts.TopItemsCap)
	return &model.MenuDocument{
		Sections: merged,
		TopItems: top,
		Metrics:  metrics.Build(merged, top),
		Sources:  sources(used),
	}
}

func sources(blocks []model.Block) []model.Source {
	out := []model.Source{}
	seen := make(map[string]bool)
	for _, b := range blocks {
		if b.SourceURL == "" || seen[b.SourceURL] {
			continue
		}
		seen[b.SourceURL] = true
		out = append(out, model.Source{URL: b.SourceURL, Title: b.Title, Label: b.Label})
	}
	return out
}
