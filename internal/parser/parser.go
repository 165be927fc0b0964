// Package parser turns ranked menu blocks into normalized sections through a
// pluggable structured-extraction capability.
package parser

import (
	"context"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/menutext"
	"github.com/sells-group/menu-cli/internal/model"
)

// blockSeparator joins the texts of the blocks sent in one request.
const blockSeparator = "\n\n---\n\n"

// Request is one structured-extraction call.
type Request struct {
	Text     string
	Business model.BusinessDescriptor
	Sources  []string
}

// RawMenu is the untrusted output of an Extractor.
type RawMenu struct {
	Sections []RawSection `json:"sections"`
}

// RawSection is an unvalidated section.
type RawSection struct {
	Name  string     `json:"name"`
	Items []RawEntry `json:"items"`
}

// RawEntry is an unvalidated item. Price may be a number, a string or null.
type RawEntry struct {
	Name  string `json:"name"`
	Price any    `json:"price"`
}

// Extractor is the structured-extraction capability.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*RawMenu, error)
}

// Options bounds the parser output.
type Options struct {
	TopBlocks          int
	PriceMin           float64
	PriceMax           float64
	MaxSections        int
	MaxItemsPerSection int
	MaxItemsTotal      int
}

// DefaultOptions returns the standard limits.
func DefaultOptions() Options {
	return Options{
		TopBlocks:          3,
		PriceMin:           1,
		PriceMax:           200,
		MaxSections:        24,
		MaxItemsPerSection: 600,
		MaxItemsTotal:      2000,
	}
}

// Parser validates and canonicalizes what an Extractor returns.
type Parser struct {
	extractor Extractor
	taxonomy  *Taxonomy
	opts      Options
	sanitizer *bluemonday.Policy
}

// New creates a Parser. A nil taxonomy uses the built-in one; zero options
// take their defaults.
func New(extractor Extractor, taxonomy *Taxonomy, opts Options) *Parser {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	def := DefaultOptions()
	if opts.TopBlocks <= 0 {
		opts.TopBlocks = def.TopBlocks
	}
	if opts.PriceMax <= 0 {
		opts.PriceMin, opts.PriceMax = def.PriceMin, def.PriceMax
	}
	if opts.MaxSections <= 0 {
		opts.MaxSections = def.MaxSections
	}
	if opts.MaxItemsPerSection <= 0 {
		opts.MaxItemsPerSection = def.MaxItemsPerSection
	}
	if opts.MaxItemsTotal <= 0 {
		opts.MaxItemsTotal = def.MaxItemsTotal
	}
	return &Parser{
		extractor: extractor,
		taxonomy:  taxonomy,
		opts:      opts,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Parse sends the top blocks to the extractor and returns validated
// sections. Blocks are expected in rank order. No blocks means no call and
// no sections. An extractor failure returns an empty list and an error
// wrapping model.ErrExtractionFailure; callers may treat it as empty.
func (p *Parser) Parse(ctx context.Context, blocks []model.Block, desc model.BusinessDescriptor) ([]model.Section, error) {
	if len(blocks) == 0 {
		return []model.Section{}, nil
	}
	if len(blocks) > p.opts.TopBlocks {
		blocks = blocks[:p.opts.TopBlocks]
	}

	texts := make([]string, 0, len(blocks))
	var sources []string
	seen := make(map[string]bool)
	for _, b := range blocks {
		texts = append(texts, b.Text)
		if b.SourceURL != "" && !seen[b.SourceURL] {
			seen[b.SourceURL] = true
			sources = append(sources, b.SourceURL)
		}
	}

	req := Request{
		Text:     strings.Join(texts, blockSeparator),
		Business: desc,
		Sources:  sources,
	}

	start := time.Now()
	raw, err := p.extractor.Extract(ctx, req)
	if err != nil {
		zap.L().Warn("parser: extraction failed",
			zap.String("business", desc.Name),
			zap.Error(err),
		)
		return []model.Section{}, eris.Wrapf(model.ErrExtractionFailure, "parse: %v", err)
	}

	sections := p.Normalize(raw)
	zap.L().Debug("parser: sections parsed",
		zap.String("business", desc.Name),
		zap.Int("blocks", len(blocks)),
		zap.Int("sections", len(sections)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return sections, nil
}

// Normalize applies the output caps, cleans names, bounds prices, drops
// empty sections and canonicalizes section names.
func (p *Parser) Normalize(raw *RawMenu) []model.Section {
	out := []model.Section{}
	if raw == nil {
		return out
	}

	total := 0
	for _, rs := range raw.Sections {
		if len(out) == p.opts.MaxSections || total == p.opts.MaxItemsTotal {
			break
		}
		sec := model.Section{
			Name:  p.taxonomy.Canonicalize(p.clean(rs.Name)),
			Items: []model.Item{},
		}
		for _, re := range rs.Items {
			if len(sec.Items) == p.opts.MaxItemsPerSection || total == p.opts.MaxItemsTotal {
				break
			}
			name := p.clean(re.Name)
			if menutext.IsJunkName(name) {
				continue
			}
			sec.Items = append(sec.Items, model.Item{Name: name, Price: p.price(re.Price)})
			total++
		}
		if len(sec.Items) > 0 {
			out = append(out, sec)
		}
	}
	return out
}

// clean strips markup and entities and collapses whitespace.
func (p *Parser) clean(s string) string {
	s = p.sanitizer.Sanitize(s)
	s = html.UnescapeString(s)
	return menutext.CollapseSpace(s)
}

func (p *Parser) price(v any) *float64 {
	f := menutext.Coerce(v)
	if f == nil || *f < p.opts.PriceMin || *f > p.opts.PriceMax {
		return nil
	}
	return f
}
