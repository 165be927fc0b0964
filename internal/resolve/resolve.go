// Package resolve turns a business descriptor into a ranked list of URLs
// that may hold its menu.
package resolve

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/menu-cli/internal/config"
	"github.com/sells-group/menu-cli/internal/fetcher"
	"github.com/sells-group/menu-cli/internal/linkscore"
	"github.com/sells-group/menu-cli/internal/model"
)

// Score adjustments layered on top of linkscore.Score.
const (
	GuessBonus    = 2
	SameHostBonus = 4
	MinedBonus    = 3
	HomepageScore = 1
)

// CommonMenuPaths are probed on the business website.
var CommonMenuPaths = []string{
	"/menu",
	"/menus",
	"/our-menu",
	"/dining-menu",
	"/lunch-menu",
	"/dinner-menu",
	"/brunch-menu",
	"/bar-menu",
	"/drinks",
	"/beverages",
	"/wine",
	"/cocktails",
	"/happy-hour",
}

var marketplace = regexp.MustCompile(`(^|\.)(doordash|ubereats|grubhub|postmates|seamless|chownow)\.com$`)

// Options bounds a resolution.
type Options struct {
	MaxCandidates int
	MineMaxPages  int
	SearchTimeout time.Duration
	ExcludePaths  []string
}

// DefaultOptions returns the production limits.
func DefaultOptions() Options {
	return Options{
		MaxCandidates: 20,
		MineMaxPages:  3,
		SearchTimeout: 15 * time.Second,
		ExcludePaths:  DefaultExcludePaths,
	}
}

// OptionsFromConfig maps configuration onto Options, keeping defaults for
// unset values.
func OptionsFromConfig(cfg *config.Config) Options {
	o := DefaultOptions()
	if cfg.Pipeline.MaxCandidates > 0 {
		o.MaxCandidates = cfg.Pipeline.MaxCandidates
	}
	if cfg.Search.MineMaxPages > 0 {
		o.MineMaxPages = cfg.Search.MineMaxPages
	}
	if cfg.Search.TimeoutSecs > 0 {
		o.SearchTimeout = time.Duration(cfg.Search.TimeoutSecs) * time.Second
	}
	if len(cfg.Search.ExcludePaths) > 0 {
		o.ExcludePaths = cfg.Search.ExcludePaths
	}
	return o
}

// Resolver builds menu candidates from path guesses, web search and links
// mined from the business website.
type Resolver struct {
	searchers []Searcher
	finder    WebsiteFinder
	fetcher   fetcher.Fetcher
	exclude   *PathMatcher
	opts      Options
}

// New creates a Resolver. f is used to mine the website and may be nil;
// finder may be nil.
func New(f fetcher.Fetcher, searchers []Searcher, finder WebsiteFinder, opts Options) *Resolver {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultOptions().MaxCandidates
	}
	return &Resolver{
		searchers: searchers,
		finder:    finder,
		fetcher:   f,
		exclude:   NewPathMatcher(opts.ExcludePaths),
		opts:      opts,
	}
}

// WithFetcher returns a copy of r that mines through f, so a run can share
// its fetch memo with the resolver.
func (r *Resolver) WithFetcher(f fetcher.Fetcher) *Resolver {
	cp := *r
	cp.fetcher = f
	return &cp
}

// Resolve returns candidates ordered by score desc, host asc, path asc and
// URL asc. It never fails: every search or fetch error is logged and the
// source skipped. With a known website the result holds at least the
// homepage; without one it may be empty.
func (r *Resolver) Resolve(ctx context.Context, desc model.BusinessDescriptor) []model.Candidate {
	start := time.Now()
	log := zap.L().With(zap.String("business", desc.Name))

	if desc.WebsiteURL() == nil && r.finder != nil {
		fctx, cancel := r.searchContext(ctx)
		site, err := r.finder.FindWebsite(fctx, desc)
		cancel()
		switch {
		case err != nil:
			log.Debug("resolve: website lookup failed", zap.Error(err))
		case site != "":
			log.Debug("resolve: website found", zap.String("website", site))
			desc.Website = site
		}
	}

	home := desc.WebsiteURL()
	host := desc.WebsiteHost()

	var seeds []model.Candidate
	if home != nil {
		seeds = append(seeds, guesses(home)...)
		seeds = append(seeds, model.Candidate{URL: home.String(), Label: "homepage", Score: HomepageScore, Source: model.SourceHomepage})
	}

	// Searchers and the miner run concurrently; results are index-addressed
	// so the merge order is fixed.
	found := make([][]model.Candidate, len(r.searchers)+1)
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range r.searchers {
		g.Go(func() error {
			sctx, cancel := r.searchContext(gctx)
			defer cancel()
			hits, err := s.Search(sctx, desc)
			if err != nil {
				log.Debug("resolve: search failed", zap.String("provider", s.Name()), zap.Error(err))
				return nil
			}
			found[i] = scoreHits(hits, host)
			return nil
		})
	}
	if home != nil {
		g.Go(func() error {
			found[len(r.searchers)] = r.mine(gctx, home, r.opts.MineMaxPages)
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range found {
		seeds = append(seeds, f...)
	}

	out := r.finalize(seeds)
	if len(out) == 0 && home != nil {
		out = []model.Candidate{{URL: home.String(), Label: "homepage", Score: HomepageScore, Source: model.SourceHomepage}}
	}

	log.Info("resolve: candidates ready",
		zap.Int("seeds", len(seeds)),
		zap.Int("candidates", len(out)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	for _, c := range out {
		log.Debug("resolve: candidate", zap.String("url", c.URL), zap.Int("score", c.Score), zap.String("source", string(c.Source)))
	}
	return out
}

func (r *Resolver) searchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.SearchTimeout > 0 {
		return context.WithTimeout(ctx, r.opts.SearchTimeout)
	}
	return context.WithCancel(ctx)
}

func guesses(home *url.URL) []model.Candidate {
	out := make([]model.Candidate, 0, len(CommonMenuPaths))
	for _, p := range CommonMenuPaths {
		u := home.ResolveReference(&url.URL{Path: p})
		s := u.String()
		out = append(out, model.Candidate{URL: s, Score: linkscore.Score(s, "") + GuessBonus, Source: model.SourceGuess})
	}
	return out
}

func scoreHits(hits []Hit, host string) []model.Candidate {
	out := make([]model.Candidate, 0, len(hits))
	for _, h := range hits {
		u, err := url.Parse(strings.TrimSpace(h.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		u.Fragment = ""
		s := u.String()
		score := linkscore.Score(s, h.Title)
		if host != "" && model.NormalizeHost(u.Hostname()) == host {
			score += SameHostBonus
		}
		out = append(out, model.Candidate{URL: s, Label: h.Title, Score: score, Source: h.Source})
	}
	return out
}

// finalize drops excluded paths, dedups, applies the marketplace rule,
// sorts and caps.
func (r *Resolver) finalize(seeds []model.Candidate) []model.Candidate {
	index := make(map[string]int)
	var uniq []model.Candidate
	for _, c := range seeds {
		if r.exclude.IsExcluded(c.URL) {
			continue
		}
		k := dedupKey(c.URL)
		if k == "" {
			continue
		}
		if i, ok := index[k]; ok {
			if c.Score > uniq[i].Score {
				if c.Label == "" {
					c.Label = uniq[i].Label
				}
				uniq[i] = c
			}
			continue
		}
		index[k] = len(uniq)
		uniq = append(uniq, c)
	}

	var direct, markets []model.Candidate
	for _, c := range uniq {
		if isMarketplace(c.URL) {
			markets = append(markets, c)
		} else {
			direct = append(direct, c)
		}
	}
	out := direct
	if len(out) == 0 {
		out = markets
	}

	SortCandidates(out)
	if len(out) > r.opts.MaxCandidates {
		out = out[:r.opts.MaxCandidates]
	}
	return out
}

// SortCandidates orders by score desc, host asc, path asc, then URL asc.
func SortCandidates(cs []model.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ah, ap := hostPath(a.URL)
		bh, bp := hostPath(b.URL)
		if ah != bh {
			return ah < bh
		}
		if ap != bp {
			return ap < bp
		}
		return a.URL < b.URL
	})
}

func hostPath(raw string) (string, string) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}
	return strings.ToLower(u.Hostname()), u.Path
}

// dedupKey is scheme://host/path without query, fragment, "www." or a
// trailing slash. It returns "" for non-http(s) URLs.
func dedupKey(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	return scheme + "://" + model.NormalizeHost(u.Host) + strings.TrimRight(u.Path, "/")
}

func isMarketplace(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return marketplace.MatchString(model.NormalizeHost(u.Hostname()))
}
