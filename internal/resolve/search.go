package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/pkg/jina"
	"github.com/sells-group/menu-cli/pkg/perplexity"
)

// Hit is one URL returned by a search provider.
type Hit struct {
	URL    string
	Title  string
	Source model.CandidateSource
}

// Searcher finds pages that may hold a business's menu.
type Searcher interface {
	Name() string
	Search(ctx context.Context, desc model.BusinessDescriptor) ([]Hit, error)
}

// Query is one web search. Site, when set, restricts results to that host.
type Query struct {
	Text string
	Site string
}

// Queries returns the web searches for a business: a site-restricted
// "menu" search when the website host is known, then "menu", "menu pdf"
// and "dinner menu" variants of name + city.
func Queries(desc model.BusinessDescriptor) []Query {
	base := strings.Join(nonEmpty(desc.Name, desc.City), " ")
	q := []Query{{Text: base + " menu"}, {Text: base + " menu pdf"}, {Text: base + " dinner menu"}}
	if host := desc.WebsiteHost(); host != "" {
		q = append([]Query{{Text: base + " menu", Site: host}}, q...)
	}
	return q
}

// JinaSearcher runs Queries through Jina search until MaxHits distinct
// URLs are collected.
type JinaSearcher struct {
	client  jina.Client
	maxHits int
}

// NewJinaSearcher creates a JinaSearcher. maxHits <= 0 defaults to 12.
func NewJinaSearcher(client jina.Client, maxHits int) *JinaSearcher {
	if maxHits <= 0 {
		maxHits = 12
	}
	return &JinaSearcher{client: client, maxHits: maxHits}
}

// Name implements Searcher.
func (s *JinaSearcher) Name() string { return "jina" }

// Search implements Searcher. A failed query is skipped; an error is
// returned only when every query failed.
func (s *JinaSearcher) Search(ctx context.Context, desc model.BusinessDescriptor) ([]Hit, error) {
	queries := Queries(desc)

	seen := make(map[string]bool)
	var hits []Hit
	var failed int
	var lastErr error

	for _, q := range queries {
		var opts []jina.SearchOption
		if q.Site != "" {
			opts = append(opts, jina.WithSiteFilter(q.Site))
		}

		resp, err := s.client.Search(ctx, q.Text, opts...)
		if err != nil {
			failed++
			lastErr = err
			zap.L().Debug("resolve: jina query failed", zap.String("query", q.Text), zap.String("site", q.Site), zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		for _, r := range resp.Data {
			k := dedupKey(r.URL)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			hits = append(hits, Hit{URL: r.URL, Title: r.Title, Source: model.SourceSearch})
		}
		if len(hits) >= s.maxHits {
			break
		}
	}

	if failed == len(queries) {
		return nil, eris.Wrap(lastErr, "resolve: all jina queries failed")
	}
	if len(hits) > s.maxHits {
		hits = hits[:s.maxHits]
	}
	return hits, nil
}

const aiSearchPrompt = `Find public internet pages that contain the FULL restaurant or cafe menu for: %s.
%s
Rules:
- Return 6-12 URLs.
- Prioritize brand-owned menu pages, "/menu" URLs, menu PDFs and images, then hosted menus (ToastTab, Square, BentoBox, SpotHopper, Popmenu).
- Only include review or map sites when they host the full menu.
- Avoid location index pages.
- Exclude delivery marketplaces (DoorDash, UberEats, Grubhub, Postmates) unless no other source shows a full menu.
- Prefer pages for the location matching the given city or address.

Return strict JSON only in this shape:
{"urls":[{"url":"https://...","title":"..."}]}`

// PerplexitySearcher asks an AI web search model for menu URLs and also
// keeps the citations it grounded the answer on.
type PerplexitySearcher struct {
	client perplexity.Client
}

// NewPerplexitySearcher creates a PerplexitySearcher.
func NewPerplexitySearcher(client perplexity.Client) *PerplexitySearcher {
	return &PerplexitySearcher{client: client}
}

// Name implements Searcher.
func (s *PerplexitySearcher) Name() string { return "perplexity" }

type aiURLs struct {
	URLs []struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"urls"`
}

// Search implements Searcher.
func (s *PerplexitySearcher) Search(ctx context.Context, desc model.BusinessDescriptor) ([]Hit, error) {
	hint := ""
	if desc.Website != "" {
		hint = "Official website hint: " + desc.Website + "\n"
	}
	query := strings.Join(nonEmpty(desc.Name, desc.City, desc.Address), " ")

	temp := 0.0
	resp, err := s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: "You are a web research agent that finds restaurant menu URLs. Return strict JSON only."},
			{Role: "user", Content: fmt.Sprintf(aiSearchPrompt, query, hint)},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "resolve: perplexity search")
	}

	var hits []Hit
	seen := make(map[string]bool)
	add := func(u, title string) {
		u = strings.TrimSpace(u)
		k := dedupKey(u)
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		hits = append(hits, Hit{URL: u, Title: strings.TrimSpace(title), Source: model.SourceAISearch})
	}

	var parsed aiURLs
	if body := jsonObject(resp.Content()); body != "" {
		if err := json.Unmarshal([]byte(body), &parsed); err != nil {
			zap.L().Debug("resolve: perplexity answer is not json", zap.Error(err))
		}
	}
	for _, u := range parsed.URLs {
		add(u.URL, u.Title)
	}
	for _, c := range resp.Citations {
		add(c, "")
	}
	return hits, nil
}

// jsonObject returns the outermost {...} span of s, or "".
func jsonObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func nonEmpty(parts ...string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
