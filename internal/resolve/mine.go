package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/fetcher"
	"github.com/sells-group/menu-cli/internal/linkscore"
	"github.com/sells-group/menu-cli/internal/menutext"
	"github.com/sells-group/menu-cli/internal/model"
)

// menuHubs host full menus for many restaurants and are worth following
// off-site.
var menuHubs = regexp.MustCompile(`(^|\.)(toasttab\.com|square\.site|popmenu\.com|getbento\.com|spothopperapp\.com|clover\.com|menufy\.com|singleplatform\.com)$`)

const maxLabelLen = 80

// link is an anchor found on a mined page.
type link struct {
	url   string
	label string
}

// mine fetches the homepage and up to maxPages-1 menu-like same-site pages
// and returns menu-like links found on them.
func (r *Resolver) mine(ctx context.Context, home *url.URL, maxPages int) []model.Candidate {
	if r.fetcher == nil || maxPages <= 0 {
		return nil
	}
	host := model.NormalizeHost(home.Hostname())

	var out []model.Candidate
	visited := map[string]bool{}
	queue := []string{home.String()}

	for len(queue) > 0 && len(visited) < maxPages {
		page := queue[0]
		queue = queue[1:]
		if visited[dedupKey(page)] {
			continue
		}
		visited[dedupKey(page)] = true

		p, err := r.fetcher.Fetch(ctx, page)
		if err != nil {
			zap.L().Debug("resolve: mine fetch failed", zap.String("url", page), zap.Error(err))
			continue
		}
		if p.Kind != fetcher.KindHTML {
			continue
		}

		links, err := pageLinks(p.Body, p.URL)
		if err != nil {
			zap.L().Debug("resolve: mine parse failed", zap.String("url", page), zap.Error(err))
			continue
		}

		var next []model.Candidate
		for _, l := range links {
			u, err := url.Parse(l.url)
			if err != nil {
				continue
			}
			sameHost := model.NormalizeHost(u.Hostname()) == host
			if !sameHost && !linkscore.IsDocument(l.url) && !menuHubs.MatchString(model.NormalizeHost(u.Hostname())) {
				continue
			}
			score := linkscore.Score(l.url, l.label)
			if score <= 0 {
				continue
			}
			c := model.Candidate{URL: l.url, Label: l.label, Score: score + MinedBonus, Source: model.SourceMined}
			out = append(out, c)
			if sameHost && !linkscore.IsDocument(l.url) && score >= linkscore.MenuTailBonus {
				next = append(next, c)
			}
		}

		sort.SliceStable(next, func(i, j int) bool { return next[i].Score > next[j].Score })
		for _, c := range next {
			queue = append(queue, c.URL)
		}
	}
	return out
}

// pageLinks returns the absolute http(s) anchors of an HTML page plus menu
// URLs named in its JSON-LD (hasMenu / menu).
func pageLinks(body []byte, pageURL string) ([]link, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	var links []link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := resolveHref(base, href)
		if abs == "" {
			return
		}
		label := menutext.CollapseSpace(s.Text())
		if label == "" {
			label, _ = s.Attr("aria-label")
		}
		if label == "" {
			label, _ = s.Attr("title")
		}
		links = append(links, link{url: abs, label: truncateLabel(label)})
	})

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data any
		if json.Unmarshal([]byte(s.Text()), &data) != nil {
			return
		}
		for _, u := range ldMenuURLs(data) {
			if abs := resolveHref(base, u); abs != "" {
				links = append(links, link{url: abs, label: "menu"})
			}
		}
	})
	return links, nil
}

func ldMenuURLs(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			out = append(out, ldMenuURLs(e)...)
		}
	case map[string]any:
		for _, key := range []string{"hasMenu", "menu"} {
			switch m := t[key].(type) {
			case string:
				out = append(out, m)
			case map[string]any:
				if u, ok := m["url"].(string); ok {
					out = append(out, u)
				}
			}
		}
		if g, ok := t["@graph"]; ok {
			out = append(out, ldMenuURLs(g)...)
		}
	}
	return out
}

func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, p := range []string{"mailto:", "tel:", "javascript:", "sms:", "data:"} {
		if strings.HasPrefix(lower, p) {
			return ""
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func truncateLabel(s string) string {
	r := []rune(s)
	if len(r) <= maxLabelLen {
		return s
	}
	return string(r[:maxLabelLen])
}
