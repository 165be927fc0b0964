package resolve

import (
	"net/url"
	"path"
	"strings"
)

// DefaultExcludePaths are path globs that never hold a menu.
var DefaultExcludePaths = []string{
	"/blog/*",
	"/news/*",
	"/press/*",
	"/careers/*",
	"/jobs/*",
	"/gift-cards*",
}

// PathMatcher drops candidate URLs whose path matches a glob. A pattern
// ending in "/*" also matches everything below that directory.
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher lowercases patterns once. Empty input uses DefaultExcludePaths.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = DefaultExcludePaths
	}
	m := &PathMatcher{patterns: make([]string, 0, len(patterns))}
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			m.patterns = append(m.patterns, p)
		}
	}
	return m
}

// IsExcluded reports whether rawURL should be dropped. Unparsable URLs are
// excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchGlob(pattern, p) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, p string) bool {
	if ok, _ := path.Match(pattern, p); ok {
		return true
	}
	if dir, ok := strings.CutSuffix(pattern, "/*"); ok {
		return p == dir || strings.HasPrefix(p, dir+"/")
	}
	return false
}
