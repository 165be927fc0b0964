package menutext

import (
	"regexp"
	"strings"
)

var (
	mdImageRe   = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRe    = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdHeadingRe = regexp.MustCompile(`^#{1,6}\s+`)
	mdBulletRe  = regexp.MustCompile(`^(?:[-*+]|\d+[.)])\s+`)
	mdEmphRe    = regexp.MustCompile(`(\*\*|__|\*|~~|\x60)`)
	mdRuleRe    = regexp.MustCompile(`^(?:[-*_]\s*){3,}$`)
	mdTableSep  = regexp.MustCompile(`^\|?(\s*:?-{2,}:?\s*\|)+\s*:?-*:?\s*$`)
)

// StripMarkdown removes markdown markup from one line and reports whether
// the line was a heading. Table cells are joined with spaces.
func StripMarkdown(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if s == "" || mdRuleRe.MatchString(s) || mdTableSep.MatchString(s) {
		return "", false
	}
	heading := false
	if mdHeadingRe.MatchString(s) {
		heading = true
		s = mdHeadingRe.ReplaceAllString(s, "")
	}
	s = strings.TrimLeft(s, "> ")
	s = mdBulletRe.ReplaceAllString(s, "")
	s = mdImageRe.ReplaceAllString(s, "")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = mdEmphRe.ReplaceAllString(s, "")
	if strings.HasPrefix(s, "|") || strings.HasSuffix(s, "|") {
		s = strings.ReplaceAll(strings.Trim(s, "|"), "|", "  ")
	}
	s = strings.ReplaceAll(s, `\`, "")
	return CollapseSpace(s), heading
}
