// Package linkscore ranks URLs by how likely they are to show a menu.
package linkscore

import (
	"net/url"
	"regexp"
	"strings"
)

// MenuWords matches generic menu, food and drink vocabulary. It is shared
// with the block extractor, which applies it to text instead of URLs.
var MenuWords = regexp.MustCompile(`(?i)(menu|entrees|mains|starters|appetizers|pizzas?|burgers?|sandwich(?:es)?|salads?|drinks?|beverages?|sides?|desserts?|food)`)

var (
	menuTail    = regexp.MustCompile(`/menus?/?$`)
	mealSegment = regexp.MustCompile(`(^|[/_-])(dinner|lunch|brunch|drinks|bar|desserts?|kids|all-day)([/_.-]|$)`)
	pdfExt      = regexp.MustCompile(`\.pdf$`)
	imageExt    = regexp.MustCompile(`\.(jpe?g|png|webp)$`)
	offTopic    = regexp.MustCompile(`/(locations?|stores?|reservations?|about|contact|events?)([/_-]|$)`)
	locationIdx = regexp.MustCompile(`^/(locations?|stores?)(/[a-z0-9-]+)?/?$`)
)

// Weights applied by Score.
const (
	MenuTailBonus    = 8
	MealSegmentBonus = 5
	KeywordBonus     = 3
	PDFBonus         = 6
	ImageBonus       = 4
	OffTopicPenalty  = 6
	LocationPenalty  = 8
)

// Score returns the menu relevance of rawURL with an optional anchor label.
// It is total: unparsable input is scored on the raw string.
func Score(rawURL, label string) int {
	p := pathOf(rawURL)
	score := 0

	if menuTail.MatchString(p) {
		score += MenuTailBonus
	}
	if mealSegment.MatchString(p) {
		score += MealSegmentBonus
	}
	pathHasMenuWord := MenuWords.MatchString(p)
	if pathHasMenuWord || MenuWords.MatchString(label) {
		score += KeywordBonus
	}
	switch {
	case pdfExt.MatchString(p):
		score += PDFBonus
	case imageExt.MatchString(p):
		score += ImageBonus
	}

	if !pathHasMenuWord {
		switch {
		case locationIdx.MatchString(p):
			score -= LocationPenalty
		case offTopic.MatchString(p):
			score -= OffTopicPenalty
		}
	}
	return score
}

// IsDocument reports whether the URL path names a PDF or image file.
func IsDocument(rawURL string) bool {
	p := pathOf(rawURL)
	return pdfExt.MatchString(p) || imageExt.MatchString(p)
}

func pathOf(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if u, err := url.Parse(raw); err == nil && (u.Host != "" || strings.HasPrefix(u.Path, "/")) {
		p := u.Path
		if p == "" {
			p = "/"
		}
		return strings.ToLower(p)
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return strings.ToLower(raw)
}
