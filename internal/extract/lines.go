package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/sells-group/menu-cli/internal/linkscore"
	"github.com/sells-group/menu-cli/internal/menutext"
)

// minPricedRows is how many priced rows a text region needs to count as a menu.
const minPricedRows = 2

const maxDescription = 160

var (
	headingRe     = regexp.MustCompile(`^[A-Z][A-Za-z0-9 '&-]{2,30}$`)
	sectionWordRe = regexp.MustCompile(`(?i)\b(breakfast|brunch|lunch|dinner|specials?|soups?|tacos?|pasta|sushi|rolls?|wines?|beers?|cocktails?|coffee|teas?|kids|happy hour|bowls?|sweets|bar)\b`)
)

// FromText normalizes menu-like plain or markdown text into block lines.
// It reports false when fewer than two priced rows survive.
func FromText(text string) (string, bool) {
	return formatLines(strings.Split(text, "\n"))
}

func formatLines(lines []string) (string, bool) {
	w := &lineWriter{}
	for _, raw := range lines {
		w.add(raw)
	}
	w.flush()
	if w.priced < minPricedRows {
		return "", false
	}
	return strings.Join(w.out, "\n"), true
}

// lineWriter classifies lines one at a time. A short unpriced line is held
// as pending so a price on the next line can complete it; a pending heading
// that no price claims is written as a section.
type lineWriter struct {
	out            []string
	priced         int
	pending        string
	pendingHeading bool
	lastItem       bool
	described      bool
}

func (w *lineWriter) add(raw string) {
	text, mdHeading := menutext.StripMarkdown(raw)
	if text == "" {
		return
	}
	if menutext.IsJunkLine(text) {
		if !w.pendingHeading {
			w.pending = ""
		}
		w.flush()
		w.lastItem = false
		return
	}

	name, price, priced := menutext.SplitPrice(text)
	if !priced && isHeading(text, mdHeading) {
		w.flush()
		w.pending = text
		w.pendingHeading = true
		return
	}

	if priced {
		if name == "" {
			name = w.pending
			w.pending = ""
			w.pendingHeading = false
		} else {
			w.flush()
		}
		if name == "" || menutext.IsJunkName(name) {
			w.lastItem = false
			return
		}
		w.out = append(w.out, name+" - "+menutext.FormatPrice(price))
		w.priced++
		w.lastItem = true
		w.described = false
		return
	}

	w.flush()
	if looksLikeName(text) {
		w.pending = text
		return
	}
	w.describe(text)
}

// flush settles the pending line: a heading becomes a section, anything
// else becomes the previous item's description or is dropped.
func (w *lineWriter) flush() {
	if w.pending == "" {
		return
	}
	p, heading := w.pending, w.pendingHeading
	w.pending, w.pendingHeading = "", false
	if heading {
		w.out = append(w.out, "## "+p)
		w.lastItem = false
		return
	}
	w.describe(p)
}

func (w *lineWriter) describe(text string) {
	if !w.lastItem || w.described || runeLen(text) > maxDescription {
		return
	}
	w.out = append(w.out, "  "+text)
	w.described = true
}

func isHeading(text string, mdHeading bool) bool {
	n := runeLen(text)
	if n < 3 || n > 40 || menutext.IsJunkName(text) {
		return false
	}
	if mdHeading {
		return true
	}
	if headingRe.MatchString(text) && (linkscore.MenuWords.MatchString(text) || sectionWordRe.MatchString(text)) {
		return true
	}
	return isShouting(text) && n <= 30
}

// isShouting reports an all-caps line with no digits, a common way menus
// set section titles.
func isShouting(s string) bool {
	letters := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			return false
		case unicode.IsLetter(r):
			if unicode.IsLower(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 3
}

func looksLikeName(s string) bool {
	return runeLen(s) <= 60 && len(strings.Fields(s)) <= 8 && !strings.ContainsAny(s[len(s)-1:], ".!?")
}
