// Package guard decides whether a freshly computed menu may replace the one
// already stored for a business.
package guard

import (
	"fmt"
	"regexp"

	"github.com/rotisserie/eris"

	"github.com/sells-group/menu-cli/internal/config"
	"github.com/sells-group/menu-cli/internal/model"
)

// DefaultNarrowPattern matches meal periods that signal a partial scrape.
const DefaultNarrowPattern = `(?i)\b(brunch|breakfast)\b`

// Rejection reasons.
const (
	ReasonThinner  = "thinner"
	ReasonNarrowed = "narrowed"
	ReasonEmptied  = "emptied"
)

// Decision is the outcome of Evaluate.
type Decision struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Guard holds the rejection thresholds.
type Guard struct {
	minPreviousItems    int
	minPreviousSections int
	narrow              *regexp.Regexp
}

// New creates a Guard from config. Zero values take the defaults.
func New(cfg config.GuardConfig) (*Guard, error) {
	g := &Guard{
		minPreviousItems:    cfg.MinPreviousItems,
		minPreviousSections: cfg.MinPreviousSections,
	}
	if g.minPreviousItems <= 0 {
		g.minPreviousItems = 8
	}
	if g.minPreviousSections <= 0 {
		g.minPreviousSections = 2
	}
	pattern := cfg.NarrowPattern
	if pattern == "" {
		pattern = DefaultNarrowPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "guard: narrow pattern %q", pattern)
	}
	g.narrow = re
	return g, nil
}

// Default returns a Guard with the standard thresholds.
func Default() *Guard {
	g, _ := New(config.GuardConfig{})
	return g
}

// Evaluate reports whether next may replace prev. With no previous
// document anything is accepted; an equal or richer document always is.
func (g *Guard) Evaluate(prev, next *model.MenuDocument) Decision {
	if prev == nil {
		return Decision{Accept: true}
	}
	prevItems, nextItems := prev.ItemCount(), next.ItemCount()

	if nextItems < prevItems && prevItems >= g.minPreviousItems {
		return Decision{
			Reason: ReasonThinner,
			Detail: fmt.Sprintf("new result has %d items, previous had %d", nextItems, prevItems),
		}
	}

	if next != nil && len(next.Sections) == 1 && g.narrow.MatchString(next.Sections[0].Name) &&
		len(prev.Sections) >= g.minPreviousSections {
		return Decision{
			Reason: ReasonNarrowed,
			Detail: fmt.Sprintf("new result is a single %q section, previous had %d sections", next.Sections[0].Name, len(prev.Sections)),
		}
	}

	if next.IsEmpty() && !prev.IsEmpty() {
		return Decision{Reason: ReasonEmptied, Detail: "new result is empty"}
	}

	return Decision{Accept: true}
}
