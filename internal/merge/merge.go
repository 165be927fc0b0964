// Package merge collapses duplicate items and near-identical sections.
package merge

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/menu-cli/internal/model"
)

// DefaultOverlap is the name-set overlap at which two sections merge.
const DefaultOverlap = 0.85

// DefaultTopItems caps the cross-section item list.
const DefaultTopItems = 500

var sectionStopWords = map[string]bool{"morning": true, "food": true, "menu": true, "the": true}

// NormName folds s for comparison: diacritics removed, lower-cased,
// punctuation and symbols turned into spaces, whitespace collapsed.
func NormName(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

// ItemKey identifies an item by normalized name and price.
func ItemKey(it model.Item) string {
	price := ""
	if it.Price != nil {
		price = fmt.Sprintf("%.2f", *it.Price)
	}
	return NormName(it.Name) + "|" + price
}

// Sections deduplicates items within each section, merges sections with the
// same normalized name, then repeatedly merges pairs whose item-name overlap
// reaches threshold until no pair does. A merged section takes the earlier
// position. The input is not modified.
func Sections(in []model.Section, threshold float64) []model.Section {
	if threshold <= 0 {
		threshold = DefaultOverlap
	}

	var out []model.Section
	byName := make(map[string]int)
	for _, s := range in {
		key := NormName(s.Name)
		if i, ok := byName[key]; ok {
			out[i].Items = union(out[i].Items, s.Items)
			continue
		}
		byName[key] = len(out)
		out = append(out, model.Section{Name: s.Name, Items: union(nil, s.Items)})
	}

	for merged := true; merged; {
		merged = false
		for i := 0; i < len(out) && !merged; i++ {
			for j := i + 1; j < len(out); j++ {
				if Overlap(out[i], out[j]) < threshold {
					continue
				}
				out[i] = model.Section{
					Name:  betterName(out[i].Name, out[j].Name),
					Items: union(out[i].Items, out[j].Items),
				}
				out = append(out[:j], out[j+1:]...)
				merged = true
				break
			}
		}
	}

	if out == nil {
		return []model.Section{}
	}
	return out
}

// Overlap is the size of the intersection of the two sections' normalized
// item-name sets divided by the size of the smaller set. Empty sections
// overlap nothing.
func Overlap(a, b model.Section) float64 {
	na, nb := nameSet(a.Items), nameSet(b.Items)
	if len(na) == 0 || len(nb) == 0 {
		return 0
	}
	if len(na) > len(nb) {
		na, nb = nb, na
	}
	common := 0
	for n := range na {
		if nb[n] {
			common++
		}
	}
	return float64(common) / float64(len(na))
}

// TopItems walks sections in order and returns the items with distinct
// keys, at most limit of them.
func TopItems(sections []model.Section, limit int) []model.Item {
	if limit <= 0 {
		limit = DefaultTopItems
	}
	out := []model.Item{}
	seen := make(map[string]bool)
	for _, s := range sections {
		for _, it := range s.Items {
			if len(out) == limit {
				return out
			}
			k := ItemKey(it)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, it)
		}
	}
	return out
}

func union(a, b []model.Item) []model.Item {
	out := make([]model.Item, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, list := range [][]model.Item{a, b} {
		for _, it := range list {
			k := ItemKey(it)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, it)
		}
	}
	return out
}

func nameSet(items []model.Item) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		if n := NormName(it.Name); n != "" {
			set[n] = true
		}
	}
	return set
}

// betterName keeps the name that is shorter once stop words are removed;
// ties go to the shorter original, then to a.
func betterName(a, b string) string {
	sa, sb := stripStopWords(a), stripStopWords(b)
	switch {
	case sa == "" && sb != "":
		return b
	case sb == "" && sa != "":
		return a
	case len(sa) != len(sb):
		if len(sb) < len(sa) {
			return b
		}
		return a
	case len(b) < len(a):
		return b
	default:
		return a
	}
}

func stripStopWords(name string) string {
	var kept []string
	for _, w := range strings.Fields(NormName(name)) {
		if !sectionStopWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
