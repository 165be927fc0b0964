package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/menu-cli/internal/menutext"
)

// Window globals that frameworks use to hand server state to the client.
var stateGlobals = []string{
	"__APOLLO_STATE__",
	"__NUXT__",
	"__INITIAL_STATE__",
	"__PRELOADED_STATE__",
	"__NEXT_DATA__",
}

var (
	// Keys whose array value names its own parent rather than a section.
	genericListKey = regexp.MustCompile(`(?i)^(items|menu_?items|dishes|products|entries|foods|children|nodes|data|list)$`)
	sectionKey     = regexp.MustCompile(`(?i)(menu|items|sections|categories|dishes|products|foods|beverages)`)
)

const sampleSize = 12

// appPayloads returns one block body per embedded application state blob
// that holds item lists.
func appPayloads(doc *goquery.Document) []string {
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		v, ok := scriptState(s)
		if !ok {
			return
		}
		w := &payloadWalker{}
		w.visit(v, "")
		if text := w.text(); text != "" {
			out = append(out, text)
		}
	})
	return out
}

func scriptState(s *goquery.Selection) (any, bool) {
	raw := strings.TrimSpace(s.Text())
	if raw == "" {
		return nil, false
	}
	typ, _ := s.Attr("type")
	id, _ := s.Attr("id")
	if strings.EqualFold(typ, "application/json") || id == "__NEXT_DATA__" {
		return decodeFirst(raw)
	}
	if typ != "" && !strings.Contains(strings.ToLower(typ), "javascript") {
		return nil, false
	}
	for _, g := range stateGlobals {
		i := strings.Index(raw, g)
		if i < 0 {
			continue
		}
		rest := raw[i+len(g):]
		eq := strings.IndexByte(rest, '=')
		if eq < 0 {
			continue
		}
		if v, ok := decodeFirst(rest[eq+1:]); ok {
			return v, true
		}
	}
	return nil, false
}

// decodeFirst decodes the first JSON value in s and ignores what follows.
func decodeFirst(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

type payloadSection struct {
	name  string
	lines []string
}

type payloadWalker struct {
	sections []payloadSection
}

func (w *payloadWalker) visit(v any, label string) {
	switch x := v.(type) {
	case []any:
		if looksLikeItemArray(x) {
			w.add(label, x)
			return
		}
		for _, e := range x {
			w.visit(e, label)
		}
	case map[string]any:
		own := nameOf(x)
		for _, k := range sortedKeys(x) {
			child := x[k]
			arr, isArr := child.([]any)
			if isArr && sectionKey.MatchString(k) && looksLikeItemArray(arr) {
				name := own
				if !genericListKey.MatchString(k) {
					name = k
				}
				w.add(name, arr)
				continue
			}
			w.visit(child, own)
		}
	}
}

func (w *payloadWalker) add(name string, arr []any) {
	sec := payloadSection{name: menutext.CollapseSpace(name)}
	for _, e := range arr {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		n := menutext.CollapseSpace(nameOf(m))
		if n == "" {
			continue
		}
		sec.lines = append(sec.lines, itemLine(n, payloadPrice(m)))
		if d := menutext.CollapseSpace(str(m["description"])); d != "" && runeLen(d) <= maxDescription {
			sec.lines = append(sec.lines, "  "+d)
		}
	}
	if len(sec.lines) > 0 {
		w.sections = append(w.sections, sec)
	}
}

func (w *payloadWalker) text() string {
	var lines []string
	for _, s := range w.sections {
		if s.name != "" {
			lines = append(lines, "## "+s.name)
		}
		lines = append(lines, s.lines...)
	}
	return strings.Join(lines, "\n")
}

// looksLikeItemArray samples the first entries: at least two must carry a
// name and at least one a price.
func looksLikeItemArray(arr []any) bool {
	named, priced := 0, 0
	for i, e := range arr {
		if i == sampleSize {
			break
		}
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if nameOf(m) != "" {
			named++
		}
		if payloadPrice(m) != nil {
			priced++
		}
	}
	return named >= 2 && priced >= 1
}

func nameOf(m map[string]any) string {
	for _, k := range []string{"name", "title", "displayName", "label"} {
		if s := str(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// payloadPrice reads the common price shapes. Square-style money objects
// (amountMoney, money) and *Cents fields carry minor units.
func payloadPrice(m map[string]any) *float64 {
	for _, k := range []string{"price", "amount", "priceAmount"} {
		switch v := m[k].(type) {
		case map[string]any:
			if p := moneyPrice(v, false); p != nil {
				return p
			}
		default:
			if p := menutext.Coerce(v); p != nil {
				return p
			}
		}
	}
	for _, k := range []string{"amountMoney", "money", "priceMoney"} {
		if v, ok := m[k].(map[string]any); ok {
			if p := moneyPrice(v, true); p != nil {
				return p
			}
		}
	}
	for _, k := range []string{"priceCents", "price_cents"} {
		if p := menutext.Coerce(m[k]); p != nil {
			c := *p / 100
			return &c
		}
	}
	return nil
}

func moneyPrice(m map[string]any, minorUnits bool) *float64 {
	p := menutext.Coerce(m["amount"])
	if p == nil {
		p = menutext.Coerce(m["value"])
	}
	if p == nil {
		return nil
	}
	if minorUnits && isInteger(m["amount"]) && m["currency"] != nil {
		c := *p / 100
		return &c
	}
	return p
}

func isInteger(v any) bool {
	switch x := v.(type) {
	case json.Number:
		_, err := x.Int64()
		return err == nil
	case float64:
		return x == float64(int64(x))
	default:
		return false
	}
}
