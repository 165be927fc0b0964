package extract

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/menu-cli/internal/menutext"
)

// structuredMenus returns one block body per schema.org Menu (or standalone
// MenuSection) found in the page's JSON-LD scripts.
func structuredMenus(doc *goquery.Document) []string {
	var out []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		raw = strings.TrimSuffix(raw, ";")
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return
		}
		walkLD(v, func(menu map[string]any) {
			if text := menuLines(menu); text != "" {
				out = append(out, text)
			}
		})
	})
	return out
}

// walkLD visits every Menu or MenuSection node, looking through @graph,
// hasMenu and any other nesting. It does not descend into a node it reports.
func walkLD(v any, visit func(map[string]any)) {
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			walkLD(e, visit)
		}
	case map[string]any:
		if hasType(x, "Menu") || hasType(x, "MenuSection") {
			visit(x)
			return
		}
		for _, k := range sortedKeys(x) {
			walkLD(x[k], visit)
		}
	}
}

func menuLines(menu map[string]any) string {
	var lines []string
	if hasType(menu, "MenuSection") {
		lines = sectionLines(menu, lines)
	} else {
		for _, sec := range asList(menu["hasMenuSection"]) {
			if m, ok := sec.(map[string]any); ok {
				lines = sectionLines(m, lines)
			}
		}
		if items := asList(menu["hasMenuItem"]); len(items) > 0 {
			if name := str(menu["name"]); name != "" {
				lines = append(lines, "## "+name)
			}
			lines = itemLines(items, lines)
		}
	}
	if !hasItemLine(lines) {
		return ""
	}
	return strings.Join(lines, "\n")
}

func sectionLines(sec map[string]any, lines []string) []string {
	if name := str(sec["name"]); name != "" {
		lines = append(lines, "## "+name)
	}
	lines = itemLines(asList(sec["hasMenuItem"]), lines)
	for _, sub := range asList(sec["hasMenuSection"]) {
		if m, ok := sub.(map[string]any); ok {
			lines = sectionLines(m, lines)
		}
	}
	return lines
}

func itemLines(items []any, lines []string) []string {
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		name := menutext.CollapseSpace(str(m["name"]))
		if name == "" {
			continue
		}
		lines = append(lines, itemLine(name, ldPrice(m)))
		if d := menutext.CollapseSpace(str(m["description"])); d != "" && runeLen(d) <= maxDescription {
			lines = append(lines, "  "+d)
		}
	}
	return lines
}

// ldPrice reads offers.price, offers[0].price,
// offers.priceSpecification.price and price, in that order.
func ldPrice(item map[string]any) *float64 {
	offers := item["offers"]
	if list, ok := offers.([]any); ok && len(list) > 0 {
		offers = list[0]
	}
	if o, ok := offers.(map[string]any); ok {
		if p := menutext.Coerce(o["price"]); p != nil {
			return p
		}
		spec := o["priceSpecification"]
		if list, ok := spec.([]any); ok && len(list) > 0 {
			spec = list[0]
		}
		if s, ok := spec.(map[string]any); ok {
			if p := menutext.Coerce(s["price"]); p != nil {
				return p
			}
		}
	}
	return menutext.Coerce(item["price"])
}

func itemLine(name string, price *float64) string {
	if price == nil {
		return name
	}
	return name + " - " + menutext.FormatPrice(*price)
}

func hasItemLine(lines []string) bool {
	for _, l := range lines {
		if !strings.HasPrefix(l, "## ") && !strings.HasPrefix(l, "  ") {
			return true
		}
	}
	return false
}

func hasType(m map[string]any, want string) bool {
	for _, t := range asList(m["@type"]) {
		if s, ok := t.(string); ok && strings.EqualFold(strings.TrimPrefix(s, "schema:"), want) {
			return true
		}
	}
	return false
}

func asList(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	default:
		return []any{x}
	}
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	default:
		return ""
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
