package parser

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a restaurant menu extraction assistant.
You receive text snapshots scraped from a restaurant's own web pages, PDFs or menu photos.
Return only dishes and beverages that are present in the text.
Never invent items, prices or sections. When an item has no price in the text, use null.
The venue may be any kind of restaurant, bar, cafe, bakery or food truck.
When the text holds several menus (lunch, dinner, drinks), keep them as separate sections.
Ignore navigation, opening hours, addresses, phone numbers, reviews and marketing copy.
Respond with strict JSON only, no prose and no code fences.`

// BuildUserPrompt renders the per-request prompt: provenance, the text
// snapshot and the output contract.
func BuildUserPrompt(req Request, maxSections, maxItems int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "BUSINESS: %s\n", orUnknown(req.Business.Name))
	fmt.Fprintf(&b, "CITY: %s\n", orUnknown(req.Business.City))
	fmt.Fprintf(&b, "ADDRESS: %s\n", orUnknown(req.Business.Address))
	fmt.Fprintf(&b, "ORIGIN URL: %s\n", orUnknown(req.Business.Website))
	b.WriteString("SNAPSHOT SOURCES:\n")
	if len(req.Sources) == 0 {
		b.WriteString("- unknown\n")
	}
	for _, s := range req.Sources {
		fmt.Fprintf(&b, "- %s\n", s)
	}

	b.WriteString("\nTEXT SNAPSHOT START\n")
	b.WriteString(req.Text)
	b.WriteString("\nTEXT SNAPSHOT END\n\n")

	b.WriteString("Return JSON with this exact shape:\n")
	b.WriteString(`{"sections":[{"name":"Section name","items":[{"name":"Item name","price":12.5}]}]}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Use the section headings found in the text; use \"Menu\" when there are none.\n")
	b.WriteString("- price is a number in the menu's currency without symbols, or null.\n")
	b.WriteString("- Keep item names as printed; drop descriptions, sizes and add-on notes.\n")
	b.WriteString("- Lines starting with two spaces are descriptions of the item above them.\n")
	fmt.Fprintf(&b, "- Hard cap: at most %d sections and %d items per section.\n", maxSections, maxItems)
	b.WriteString("- If the text contains no menu, return {\"sections\":[]}.\n")
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
