package parser

import (
	"context"
	"strconv"
	"strings"
)

// HeuristicExtractor reads the normalized block format directly: "## "
// lines open sections, "Name - price" lines are items, indented lines are
// descriptions and "---" separates blocks. It needs no network access.
type HeuristicExtractor struct{}

// Extract implements Extractor.
func (HeuristicExtractor) Extract(_ context.Context, req Request) (*RawMenu, error) {
	menu := &RawMenu{Sections: []RawSection{}}
	var cur *RawSection

	for _, line := range strings.Split(req.Text, "\n") {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "  ") {
			continue
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "---":
			cur = nil
			continue
		case strings.HasPrefix(line, "## "):
			menu.Sections = append(menu.Sections, RawSection{Name: strings.TrimSpace(line[3:])})
			cur = &menu.Sections[len(menu.Sections)-1]
			continue
		case strings.HasPrefix(line, "# "):
			continue
		}

		if cur == nil {
			menu.Sections = append(menu.Sections, RawSection{})
			cur = &menu.Sections[len(menu.Sections)-1]
		}
		cur.Items = append(cur.Items, itemEntry(line))
	}
	return menu, nil
}

func itemEntry(line string) RawEntry {
	if i := strings.LastIndex(line, " - "); i > 0 {
		if p, err := strconv.ParseFloat(strings.TrimSpace(line[i+3:]), 64); err == nil {
			return RawEntry{Name: strings.TrimSpace(line[:i]), Price: p}
		}
	}
	return RawEntry{Name: line}
}
