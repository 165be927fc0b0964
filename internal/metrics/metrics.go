// Package metrics computes price statistics and a quality score for menus.
package metrics

import (
	"math"
	"strings"

	"github.com/sells-group/menu-cli/internal/merge"
	"github.com/sells-group/menu-cli/internal/model"
)

// Build computes per-section averages and counts and the flat average
// ticket. The ticket averages every distinct item across sections, plus any
// topItems not found in a section, so a capped top list does not truncate
// it. Averages are rounded to cents and nil when there is no price to
// average.
func Build(sections []model.Section, topItems []model.Item) model.Metrics {
	m := model.Metrics{BySection: make(map[string]model.SectionMetric, len(sections))}
	var all []model.Item
	for _, s := range sections {
		m.BySection[s.Name] = model.SectionMetric{
			Avg:   average(s.Items),
			Count: len(s.Items),
		}
		all = append(all, s.Items...)
	}
	all = append(all, topItems...)
	m.AvgTicket = average(distinct(all))
	return m
}

func distinct(items []model.Item) []model.Item {
	out := make([]model.Item, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		k := merge.ItemKey(it)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, it)
	}
	return out
}

func average(items []model.Item) *float64 {
	sum, n := 0.0, 0
	for _, it := range items {
		if it.Price == nil || math.IsNaN(*it.Price) || math.IsInf(*it.Price, 0) {
			continue
		}
		sum += *it.Price
		n++
	}
	if n == 0 {
		return nil
	}
	avg := round2(sum / float64(n))
	return &avg
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Quality scores how complete a document looks, from 0 to 1: item count
// (saturating at 10), price coverage, name diversity (distinct names over
// items) and whether the average ticket is a sane price.
func Quality(doc *model.MenuDocument) float64 {
	if doc == nil || len(doc.TopItems) == 0 {
		return 0
	}
	items := doc.TopItems
	priced := 0
	names := make(map[string]bool, len(items))
	for _, it := range items {
		if it.Price != nil {
			priced++
		}
		names[strings.ToLower(strings.TrimSpace(it.Name))] = true
	}

	n := float64(len(items))
	count := math.Min(n, 10) / 10
	coverage := float64(priced) / n
	diversity := float64(len(names)) / n
	avgOK := 0.0
	if a := doc.Metrics.AvgTicket; a != nil && *a >= saneMin && *a <= saneMax {
		avgOK = 1
	}
	return count*0.35 + coverage*0.35 + diversity*0.2 + avgOK*0.1
}

// Bounds of a plausible average ticket.
const (
	saneMin = 1.0
	saneMax = 200.0
)
