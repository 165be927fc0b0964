package model

// Item is a single menu entry. A nil Price means the price is unknown; it is
// never represented as zero.
type Item struct {
	Name  string   `json:"name"`
	Price *float64 `json:"price"`
}

// Section is a named group of items under a canonical section name.
type Section struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// SectionMetric summarizes one section. Avg is nil when no item has a price.
type SectionMetric struct {
	Avg   *float64 `json:"avg"`
	Count int      `json:"count"`
}

// Metrics holds price statistics for a menu document.
type Metrics struct {
	AvgTicket *float64                 `json:"avg_ticket"`
	BySection map[string]SectionMetric `json:"by_section"`
}

// Source is a page whose content contributed to the document.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Label string `json:"label,omitempty"`
}

// MenuDocument is the normalized output of a pipeline run.
type MenuDocument struct {
	Sections []Section `json:"sections"`
	TopItems []Item    `json:"top_items"`
	Metrics  Metrics   `json:"metrics"`
	Sources  []Source  `json:"sources"`
}

// EmptyDocument returns a document with no items. Slices and maps are
// non-nil so the JSON encoding is [] and {} rather than null.
func EmptyDocument() *MenuDocument {
	return &MenuDocument{
		Sections: []Section{},
		TopItems: []Item{},
		Metrics:  Metrics{BySection: map[string]SectionMetric{}},
		Sources:  []Source{},
	}
}

// ItemCount returns the number of distinct items in the document.
func (d *MenuDocument) ItemCount() int {
	if d == nil {
		return 0
	}
	return len(d.TopItems)
}

// IsEmpty reports whether the document has no sections.
func (d *MenuDocument) IsEmpty() bool {
	return d == nil || len(d.Sections) == 0
}

// Price returns a pointer to v, for building items in code and tests.
func Price(v float64) *float64 {
	return &v
}
