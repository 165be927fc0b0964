package model

// BlockKind classifies where a block of menu-like text came from.
type BlockKind string

const (
	BlockStructured BlockKind = "structured-data"
	BlockAppPayload BlockKind = "app-payload"
	BlockPricedText BlockKind = "priced-text"
)

// Weight is the ranking weight of the kind. Higher weights are parsed first.
func (k BlockKind) Weight() int {
	switch k {
	case BlockStructured:
		return 4
	case BlockAppPayload:
		return 3
	case BlockPricedText:
		return 1
	default:
		return 0
	}
}

// Block is a contiguous span of extracted text believed to contain menu content.
type Block struct {
	Text      string    `json:"text"`
	Kind      BlockKind `json:"kind"`
	Length    int       `json:"length"`
	SourceURL string    `json:"source_url,omitempty"`
	Title     string    `json:"title,omitempty"`
	Label     string    `json:"label,omitempty"`
}
