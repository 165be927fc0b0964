package model

// CandidateSource records how a candidate URL was discovered.
type CandidateSource string

const (
	SourceGuess    CandidateSource = "guess"
	SourceHomepage CandidateSource = "homepage"
	SourceSearch   CandidateSource = "search"
	SourceAISearch CandidateSource = "ai_search"
	SourceMined    CandidateSource = "mined"
)

// Candidate is a URL hypothesized to contain menu content.
type Candidate struct {
	URL    string          `json:"url"`
	Label  string          `json:"label,omitempty"`
	Score  int             `json:"score"`
	Source CandidateSource `json:"source,omitempty"`
}
