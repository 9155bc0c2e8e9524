package types

// ParseOutcome tags how a two-block planner output was read.
type ParseOutcome string

// Parse outcomes.
const (
	OutcomeParsed       ParseOutcome = "parsed"
	OutcomeFallbackUsed ParseOutcome = "fallback_used"
	OutcomeUnparseable  ParseOutcome = "unparseable"
)

// Estimates are the planner's own size predictions for the outline.
type Estimates struct {
	WordCount     int            `json:"wordCount"`
	H2Count       int            `json:"h2Count"`
	H3Count       int            `json:"h3Count"`
	KeywordCounts map[string]int `json:"keywordCounts,omitempty"`
}

// Critique is one reviewer verdict on the outline.
type Critique struct {
	Reviewer string `json:"reviewer"`
	Verdict  string `json:"verdict"`
	Accepted bool   `json:"accepted"`
}

// Structure is the accepted outline of a document.
type Structure struct {
	Outline   string       `json:"outline"`
	Estimates Estimates    `json:"estimates"`
	Outcome   ParseOutcome `json:"outcome"`
	Critiques []Critique   `json:"critiques,omitempty"`
	Revised   bool         `json:"revised"`
}
