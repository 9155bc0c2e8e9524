package types

// KeywordCount is the measured occurrence of one keyword against its target.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
	Target  int    `json:"target"`
}

// QualityReport is the deterministic check of a finished document. A failed report
// never blocks completion.
type QualityReport struct {
	Passed        bool           `json:"passed"`
	WordCount     int            `json:"wordCount"`
	H2Count       int            `json:"h2Count"`
	H3Count       int            `json:"h3Count"`
	KeywordCounts []KeywordCount `json:"keywordCounts"`
	Issues        []string       `json:"issues"`
}
