package types

// TermTarget is a minimum occurrence requirement for one term.
type TermTarget struct {
	Term     string `json:"term"`
	MinCount int    `json:"minCount"`
}

// Criteria are the quantitative acceptance targets of a job.
type Criteria struct {
	TargetLength int          `json:"targetLength"`
	H2Count      int          `json:"h2Count"`
	H3Count      int          `json:"h3Count"`
	Keywords     []TermTarget `json:"keywords"`
	Synonyms     []TermTarget `json:"synonyms,omitempty"`
	RelatedTerms []TermTarget `json:"relatedTerms,omitempty"`
}

// PriorityKeywords returns the keyword terms in order.
func (c *Criteria) PriorityKeywords() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.Keywords))
	for i, k := range c.Keywords {
		out[i] = k.Term
	}
	return out
}
