package types

// SeparatedKeywords splits the topic into the keyword the article must conclude on
// and the keywords readers search with.
type SeparatedKeywords struct {
	ConclusionKeywords []string `json:"conclusionKeywords"`
	TrafficKeywords    []string `json:"trafficKeywords"`
	SearchQueries      []string `json:"searchQueries,omitempty"`
}

// AllKeywords returns traffic keywords followed by conclusion keywords, deduplicated.
func (k *SeparatedKeywords) AllKeywords() []string {
	if k == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{k.TrafficKeywords, k.ConclusionKeywords} {
		for _, kw := range list {
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			out = append(out, kw)
		}
	}
	return out
}

// CompetitorAnalysis is one competitor sample, real or simulated.
type CompetitorAnalysis struct {
	Query         string         `json:"query"`
	URL           string         `json:"url,omitempty"`
	Title         string         `json:"title"`
	CharCount     int            `json:"charCount"`
	H2Count       int            `json:"h2Count"`
	H3Count       int            `json:"h3Count"`
	Headings      []string       `json:"headings,omitempty"`
	KeywordCounts map[string]int `json:"keywordCounts"`
	SynonymCounts map[string]int `json:"synonymCounts,omitempty"`
	RelatedCounts map[string]int `json:"relatedCounts,omitempty"`
	Strengths     []string       `json:"strengths,omitempty"`
	Gaps          []string       `json:"gaps,omitempty"`
	Excerpt       string         `json:"excerpt,omitempty"`
	Simulated     bool           `json:"simulated,omitempty"`
}

// AudienceResearch is the extracted audience-pain payload fed into the context blob.
type AudienceResearch struct {
	PainPoints  []string `json:"painPoints"`
	RealVoices  []string `json:"realVoices"`
	StoryHooks  []string `json:"storyHooks"`
	OfferBridge string   `json:"offerBridge"`
}
