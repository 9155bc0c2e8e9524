package types

// FAQItem is one question/answer pair.
type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// MetaInfo is the page metadata for publishing.
type MetaInfo struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	OGTitle       string `json:"ogTitle"`
	OGDescription string `json:"ogDescription"`
}

// Enhancement is the optional post-generation package.
type Enhancement struct {
	Summary string    `json:"summary,omitempty"`
	FAQ     []FAQItem `json:"faq,omitempty"`
	JSONLD  string    `json:"jsonLd,omitempty"`
	Meta    *MetaInfo `json:"meta,omitempty"`
	Errors  []string  `json:"errors,omitempty"`
}
