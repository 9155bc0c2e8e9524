package criteria

import (
	"fmt"
	"strings"

	"github.com/jonathan/longform-writer/internal/types"
)

// Describe renders c as prompt text.
func Describe(c *types.Criteria) string {
	if c == nil {
		return "(none)"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "- Length: at least %d characters\n", c.TargetLength)
	fmt.Fprintf(&sb, "- \"## \" sections: %d\n", c.H2Count)
	fmt.Fprintf(&sb, "- \"### \" sub-sections: %d in total\n", c.H3Count)
	writeTerms(&sb, "Keywords", c.Keywords)
	writeTerms(&sb, "Synonyms", c.Synonyms)
	writeTerms(&sb, "Related terms", c.RelatedTerms)
	return strings.TrimSpace(sb.String())
}

func writeTerms(sb *strings.Builder, label string, terms []types.TermTarget) {
	if len(terms) == 0 {
		return
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = fmt.Sprintf("%s (%d+)", t.Term, t.MinCount)
	}
	fmt.Fprintf(sb, "- %s: %s\n", label, strings.Join(parts, ", "))
}
