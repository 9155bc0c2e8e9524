// Package quality checks a finished document against its Criteria. The check is
// deterministic and never blocks job completion.
package quality

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/jonathan/longform-writer/internal/types"
)

// DefaultForbiddenPronoun is the direct-address form flagged when none is configured.
const DefaultForbiddenPronoun = "you"

// Thresholds, as fractions of the target.
const (
	MinLengthRatio   = 0.8
	MinEstimateRatio = 0.9
)

var (
	ruleLinePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^---+$`),
		regexp.MustCompile(`(?m)^━━━+$`),
		regexp.MustCompile(`(?m)^===+$`),
		regexp.MustCompile(`(?m)^\*\*\*+$`),
	}
	keywordListing = regexp.MustCompile(`\*\*[^*]+\*\*[、,]\s*\*\*[^*]+\*\*`)
)

// CharCount is the document length with whitespace and heading markers removed.
func CharCount(doc string) int {
	n := 0
	for _, r := range doc {
		if unicode.IsSpace(r) || r == '#' {
			continue
		}
		n++
	}
	return n
}

// CountHeadings counts "## " and "### " lines.
func CountHeadings(doc string) (h2, h3 int) {
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimLeft(line, " \t")
		switch {
		case strings.HasPrefix(line, "### "):
			h3++
		case strings.HasPrefix(line, "## "):
			h2++
		}
	}
	return h2, h3
}

// KeywordPattern builds the fuzzy matcher for keyword: its words joined by a gap of
// at most ten characters on the same line, case-insensitive.
func KeywordPattern(keyword string) *regexp.Regexp {
	words := strings.Fields(keyword)
	if len(words) == 0 {
		return nil
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(words, `.{0,10}`))
}

// CountKeyword counts non-overlapping fuzzy matches of keyword in text.
func CountKeyword(text, keyword string) int {
	re := KeywordPattern(keyword)
	if re == nil {
		return 0
	}
	return len(re.FindAllStringIndex(text, -1))
}

// CountKeywords counts every keyword in text.
func CountKeywords(text string, keywords []string) map[string]int {
	out := make(map[string]int, len(keywords))
	for _, kw := range keywords {
		out[kw] = CountKeyword(text, kw)
	}
	return out
}

func pronounPattern(pronoun string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(pronoun)
	for _, r := range pronoun {
		if r > unicode.MaxASCII {
			// \b is ASCII-only
			return regexp.MustCompile(`(?i)` + quoted)
		}
	}
	return regexp.MustCompile(`(?i)\b` + quoted + `\b`)
}

// Checker runs the deterministic quality check.
type Checker struct {
	forbidden *regexp.Regexp
	pronoun   string
}

// NewChecker creates a Checker flagging forbiddenPronoun; empty means DefaultForbiddenPronoun.
func NewChecker(forbiddenPronoun string) *Checker {
	if strings.TrimSpace(forbiddenPronoun) == "" {
		forbiddenPronoun = DefaultForbiddenPronoun
	}
	return &Checker{forbidden: pronounPattern(forbiddenPronoun), pronoun: forbiddenPronoun}
}

// Check validates doc against criteria. estimates may be nil.
func (c *Checker) Check(doc string, criteria *types.Criteria, estimates *types.Estimates) *types.QualityReport {
	report := &types.QualityReport{
		WordCount:     CharCount(doc),
		KeywordCounts: []types.KeywordCount{},
		Issues:        []string{},
	}
	report.H2Count, report.H3Count = CountHeadings(doc)

	for _, re := range ruleLinePatterns {
		if re.MatchString(doc) {
			report.Issues = append(report.Issues, "decorative rule lines present")
			break
		}
	}
	if keywordListing.MatchString(doc) {
		report.Issues = append(report.Issues, "bold keyword listing pattern present")
	}
	if c.forbidden.MatchString(doc) {
		report.Issues = append(report.Issues, fmt.Sprintf("forbidden pronoun %q used", c.pronoun))
	}

	if criteria != nil {
		minLength := int(float64(criteria.TargetLength) * MinLengthRatio)
		if report.WordCount < minLength {
			report.Issues = append(report.Issues,
				fmt.Sprintf("length %d is below 80%% of target %d", report.WordCount, criteria.TargetLength))
		}
		if report.H2Count < criteria.H2Count {
			report.Issues = append(report.Issues,
				fmt.Sprintf("h2 count %d is below target %d", report.H2Count, criteria.H2Count))
		}
		if report.H3Count < criteria.H3Count {
			report.Issues = append(report.Issues,
				fmt.Sprintf("h3 count %d is below target %d", report.H3Count, criteria.H3Count))
		}
		for _, kw := range criteria.Keywords {
			count := CountKeyword(doc, kw.Term)
			report.KeywordCounts = append(report.KeywordCounts, types.KeywordCount{
				Keyword: kw.Term, Count: count, Target: kw.MinCount,
			})
			if count < kw.MinCount {
				report.Issues = append(report.Issues,
					fmt.Sprintf("keyword %q appears %d times, minimum %d", kw.Term, count, kw.MinCount))
			}
		}
	}

	if estimates != nil && estimates.WordCount > 0 {
		if float64(report.WordCount) < float64(estimates.WordCount)*MinEstimateRatio {
			report.Issues = append(report.Issues,
				fmt.Sprintf("length %d is below 90%% of the planned %d", report.WordCount, estimates.WordCount))
		}
		if report.H2Count < estimates.H2Count {
			report.Issues = append(report.Issues,
				fmt.Sprintf("h2 count %d is below the planned %d", report.H2Count, estimates.H2Count))
		}
		if report.H3Count < estimates.H3Count {
			report.Issues = append(report.Issues,
				fmt.Sprintf("h3 count %d is below the planned %d", report.H3Count, estimates.H3Count))
		}
	}

	report.Passed = len(report.Issues) == 0
	return report
}
