package structure

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/longform-writer/internal/llm"
	"github.com/jonathan/longform-writer/internal/schemas"
	"github.com/jonathan/longform-writer/internal/types"
	schemafiles "github.com/jonathan/longform-writer/schemas"
)

var (
	estimatesBlock = regexp.MustCompile(`(?s)\[ESTIMATES\](.*?)\[/ESTIMATES\]`)
	structureBlock = regexp.MustCompile(`(?s)\[STRUCTURE\](.*?)(?:\[/STRUCTURE\]|$)`)
	headingLine    = regexp.MustCompile(`(?m)^#`)
)

// Parsed is one read of a two-block planner output.
type Parsed struct {
	Outline   string
	Estimates types.Estimates
	Outcome   types.ParseOutcome
}

// Parse reads "[ESTIMATES]{json}[/ESTIMATES]" followed by "[STRUCTURE]outline[/STRUCTURE]".
//
// The outline falls back to the text from the first heading line, then to the whole
// output. Missing or malformed estimates are recomputed from the outline. The outcome is
// Parsed only when both blocks were read as written.
func Parse(output string) Parsed {
	output = strings.TrimSpace(output)
	if output == "" {
		return Parsed{Outcome: types.OutcomeUnparseable}
	}

	fallback := false

	var outline string
	if m := structureBlock.FindStringSubmatch(output); m != nil {
		outline = strings.TrimSpace(m[1])
		if !strings.Contains(output, "[/STRUCTURE]") {
			fallback = true
		}
	} else {
		fallback = true
		rest := strings.TrimSpace(estimatesBlock.ReplaceAllString(output, ""))
		if loc := headingLine.FindStringIndex(rest); loc != nil {
			outline = strings.TrimSpace(rest[loc[0]:])
		} else {
			outline = rest
		}
	}

	est, ok := parseEstimates(output)
	if !ok {
		fallback = true
		est = Approximate(outline)
	}

	p := Parsed{Outline: outline, Estimates: est, Outcome: types.OutcomeParsed}
	switch {
	case outline == "" || !headingLine.MatchString(outline):
		p.Outcome = types.OutcomeUnparseable
	case fallback:
		p.Outcome = types.OutcomeFallbackUsed
	}
	return p
}

func parseEstimates(output string) (types.Estimates, bool) {
	var est types.Estimates
	m := estimatesBlock.FindStringSubmatch(output)
	if m == nil {
		return est, false
	}
	raw := llm.CleanJSONBlock(strings.TrimSpace(m[1]))
	if err := schemas.Decode(schemafiles.Estimates, raw, &est); err != nil {
		return types.Estimates{}, false
	}
	return est, true
}

// Approximate derives estimates from the outline itself: twice its rune length and its
// literal heading counts.
func Approximate(outline string) types.Estimates {
	est := types.Estimates{WordCount: 2 * utf8.RuneCountInString(outline)}
	for _, line := range strings.Split(outline, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "### "):
			est.H3Count++
		case strings.HasPrefix(line, "## "):
			est.H2Count++
		}
	}
	return est
}
