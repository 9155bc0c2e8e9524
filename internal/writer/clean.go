package writer

import (
	"regexp"
	"strings"
)

var (
	plotMarkers = []*regexp.Regexp{
		regexp.MustCompile(`[(（][A-H]-?Plot[^)）]*[)）]`),
		regexp.MustCompile(`[(（]RAG[^)）]*[)）]`),
		regexp.MustCompile(`\[RAG[^\]]*\]`),
		regexp.MustCompile(`【RAG[^】]*】`),
		regexp.MustCompile(`[(（][A-H][)）]`),
	}
	ruleLine   = regexp.MustCompile(`(?m)^[ \t]*[-━=＝*・]{3,}[ \t]*$\n?`)
	metaLine   = regexp.MustCompile(`(?mi)^[ \t]*(?:[*_#>]+\s*)?(?:word count strategy|keyword count plan|structure and content check|文字数達成のための|キーワードカウント計画|構成と内容の確認|.*戦略で、[0-9,]+文字とキーワード目標を達成する).*\n?`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
	headingOut = regexp.MustCompile(`(?m)^[ \t]*#{1,2}[ \t]+.*\n?`)
)

// Clean strips planning markers, decorative rule lines, meta commentary and extra blank
// lines. It makes no model calls.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, re := range plotMarkers {
		text = re.ReplaceAllString(text, "")
	}
	text = ruleLine.ReplaceAllString(text, "")
	text = metaLine.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// StripHeadings removes "# " and "## " lines the model wrote itself.
func StripHeadings(body string) string {
	return strings.TrimSpace(headingOut.ReplaceAllString(body, ""))
}

const terminators = "。！？!?.」』)）*"

var listLine = regexp.MustCompile(`^\s*(?:[-*+]|\d+\.)\s+\S`)

// Terminated reports whether text ends on a sentence or block boundary.
func Terminated(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	lines := strings.Split(text, "\n")
	last := lines[len(lines)-1]
	if strings.HasPrefix(strings.TrimSpace(last), "```") || listLine.MatchString(last) {
		return true
	}
	r := []rune(text)
	return strings.ContainsRune(terminators, r[len(r)-1])
}
