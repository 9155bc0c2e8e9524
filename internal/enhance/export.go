// Package enhance finishes a written document for publishing: export clean-up and the
// optional summary, FAQ, JSON-LD and metadata package.
package enhance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jonathan/longform-writer/internal/llm"
	"github.com/jonathan/longform-writer/internal/prompts"
)

// ConclusionPlaceholder is replaced with the first conclusion keyword on export.
const ConclusionPlaceholder = "{{conclusion_keyword}}"

// Chunk sizes for the spaced-keyword rewrite, in characters.
const (
	ChunkChars    = 4000
	MaxChunkChars = 8000
)

// ReplacePlaceholder substitutes every ConclusionPlaceholder in doc.
func ReplacePlaceholder(doc, keyword string) string {
	return strings.ReplaceAll(doc, ConclusionPlaceholder, keyword)
}

// SpacedPattern matches multi-token keywords written with whitespace between tokens.
// Only keywords with a non-ASCII token qualify; spaced English phrases are natural.
// Returns nil when no keyword qualifies.
func SpacedPattern(keywords []string) *regexp.Regexp {
	var alts []string
	for _, kw := range keywords {
		tokens := strings.Fields(kw)
		if len(tokens) < 2 || !hasNonASCII(kw) {
			continue
		}
		quoted := make([]string, len(tokens))
		for i, t := range tokens {
			quoted[i] = regexp.QuoteMeta(t)
		}
		alts = append(alts, strings.Join(quoted, `[ \t　]+`))
	}
	if len(alts) == 0 {
		return nil
	}
	return regexp.MustCompile(strings.Join(alts, "|"))
}

func hasNonASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return true
		}
	}
	return false
}

// Chunks splits doc on "## " lines, then splits pieces over MaxChunkChars on "### "
// lines, then cuts anything still too long into ChunkChars pieces at line boundaries.
// Concatenating the chunks yields doc.
func Chunks(doc string) []string {
	var out []string
	for _, sec := range splitBefore(doc, "## ") {
		if utf8.RuneCountInString(sec) <= MaxChunkChars {
			out = append(out, sec)
			continue
		}
		for _, sub := range splitBefore(sec, "### ") {
			if utf8.RuneCountInString(sub) <= MaxChunkChars {
				out = append(out, sub)
				continue
			}
			out = append(out, cut(sub, ChunkChars)...)
		}
	}
	return out
}

// splitBefore splits text at the start of every line beginning with prefix.
func splitBefore(text, prefix string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); {
		nl := strings.IndexByte(text[i:], '\n')
		lineEnd := len(text)
		if nl >= 0 {
			lineEnd = i + nl + 1
		}
		if i > start && strings.HasPrefix(text[i:], prefix) {
			out = append(out, text[start:i])
			start = i
		}
		i = lineEnd
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// cut splits text into pieces of about n runes, breaking after a newline when one exists.
func cut(text string, n int) []string {
	var out []string
	for utf8.RuneCountInString(text) > n {
		r := []rune(text)
		head := string(r[:n])
		if i := strings.LastIndexByte(head, '\n'); i > 0 {
			head = head[:i+1]
		}
		out = append(out, head)
		text = text[len(head):]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// FixSpacedKeywords rewrites each chunk that contains a spaced keyword with one model
// call. A chunk whose rewrite fails or collapses below half its length is kept.
func FixSpacedKeywords(ctx context.Context, client llm.Client, doc string, keywords []string) (string, int, error) {
	pattern := SpacedPattern(keywords)
	if pattern == nil || !pattern.MatchString(doc) {
		return doc, 0, nil
	}

	var sb strings.Builder
	rewritten := 0
	for _, chunk := range Chunks(doc) {
		m := pattern.FindString(chunk)
		if m == "" {
			sb.WriteString(chunk)
			continue
		}
		prompt, err := prompts.Render("enhance.yaml", "fix-spaced-keywords", map[string]string{
			"Example":  m,
			"Keywords": strings.Join(keywords, ", "),
			"Text":     chunk,
		})
		if err != nil {
			return doc, 0, err
		}
		out, err := client.GenerateContent(ctx, []llm.Message{llm.User(prompt)}, llm.TierLite)
		if err != nil {
			return doc, rewritten, fmt.Errorf("spaced keyword rewrite failed: %w", err)
		}
		out = strings.TrimSpace(out)
		if utf8.RuneCountInString(out) < utf8.RuneCountInString(chunk)/2 {
			sb.WriteString(chunk)
			continue
		}
		sb.WriteString(out)
		sb.WriteString(trailingNewlines(chunk))
		rewritten++
	}
	return sb.String(), rewritten, nil
}

// howToMarkers flag sections that drift into generic technique advice.
var howToMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^###[ \t]*[^:\n]+の(?:方法|ポイント|戦略|徹底)`),
	regexp.MustCompile(`(?m)^###[ \t]*(?:ペルソナ設定|ストーリーテリング)`),
	regexp.MustCompile(`ナーチャリング`),
}

// HasHowTo reports whether text contains a how-to heading or technique jargon.
func HasHowTo(text string) bool {
	for _, re := range howToMarkers {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// RemoveHowTo asks the model to drop technique advice from each chunk HasHowTo flags,
// keeping the author's experience and the offer. An empty answer keeps the chunk.
func RemoveHowTo(ctx context.Context, client llm.Client, doc string) (string, int, error) {
	if !HasHowTo(doc) {
		return doc, 0, nil
	}

	var sb strings.Builder
	rewritten := 0
	for _, chunk := range Chunks(doc) {
		if !HasHowTo(chunk) {
			sb.WriteString(chunk)
			continue
		}
		prompt, err := prompts.Render("enhance.yaml", "remove-how-to", map[string]string{"Text": chunk})
		if err != nil {
			return doc, 0, err
		}
		out, err := client.GenerateContent(ctx, []llm.Message{llm.User(prompt)}, llm.TierLite)
		if err != nil {
			return doc, rewritten, fmt.Errorf("how-to removal failed: %w", err)
		}
		out = strings.TrimSpace(out)
		if out == "" {
			sb.WriteString(chunk)
			continue
		}
		sb.WriteString(out)
		sb.WriteString(trailingNewlines(chunk))
		rewritten++
	}
	return sb.String(), rewritten, nil
}

func trailingNewlines(s string) string {
	return s[len(strings.TrimRight(s, "\n")):]
}
