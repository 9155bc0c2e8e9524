// Package observability provides boxed, human-readable dumps of job artifacts for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/longform-writer/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for artifact dumps
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// clip shortens s to n runes, marking the cut with "...".
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		line = clip(line, boxWidth-4)
		pad := boxWidth - 4 - utf8.RuneCountInString(line)
		fmt.Fprintf(p.out, "│ %s%s │\n", line, strings.Repeat(" ", pad))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// list writes up to limit items as bullets, with a "... and N more" tail.
func list(sb *strings.Builder, items []string, limit int) {
	for i, item := range items {
		if i == limit {
			fmt.Fprintf(sb, "  ... and %d more\n", len(items)-limit)
			break
		}
		fmt.Fprintf(sb, "  • %s\n", item)
	}
}

// PrintArtifacts prints every artifact the job has so far, in step order.
func (p *Printer) PrintArtifacts(job *types.Job) {
	if job == nil {
		return
	}
	p.PrintKeywords(job.SeparatedKeywords)
	p.PrintCompetitors(job.CompetitorAnalyses)
	p.PrintCriteria(job.Criteria)
	p.PrintAudience(job.AudienceResearch)
	p.PrintPersonas(job.PersonaBundle)
	p.PrintStructure(job.Structure)
	p.PrintQuality(job.QualityReport)
	p.PrintEnhancement(job.Enhancement)
}

// PrintKeywords outputs the separated keywords and search queries.
func (p *Printer) PrintKeywords(kw *types.SeparatedKeywords) {
	if kw == nil {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Conclusion: %s\n", strings.Join(kw.ConclusionKeywords, ", "))
	fmt.Fprintf(&sb, "Traffic:    %s\n", strings.Join(kw.TrafficKeywords, ", "))
	if len(kw.SearchQueries) > 0 {
		sb.WriteString("\nSearch queries:\n")
		list(&sb, kw.SearchQueries, maxItemsToShow)
	}
	p.printBox("KEYWORDS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintCompetitors outputs one line per competitor sample.
func (p *Printer) PrintCompetitors(samples []types.CompetitorAnalysis) {
	if len(samples) == 0 {
		return
	}
	var sb strings.Builder
	simulated := 0
	for _, s := range samples {
		if s.Simulated {
			simulated++
		}
	}
	fmt.Fprintf(&sb, "Samples: %d (%d simulated)\n\n", len(samples), simulated)

	count := min(len(samples), maxItemsToShow)
	for i := 0; i < count; i++ {
		s := samples[i]
		fmt.Fprintf(&sb, "#%d  %s\n", i+1, s.Title)
		fmt.Fprintf(&sb, "    %d chars, %d H2, %d H3", s.CharCount, s.H2Count, s.H3Count)
		if s.Simulated {
			sb.WriteString(" [simulated]")
		}
		sb.WriteString("\n")
		if s.URL != "" {
			fmt.Fprintf(&sb, "    %s\n", s.URL)
		}
	}
	if len(samples) > maxItemsToShow {
		fmt.Fprintf(&sb, "\n... and %d more samples", len(samples)-maxItemsToShow)
	}
	p.printBox("COMPETITOR SAMPLES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintCriteria outputs the quantitative targets.
func (p *Printer) PrintCriteria(c *types.Criteria) {
	if c == nil {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Target length: %d\n", c.TargetLength)
	fmt.Fprintf(&sb, "Headings:      %d H2, %d H3\n", c.H2Count, c.H3Count)
	if len(c.Keywords) > 0 {
		sb.WriteString("\nKeywords:\n")
		terms := make([]string, len(c.Keywords))
		for i, k := range c.Keywords {
			terms[i] = fmt.Sprintf("%s ≥ %d", k.Term, k.MinCount)
		}
		list(&sb, terms, maxItemsToShow)
	}
	p.printBox("CRITERIA", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintAudience outputs the audience research.
func (p *Printer) PrintAudience(a *types.AudienceResearch) {
	if a == nil {
		return
	}
	var sb strings.Builder
	if len(a.PainPoints) > 0 {
		sb.WriteString("Pain points:\n")
		list(&sb, a.PainPoints, 3)
	}
	if len(a.StoryHooks) > 0 {
		sb.WriteString("Story hooks:\n")
		list(&sb, a.StoryHooks, 3)
	}
	if a.OfferBridge != "" {
		fmt.Fprintf(&sb, "Offer bridge: %s\n", a.OfferBridge)
	}
	p.printBox("AUDIENCE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintPersonas outputs the persona bundle.
func (p *Printer) PrintPersonas(b *types.PersonaBundle) {
	if b == nil {
		return
	}
	var sb strings.Builder
	a := b.Audience
	fmt.Fprintf(&sb, "Reader: %s, %d, %s\n", a.Name, a.Age, a.Occupation)
	fmt.Fprintf(&sb, "  surface need: %s\n", a.SurfaceNeed)
	fmt.Fprintf(&sb, "  latent need:  %s\n", a.LatentNeed)
	fmt.Fprintf(&sb, "Author: %s (%s) - %s\n", b.Author.Name, b.Author.Source, b.Author.Tone)
	fmt.Fprintf(&sb, "Editor: %s (%s) - %s", b.Editor.Name, b.Editor.Source, b.Editor.Tone)
	p.printBox("PERSONAS", sb.String())
}

// PrintStructure outputs the outline headings and the planner's estimates.
func (p *Printer) PrintStructure(s *types.Structure) {
	if s == nil {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Outcome: %s, revised: %t\n", s.Outcome, s.Revised)
	fmt.Fprintf(&sb, "Estimates: %d words, %d H2, %d H3\n\n", s.Estimates.WordCount, s.Estimates.H2Count, s.Estimates.H3Count)
	for _, line := range strings.Split(s.Outline, "\n") {
		if strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ") {
			sb.WriteString(line + "\n")
		}
	}
	for _, c := range s.Critiques {
		fmt.Fprintf(&sb, "%s: accepted=%t\n", c.Reviewer, c.Accepted)
	}
	p.printBox("STRUCTURE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintQuality outputs the quality report and its issues.
func (p *Printer) PrintQuality(q *types.QualityReport) {
	if q == nil {
		return
	}
	var sb strings.Builder
	status := "✓ PASSED"
	if !q.Passed {
		status = "✗ FAILED"
	}
	fmt.Fprintf(&sb, "Status: %s\n", status)
	fmt.Fprintf(&sb, "Length: %d, %d H2, %d H3\n", q.WordCount, q.H2Count, q.H3Count)
	for _, k := range q.KeywordCounts {
		fmt.Fprintf(&sb, "  %s: %d/%d\n", k.Keyword, k.Count, k.Target)
	}
	if len(q.Issues) > 0 {
		sb.WriteString("\nIssues:\n")
		list(&sb, q.Issues, maxItemsToShow)
	}
	p.printBox("QUALITY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintEnhancement outputs what auto-enhancement produced.
func (p *Printer) PrintEnhancement(e *types.Enhancement) {
	if e == nil {
		return
	}
	var sb strings.Builder
	if e.Meta != nil {
		fmt.Fprintf(&sb, "Title:       %s\n", e.Meta.Title)
		fmt.Fprintf(&sb, "Description: %s\n", e.Meta.Description)
	}
	fmt.Fprintf(&sb, "Summary: %t, FAQ: %d, JSON-LD: %t\n", e.Summary != "", len(e.FAQ), e.JSONLD != "")
	if len(e.Errors) > 0 {
		sb.WriteString("Errors:\n")
		list(&sb, e.Errors, 3)
	}
	p.printBox("ENHANCEMENT", strings.TrimSuffix(sb.String(), "\n"))
}
