package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/longform-writer/internal/llm"
	"github.com/jonathan/longform-writer/internal/prompts"
	"github.com/jonathan/longform-writer/internal/schemas"
	"github.com/jonathan/longform-writer/internal/types"
	schemafiles "github.com/jonathan/longform-writer/schemas"
)

// AudienceInput is what audience research works from.
type AudienceInput struct {
	Topic         string
	TargetPersona string
	Notes         string
	Offer         string
	Competitors   []types.CompetitorAnalysis
}

// ResearchAudience extracts pain points, reader voices, story hooks and the bridge
// to the offer.
func ResearchAudience(ctx context.Context, client llm.Client, in AudienceInput) (*types.AudienceResearch, error) {
	prompt, err := prompts.Render("research.yaml", "audience-research", map[string]string{
		"Topic":             in.Topic,
		"TargetPersona":     orNone(in.TargetPersona),
		"CompetitorSummary": SummarizeCompetitors(in.Competitors),
		"Notes":             orNone(in.Notes),
		"Offer":             orNone(in.Offer),
	})
	if err != nil {
		return nil, err
	}

	var out types.AudienceResearch
	if err := schemas.Generate(ctx, client, []llm.Message{llm.User(prompt)}, schemafiles.AudienceResearch, llm.TierStandard, &out); err != nil {
		return nil, fmt.Errorf("audience research failed: %w", err)
	}
	return &out, nil
}

// SummarizeCompetitors lists each sample's title, size and gaps, one block per sample.
func SummarizeCompetitors(samples []types.CompetitorAnalysis) string {
	if len(samples) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for i, s := range samples {
		fmt.Fprintf(&sb, "%d. %s (%d chars, %d sections)", i+1, s.Title, s.CharCount, s.H2Count)
		if s.Simulated {
			sb.WriteString(" [simulated]")
		}
		sb.WriteString("\n")
		if len(s.Gaps) > 0 {
			fmt.Fprintf(&sb, "   gaps: %s\n", strings.Join(s.Gaps, "; "))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
