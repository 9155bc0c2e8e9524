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

// SeparateKeywords splits topic into conclusion and traffic keywords.
func SeparateKeywords(ctx context.Context, client llm.Client, topic string) (*types.SeparatedKeywords, error) {
	prompt, err := prompts.Render("research.yaml", "separate-keywords", map[string]string{"Topic": topic})
	if err != nil {
		return nil, err
	}

	var out types.SeparatedKeywords
	if err := schemas.Generate(ctx, client, []llm.Message{llm.User(prompt)}, schemafiles.SeparatedKeywords, llm.TierLite, &out); err != nil {
		return nil, fmt.Errorf("keyword separation failed: %w", err)
	}
	out.ConclusionKeywords = cleanList(out.ConclusionKeywords)
	out.TrafficKeywords = cleanList(out.TrafficKeywords)
	if len(out.ConclusionKeywords) == 0 || len(out.TrafficKeywords) == 0 {
		return nil, fmt.Errorf("keyword separation returned an empty group")
	}
	return &out, nil
}

// GenerateSearchQueries returns up to MaxSearchQueries queries for the traffic keywords.
func GenerateSearchQueries(ctx context.Context, client llm.Client, topic string, traffic []string) ([]string, error) {
	prompt, err := prompts.Render("research.yaml", "search-queries", map[string]string{
		"Topic":           topic,
		"TrafficKeywords": strings.Join(traffic, ", "),
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Queries []string `json:"queries"`
	}
	if err := schemas.Generate(ctx, client, []llm.Message{llm.User(prompt)}, schemafiles.SearchQueries, llm.TierLite, &out); err != nil {
		return nil, fmt.Errorf("search query generation failed: %w", err)
	}

	queries := cleanList(out.Queries)
	if len(queries) > MaxSearchQueries {
		queries = queries[:MaxSearchQueries]
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no search queries generated")
	}
	return queries, nil
}

// cleanList trims entries and drops empty or repeated ones.
func cleanList(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
