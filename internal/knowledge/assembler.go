// Package knowledge assembles the bounded context blob handed to the structure planner
// and the section writer.
package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/longform-writer/internal/types"
)

// Size limits, in characters.
const (
	// CompetitorExcerptChars is the prefix kept of each competitor excerpt. Full
	// competitor text overflows the context window of self-hosted models.
	CompetitorExcerptChars = 800
	// FragmentChars caps one knowledge fragment.
	FragmentChars = 3000
	// MaxFragments caps how many knowledge fragments are included.
	MaxFragments = 8
)

// Fragment is one prioritized piece of knowledge.
type Fragment struct {
	Title   string
	Content string
	// Role, when set, adds a one-line usage instruction ahead of the content.
	Role     string
	Priority int
}

// Input is everything the assembler concatenates.
type Input struct {
	Knowledge   []Fragment
	Competitors []types.CompetitorAnalysis
	Audience    *types.AudienceResearch
}

var roleInstructions = map[string]string{
	types.DocTypeReference:  "Use as factual grounding. Reuse facts, never wording.",
	types.DocTypeExemplar:   "Use as a style sample only. Do not copy sentences.",
	types.DocTypeCompetitor: "Shows what rivals already say. Cover it better, never repeat it.",
	types.DocTypeGenerated:  "An earlier article of ours. Do not repeat its examples.",
}

// RoleInstruction returns the usage line for role.
func RoleInstruction(role string) string {
	if s, ok := roleInstructions[role]; ok {
		return s
	}
	return "Use as: " + role
}

// Assemble builds the context blob. Output is deterministic for a given input.
func Assemble(in Input) string {
	var sb strings.Builder

	fragments := append([]Fragment(nil), in.Knowledge...)
	sort.SliceStable(fragments, func(i, j int) bool { return fragments[i].Priority > fragments[j].Priority })
	if len(fragments) > MaxFragments {
		fragments = fragments[:MaxFragments]
	}
	if len(fragments) > 0 {
		sb.WriteString("=== KNOWLEDGE ===\n")
		for _, f := range fragments {
			if f.Title != "" {
				fmt.Fprintf(&sb, "--- %s ---\n", f.Title)
			}
			if f.Role != "" {
				fmt.Fprintf(&sb, "(%s)\n", RoleInstruction(f.Role))
			}
			sb.WriteString(truncate(strings.TrimSpace(f.Content), FragmentChars))
			sb.WriteString("\n\n")
		}
	}

	if len(in.Competitors) > 0 {
		sb.WriteString("=== COMPETITOR EXCERPTS ===\n")
		for _, c := range in.Competitors {
			label := c.Title
			if c.Simulated {
				label += " (simulated)"
			}
			fmt.Fprintf(&sb, "--- %s ---\n", label)
			if len(c.Headings) > 0 {
				fmt.Fprintf(&sb, "Sections: %s\n", strings.Join(c.Headings, " / "))
			}
			if excerpt := strings.TrimSpace(c.Excerpt); excerpt != "" {
				sb.WriteString(truncate(excerpt, CompetitorExcerptChars))
				sb.WriteString("\n")
			}
			sb.WriteString("\n")
		}
	}

	if a := in.Audience; a != nil {
		sb.WriteString("=== AUDIENCE ===\n")
		writeList(&sb, "Pain points", a.PainPoints)
		writeList(&sb, "Real voices", a.RealVoices)
		writeList(&sb, "Story hooks", a.StoryHooks)
		if a.OfferBridge != "" {
			fmt.Fprintf(&sb, "Bridge to the offer:\n%s\n", a.OfferBridge)
		}
	}

	return strings.TrimSpace(sb.String())
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", label)
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// DocumentSource is the retrieval side of the knowledge store.
type DocumentSource interface {
	DocumentsByTags(ctx context.Context, tags []string, limit int) ([]types.Document, error)
	DocumentsByIDs(ctx context.Context, ids []int64) ([]types.Document, error)
}

// Priorities by document type. Explicitly requested documents rank above all.
var typePriority = map[string]int{
	types.DocTypeReference:  30,
	types.DocTypeExemplar:   20,
	types.DocTypeCompetitor: 10,
	types.DocTypeGenerated:  5,
}

const pinnedPriority = 100

// Gather retrieves fragments: documents with ids first, then documents carrying any
// of tags. Duplicates are dropped.
func Gather(ctx context.Context, src DocumentSource, tags []string, ids []int64, limit int) ([]Fragment, error) {
	var out []Fragment
	seen := make(map[int64]bool)

	pinned, err := src.DocumentsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, d := range pinned {
		seen[d.ID] = true
		out = append(out, Fragment{Title: d.Title, Content: d.Content, Role: d.DocType, Priority: pinnedPriority})
	}

	if len(tags) > 0 {
		tagged, err := src.DocumentsByTags(ctx, tags, limit)
		if err != nil {
			return nil, err
		}
		for _, d := range tagged {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			out = append(out, Fragment{Title: d.Title, Content: d.Content, Role: d.DocType, Priority: typePriority[d.DocType]})
		}
	}
	return out, nil
}
