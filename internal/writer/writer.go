// Package writer generates a document section by section from an accepted outline.
package writer

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/longform-writer/internal/llm"
	"github.com/jonathan/longform-writer/internal/logging"
	"github.com/jonathan/longform-writer/internal/persona"
	"github.com/jonathan/longform-writer/internal/prompts"
	"github.com/jonathan/longform-writer/internal/structure"
	"github.com/jonathan/longform-writer/internal/types"
)

// Budget tiers and windows, in characters.
const (
	CondensedBelow = 1500
	ExpansiveAbove = 3000
	CondensedCap   = 1.2
	StandardCap    = 1.3
	FloorRatio     = 0.9

	// TrailingWindow is how much already-written text each section call sees.
	TrailingWindow = 3000
	// RepairWindow is the tail handed to the truncation repair call.
	RepairWindow = 2000
)

// Tier is the length instruction set of a section.
type Tier string

// Tiers.
const (
	TierCondensed Tier = "condensed"
	TierStandard  Tier = "standard"
	TierExpansive Tier = "expansive"
)

// TierFor selects the tier for a per-section budget.
func TierFor(budget int) Tier {
	switch {
	case budget < CondensedBelow:
		return TierCondensed
	case budget > ExpansiveAbove:
		return TierExpansive
	default:
		return TierStandard
	}
}

// Budget is the uniform per-section length.
func Budget(targetLength, sections int) int {
	if sections <= 0 {
		return targetLength
	}
	return targetLength / sections
}

// Input is what the writer needs from earlier steps.
type Input struct {
	Topic     string
	Structure *types.Structure
	Criteria  *types.Criteria
	Context   string
	Personas  *types.PersonaBundle
}

// Repair records the truncation repair attempt.
type Repair struct {
	Attempted bool   `json:"attempted"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// Result is a written document.
type Result struct {
	Document string
	Sections int
	Budget   int
	Tier     Tier
	Repair   Repair
}

// Writer generates documents.
type Writer struct {
	client llm.Client
	logger *zap.SugaredLogger
	// OnSection, when set, is called after each section is written.
	OnSection func(done, total int)
}

// New creates a Writer.
func New(client llm.Client) *Writer {
	return &Writer{client: client, logger: logging.Named("writer")}
}

// Write generates every section in order. The "## " headings of the result are exactly
// those of the outline.
func (w *Writer) Write(ctx context.Context, in Input) (*Result, error) {
	if in.Structure == nil || in.Personas == nil || in.Criteria == nil {
		return nil, fmt.Errorf("structure, criteria and personas are required")
	}

	blocks := structure.Split(in.Structure.Outline)
	budget := Budget(in.Criteria.TargetLength, len(blocks))
	tier := TierFor(budget)
	tierText, err := tierInstruction(tier, budget)
	if err != nil {
		return nil, err
	}

	system, err := prompts.Render("writer.yaml", "system", map[string]string{
		"AuthorPersona":   persona.DescribeVoice(in.Personas.Author),
		"AudiencePersona": persona.DescribeAudience(in.Personas.Audience),
	})
	if err != nil {
		return nil, err
	}

	w.logger.Infow("Writing document", "sections", len(blocks), "budget", budget, "tier", tier)

	keywords := strings.Join(in.Criteria.PriorityKeywords(), ", ")
	var parts []string
	for i, block := range blocks {
		prompt, err := prompts.Render("writer.yaml", "section", map[string]string{
			"Topic":           in.Topic,
			"Outline":         in.Structure.Outline,
			"Context":         orNone(in.Context),
			"Position":        position(i, len(blocks), block),
			"SectionOutline":  orNone(block.Text()),
			"Budget":          strconv.Itoa(budget),
			"TierInstruction": tierText,
			"Keywords":        orNone(keywords),
			"PreviousText":    previous(parts),
		})
		if err != nil {
			return nil, err
		}

		body, err := w.client.GenerateContent(ctx, []llm.Message{llm.System(system), llm.User(prompt)}, llm.TierAdvanced)
		if err != nil {
			return nil, fmt.Errorf("section %d/%d failed: %w", i+1, len(blocks), err)
		}
		body = StripHeadings(body)

		if block.IsLead() {
			if title := structure.Title(block.Body); title != "" {
				body = strings.TrimSpace("# " + title + "\n\n" + body)
			}
		} else {
			body = structure.Section{Heading: block.Heading, Body: body}.Text()
		}
		if body != "" {
			parts = append(parts, body)
		}
		if w.OnSection != nil {
			w.OnSection(i+1, len(blocks))
		}
	}

	doc := Clean(strings.Join(parts, "\n\n"))
	res := &Result{Sections: len(blocks), Budget: budget, Tier: tier}
	doc, res.Repair = w.repair(ctx, doc)
	res.Document = Clean(doc)
	return res, nil
}

// repair makes one best-effort call to finish a dangling final sentence. A failed repair
// keeps doc unchanged.
func (w *Writer) repair(ctx context.Context, doc string) (string, Repair) {
	if Terminated(doc) {
		return doc, Repair{}
	}
	rep := Repair{Attempted: true}
	prompt, err := prompts.Render("writer.yaml", "complete-truncated", map[string]string{"Tail": tail(doc, RepairWindow)})
	if err == nil {
		var completion string
		completion, err = w.client.GenerateContent(ctx, []llm.Message{llm.User(prompt)}, llm.TierStandard)
		if err == nil && strings.TrimSpace(completion) != "" {
			rep.Succeeded = true
			w.logger.Infow("Repaired truncated document", "added_chars", len([]rune(completion)))
			return doc + strings.TrimRight(completion, " \n"), rep
		}
	}
	if err != nil {
		rep.Error = err.Error()
	} else {
		rep.Error = "empty completion"
	}
	w.logger.Warnw("Truncation repair failed, keeping document", "error", rep.Error)
	return doc, rep
}

func tierInstruction(tier Tier, budget int) (string, error) {
	ratio := StandardCap
	if tier == TierCondensed {
		ratio = CondensedCap
	}
	return prompts.Render("writer.yaml", "tier-"+string(tier), map[string]string{
		"Cap":   strconv.Itoa(int(math.Round(float64(budget) * ratio))),
		"Floor": strconv.Itoa(int(math.Round(float64(budget) * FloorRatio))),
	})
}

func position(i, total int, block structure.Section) string {
	if block.IsLead() {
		return "the lead, before the first section"
	}
	return fmt.Sprintf("section %d of %d, \"%s\"", i, total-1, block.Heading)
}

func previous(parts []string) string {
	if len(parts) == 0 {
		return "(start of article)"
	}
	return tail(strings.Join(parts, "\n\n"), TrailingWindow)
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
