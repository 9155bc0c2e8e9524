// Package structure plans the outline of a document: a two-block draft, two persona
// critiques and at most one revision.
package structure

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/longform-writer/internal/criteria"
	"github.com/jonathan/longform-writer/internal/llm"
	"github.com/jonathan/longform-writer/internal/logging"
	"github.com/jonathan/longform-writer/internal/persona"
	"github.com/jonathan/longform-writer/internal/prompts"
	"github.com/jonathan/longform-writer/internal/types"
)

// AcceptSignal is the phrase a critique uses to accept the outline.
const AcceptSignal = "no revision needed"

// Reviewer names recorded on critiques.
const (
	ReviewerAudience = "audience"
	ReviewerEditor   = "editor"
)

// State is a step of the planner state machine.
type State string

// Planner states.
const (
	StateDrafted   State = "drafted"
	StateCritiqued State = "critiqued"
	StateAccepted  State = "accepted"
	StateRevised   State = "revised"
)

// Accepted reports whether verdict carries the accept signal.
func Accepted(verdict string) bool {
	return strings.Contains(strings.ToLower(verdict), AcceptSignal)
}

// Input is what the planner needs from earlier steps.
type Input struct {
	Topic             string
	Notes             string
	ConclusionKeyword string
	Criteria          *types.Criteria
	Context           string
	Personas          *types.PersonaBundle
}

// Planner runs draft, critique and revise.
type Planner struct {
	client llm.Client
	logger *zap.SugaredLogger
}

// NewPlanner creates a Planner.
func NewPlanner(client llm.Client) *Planner {
	return &Planner{client: client, logger: logging.Named("structure")}
}

// Plan returns the accepted or revised structure. Any generation failure is returned
// as is; parse problems are recorded in the outcome instead.
func (p *Planner) Plan(ctx context.Context, in Input) (*types.Structure, error) {
	if in.Personas == nil {
		return nil, fmt.Errorf("personas are required")
	}

	system, err := prompts.Render("structure.yaml", "system", map[string]string{
		"AuthorPersona": persona.DescribeVoice(in.Personas.Author),
	})
	if err != nil {
		return nil, err
	}
	draftPrompt, err := prompts.Render("structure.yaml", "draft", map[string]string{
		"Topic":             in.Topic,
		"AudiencePersona":   persona.DescribeAudience(in.Personas.Audience),
		"Criteria":          criteria.Describe(in.Criteria),
		"ConclusionKeyword": orNone(in.ConclusionKeyword),
		"Notes":             orNone(in.Notes),
		"Context":           orNone(in.Context),
	})
	if err != nil {
		return nil, err
	}

	raw, err := p.client.GenerateContent(ctx, []llm.Message{llm.System(system), llm.User(draftPrompt)}, llm.TierAdvanced)
	if err != nil {
		return nil, fmt.Errorf("structure draft failed: %w", err)
	}
	draft := Parse(raw)
	p.logger.Infow("Structure drafted", "state", StateDrafted, "outcome", draft.Outcome,
		"h2", draft.Estimates.H2Count, "h3", draft.Estimates.H3Count)

	critiques, err := p.critique(ctx, in.Personas, draft.Outline)
	if err != nil {
		return nil, err
	}
	p.logger.Infow("Structure critiqued", "state", StateCritiqued,
		"audience_accepted", critiques[0].Accepted, "editor_accepted", critiques[1].Accepted)

	result := &types.Structure{
		Outline:   draft.Outline,
		Estimates: draft.Estimates,
		Outcome:   draft.Outcome,
		Critiques: critiques,
	}
	if critiques[0].Accepted && critiques[1].Accepted {
		p.logger.Infow("Structure accepted", "state", StateAccepted)
		return finish(result)
	}

	revisePrompt, err := prompts.Render("structure.yaml", "revise", map[string]string{
		"Draft":            draftPrompt,
		"Outline":          draft.Outline,
		"AudienceCritique": critiques[0].Verdict,
		"EditorCritique":   critiques[1].Verdict,
	})
	if err != nil {
		return nil, err
	}
	raw, err = p.client.GenerateContent(ctx, []llm.Message{llm.System(system), llm.User(revisePrompt)}, llm.TierAdvanced)
	if err != nil {
		return nil, fmt.Errorf("structure revision failed: %w", err)
	}

	revised := Parse(raw)
	if revised.Outcome == types.OutcomeUnparseable {
		p.logger.Warnw("Revised structure unparseable, replacing draft anyway", "draft_outcome", draft.Outcome)
	}
	result.Outline = revised.Outline
	result.Estimates = revised.Estimates
	result.Outcome = revised.Outcome
	result.Revised = true
	p.logger.Infow("Structure revised", "state", StateRevised, "outcome", revised.Outcome,
		"h2", revised.Estimates.H2Count, "h3", revised.Estimates.H3Count)
	return finish(result)
}

// critique runs both reviewer calls; they share no state.
func (p *Planner) critique(ctx context.Context, personas *types.PersonaBundle, outline string) ([]types.Critique, error) {
	out := make([]types.Critique, 2)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := p.review(gctx, ReviewerAudience, "critique-audience", map[string]string{
			"AudiencePersona": persona.DescribeAudience(personas.Audience),
			"Outline":         outline,
		})
		out[0] = c
		return err
	})
	g.Go(func() error {
		c, err := p.review(gctx, ReviewerEditor, "critique-editor", map[string]string{
			"EditorPersona": persona.DescribeVoice(personas.Editor),
			"Outline":       outline,
		})
		out[1] = c
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Planner) review(ctx context.Context, reviewer, key string, data map[string]string) (types.Critique, error) {
	prompt, err := prompts.Render("structure.yaml", key, data)
	if err != nil {
		return types.Critique{}, err
	}
	verdict, err := p.client.GenerateContent(ctx, []llm.Message{llm.User(prompt)}, llm.TierStandard)
	if err != nil {
		return types.Critique{}, fmt.Errorf("%s critique failed: %w", reviewer, err)
	}
	verdict = strings.TrimSpace(verdict)
	return types.Critique{Reviewer: reviewer, Verdict: verdict, Accepted: Accepted(verdict)}, nil
}

func finish(s *types.Structure) (*types.Structure, error) {
	if strings.TrimSpace(s.Outline) == "" {
		return nil, fmt.Errorf("planner produced an empty outline")
	}
	return s, nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
