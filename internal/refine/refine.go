// Package refine runs one persona-driven critique and rewrite pass over a finished
// document, section by section.
package refine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jonathan/longform-writer/internal/llm"
	"github.com/jonathan/longform-writer/internal/logging"
	"github.com/jonathan/longform-writer/internal/persona"
	"github.com/jonathan/longform-writer/internal/prompts"
	"github.com/jonathan/longform-writer/internal/quality"
	"github.com/jonathan/longform-writer/internal/structure"
	"github.com/jonathan/longform-writer/internal/types"
	"github.com/jonathan/longform-writer/internal/writer"
)

// MinKeepRatio is the shortest a rewrite may be relative to the body it replaces.
const MinKeepRatio = 0.5

// DefaultArchaicMarkers are sentence endings of an archaic register.
var DefaultArchaicMarkers = []string{"thou", "thee", "hath", "doth", "ござる", "なのじゃ", "であるぞ"}

const leadTitle = "(lead)"

// State is carried through the fold over sections.
type State struct {
	Output    []structure.Section
	Refined   []string
	Remaining []string
}

// SectionOutcome records what happened to one section.
type SectionOutcome struct {
	Title     string `json:"title"`
	Accepted  bool   `json:"accepted"`
	Rewritten bool   `json:"rewritten"`
	Discarded bool   `json:"discarded"`
	OldChars  int    `json:"oldChars"`
	NewChars  int    `json:"newChars"`
}

// Input is the document to refine and the context of the job.
type Input struct {
	Document string
	Personas *types.PersonaBundle
	Keywords []string
}

// Result is the refined document.
type Result struct {
	Document string
	Outcomes []SectionOutcome
}

// Refiner critiques and rewrites sections.
type Refiner struct {
	client  llm.Client
	pronoun string
	markers []string
	logger  *zap.SugaredLogger
}

// New creates a Refiner. An empty pronoun selects quality.DefaultForbiddenPronoun.
func New(client llm.Client, forbiddenPronoun string) *Refiner {
	if forbiddenPronoun == "" {
		forbiddenPronoun = quality.DefaultForbiddenPronoun
	}
	return &Refiner{
		client:  client,
		pronoun: forbiddenPronoun,
		markers: DefaultArchaicMarkers,
		logger:  logging.Named("refine"),
	}
}

// Refine visits every section exactly once, in order.
func (r *Refiner) Refine(ctx context.Context, in Input) (*Result, error) {
	if in.Personas == nil {
		return nil, fmt.Errorf("personas are required")
	}
	sections := structure.Split(in.Document)

	state := State{Remaining: titles(sections)}
	res := &Result{}
	for _, sec := range sections {
		next, outcome, err := r.Step(ctx, state, sec, in)
		if err != nil {
			return nil, err
		}
		state = next
		res.Outcomes = append(res.Outcomes, outcome)
	}
	res.Document = structure.Join(state.Output)
	return res, nil
}

// Step refines one section and returns the next fold state.
func (r *Refiner) Step(ctx context.Context, state State, sec structure.Section, in Input) (State, SectionOutcome, error) {
	title := titleOf(sec)
	remaining := state.Remaining
	if len(remaining) > 0 {
		remaining = remaining[1:]
	}
	outcome := SectionOutcome{Title: title, OldChars: utf8.RuneCountInString(sec.Body)}

	titleLine, body := splitLeadTitle(sec)
	if strings.TrimSpace(body) == "" {
		outcome.Accepted = true
		return advance(state, sec, title, remaining), outcome, nil
	}

	critique, err := r.critique(ctx, state, remaining, sec, in)
	if err != nil {
		return state, outcome, err
	}
	if structure.Accepted(critique) {
		outcome.Accepted = true
		outcome.NewChars = outcome.OldChars
		return advance(state, sec, title, remaining), outcome, nil
	}

	newBody, err := r.rewrite(ctx, sec, body, critique, in)
	if err != nil {
		return state, outcome, err
	}
	outcome.Rewritten = true
	outcome.NewChars = utf8.RuneCountInString(newBody)

	if float64(outcome.NewChars) < MinKeepRatio*float64(utf8.RuneCountInString(body)) {
		r.logger.Warnw("Discarding collapsed rewrite", "section", title,
			"old_chars", utf8.RuneCountInString(body), "new_chars", outcome.NewChars)
		outcome.Discarded = true
		outcome.NewChars = outcome.OldChars
		return advance(state, sec, title, remaining), outcome, nil
	}

	if titleLine != "" {
		newBody = titleLine + "\n\n" + newBody
	}
	sec.Body = newBody
	outcome.NewChars = utf8.RuneCountInString(newBody)
	return advance(state, sec, title, remaining), outcome, nil
}

func (r *Refiner) critique(ctx context.Context, state State, remaining []string, sec structure.Section, in Input) (string, error) {
	prompt, err := prompts.Render("refine.yaml", "critique", map[string]string{
		"AudiencePersona":  persona.DescribeAudience(in.Personas.Audience),
		"RefinedTitles":    listOrNone(state.Refined),
		"RemainingTitles":  listOrNone(remaining),
		"ForbiddenPronoun": r.pronoun,
		"ArchaicMarkers":   strings.Join(r.markers, ", "),
		"Section":          sec.Text(),
	})
	if err != nil {
		return "", err
	}
	out, err := r.client.GenerateContent(ctx, []llm.Message{llm.User(prompt)}, llm.TierStandard)
	if err != nil {
		return "", fmt.Errorf("critique of %q failed: %w", titleOf(sec), err)
	}
	return strings.TrimSpace(out), nil
}

func (r *Refiner) rewrite(ctx context.Context, sec structure.Section, body, critique string, in Input) (string, error) {
	heading := sec.Heading
	if sec.IsLead() {
		heading = "introduction"
	}
	prompt, err := prompts.Render("refine.yaml", "rewrite", map[string]string{
		"AuthorPersona":    persona.DescribeVoice(in.Personas.Author),
		"Heading":          heading,
		"Keywords":         listOrNone(in.Keywords),
		"ForbiddenPronoun": r.pronoun,
		"Critique":         critique,
		"Body":             body,
	})
	if err != nil {
		return "", err
	}
	out, err := r.client.GenerateContent(ctx, []llm.Message{llm.User(prompt)}, llm.TierAdvanced)
	if err != nil {
		return "", fmt.Errorf("rewrite of %q failed: %w", titleOf(sec), err)
	}
	return writer.Clean(writer.StripHeadings(out)), nil
}

func advance(state State, sec structure.Section, title string, remaining []string) State {
	return State{
		Output:    append(append([]structure.Section(nil), state.Output...), sec),
		Refined:   append(append([]string(nil), state.Refined...), title),
		Remaining: remaining,
	}
}

// splitLeadTitle separates the "# " title line of the lead so only prose is rewritten.
func splitLeadTitle(sec structure.Section) (string, string) {
	if !sec.IsLead() {
		return "", sec.Body
	}
	body := strings.TrimSpace(sec.Body)
	if strings.HasPrefix(body, "# ") {
		line, rest, _ := strings.Cut(body, "\n")
		return line, strings.TrimSpace(rest)
	}
	return "", body
}

func titles(sections []structure.Section) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = titleOf(s)
	}
	return out
}

func titleOf(s structure.Section) string {
	if s.IsLead() {
		return leadTitle
	}
	return s.Heading
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
