// Package persona synthesizes the audience, author and editor personas of a job.
package persona

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/longform-writer/internal/llm"
	"github.com/jonathan/longform-writer/internal/logging"
	"github.com/jonathan/longform-writer/internal/prompts"
	"github.com/jonathan/longform-writer/internal/schemas"
	"github.com/jonathan/longform-writer/internal/types"
	"github.com/jonathan/longform-writer/internal/validation"
	schemafiles "github.com/jonathan/longform-writer/schemas"
)

const (
	// ExemplarLimit caps how many tagged documents feed one voice persona.
	ExemplarLimit = 3
	// ExemplarChars caps each exemplar.
	ExemplarChars = 2000
)

// BuiltinAuthor is used when no exemplar matches the author tags.
var BuiltinAuthor = types.VoicePersona{
	Name: "Default author",
	Tone: "warm, direct, quietly confident",
	StyleRules: []string{
		"Open each section with a concrete scene or a question the reader is already asking.",
		"Prefer short paragraphs of two to four sentences.",
		"Back every claim with an example, a number or a lived detail.",
		"End sections with a line that pulls the reader into the next one.",
	},
	Taboos: []string{"listicle filler", "hedging every sentence", "addressing the reader directly"},
	Source: types.PersonaBuiltin,
}

// BuiltinEditor is used when no exemplar matches the editor tags.
var BuiltinEditor = types.VoicePersona{
	Name: "Default editor",
	Tone: "exacting, reader-first",
	StyleRules: []string{
		"Every section must advance one emotional beat toward the conclusion.",
		"Cut anything the reader has already been told.",
		"The voice must be recognisable without the byline.",
	},
	Taboos: []string{"generic advice", "unsupported superlatives"},
	Source: types.PersonaBuiltin,
}

// ExemplarSource retrieves tagged documents.
type ExemplarSource interface {
	DocumentsByTags(ctx context.Context, tags []string, limit int) ([]types.Document, error)
}

// Config selects the exemplar tag sets.
type Config struct {
	AuthorTags []string
	EditorTags []string
}

// Input is the per-job input of the synthesizer.
type Input struct {
	Topic         string
	TargetPersona string
	// AuthorVoice, when not the default, is used as the author tag instead of Config.AuthorTags.
	AuthorVoice string
}

// Synthesizer builds PersonaBundles.
type Synthesizer struct {
	client llm.Client
	source ExemplarSource
	cfg    Config
	logger *zap.SugaredLogger
}

// NewSynthesizer creates a Synthesizer. source may be nil, in which case voice personas
// are always the builtin ones.
func NewSynthesizer(client llm.Client, source ExemplarSource, cfg Config) *Synthesizer {
	return &Synthesizer{client: client, source: source, cfg: cfg, logger: logging.Named("persona")}
}

// Synthesize runs the three persona generations concurrently. Any failure fails the whole bundle.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (*types.PersonaBundle, error) {
	var bundle types.PersonaBundle

	authorTags := s.cfg.AuthorTags
	if in.AuthorVoice != "" && in.AuthorVoice != types.DefaultAuthorVoice {
		authorTags = []string{in.AuthorVoice}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.audience(gctx, in)
		if err != nil {
			return err
		}
		bundle.Audience = *a
		return nil
	})
	g.Go(func() error {
		v, err := s.voice(gctx, "author", in.Topic, authorTags, BuiltinAuthor)
		if err != nil {
			return err
		}
		bundle.Author = *v
		return nil
	})
	g.Go(func() error {
		v, err := s.voice(gctx, "editor", in.Topic, s.cfg.EditorTags, BuiltinEditor)
		if err != nil {
			return err
		}
		bundle.Editor = *v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (s *Synthesizer) audience(ctx context.Context, in Input) (*types.AudiencePersona, error) {
	characteristics := strings.TrimSpace(in.TargetPersona)
	if characteristics == "" {
		characteristics = "(none)"
	}
	prompt, err := prompts.Render("persona.yaml", "audience", map[string]string{
		"Topic":           in.Topic,
		"Characteristics": characteristics,
	})
	if err != nil {
		return nil, err
	}

	var out types.AudiencePersona
	if err := schemas.Generate(ctx, s.client, []llm.Message{llm.User(prompt)}, schemafiles.AudiencePersona, llm.TierStandard, &out); err != nil {
		return nil, fmt.Errorf("audience persona failed: %w", err)
	}
	return &out, nil
}

func (s *Synthesizer) voice(ctx context.Context, role, topic string, tags []string, builtin types.VoicePersona) (*types.VoicePersona, error) {
	exemplars, err := s.exemplars(ctx, tags)
	if err != nil {
		return nil, fmt.Errorf("%s exemplar retrieval failed: %w", role, err)
	}
	if len(exemplars) == 0 {
		s.logger.Debugw("No exemplars, using builtin persona", "role", role, "tags", tags)
		v := builtin
		return &v, nil
	}

	prompt, err := prompts.Render("persona.yaml", "voice", map[string]string{
		"Role":      role,
		"Topic":     topic,
		"Exemplars": formatExemplars(exemplars),
	})
	if err != nil {
		return nil, err
	}

	var out types.VoicePersona
	if err := schemas.Generate(ctx, s.client, []llm.Message{llm.User(prompt)}, schemafiles.VoicePersona, llm.TierStandard, &out); err != nil {
		return nil, fmt.Errorf("%s persona failed: %w", role, err)
	}
	out.Source = types.PersonaRetrieved
	return &out, nil
}

func (s *Synthesizer) exemplars(ctx context.Context, tags []string) ([]types.Document, error) {
	if s.source == nil || len(tags) == 0 {
		return nil, nil
	}
	docs, err := s.source.DocumentsByTags(ctx, tags, ExemplarLimit)
	if err != nil {
		return nil, err
	}
	var out []types.Document
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			out = append(out, d)
		}
	}
	return out, nil
}

func formatExemplars(docs []types.Document) string {
	var sb strings.Builder
	for i, d := range docs {
		content := []rune(strings.TrimSpace(d.Content))
		if len(content) > ExemplarChars {
			content = content[:ExemplarChars]
		}
		body := validation.Guard(fmt.Sprintf("document %d", d.ID), "exemplar", string(content))
		fmt.Fprintf(&sb, "--- Sample %d: %s ---\n%s\n\n", i+1, d.Title, body)
	}
	return strings.TrimSpace(sb.String())
}
