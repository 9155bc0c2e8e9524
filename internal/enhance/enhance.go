package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/longform-writer/internal/llm"
	"github.com/jonathan/longform-writer/internal/logging"
	"github.com/jonathan/longform-writer/internal/prompts"
	"github.com/jonathan/longform-writer/internal/schemas"
	"github.com/jonathan/longform-writer/internal/structure"
	"github.com/jonathan/longform-writer/internal/types"
	schemafiles "github.com/jonathan/longform-writer/schemas"
)

// Input is a finished document and its job context.
type Input struct {
	Topic    string
	Keyword  string
	Document string
}

// Enhancer builds the optional publishing package.
type Enhancer struct {
	client llm.Client
	logger *zap.SugaredLogger
}

// New creates an Enhancer.
func New(client llm.Client) *Enhancer {
	return &Enhancer{client: client, logger: logging.Named("enhance")}
}

// Enhance runs summary, FAQ and meta generation concurrently. Failures are recorded in
// Enhancement.Errors and never returned.
func (e *Enhancer) Enhance(ctx context.Context, in Input) *types.Enhancement {
	out := &types.Enhancement{}
	var mu sync.Mutex
	record := func(part string, err error) {
		mu.Lock()
		defer mu.Unlock()
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", part, err))
		e.logger.Warnw("Enhancement part failed", "part", part, "error", err)
	}
	data := map[string]string{"Topic": in.Topic, "Keyword": in.Keyword, "Document": in.Document}

	var g errgroup.Group
	g.Go(func() error {
		summary, err := e.summary(ctx, data)
		if err != nil {
			record("summary", err)
			return nil
		}
		mu.Lock()
		out.Summary = summary
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		faq, err := e.faq(ctx, data)
		if err != nil {
			record("faq", err)
			return nil
		}
		mu.Lock()
		out.FAQ = faq
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		meta, err := e.meta(ctx, data)
		if err != nil {
			record("meta", err)
			return nil
		}
		mu.Lock()
		out.Meta = meta
		mu.Unlock()
		return nil
	})
	_ = g.Wait()

	jsonLD, err := BuildJSONLD(in, out)
	if err != nil {
		record("json-ld", err)
	} else {
		out.JSONLD = jsonLD
	}
	return out
}

func (e *Enhancer) summary(ctx context.Context, data map[string]string) (string, error) {
	prompt, err := prompts.Render("enhance.yaml", "summary", data)
	if err != nil {
		return "", err
	}
	text, err := e.client.GenerateContent(ctx, []llm.Message{llm.User(prompt)}, llm.TierLite)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty summary")
	}
	return text, nil
}

func (e *Enhancer) faq(ctx context.Context, data map[string]string) ([]types.FAQItem, error) {
	prompt, err := prompts.Render("enhance.yaml", "faq", data)
	if err != nil {
		return nil, err
	}
	var out struct {
		FAQ []types.FAQItem `json:"faq"`
	}
	if err := schemas.Generate(ctx, e.client, []llm.Message{llm.User(prompt)}, schemafiles.FAQ, llm.TierLite, &out); err != nil {
		return nil, err
	}
	return out.FAQ, nil
}

func (e *Enhancer) meta(ctx context.Context, data map[string]string) (*types.MetaInfo, error) {
	prompt, err := prompts.Render("enhance.yaml", "meta", data)
	if err != nil {
		return nil, err
	}
	var out types.MetaInfo
	if err := schemas.Generate(ctx, e.client, []llm.Message{llm.User(prompt)}, schemafiles.MetaInfo, llm.TierLite, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BuildJSONLD renders an Article object, plus a FAQPage when FAQ items exist, as a
// JSON-LD graph.
func BuildJSONLD(in Input, enh *types.Enhancement) (string, error) {
	headline := structure.Title(in.Document)
	if headline == "" {
		headline = in.Topic
	}
	article := map[string]any{
		"@type":    "Article",
		"headline": headline,
		"keywords": in.Keyword,
	}
	if enh.Meta != nil {
		article["description"] = enh.Meta.Description
	}
	graph := []any{article}

	if len(enh.FAQ) > 0 {
		entities := make([]any, len(enh.FAQ))
		for i, item := range enh.FAQ {
			entities[i] = map[string]any{
				"@type": "Question",
				"name":  item.Question,
				"acceptedAnswer": map[string]any{
					"@type": "Answer",
					"text":  item.Answer,
				},
			}
		}
		graph = append(graph, map[string]any{"@type": "FAQPage", "mainEntity": entities})
	}

	b, err := json.MarshalIndent(map[string]any{"@context": "https://schema.org", "@graph": graph}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
