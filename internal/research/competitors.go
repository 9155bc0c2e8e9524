package research

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jonathan/longform-writer/internal/fetch"
	"github.com/jonathan/longform-writer/internal/llm"
	"github.com/jonathan/longform-writer/internal/logging"
	"github.com/jonathan/longform-writer/internal/prompts"
	"github.com/jonathan/longform-writer/internal/quality"
	"github.com/jonathan/longform-writer/internal/schemas"
	"github.com/jonathan/longform-writer/internal/types"
	"github.com/jonathan/longform-writer/internal/validation"
	schemafiles "github.com/jonathan/longform-writer/schemas"
)

// PageFetcher retrieves an extracted article. *fetch.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// AnalyzerConfig tunes competitor analysis.
type AnalyzerConfig struct {
	ResultsPerQuery int
	// RequestsPerSecond limits page fetches across all queries; <= 0 means unlimited.
	RequestsPerSecond float64
	// Concurrency bounds in-flight page analyses.
	Concurrency int
}

// Analyzer runs search, fetch and analysis for each query.
type Analyzer struct {
	client   llm.Client
	searcher Searcher
	fetcher  PageFetcher
	limiter  *rate.Limiter
	cfg      AnalyzerConfig
	logger   *zap.SugaredLogger
}

// NewAnalyzer creates an Analyzer. searcher may be nil, in which case every query
// goes straight to simulation.
func NewAnalyzer(client llm.Client, searcher Searcher, fetcher PageFetcher, cfg AnalyzerConfig) *Analyzer {
	if cfg.ResultsPerQuery <= 0 {
		cfg.ResultsPerQuery = DefaultResultsPerQuery
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = cfg.ResultsPerQuery
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Analyzer{
		client:   client,
		searcher: searcher,
		fetcher:  fetcher,
		limiter:  rate.NewLimiter(limit, 1),
		cfg:      cfg,
		logger:   logging.Named("research"),
	}
}

// Analyze returns competitor samples for every query, in query order. A query with no
// usable page yields simulated samples. Model failures are returned; search and fetch
// failures only shrink the sample set.
func (a *Analyzer) Analyze(ctx context.Context, topic string, queries []string, keywords []string) ([]types.CompetitorAnalysis, error) {
	var all []types.CompetitorAnalysis
	for _, query := range queries {
		samples, err := a.analyzeQuery(ctx, query, keywords)
		if err != nil {
			return nil, err
		}
		if len(samples) == 0 {
			a.logger.Infow("No usable competitor pages, simulating", "query", query)
			samples, err = a.simulate(ctx, topic, query, keywords)
			if err != nil {
				return nil, err
			}
		}
		all = append(all, samples...)
	}
	return all, nil
}

func (a *Analyzer) analyzeQuery(ctx context.Context, query string, keywords []string) ([]types.CompetitorAnalysis, error) {
	if a.searcher == nil {
		return nil, nil
	}
	results, err := a.searcher.Search(ctx, query, a.cfg.ResultsPerQuery)
	if err != nil {
		a.logger.Warnw("Search failed", "query", query, "error", err)
		return nil, nil
	}
	if len(results) > a.cfg.ResultsPerQuery {
		results = results[:a.cfg.ResultsPerQuery]
	}

	slots := make([]*types.CompetitorAnalysis, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, r := range results {
		g.Go(func() error {
			analysis, err := a.analyzePage(gctx, query, r.URL, keywords)
			if err != nil {
				return err
			}
			slots[i] = analysis
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []types.CompetitorAnalysis
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

// analyzePage returns nil, nil for pages that cannot be fetched or are too short.
func (a *Analyzer) analyzePage(ctx context.Context, query, pageURL string, keywords []string) (*types.CompetitorAnalysis, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	page, err := a.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		a.logger.Warnw("Skipping competitor page", "url", pageURL, "error", err)
		return nil, nil
	}
	if utf8.RuneCountInString(strings.TrimSpace(page.Text)) < MinPageChars {
		a.logger.Debugw("Skipping short competitor page", "url", pageURL, "chars", utf8.RuneCountInString(page.Text))
		return nil, nil
	}

	body := page.Markdown
	if body == "" {
		body = page.Text
	}
	prompt, err := prompts.Render("research.yaml", "analyze-competitor", map[string]string{
		"Query":    query,
		"URL":      pageURL,
		"Keywords": strings.Join(keywords, ", "),
		"Content":  validation.Guard(pageURL, "competitor article", truncateRunes(body, MaxContentChars)),
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Title         string         `json:"title"`
		Headings      []string       `json:"headings"`
		SynonymCounts map[string]int `json:"synonymCounts"`
		RelatedCounts map[string]int `json:"relatedCounts"`
		Strengths     []string       `json:"strengths"`
		Gaps          []string       `json:"gaps"`
	}
	if err := schemas.Generate(ctx, a.client, []llm.Message{llm.User(prompt)}, schemafiles.CompetitorAnalysis, llm.TierStandard, &parsed); err != nil {
		return nil, fmt.Errorf("competitor analysis of %s failed: %w", pageURL, err)
	}

	title := page.Title
	if title == "" {
		title = parsed.Title
	}
	headings := parsed.Headings
	if len(headings) == 0 {
		for _, h := range page.Headings {
			headings = append(headings, h.Text)
		}
	}
	return &types.CompetitorAnalysis{
		Query:         query,
		URL:           pageURL,
		Title:         title,
		CharCount:     quality.CharCount(page.Text),
		H2Count:       page.H2Count,
		H3Count:       page.H3Count,
		Headings:      headings,
		KeywordCounts: quality.CountKeywords(page.Text, keywords),
		SynonymCounts: parsed.SynonymCounts,
		RelatedCounts: parsed.RelatedCounts,
		Strengths:     parsed.Strengths,
		Gaps:          parsed.Gaps,
		Excerpt:       truncateRunes(body, ExcerptChars),
	}, nil
}

func (a *Analyzer) simulate(ctx context.Context, topic, query string, keywords []string) ([]types.CompetitorAnalysis, error) {
	prompt, err := prompts.Render("research.yaml", "simulate-competitors", map[string]string{
		"Query":    query,
		"Topic":    topic,
		"Keywords": strings.Join(keywords, ", "),
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Competitors []types.CompetitorAnalysis `json:"competitors"`
	}
	if err := schemas.Generate(ctx, a.client, []llm.Message{llm.User(prompt)}, schemafiles.SimulatedCompetitors, llm.TierStandard, &parsed); err != nil {
		return nil, fmt.Errorf("competitor simulation for %q failed: %w", query, err)
	}

	out := parsed.Competitors
	if len(out) > SimulatedCompetitors {
		out = out[:SimulatedCompetitors]
	}
	for i := range out {
		out[i].Query = query
		out[i].URL = ""
		out[i].Simulated = true
		if out[i].KeywordCounts == nil {
			out[i].KeywordCounts = map[string]int{}
		}
	}
	return out, nil
}
