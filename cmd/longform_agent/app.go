package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jonathan/longform-writer/internal/config"
	"github.com/jonathan/longform-writer/internal/db"
	"github.com/jonathan/longform-writer/internal/fetch"
	"github.com/jonathan/longform-writer/internal/llm"
	"github.com/jonathan/longform-writer/internal/persona"
	"github.com/jonathan/longform-writer/internal/pipeline"
	"github.com/jonathan/longform-writer/internal/research"
	"github.com/jonathan/longform-writer/internal/scheduler"
	"github.com/jonathan/longform-writer/internal/server"
	"github.com/jonathan/longform-writer/internal/server/ratelimit"
)

// openStore connects to the configured database and applies migrations.
func openStore(ctx context.Context, c *config.Config) (db.Store, error) {
	store, err := db.Open(ctx, c.Database.Driver, c.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// llmConfig overlays the configured values on the provider defaults.
func llmConfig(c config.LLMConfig) *llm.Config {
	out := llm.DefaultConfigFor(llm.Provider(c.Provider))
	for tier, model := range c.Models {
		if model != "" {
			out.Models[llm.ModelTier(tier)] = model
		}
	}
	if c.BaseURL != "" {
		out.BaseURL = c.BaseURL
	}
	if c.Timeout > 0 {
		out.Timeout = c.Timeout
	}
	if c.MaxTokens > 0 {
		out.MaxTokens = c.MaxTokens
	}
	if c.ContextSize > 0 {
		out.ContextSize = c.ContextSize
	}
	return out
}

func newLLMClient(ctx context.Context, c *config.Config) (llm.Client, error) {
	if err := c.RequireLLMKey(); err != nil {
		return nil, err
	}
	client, err := llm.NewClient(ctx, llmConfig(c.LLM), c.LLM.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return client, nil
}

func fetchOptions(c config.FetchConfig) *fetch.Options {
	opts := fetch.DefaultOptions()
	if c.Timeout > 0 {
		opts.Timeout = c.Timeout
	}
	if c.UserAgent != "" {
		opts.UserAgent = c.UserAgent
	}
	return opts
}

func newFetcher(c config.FetchConfig) *fetch.Fetcher {
	fc := fetch.DefaultFetcherConfig()
	fc.Options = fetchOptions(c)
	fc.UseBrowser = c.UseBrowser
	return fetch.NewFetcher(fc)
}

// newSearcher prefers the Programmable Search API when it is configured and falls
// back to scraping an HTML results page. A nil searcher sends every query to simulation.
func newSearcher(ctx context.Context, c config.FetchConfig) (research.Searcher, error) {
	if c.SearchAPIKey != "" {
		s, err := research.NewCustomSearchSearcher(ctx, c.SearchAPIKey, c.SearchCX)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if c.SearchURL == "" {
		return nil, nil
	}
	return &research.HTMLSearcher{
		SearchURL:      c.SearchURL,
		ResultSelector: research.DefaultResultSelector,
		Options:        fetchOptions(c),
	}, nil
}

// newProcessor wires the pipeline for one executor. The returned close func releases
// the LLM client.
func newProcessor(ctx context.Context, c *config.Config, store pipeline.Store, onProgress pipeline.ProgressCallback) (*pipeline.Processor, func(), error) {
	client, err := newLLMClient(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	searcher, err := newSearcher(ctx, c.Fetch)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	p := pipeline.New(pipeline.Options{
		Client:   client,
		Store:    store,
		Searcher: searcher,
		Fetcher:  newFetcher(c.Fetch),
		Analyzer: research.AnalyzerConfig{
			ResultsPerQuery:   c.Fetch.ResultsPerQuery,
			RequestsPerSecond: c.Fetch.RequestsPerSecond,
		},
		Personas: persona.Config{
			AuthorTags: c.Pipeline.AuthorVoiceTags,
			EditorTags: c.Pipeline.EditorTags,
		},
		ForbiddenPronoun: c.Pipeline.ForbiddenPronoun,
		OnProgress:       onProgress,
	})
	return p, func() { _ = client.Close() }, nil
}

// schedulerConfig builds the executor command line. The child re-reads the same
// config file and logs the same way as the parent.
func schedulerConfig(c *config.Config) (scheduler.Config, error) {
	sc := scheduler.DefaultConfig()
	sc.PollInterval = c.Scheduler.PollInterval
	sc.StderrTailBytes = c.Scheduler.StderrTailBytes
	sc.StopTimeout = c.Scheduler.StopTimeout
	if c.Scheduler.Executable != "" {
		sc.Executable = c.Scheduler.Executable
	}

	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return sc, fmt.Errorf("failed to resolve config path: %w", err)
		}
		sc.Args = append(sc.Args, "--config", abs)
	}
	sc.Args = append(sc.Args, "--log-level", logLevel)
	if logJSON {
		sc.Args = append(sc.Args, "--log-json")
	}
	return sc, nil
}

func newScheduler(store scheduler.Store, c *config.Config) (*scheduler.Scheduler, error) {
	sc, err := schedulerConfig(c)
	if err != nil {
		return nil, err
	}
	return scheduler.New(store, sc)
}

func serverConfig(c *config.Config) server.Config {
	return server.Config{
		Port:                c.Server.Port,
		OperatorSecret:      c.Server.OperatorSecret,
		RateLimit:           ratelimit.NewConfig(c.Server.RateLimit.RPS, c.Server.RateLimit.Burst),
		DefaultTargetLength: c.Pipeline.DefaultTargetLength,
	}
}
