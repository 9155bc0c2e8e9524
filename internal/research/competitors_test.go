package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/longform-writer/internal/fetch"
	"github.com/jonathan/longform-writer/internal/llm/llmtest"
)

type fakeSearcher struct {
	results map[string][]SearchResult
	err     error
}

func (s *fakeSearcher) Search(_ context.Context, query string, limit int) ([]SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	r := s.results[query]
	if len(r) > limit {
		r = r[:limit]
	}
	return r, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]*fetch.Page
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*fetch.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	if p, ok := f.pages[url]; ok {
		return p, nil
	}
	return nil, &fetch.Error{URL: url, Message: "HTTP status 404"}
}

func longPage(url string) *fetch.Page {
	text := strings.Repeat("sleep hygiene matters. ", 40)
	return &fetch.Page{URL: url, Title: "Page " + url, Text: text, Markdown: "## Intro\n\n" + text, H2Count: 4, H3Count: 9}
}

const analysisJSON = `{"title":"t","headings":["Intro"],"synonymCounts":{"rest":2},"relatedCounts":{"melatonin":1},"gaps":["no data"]}`

const simulationJSON = `{"competitors":[
 {"title":"Sim A","charCount":6000,"h2Count":6,"h3Count":12,"keywordCounts":{"sleep hygiene":8}},
 {"title":"Sim B","charCount":4000,"h2Count":5,"h3Count":10,"keywordCounts":{"sleep hygiene":4}},
 {"title":"Sim C","charCount":3000,"h2Count":4,"h3Count":8,"keywordCounts":{}},
 {"title":"Sim D","charCount":2000,"h2Count":3,"h3Count":6,"keywordCounts":{}}]}`

func TestAnalyze_RealPages(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]SearchResult{
		"q1": {{URL: "https://a.test/1"}, {URL: "https://a.test/short"}, {URL: "https://a.test/404"}, {URL: "https://a.test/extra"}},
	}}
	fetcher := &fakeFetcher{pages: map[string]*fetch.Page{
		"https://a.test/1":     longPage("https://a.test/1"),
		"https://a.test/short": {URL: "https://a.test/short", Text: "too short"},
		"https://a.test/extra": longPage("https://a.test/extra"),
	}}
	client := (&llmtest.Client{}).On("analysing a competing article", analysisJSON)

	a := NewAnalyzer(client, searcher, fetcher, AnalyzerConfig{ResultsPerQuery: 3})
	samples, err := a.Analyze(context.Background(), "topic", []string{"q1"}, []string{"sleep hygiene"})
	require.NoError(t, err)
	require.Len(t, samples, 1)

	s := samples[0]
	assert.Equal(t, "q1", s.Query)
	assert.Equal(t, "https://a.test/1", s.URL)
	assert.Equal(t, "Page https://a.test/1", s.Title)
	assert.Equal(t, 40, s.KeywordCounts["sleep hygiene"])
	assert.Equal(t, 2, s.SynonymCounts["rest"])
	assert.Equal(t, 4, s.H2Count)
	assert.False(t, s.Simulated)
	assert.NotContains(t, fetcher.fetched, "https://a.test/extra")
	assert.Contains(t, client.Calls()[0].Prompt(), "BEGIN QUOTED COMPETITOR ARTICLE")
}

func TestAnalyze_SimulatesWhenNothingUsable(t *testing.T) {
	client := (&llmtest.Client{}).On("No competing pages could be retrieved", simulationJSON)

	a := NewAnalyzer(client, &fakeSearcher{err: errors.New("blocked")}, &fakeFetcher{}, AnalyzerConfig{})
	samples, err := a.Analyze(context.Background(), "topic", []string{"q1"}, []string{"sleep hygiene"})
	require.NoError(t, err)
	require.Len(t, samples, SimulatedCompetitors)
	for _, s := range samples {
		assert.True(t, s.Simulated)
		assert.Equal(t, "q1", s.Query)
		assert.NotNil(t, s.KeywordCounts)
	}
	assert.Equal(t, 6000, samples[0].CharCount)
}

func TestAnalyze_NilSearcherSimulates(t *testing.T) {
	client := (&llmtest.Client{}).On("No competing pages", simulationJSON)

	a := NewAnalyzer(client, nil, nil, AnalyzerConfig{})
	samples, err := a.Analyze(context.Background(), "topic", []string{"q1", "q2"}, nil)
	require.NoError(t, err)
	assert.Len(t, samples, 2*SimulatedCompetitors)
	assert.Equal(t, "q2", samples[3].Query)
}

func TestAnalyze_ModelFailureIsFatal(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]SearchResult{"q1": {{URL: "https://a.test/1"}}}}
	fetcher := &fakeFetcher{pages: map[string]*fetch.Page{"https://a.test/1": longPage("https://a.test/1")}}
	client := (&llmtest.Client{}).FailOn("analysing", errors.New("quota exceeded"))

	a := NewAnalyzer(client, searcher, fetcher, AnalyzerConfig{})
	_, err := a.Analyze(context.Background(), "topic", []string{"q1"}, nil)
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestAnalyze_SimulationFailureIsFatal(t *testing.T) {
	client := (&llmtest.Client{}).FailOn("No competing pages", errors.New("timeout"))

	a := NewAnalyzer(client, nil, nil, AnalyzerConfig{})
	_, err := a.Analyze(context.Background(), "topic", []string{"q1"}, nil)
	assert.ErrorContains(t, err, "competitor simulation")
}
