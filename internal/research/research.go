// Package research covers steps 1 to 5 of a job: keyword separation, search queries,
// competitor analysis with a simulated fallback, and audience research.
package research

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// SearchResult is one organic search hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher finds candidate competitor pages for a query. Zero results is not an error.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// CustomSearchSearcher queries the Google Programmable Search JSON API.
type CustomSearchSearcher struct {
	svc *customsearch.Service
	cx  string
}

// NewCustomSearchSearcher creates a searcher for the engine cx.
func NewCustomSearchSearcher(ctx context.Context, apiKey string, cx string) (*CustomSearchSearcher, error) {
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("custom search requires an API key and engine id")
	}
	svc, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	return &CustomSearchSearcher{svc: svc, cx: cx}, nil
}

// Search returns up to limit results (the API caps a page at 10).
func (s *CustomSearchSearcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 || limit > 10 {
		limit = 10
	}
	resp, err := s.svc.Cse.List().Cx(s.cx).Q(query).Num(int64(limit)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		out = append(out, SearchResult{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
	}
	return dedupResults(out, limit), nil
}

// dedupResults drops repeated URLs and non-http links, keeping order.
func dedupResults(results []SearchResult, limit int) []SearchResult {
	seen := make(map[string]bool)
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		u, err := url.Parse(r.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		key := strings.TrimSuffix(u.Host+u.Path, "/")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func getDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
