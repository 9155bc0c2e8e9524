package research

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/longform-writer/internal/fetch"
)

// DefaultResultSelector matches result links on the DuckDuckGo HTML endpoint and
// on most server-rendered result pages.
const DefaultResultSelector = "a.result__a, .result a[href], #search a[href] h3"

// HTMLSearcher scrapes a server-rendered search results page. SearchURL contains
// a single %s for the escaped query, e.g. "https://html.duckduckgo.com/html/?q=%s".
type HTMLSearcher struct {
	SearchURL      string
	ResultSelector string
	Options        *fetch.Options
}

// Search fetches the results page and returns up to limit external links.
func (s *HTMLSearcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if !strings.Contains(s.SearchURL, "%s") {
		return nil, fmt.Errorf("search url %q has no %%s placeholder", s.SearchURL)
	}
	pageURL := fmt.Sprintf(s.SearchURL, url.QueryEscape(query))

	result, err := fetch.URL(ctx, pageURL, s.Options)
	if err != nil {
		return nil, err
	}
	return ParseResults(result.HTML, pageURL, s.ResultSelector, limit)
}

// ParseResults extracts result links from a search page. Links back to the search
// host are dropped and redirect wrappers (uddg=, q=, url=) are unwrapped.
func ParseResults(html, pageURL, selector string, limit int) ([]SearchResult, error) {
	if selector == "" {
		selector = DefaultResultSelector
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}
	searchHost := getDomain(pageURL)

	var results []SearchResult
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		link := sel
		if goquery.NodeName(sel) != "a" {
			link = sel.Closest("a")
		}
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		target := unwrapRedirect(href, pageURL)
		if target == "" || getDomain(target) == searchHost {
			return
		}
		results = append(results, SearchResult{
			Title: strings.TrimSpace(sel.Text()),
			URL:   target,
		})
	})
	return dedupResults(results, limit), nil
}

func unwrapRedirect(href, base string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	u, err := baseURL.Parse(href)
	if err != nil {
		return ""
	}
	for _, key := range []string{"uddg", "q", "url"} {
		if v := u.Query().Get(key); strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
			return v
		}
	}
	return u.String()
}
