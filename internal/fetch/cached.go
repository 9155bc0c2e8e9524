package fetch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/longform-writer/internal/logging"
)

// Page is a fetched and extracted article.
type Page struct {
	URL      string
	Title    string
	Text     string
	Markdown string
	Headings []Heading
	H2Count  int
	H3Count  int
	Rendered bool // true when the headless browser produced the HTML
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Options        *Options
	UseBrowser     bool
	BrowserTimeout time.Duration
	CacheTTL       time.Duration
}

// DefaultFetcherConfig returns sensible defaults.
func DefaultFetcherConfig() *FetcherConfig {
	return &FetcherConfig{
		Options:        DefaultOptions(),
		BrowserTimeout: DefaultTimeout,
		CacheTTL:       time.Hour,
	}
}

type cacheEntry struct {
	page    *Page
	expires time.Time
}

// Fetcher fetches article pages with platform-aware extraction, an optional headless
// browser fallback and an in-memory TTL cache. The same URL often appears under several
// search queries of one job. Safe for concurrent use.
type Fetcher struct {
	options        *Options
	useBrowser     bool
	browserTimeout time.Duration
	cacheTTL       time.Duration
	logger         *zap.SugaredLogger

	// get and render are swapped in tests.
	get    func(ctx context.Context, url string, opts *Options) (*Result, error)
	render func(ctx context.Context, url string, timeout time.Duration) (string, error)

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewFetcher creates a new fetcher.
func NewFetcher(config *FetcherConfig) *Fetcher {
	if config == nil {
		config = DefaultFetcherConfig()
	}
	if config.Options == nil {
		config.Options = DefaultOptions()
	}
	if config.BrowserTimeout <= 0 {
		config.BrowserTimeout = DefaultTimeout
	}
	return &Fetcher{
		options:        config.Options,
		useBrowser:     config.UseBrowser,
		browserTimeout: config.BrowserTimeout,
		cacheTTL:       config.CacheTTL,
		logger:         logging.Named("fetch"),
		get:            URL,
		render:         WithBrowser,
		cache:          make(map[string]cacheEntry),
		now:            time.Now,
	}
}

// Fetch retrieves and extracts a page, using the cache when fresh.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*Page, error) {
	if page := f.cached(urlStr); page != nil {
		return page, nil
	}

	result, err := f.get(ctx, urlStr, f.options)
	if err != nil {
		return nil, err
	}

	platform := DetectPlatform(urlStr)
	selectors := PlatformContentSelectors(platform)
	noiseSelectors := PlatformNoiseSelectors(platform)

	ext, err := Extract(result.HTML, selectors, noiseSelectors...)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "extraction failed", Cause: err}
	}

	rendered := false
	if f.useBrowser && ShouldUseBrowser(ext.Text) {
		html, err := f.render(ctx, urlStr, f.browserTimeout)
		if err != nil {
			f.logger.Warnw("Browser fallback failed, keeping HTTP extraction", "url", urlStr, "error", err)
		} else if bext, err := Extract(html, selectors, noiseSelectors...); err == nil && len(bext.Text) > len(ext.Text) {
			ext = bext
			rendered = true
		}
	}

	page := &Page{
		URL:      urlStr,
		Title:    ext.Title,
		Text:     ext.Text,
		Headings: ext.Headings,
		H2Count:  ext.H2Count(),
		H3Count:  ext.H3Count(),
		Rendered: rendered,
	}
	if markdown, err := ToMarkdown(ext.MainHTML); err == nil && markdown != "" {
		page.Markdown = markdown
	} else {
		page.Markdown = ext.Text
	}

	f.store(urlStr, page)
	return page, nil
}

func (f *Fetcher) cached(urlStr string) *Page {
	if f.cacheTTL <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[urlStr]
	if !ok {
		return nil
	}
	if f.now().After(entry.expires) {
		delete(f.cache, urlStr)
		return nil
	}
	return entry.page
}

func (f *Fetcher) store(urlStr string, page *Page) {
	if f.cacheTTL <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[urlStr] = cacheEntry{page: page, expires: f.now().Add(f.cacheTTL)}
}

// Invalidate drops a cached page, forcing a re-fetch on next request.
func (f *Fetcher) Invalidate(urlStr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cache, urlStr)
}
