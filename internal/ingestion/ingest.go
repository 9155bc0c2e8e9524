// Package ingestion turns web pages and local files into knowledge documents.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jonathan/longform-writer/internal/fetch"
	"github.com/jonathan/longform-writer/internal/types"
)

// ErrEmptyContent is returned when nothing is left after cleaning.
var ErrEmptyContent = errors.New("document has no content")

// PageFetcher is the part of *fetch.Fetcher ingestion uses.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

var (
	innerSpace = regexp.MustCompile(`[ \t]{2,}`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes line endings, trims trailing whitespace, collapses
// runs of inner spaces and caps blank runs at one empty line. Leading
// indentation is kept so nested lists and code blocks survive, and
// fenced code is left untouched.
func CleanText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	fenced := false
	for i, line := range lines {
		line = strings.TrimRight(line, " \t")
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "```") {
			fenced = !fenced
		}
		if fenced || trimmed == "" {
			lines[i] = line
			continue
		}
		indent := line[:len(line)-len(trimmed)]
		lines[i] = indent + innerSpace.ReplaceAllString(trimmed, " ")
	}

	out := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out)
}

// FromURL fetches url and returns its cleaned markdown, titled with the page title.
func FromURL(ctx context.Context, f PageFetcher, url string) (types.CreateDocumentRequest, error) {
	page, err := f.Fetch(ctx, url)
	if err != nil {
		return types.CreateDocumentRequest{}, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = url
	}
	return build(title, page.Markdown)
}

// FromFile reads path. HTML files are converted to markdown; anything else is stored as text.
// The title is the file name without its extension.
func FromFile(path string) (types.CreateDocumentRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.CreateDocumentRequest{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	content := string(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		if content, err = fetch.ToMarkdown(content); err != nil {
			return types.CreateDocumentRequest{}, err
		}
	}
	return build(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), content)
}

func build(title, content string) (types.CreateDocumentRequest, error) {
	content = CleanText(content)
	if content == "" {
		return types.CreateDocumentRequest{}, fmt.Errorf("%s: %w", title, ErrEmptyContent)
	}
	return types.CreateDocumentRequest{Title: title, Content: content}, nil
}
