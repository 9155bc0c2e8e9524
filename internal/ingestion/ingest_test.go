package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/longform-writer/internal/fetch"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"crlf", "a\r\nb\rc", "a\nb\nc"},
		{"trailing space", "line   \t\nnext", "line\nnext"},
		{"inner spaces", "too    many   spaces", "too many spaces"},
		{"blank runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"keeps indentation", "- item\n  - nested   item", "- item\n  - nested item"},
		{"keeps fenced code", "```\nx  :=   1\n```", "```\nx  :=   1\n```"},
		{"outer whitespace", "\n\n  # Title\n\n", "# Title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	md := filepath.Join(dir, "voice-notes.md")
	require.NoError(t, os.WriteFile(md, []byte("\n# Voice\n\n\n\nShort   sentences.\n"), 0o644))
	req, err := FromFile(md)
	require.NoError(t, err)
	assert.Equal(t, "voice-notes", req.Title)
	assert.Equal(t, "# Voice\n\nShort sentences.", req.Content)

	html := filepath.Join(dir, "exemplar.html")
	require.NoError(t, os.WriteFile(html, []byte("<h2>Grinders</h2><p>Burr grinders <strong>matter</strong>.</p>"), 0o644))
	req, err = FromFile(html)
	require.NoError(t, err)
	assert.Contains(t, req.Content, "## Grinders")
	assert.Contains(t, req.Content, "**matter**")

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte(" \n\t\n"), 0o644))
	_, err = FromFile(empty)
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = FromFile(filepath.Join(dir, "missing.md"))
	assert.Error(t, err)
}

type stubFetcher struct {
	page *fetch.Page
	err  error
}

func (s stubFetcher) Fetch(context.Context, string) (*fetch.Page, error) { return s.page, s.err }

func TestFromURL(t *testing.T) {
	ctx := context.Background()

	req, err := FromURL(ctx, stubFetcher{page: &fetch.Page{Title: "Brewing guide", Markdown: "## Ratio"}}, "https://example.com/guide")
	require.NoError(t, err)
	assert.Equal(t, "Brewing guide", req.Title)
	assert.Equal(t, "## Ratio", req.Content)

	req, err = FromURL(ctx, stubFetcher{page: &fetch.Page{Markdown: "body"}}, "https://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", req.Title)

	_, err = FromURL(ctx, stubFetcher{err: errors.New("status 404")}, "https://example.com/gone")
	assert.ErrorContains(t, err, "failed to fetch")
}
