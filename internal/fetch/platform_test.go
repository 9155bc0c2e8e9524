package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url  string
		want Platform
	}{
		{"https://note.com/someone/n/n123", PlatformNote},
		{"https://medium.com/@a/post-1", PlatformMedium},
		{"https://blog.medium.com/post", PlatformMedium},
		{"https://example.hatenablog.com/entry/1", PlatformHatena},
		{"https://x.hateblo.jp/entry/2", PlatformHatena},
		{"https://myblog.wordpress.com/2024/01/post", PlatformWordPress},
		{"https://example.com/article", PlatformUnknown},
		{"::bad", PlatformUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPlatform(tt.url))
		})
	}
}

func TestPlatformSelectors(t *testing.T) {
	assert.Contains(t, PlatformContentSelectors(PlatformHatena), ".entry-content")
	assert.Equal(t, ArticleSelectors(), PlatformContentSelectors(PlatformUnknown))

	noise := PlatformNoiseSelectors(PlatformNote)
	assert.Contains(t, noise, ".related-posts")
	assert.Contains(t, noise, ".m-creatorInfo")
}
