package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMarkdown(t *testing.T) {
	out, err := ToMarkdown(`<article><h2>Basics</h2><p>Sleep <strong>early</strong>.</p><ul><li>one</li></ul></article>`)
	require.NoError(t, err)
	assert.Contains(t, out, "## Basics")
	assert.Contains(t, out, "**early**")
	assert.Contains(t, out, "- one")
}

func TestToMarkdown_Empty(t *testing.T) {
	out, err := ToMarkdown("")
	require.NoError(t, err)
	assert.Empty(t, out)
}
