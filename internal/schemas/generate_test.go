package schemas

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/longform-writer/internal/llm"
	"github.com/jonathan/longform-writer/internal/llm/llmtest"
	"github.com/jonathan/longform-writer/internal/types"
	schemafiles "github.com/jonathan/longform-writer/schemas"
)

func TestGenerate_DecodesValidOutput(t *testing.T) {
	client := (&llmtest.Client{}).On("split", "```json\n{\"conclusionKeywords\":[\"a\"],\"trafficKeywords\":[\"b\"]}\n```")

	var out types.SeparatedKeywords
	err := Generate(context.Background(), client, []llm.Message{llm.User("split")}, schemafiles.SeparatedKeywords, llm.TierLite, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out.ConclusionKeywords)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Schema, "conclusionKeywords")
}

func TestGenerate_RejectsNonConformingOutput(t *testing.T) {
	client := (&llmtest.Client{}).On("split", `{"conclusionKeywords":[]}`)

	var out types.SeparatedKeywords
	err := Generate(context.Background(), client, []llm.Message{llm.User("split")}, schemafiles.SeparatedKeywords, llm.TierLite, &out)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestGenerate_PropagatesClientError(t *testing.T) {
	boom := errors.New("boom")
	client := (&llmtest.Client{}).FailOn("split", boom)

	var out types.SeparatedKeywords
	err := Generate(context.Background(), client, []llm.Message{llm.User("split")}, schemafiles.SeparatedKeywords, llm.TierLite, &out)
	assert.ErrorIs(t, err, boom)
}

func TestGenerate_UnknownSchema(t *testing.T) {
	var out map[string]any
	err := Generate(context.Background(), &llmtest.Client{}, nil, "nope", llm.TierLite, &out)
	var le *SchemaLoadError
	require.ErrorAs(t, err, &le)
}
