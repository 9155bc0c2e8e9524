package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/longform-writer/internal/llm/llmtest"
	"github.com/jonathan/longform-writer/internal/types"
)

const faqJSON = `{"faq":[{"question":"How long?","answer":"Two weeks."},{"question":"Naps?","answer":"Short ones."}]}`

const metaJSON = `{"title":"Sleep again","description":"A calm plan.","ogTitle":"Sleep again","ogDescription":"A calm plan."}`

func input() Input {
	return Input{Topic: "sleep", Keyword: "sleep coaching", Document: "# Sleep again\n\nBody."}
}

func TestEnhance_AllParts(t *testing.T) {
	client := (&llmtest.Client{}).
		On("2-3 sentence summary", "Sleep returns with a plan.").
		On("frequently asked questions", faqJSON).
		On("page metadata", metaJSON)

	enh := New(client).Enhance(context.Background(), input())

	assert.Empty(t, enh.Errors)
	assert.Equal(t, "Sleep returns with a plan.", enh.Summary)
	require.Len(t, enh.FAQ, 2)
	require.NotNil(t, enh.Meta)
	assert.Equal(t, "A calm plan.", enh.Meta.Description)

	var ld map[string]any
	require.NoError(t, json.Unmarshal([]byte(enh.JSONLD), &ld))
	graph := ld["@graph"].([]any)
	require.Len(t, graph, 2)
	assert.Equal(t, "Article", graph[0].(map[string]any)["@type"])
	assert.Equal(t, "Sleep again", graph[0].(map[string]any)["headline"])
	assert.Equal(t, "FAQPage", graph[1].(map[string]any)["@type"])
}

func TestEnhance_FailuresAreRecorded(t *testing.T) {
	client := (&llmtest.Client{}).
		On("2-3 sentence summary", "Sleep returns.").
		FailOn("frequently asked questions", errors.New("quota")).
		On("page metadata", `{"title":""}`)

	enh := New(client).Enhance(context.Background(), input())

	assert.Equal(t, "Sleep returns.", enh.Summary)
	assert.Nil(t, enh.FAQ)
	assert.Nil(t, enh.Meta)
	assert.Len(t, enh.Errors, 2)
	assert.NotEmpty(t, enh.JSONLD)
}

func TestBuildJSONLD_ArticleOnly(t *testing.T) {
	out, err := BuildJSONLD(Input{Topic: "sleep", Document: "no title"}, &types.Enhancement{})
	require.NoError(t, err)
	assert.Contains(t, out, `"headline": "sleep"`)
	assert.NotContains(t, out, "FAQPage")
}
