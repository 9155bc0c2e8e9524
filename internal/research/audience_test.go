package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/longform-writer/internal/llm/llmtest"
	"github.com/jonathan/longform-writer/internal/types"
)

func TestResearchAudience(t *testing.T) {
	client := (&llmtest.Client{}).On("researching the people", `{"painPoints":["wakes at 3am"],"realVoices":["I just lie there"],"storyHooks":["the 3am ceiling"],"offerBridge":"coaching fixes the routine"}`)

	out, err := ResearchAudience(context.Background(), client, AudienceInput{
		Topic:       "sleep",
		Offer:       "coaching",
		Competitors: []types.CompetitorAnalysis{{Title: "Rival", CharCount: 4000, H2Count: 5, Gaps: []string{"no routine"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"wakes at 3am"}, out.PainPoints)

	prompt := client.Calls()[0].Prompt()
	assert.Contains(t, prompt, "1. Rival (4000 chars, 5 sections)")
	assert.Contains(t, prompt, "gaps: no routine")
	assert.Contains(t, prompt, "Editorial notes from the client:\n(none)")
}

func TestSummarizeCompetitors(t *testing.T) {
	assert.Equal(t, "(none)", SummarizeCompetitors(nil))
	out := SummarizeCompetitors([]types.CompetitorAnalysis{{Title: "Sim", CharCount: 10, Simulated: true}})
	assert.Equal(t, "1. Sim (10 chars, 0 sections) [simulated]", out)
}
