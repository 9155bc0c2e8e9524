package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/longform-writer/internal/db"
	"github.com/jonathan/longform-writer/internal/llm/llmtest"
	"github.com/jonathan/longform-writer/internal/structure"
	"github.com/jonathan/longform-writer/internal/types"
)

const (
	keywordsJSON  = `{"conclusionKeywords":["sleep coaching"],"trafficKeywords":["insomnia"]}`
	queriesJSON   = `{"queries":["insomnia help"]}`
	simulatedJSON = `{"competitors":[
		{"title":"Sim A","charCount":4000,"h2Count":5,"h3Count":9,"keywordCounts":{"insomnia":3},"excerpt":"Cannot sleep?"},
		{"title":"Sim B","charCount":3500,"h2Count":4,"h3Count":8,"keywordCounts":{"insomnia":7}}]}`
	audienceJSON = `{"painPoints":["wakes at 3am"],"realVoices":["I just lie there"],"storyHooks":["the 3am club"],"offerBridge":"coaching"}`
	personaJSON  = `{"name":"Mika","occupation":"nurse","background":"nights","frustration":"tried it all","surfaceNeed":"a fix","latentNeed":"rest"}`
	outlineOut   = `[ESTIMATES]{"wordCount": 5000, "h2Count": 2, "h3Count": 0}[/ESTIMATES]
[STRUCTURE]
# Sleep again
## Why nights go wrong
## What works
[/STRUCTURE]`
)

func setupStore(t *testing.T) *db.SQLiteStore {
	t.Helper()
	store, err := db.OpenSQLite(fmt.Sprintf("file:pipeline_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func scriptedClient() *llmtest.Client {
	return (&llmtest.Client{}).
		On("Split the topic below", keywordsJSON).
		On("Produce up to 3 web search queries", queriesJSON).
		On("No competing pages could be retrieved", simulatedJSON).
		On("You are researching the people", audienceJSON).
		On("most representative reader", personaJSON).
		On("Plan the outline", outlineOut).
		On("skeptical and busy", "no revision needed").
		On("editor responsible", "no revision needed").
		On("You are writing the lead", "Nights feel endless with insomnia.").
		On("You are writing section", "Body about insomnia and sleep coaching.")
}

func createJob(t *testing.T, store db.Store, autoEnhance bool) int64 {
	t.Helper()
	id, err := store.CreateJob(context.Background(), types.JobInput{Topic: "insomnia help", AutoEnhance: autoEnhance}.WithDefaults(5000))
	require.NoError(t, err)
	return id
}

func TestProcess_CompletesAllSteps(t *testing.T) {
	store := setupStore(t)
	id := createJob(t, store, false)

	var events []ProgressEvent
	p := New(Options{
		Client:     scriptedClient(),
		Store:      store,
		OnProgress: func(ev ProgressEvent) { events = append(events, ev) },
	})

	job, err := p.Process(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, job.Status)

	stored, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, TotalSteps, stored.CurrentStep)
	assert.NotNil(t, stored.CompletedAt)
	assert.Nil(t, stored.ErrorMessage)

	require.NotNil(t, stored.Criteria)
	assert.Equal(t, 5000, stored.Criteria.TargetLength)
	assert.Equal(t, []string{"insomnia help"}, stored.SeparatedKeywords.SearchQueries)
	assert.Len(t, stored.CompetitorAnalyses, 2)
	assert.True(t, stored.CompetitorAnalyses[0].Simulated)
	assert.Contains(t, stored.ContextBlob, "=== AUDIENCE ===")
	assert.Equal(t, "Mika", stored.PersonaBundle.Audience.Name)
	assert.Equal(t, types.PersonaBuiltin, stored.PersonaBundle.Author.Source)
	assert.Equal(t, []string{"Why nights go wrong", "What works"}, structure.Headings(stored.Document))
	require.NotNil(t, stored.QualityReport)
	assert.Nil(t, stored.Enhancement)

	require.Len(t, events, TotalSteps)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Step)
	}
	assert.Equal(t, 100, events[len(events)-1].Progress)

	generated, err := store.DocumentsByTags(context.Background(), []string{fmt.Sprintf("job:%d", id)}, 5)
	require.NoError(t, err)
	require.Len(t, generated, 1)
	assert.Equal(t, types.DocTypeGenerated, generated[0].DocType)
	assert.Equal(t, "Sleep again", generated[0].Title)

	competitors, err := store.DocumentsByTags(context.Background(), []string{"insomnia"}, 10)
	require.NoError(t, err)
	for _, d := range competitors {
		assert.NotEqual(t, types.DocTypeCompetitor, d.DocType, "simulated samples are not stored")
	}
}

func TestProcess_AutoEnhance(t *testing.T) {
	store := setupStore(t)
	id := createJob(t, store, true)
	client := scriptedClient().
		On("2-3 sentence summary", "Sleep returns.").
		On("frequently asked questions", `{"faq":[{"question":"q1","answer":"a1"},{"question":"q2","answer":"a2"}]}`).
		On("page metadata", `{"title":"Sleep again","description":"d","ogTitle":"t","ogDescription":"d"}`)

	_, err := New(Options{Client: client, Store: store}).Process(context.Background(), id)
	require.NoError(t, err)

	stored, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, stored.Enhancement)
	assert.Equal(t, "Sleep returns.", stored.Enhancement.Summary)
	assert.Len(t, stored.Enhancement.FAQ, 2)
	assert.Contains(t, stored.Enhancement.JSONLD, "FAQPage")
}

func TestProcess_EnhancementFailureDoesNotFailJob(t *testing.T) {
	store := setupStore(t)
	id := createJob(t, store, true)
	client := scriptedClient().
		FailOn("2-3 sentence summary", errors.New("quota")).
		FailOn("frequently asked questions", errors.New("quota")).
		FailOn("page metadata", errors.New("quota"))

	job, err := New(Options{Client: client, Store: store}).Process(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, job.Status)
	assert.Len(t, job.Enhancement.Errors, 3)
}

func TestProcess_CancelStopsAtStepBoundary(t *testing.T) {
	store := setupStore(t)
	id := createJob(t, store, false)
	client := scriptedClient()

	p := New(Options{
		Client: client,
		Store:  store,
		OnProgress: func(ev ProgressEvent) {
			if ev.Step == 2 {
				require.NoError(t, store.CancelJob(context.Background(), ev.JobID))
			}
		},
	})

	_, err := p.Process(context.Background(), id)
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, db.ErrJobCancelled))

	stored, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, stored.Status)
	assert.Nil(t, stored.ErrorMessage)
	assert.Equal(t, 2, stored.CurrentStep)
	assert.Nil(t, stored.CompetitorAnalyses)
	assert.Equal(t, 0, client.CallsMatching("You are researching the people"))
}

func TestProcess_InterruptLeavesJobProcessing(t *testing.T) {
	store := setupStore(t)
	id := createJob(t, store, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := New(Options{
		Client: scriptedClient(),
		Store:  store,
		OnProgress: func(ev ProgressEvent) {
			if ev.Step == 2 {
				cancel()
			}
		},
	})

	_, err := p.Process(ctx, id)
	require.ErrorIs(t, err, context.Canceled)

	stored, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, stored.Status)
	assert.Nil(t, stored.ErrorMessage)
	assert.Equal(t, 2, stored.CurrentStep)
}

func TestProcess_FailureIsRecorded(t *testing.T) {
	store := setupStore(t)
	id := createJob(t, store, false)
	client := scriptedClient()
	client.Rules = append([]llmtest.Rule{{Match: "Plan the outline", Err: errors.New("backend timeout")}}, client.Rules...)

	_, err := New(Options{Client: client, Store: store}).Process(context.Background(), id)
	require.Error(t, err)

	stored, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "step 7 (structure)")
	assert.Contains(t, *stored.ErrorMessage, "backend timeout")
	assert.NotNil(t, stored.Criteria, "earlier artifacts are kept")
	assert.Equal(t, 6, stored.CurrentStep)
}

func TestProcess_FailureAfterWritingKeepsDocument(t *testing.T) {
	store := setupStore(t)
	id := createJob(t, store, false)
	client := scriptedClient()
	client.Rules = append([]llmtest.Rule{{Match: "Sections already revised", Err: errors.New("backend down")}}, client.Rules...)

	_, err := New(Options{Client: client, Store: store}).Process(context.Background(), id)
	require.Error(t, err)

	stored, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, stored.Status)
	assert.Contains(t, stored.Document, "## What works")
	assert.Equal(t, 8, stored.CurrentStep)

	require.NoError(t, store.RescueJob(context.Background(), id))
	rescued, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, rescued.Status)
}

func TestProcess_TerminalJobRejected(t *testing.T) {
	store := setupStore(t)
	id := createJob(t, store, false)
	require.NoError(t, store.CancelJob(context.Background(), id))

	client := scriptedClient()
	_, err := New(Options{Client: client, Store: store}).Process(context.Background(), id)
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, db.ErrInvalidTransition))
	assert.True(t, cerrors.Is(err, ErrNotClaimed))
	assert.Empty(t, client.Calls())
}

func TestProcess_RunningJobRejected(t *testing.T) {
	store := setupStore(t)
	id := createJob(t, store, false)
	require.NoError(t, store.StartJob(context.Background(), id))

	client := scriptedClient()
	_, err := New(Options{Client: client, Store: store}).Process(context.Background(), id)
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, ErrNotClaimed))
	assert.Empty(t, client.Calls())

	stored, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, stored.Status)
	assert.Nil(t, stored.ErrorMessage)
}

// lateStartStore lets another executor win the start transition between the read
// and the claim.
type lateStartStore struct {
	*db.SQLiteStore
}

func (s lateStartStore) StartJob(ctx context.Context, id int64) error {
	if err := s.SQLiteStore.StartJob(ctx, id); err != nil {
		return err
	}
	return s.SQLiteStore.StartJob(ctx, id)
}

func TestProcess_LostStartLeavesJobAlone(t *testing.T) {
	store := setupStore(t)
	id := createJob(t, store, false)

	client := scriptedClient()
	job, err := New(Options{Client: client, Store: lateStartStore{store}}).Process(context.Background(), id)
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, ErrNotClaimed))
	assert.True(t, cerrors.Is(err, db.ErrInvalidTransition))
	require.NotNil(t, job)
	assert.Empty(t, client.Calls())

	stored, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, stored.Status, "the winning executor still owns the job")
	assert.Nil(t, stored.ErrorMessage)
}

func TestProcess_MissingJob(t *testing.T) {
	store := setupStore(t)
	_, err := New(Options{Client: scriptedClient(), Store: store}).Process(context.Background(), 999)
	assert.True(t, cerrors.Is(err, db.ErrJobNotFound))
}
