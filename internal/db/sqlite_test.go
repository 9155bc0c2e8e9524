package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/longform-writer/internal/types"
)

// setupSQLite opens a private, migrated in-memory database for one test.
func setupSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func createProcessingJob(t *testing.T, store Store, topic string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := store.CreateJob(ctx, types.JobInput{Topic: topic}.WithDefaults(5000))
	require.NoError(t, err)
	require.NoError(t, store.StartJob(ctx, id))
	return id
}

func strPtr(s string) *string { return &s }

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	store := setupSQLite(t)
	require.NoError(t, store.Migrate(context.Background()))

	var n int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 3, n)
}

func TestSQLite_ForeignKeysEnabled(t *testing.T) {
	store := setupSQLite(t)

	var on int
	require.NoError(t, store.db.QueryRow("PRAGMA foreign_keys").Scan(&on))
	assert.Equal(t, 1, on)
}

func TestSQLite_CreateAndGetJob(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	batch := "6f1c2a9e-8d0b-4c1e-9a55-0b7f4e2c3d11"
	id, err := store.CreateJob(ctx, types.JobInput{
		Topic:        "cold brew ratios",
		TargetLength: 7000,
		AuthorVoice:  "barista",
		Notes:        "avoid jargon",
		Offer:        "our cold brew kit",
		AutoEnhance:  true,
		BatchID:      &batch,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "cold brew ratios", job.Topic)
	assert.Equal(t, 7000, job.TargetLength)
	assert.Equal(t, "barista", job.AuthorVoice)
	assert.True(t, job.AutoEnhance)
	assert.Equal(t, types.StatusPending, job.Status)
	assert.Equal(t, 1, job.CurrentStep)
	assert.Equal(t, 0, job.Progress)
	require.NotNil(t, job.BatchID)
	assert.Equal(t, batch, *job.BatchID)
	assert.Nil(t, job.Criteria)
	assert.Empty(t, job.Document)
	assert.Nil(t, job.CompletedAt)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestSQLite_GetJob_NotFound(t *testing.T) {
	store := setupSQLite(t)

	job, err := store.GetJob(context.Background(), 999)
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestSQLite_NextPendingJob_OldestFirst(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	next, err := store.NextPendingJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	first, err := store.CreateJob(ctx, types.JobInput{Topic: "first"})
	require.NoError(t, err)
	_, err = store.CreateJob(ctx, types.JobInput{Topic: "second"})
	require.NoError(t, err)

	next, err = store.NextPendingJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first, next.ID)

	require.NoError(t, store.StartJob(ctx, first))
	next, err = store.NextPendingJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", next.Topic)
}

func TestSQLite_StartJob_OnlyFromPending(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()
	id := createProcessingJob(t, store, "tea")

	err := store.StartJob(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = store.StartJob(ctx, 4242)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSQLite_SaveProgress_StepAndProgressNeverDecrease(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()
	id := createProcessingJob(t, store, "tea")

	require.NoError(t, store.SaveProgress(ctx, id, ProgressUpdate{Step: 4, Progress: 50}))
	require.NoError(t, store.SaveProgress(ctx, id, ProgressUpdate{Step: 2, Progress: 20}))

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, job.CurrentStep)
	assert.Equal(t, 50, job.Progress)
}

func TestSQLite_SaveProgress_ArtifactsAndDocumentPreserved(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()
	id := createProcessingJob(t, store, "tea")

	criteria := &types.Criteria{TargetLength: 6000, H2Count: 5, H3Count: 15,
		Keywords: []types.TermTarget{{Term: "green tea", MinCount: 14}}}
	require.NoError(t, store.SaveProgress(ctx, id, ProgressUpdate{
		Step: 4, Progress: 50,
		Criteria:           criteria,
		CompetitorAnalyses: []types.CompetitorAnalysis{{Query: "q", Title: "t", CharCount: 4000}},
		ContextBlob:        strPtr("## Reference\nctx"),
	}))
	require.NoError(t, store.SaveProgress(ctx, id, ProgressUpdate{Step: 8, Progress: 80, Document: strPtr("# Tea\n\nbody")}))
	// empty document and nil artifacts leave stored values alone
	require.NoError(t, store.SaveProgress(ctx, id, ProgressUpdate{Step: 9, Progress: 90, Document: strPtr("")}))

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, criteria, job.Criteria)
	require.Len(t, job.CompetitorAnalyses, 1)
	assert.Equal(t, 4000, job.CompetitorAnalyses[0].CharCount)
	assert.Equal(t, "## Reference\nctx", job.ContextBlob)
	assert.Equal(t, "# Tea\n\nbody", job.Document)
	assert.Equal(t, 9, job.CurrentStep)
}

func TestSQLite_SaveProgress_CancelledJob(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()
	id := createProcessingJob(t, store, "tea")

	require.NoError(t, store.CancelJob(ctx, id))

	err := store.SaveProgress(ctx, id, ProgressUpdate{Step: 3, Progress: 40})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobCancelled))

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, job.Status)
	assert.Equal(t, 1, job.CurrentStep)
}

func TestSQLite_CompleteJob(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()
	id := createProcessingJob(t, store, "tea")

	report := &types.QualityReport{Passed: true, WordCount: 6100, Issues: []string{}}
	require.NoError(t, store.CompleteJob(ctx, id, ProgressUpdate{
		Step: 10, Progress: 100, Document: strPtr("# Done"), QualityReport: report,
	}))

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 10, job.CurrentStep)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, "# Done", job.Document)
	assert.True(t, job.QualityReport.Passed)

	// terminal: no further writes
	err = store.SaveProgress(ctx, id, ProgressUpdate{Step: 10, Progress: 100})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, store.FailJob(ctx, id, "late failure"), ErrInvalidTransition)
}

func TestSQLite_FailJob_KeepsArtifacts(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()
	id := createProcessingJob(t, store, "tea")

	require.NoError(t, store.SaveProgress(ctx, id, ProgressUpdate{Step: 8, Progress: 80, Document: strPtr("partial")}))
	require.NoError(t, store.FailJob(ctx, id, "gemini call failed: timeout"))

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "gemini call failed: timeout", *job.ErrorMessage)
	assert.Equal(t, "partial", job.Document)
}

func TestSQLite_CancelJob_Transitions(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	pending, err := store.CreateJob(ctx, types.JobInput{Topic: "pending"})
	require.NoError(t, err)
	require.NoError(t, store.CancelJob(ctx, pending))
	assert.ErrorIs(t, store.CancelJob(ctx, pending), ErrJobCancelled)
	assert.ErrorIs(t, store.CancelJob(ctx, 777), ErrJobNotFound)
}

func TestSQLite_RescueJob(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	withDoc := createProcessingJob(t, store, "with document")
	require.NoError(t, store.SaveProgress(ctx, withDoc, ProgressUpdate{Step: 9, Progress: 90, Document: strPtr("twelve thousand characters")}))
	require.NoError(t, store.RescueJob(ctx, withDoc))

	job, err := store.GetJob(ctx, withDoc)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, job.Status)
	assert.Equal(t, "twelve thousand characters", job.Document)
	assert.Nil(t, job.QualityReport)

	noDoc := createProcessingJob(t, store, "no document")
	assert.ErrorIs(t, store.RescueJob(ctx, noDoc), ErrInvalidTransition)
}

func TestSQLite_ResetJob(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()
	id := createProcessingJob(t, store, "tea")

	require.NoError(t, store.SaveProgress(ctx, id, ProgressUpdate{Step: 6, Progress: 60}))
	require.NoError(t, store.FailJob(ctx, id, "boom"))
	require.NoError(t, store.ResetJob(ctx, id))

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, job.Status)
	assert.Equal(t, 1, job.CurrentStep)
	assert.Equal(t, 0, job.Progress)
	assert.Nil(t, job.ErrorMessage)

	assert.ErrorIs(t, store.ResetJob(ctx, id), ErrInvalidTransition)
}

func TestSQLite_ListJobs_Filters(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	batch := "0d9f7a52-2b1e-4d7f-8c3a-5e6f7a8b9c0d"
	for i := 0; i < 3; i++ {
		_, err := store.CreateJob(ctx, types.JobInput{Topic: fmt.Sprintf("batch %d", i), BatchID: &batch})
		require.NoError(t, err)
	}
	lone := createProcessingJob(t, store, "lone")

	all, err := store.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, lone, all[0].ID, "newest first")

	batched, err := store.ListJobs(ctx, JobFilter{BatchID: batch})
	require.NoError(t, err)
	assert.Len(t, batched, 3)

	processing, err := store.ListJobs(ctx, JobFilter{Status: types.StatusProcessing})
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, "lone", processing[0].Topic)

	page, err := store.ListJobs(ctx, JobFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	byStatus, err := store.ListJobsByStatus(ctx, types.StatusPending)
	require.NoError(t, err)
	assert.Len(t, byStatus, 3)
}

func TestSQLite_Documents(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	voice, err := store.CreateDocument(ctx, types.CreateDocumentRequest{
		Title: "voice sample", Content: "We write plainly.", DocType: types.DocTypeExemplar,
		Tags: []string{"author:default", "author:default", " "},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"author:default"}, voice.Tags)
	assert.Equal(t, types.DocTypeExemplar, voice.DocType)

	ref, err := store.CreateDocument(ctx, types.CreateDocumentRequest{Title: "ref", Content: "facts"})
	require.NoError(t, err)
	assert.Equal(t, types.DocTypeReference, ref.DocType)
	require.NoError(t, store.TagDocument(ctx, ref.ID, "topic:tea", "editor"))
	require.NoError(t, store.TagDocument(ctx, ref.ID, "topic:tea"))

	docs, err := store.DocumentsByTags(ctx, []string{"author:default", "topic:tea"}, 10)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = store.DocumentsByTags(ctx, []string{"editor"}, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "facts", docs[0].Content)

	docs, err = store.DocumentsByTags(ctx, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, docs)

	byID, err := store.DocumentsByIDs(ctx, []int64{ref.ID, voice.ID, 999})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, voice.ID, byID[0].ID)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	assert.Error(t, err)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite("")
	assert.Error(t, err)
}
