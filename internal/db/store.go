// Package db persists jobs and knowledge documents. Two backends implement Store:
// PostgreSQL (pgxpool) and SQLite (go-sqlite3). Both share the query text in queries.go.
package db

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jonathan/longform-writer/internal/types"
)

// Sentinel errors. Match with errors.Is.
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobCancelled      = errors.New("job cancelled")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// JobFilter narrows ListJobs. Zero values mean no filter.
type JobFilter struct {
	Status  types.JobStatus
	BatchID string
	Limit   int
	Offset  int
}

// Default and maximum page sizes for ListJobs.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// PageSize is the effective LIMIT for f.
func (f JobFilter) PageSize() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}

// ProgressUpdate is one checked write by the owning executor. Step and Progress never
// lower the stored values; nil artifacts leave the stored value untouched; an empty
// Document never replaces a stored one.
type ProgressUpdate struct {
	Step               int
	Progress           int
	SeparatedKeywords  *types.SeparatedKeywords
	CompetitorAnalyses []types.CompetitorAnalysis
	Criteria           *types.Criteria
	AudienceResearch   *types.AudienceResearch
	ContextBlob        *string
	PersonaBundle      *types.PersonaBundle
	Structure          *types.Structure
	Document           *string
	QualityReport      *types.QualityReport
	Enhancement        *types.Enhancement
}

// Store is the job + knowledge persistence boundary.
type Store interface {
	CreateJob(ctx context.Context, in types.JobInput) (int64, error)
	// GetJob returns nil, nil when the job does not exist.
	GetJob(ctx context.Context, id int64) (*types.Job, error)
	ListJobs(ctx context.Context, f JobFilter) ([]types.JobSummary, error)
	ListJobsByStatus(ctx context.Context, status types.JobStatus) ([]*types.Job, error)
	// NextPendingJob returns the oldest pending job, or nil, nil.
	NextPendingJob(ctx context.Context) (*types.Job, error)

	// StartJob moves pending -> processing.
	StartJob(ctx context.Context, id int64) error
	// SaveProgress is a checked write: it only applies while the job is processing and
	// returns ErrJobCancelled if the job was cancelled in the meantime.
	SaveProgress(ctx context.Context, id int64, u ProgressUpdate) error
	// CompleteJob applies u and moves processing -> completed, with the same check.
	CompleteJob(ctx context.Context, id int64, u ProgressUpdate) error
	// FailJob moves a non-terminal job to failed. Artifacts are kept.
	FailJob(ctx context.Context, id int64, message string) error
	// CancelJob moves pending/processing -> cancelled.
	CancelJob(ctx context.Context, id int64) error
	// RescueJob moves processing/failed -> completed when a document exists.
	RescueJob(ctx context.Context, id int64) error
	// ResetJob moves processing/failed/cancelled -> pending at step 1.
	ResetJob(ctx context.Context, id int64) error

	CreateDocument(ctx context.Context, req types.CreateDocumentRequest) (*types.Document, error)
	TagDocument(ctx context.Context, documentID int64, tags ...string) error
	DocumentsByTags(ctx context.Context, tags []string, limit int) ([]types.Document, error)
	DocumentsByIDs(ctx context.Context, ids []int64) ([]types.Document, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend. driver is "postgres" or "sqlite".
func Open(ctx context.Context, driver, url string) (Store, error) {
	switch strings.ToLower(driver) {
	case DriverPostgres, "postgresql", "pgx":
		return Connect(ctx, url)
	case DriverSQLite, "sqlite3":
		return OpenSQLite(url)
	default:
		return nil, errors.Newf("unsupported database driver %q", driver)
	}
}

// classifyMiss explains why a guarded UPDATE touched no rows.
func classifyMiss(id int64, found bool, status types.JobStatus) error {
	switch {
	case !found:
		return errors.Wrapf(ErrJobNotFound, "job %d", id)
	case status == types.StatusCancelled:
		return errors.Wrapf(ErrJobCancelled, "job %d", id)
	default:
		return errors.Wrapf(ErrInvalidTransition, "job %d is %s", id, status)
	}
}
