package db

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jonathan/longform-writer/internal/logging"
	"github.com/jonathan/longform-writer/internal/types"
)

// PostgresStore wraps a PostgreSQL connection pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &PostgresStore{pool: pool, logger: logging.Named("db")}, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Migrate applies the embedded PostgreSQL migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool, s.logger)
}

// CreateJob inserts a pending job and returns its ID
func (s *PostgresStore) CreateJob(ctx context.Context, in types.JobInput) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, rebind(qInsertJob), insertJobArgs(in)...).Scan(&id); err != nil {
		return 0, errors.Wrap(err, "failed to create job")
	}
	return id, nil
}

// GetJob returns the job with id, or nil, nil if it does not exist
func (s *PostgresStore) GetJob(ctx context.Context, id int64) (*types.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, rebind(qGetJob), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job %d", id)
	}
	return job, nil
}

// ListJobs returns job summaries, newest first
func (s *PostgresStore) ListJobs(ctx context.Context, f JobFilter) ([]types.JobSummary, error) {
	query, args := listJobsQuery(f)
	rows, err := s.pool.Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	out := []types.JobSummary{}
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job summary")
		}
		out = append(out, summary)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate jobs")
}

// ListJobsByStatus returns every job in status, oldest first
func (s *PostgresStore) ListJobsByStatus(ctx context.Context, status types.JobStatus) ([]*types.Job, error) {
	rows, err := s.pool.Query(ctx, rebind(qJobsByStatus), string(status))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s jobs", status)
	}
	defer rows.Close()

	var out []*types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		out = append(out, job)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate jobs")
}

// NextPendingJob returns the oldest pending job, or nil, nil
func (s *PostgresStore) NextPendingJob(ctx context.Context) (*types.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, qNextPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch next pending job")
	}
	return job, nil
}

func (s *PostgresStore) StartJob(ctx context.Context, id int64) error {
	return s.guarded(ctx, id, "start", qStartJob, id)
}

func (s *PostgresStore) SaveProgress(ctx context.Context, id int64, u ProgressUpdate) error {
	args, err := u.args()
	if err != nil {
		return err
	}
	return s.guarded(ctx, id, "save progress", qSaveProgress, append(args, id)...)
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id int64, u ProgressUpdate) error {
	args, err := u.args()
	if err != nil {
		return err
	}
	return s.guarded(ctx, id, "complete", qCompleteJob, append(args, id)...)
}

func (s *PostgresStore) FailJob(ctx context.Context, id int64, message string) error {
	return s.guarded(ctx, id, "fail", qFailJob, message, id)
}

func (s *PostgresStore) CancelJob(ctx context.Context, id int64) error {
	return s.guarded(ctx, id, "cancel", qCancelJob, id)
}

func (s *PostgresStore) RescueJob(ctx context.Context, id int64) error {
	return s.guarded(ctx, id, "rescue", qRescueJob, id)
}

func (s *PostgresStore) ResetJob(ctx context.Context, id int64) error {
	return s.guarded(ctx, id, "reset", qResetJob, id)
}

// guarded runs a status-conditioned UPDATE and explains a miss.
func (s *PostgresStore) guarded(ctx context.Context, id int64, op, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, rebind(query), args...)
	if err != nil {
		return errors.Wrapf(err, "failed to %s job %d", op, id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err = s.pool.QueryRow(ctx, rebind(qJobStatus), id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return classifyMiss(id, false, "")
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read status of job %d", id)
	}
	return classifyMiss(id, true, types.JobStatus(status))
}

// CreateDocument stores a knowledge document with its tags
func (s *PostgresStore) CreateDocument(ctx context.Context, req types.CreateDocumentRequest) (*types.Document, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	if err := tx.QueryRow(ctx, rebind(qInsertDocument), req.Title, req.Content, docTypeOrDefault(req.DocType)).Scan(&id); err != nil {
		return nil, errors.Wrap(err, "failed to create document")
	}
	tags := normalizeTags(req.Tags)
	for _, tag := range tags {
		if _, err := tx.Exec(ctx, rebind(qInsertTag), id, tag); err != nil {
			return nil, errors.Wrapf(err, "failed to tag document %d", id)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to commit document")
	}

	docs, err := s.DocumentsByIDs(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.Newf("document %d vanished after insert", id)
	}
	doc := docs[0]
	doc.Tags = tags
	return &doc, nil
}

// TagDocument adds tags to an existing document; existing tags are kept
func (s *PostgresStore) TagDocument(ctx context.Context, documentID int64, tags ...string) error {
	for _, tag := range normalizeTags(tags) {
		if _, err := s.pool.Exec(ctx, rebind(qInsertTag), documentID, tag); err != nil {
			return errors.Wrapf(err, "failed to tag document %d", documentID)
		}
	}
	return nil
}

// DocumentsByTags returns documents carrying any of tags, newest first
func (s *PostgresStore) DocumentsByTags(ctx context.Context, tags []string, limit int) ([]types.Document, error) {
	tags = normalizeTags(tags)
	if len(tags) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query, args := documentsByTagsQuery(tags, limit)
	return s.queryDocuments(ctx, query, args)
}

// DocumentsByIDs returns the documents with the given ids, ordered by id
func (s *PostgresStore) DocumentsByIDs(ctx context.Context, ids []int64) ([]types.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args := documentsByIDsQuery(ids)
	return s.queryDocuments(ctx, query, args)
}

func (s *PostgresStore) queryDocuments(ctx context.Context, query string, args []any) ([]types.Document, error) {
	rows, err := s.pool.Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query documents")
	}
	defer rows.Close()

	var out []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		out = append(out, doc)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate documents")
}
