package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"go.uber.org/zap"

	"github.com/jonathan/longform-writer/internal/logging"
	"github.com/jonathan/longform-writer/internal/types"
)

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// sqliteDSN adds the connection pragmas as DSN parameters so every pooled
// connection gets them: WAL for concurrent reads during writes, foreign keys,
// and a 5s busy timeout.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
}

// OpenSQLite opens (creating if needed) a SQLite database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	logger := logging.Named("db")
	logger.Debugw("Opening database", "driver", DriverSQLite, "path", path)

	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory") {
		// Each connection to a private in-memory database is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already-open handle. Used with sqlmock in tests.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, logger: logging.Named("db")}
}

// Close closes the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded SQLite migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return migrateSQL(ctx, s.db, s.logger)
}

func (s *SQLiteStore) q(query string) string {
	return sqliteDialect(query)
}

// CreateJob inserts a pending job and returns its ID
func (s *SQLiteStore) CreateJob(ctx context.Context, in types.JobInput) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, s.q(qInsertJob), insertJobArgs(in)...).Scan(&id); err != nil {
		return 0, errors.Wrap(err, "failed to create job")
	}
	return id, nil
}

// GetJob returns the job with id, or nil, nil if it does not exist
func (s *SQLiteStore) GetJob(ctx context.Context, id int64) (*types.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, s.q(qGetJob), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job %d", id)
	}
	return job, nil
}

// ListJobs returns job summaries, newest first
func (s *SQLiteStore) ListJobs(ctx context.Context, f JobFilter) ([]types.JobSummary, error) {
	query, args := listJobsQuery(f)
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
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
func (s *SQLiteStore) ListJobsByStatus(ctx context.Context, status types.JobStatus) ([]*types.Job, error) {
	rows, err := s.db.QueryContext(ctx, s.q(qJobsByStatus), string(status))
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
func (s *SQLiteStore) NextPendingJob(ctx context.Context) (*types.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, s.q(qNextPending)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch next pending job")
	}
	return job, nil
}

func (s *SQLiteStore) StartJob(ctx context.Context, id int64) error {
	return s.guarded(ctx, id, "start", s.q(qStartJob), id)
}

func (s *SQLiteStore) SaveProgress(ctx context.Context, id int64, u ProgressUpdate) error {
	args, err := u.args()
	if err != nil {
		return err
	}
	return s.guarded(ctx, id, "save progress", s.q(qSaveProgress), append(args, id)...)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, id int64, u ProgressUpdate) error {
	args, err := u.args()
	if err != nil {
		return err
	}
	return s.guarded(ctx, id, "complete", s.q(qCompleteJob), append(args, id)...)
}

func (s *SQLiteStore) FailJob(ctx context.Context, id int64, message string) error {
	return s.guarded(ctx, id, "fail", s.q(qFailJob), message, id)
}

func (s *SQLiteStore) CancelJob(ctx context.Context, id int64) error {
	return s.guarded(ctx, id, "cancel", s.q(qCancelJob), id)
}

func (s *SQLiteStore) RescueJob(ctx context.Context, id int64) error {
	return s.guarded(ctx, id, "rescue", s.q(qRescueJob), id)
}

func (s *SQLiteStore) ResetJob(ctx context.Context, id int64) error {
	return s.guarded(ctx, id, "reset", s.q(qResetJob), id)
}

// guarded runs a status-conditioned UPDATE and explains a miss.
func (s *SQLiteStore) guarded(ctx context.Context, id int64, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to %s job %d", op, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "failed to %s job %d", op, id)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, qJobStatus, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return classifyMiss(id, false, "")
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read status of job %d", id)
	}
	return classifyMiss(id, true, types.JobStatus(status))
}

// CreateDocument stores a knowledge document with its tags
func (s *SQLiteStore) CreateDocument(ctx context.Context, req types.CreateDocumentRequest) (*types.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err := tx.QueryRowContext(ctx, qInsertDocument, req.Title, req.Content, docTypeOrDefault(req.DocType)).Scan(&id); err != nil {
		return nil, errors.Wrap(err, "failed to create document")
	}
	tags := normalizeTags(req.Tags)
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, qInsertTag, id, tag); err != nil {
			return nil, errors.Wrapf(err, "failed to tag document %d", id)
		}
	}
	if err := tx.Commit(); err != nil {
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
func (s *SQLiteStore) TagDocument(ctx context.Context, documentID int64, tags ...string) error {
	for _, tag := range normalizeTags(tags) {
		if _, err := s.db.ExecContext(ctx, qInsertTag, documentID, tag); err != nil {
			return errors.Wrapf(err, "failed to tag document %d", documentID)
		}
	}
	return nil
}

// DocumentsByTags returns documents carrying any of tags, newest first
func (s *SQLiteStore) DocumentsByTags(ctx context.Context, tags []string, limit int) ([]types.Document, error) {
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
func (s *SQLiteStore) DocumentsByIDs(ctx context.Context, ids []int64) ([]types.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args := documentsByIDsQuery(ids)
	return s.queryDocuments(ctx, query, args)
}

func (s *SQLiteStore) queryDocuments(ctx context.Context, query string, args []any) ([]types.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
