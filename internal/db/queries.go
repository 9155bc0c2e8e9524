package db

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jonathan/longform-writer/internal/types"
)

// Queries are written once with "?" placeholders and GREATEST(a, b); each backend
// rewrites them for its dialect (see rebind and sqliteDialect).

const jobColumns = `id, topic, target_length, author_voice, target_persona, notes, offer,
	auto_enhance, batch_id, status, current_step, progress,
	separated_keywords, competitor_analyses, criteria, audience_research, context_blob,
	persona_bundle, structure, document, quality_report, enhancement,
	error_message, created_at, updated_at, completed_at`

const summaryColumns = `id, topic, status, current_step, progress, batch_id, created_at, completed_at`

const documentColumns = `id, title, content, doc_type, created_at`

const (
	qInsertJob = `INSERT INTO jobs (topic, target_length, author_voice, target_persona, notes, offer, auto_enhance, batch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	qGetJob = `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	qJobStatus = `SELECT status FROM jobs WHERE id = ?`

	qJobsByStatus = `SELECT ` + jobColumns + ` FROM jobs WHERE status = ? ORDER BY created_at, id`

	qNextPending = `SELECT ` + jobColumns + ` FROM jobs WHERE status = 'pending' ORDER BY created_at, id LIMIT 1`

	qStartJob = `UPDATE jobs SET status = 'processing', current_step = GREATEST(current_step, 1),
		error_message = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'`

	// artifactSet is shared by SaveProgress and CompleteJob; see ProgressUpdate.args.
	artifactSet = `current_step = GREATEST(current_step, ?),
		progress = GREATEST(progress, ?),
		separated_keywords = COALESCE(?, separated_keywords),
		competitor_analyses = COALESCE(?, competitor_analyses),
		criteria = COALESCE(?, criteria),
		audience_research = COALESCE(?, audience_research),
		context_blob = COALESCE(?, context_blob),
		persona_bundle = COALESCE(?, persona_bundle),
		structure = COALESCE(?, structure),
		document = COALESCE(NULLIF(?, ''), document),
		quality_report = COALESCE(?, quality_report),
		enhancement = COALESCE(?, enhancement),
		updated_at = CURRENT_TIMESTAMP`

	qSaveProgress = `UPDATE jobs SET ` + artifactSet + ` WHERE id = ? AND status = 'processing'`

	qCompleteJob = `UPDATE jobs SET ` + artifactSet + `, status = 'completed', progress = 100,
		error_message = NULL, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'processing'`

	qFailJob = `UPDATE jobs SET status = 'failed', error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'processing')`

	qCancelJob = `UPDATE jobs SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'processing')`

	qRescueJob = `UPDATE jobs SET status = 'completed', progress = 100, error_message = NULL,
		completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('processing', 'failed')
		AND document IS NOT NULL AND document <> ''`

	qResetJob = `UPDATE jobs SET status = 'pending', current_step = 1, progress = 0,
		error_message = NULL, completed_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('processing', 'failed', 'cancelled')`

	qInsertDocument = `INSERT INTO documents (title, content, doc_type) VALUES (?, ?, ?) RETURNING id`

	qInsertTag = `INSERT INTO document_tags (document_id, tag) VALUES (?, ?) ON CONFLICT DO NOTHING`
)

// rebind converts "?" placeholders to "$1", "$2", ... for PostgreSQL.
func rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// sqliteDialect rewrites GREATEST to SQLite's two-argument scalar MAX.
func sqliteDialect(query string) string {
	return strings.ReplaceAll(query, "GREATEST(", "MAX(")
}

// listJobsQuery builds the filtered summary query.
func listJobsQuery(f JobFilter) (string, []any) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, f.BatchID)
	}

	q := `SELECT ` + summaryColumns + ` FROM jobs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, f.PageSize(), offset)
	return q, args
}

// documentsByTagsQuery matches documents carrying any of tags, newest first.
func documentsByTagsQuery(tags []string, limit int) (string, []any) {
	args := make([]any, 0, len(tags)+1)
	for _, t := range tags {
		args = append(args, t)
	}
	args = append(args, limit)
	q := `SELECT DISTINCT d.id, d.title, d.content, d.doc_type, d.created_at
		FROM documents d JOIN document_tags t ON t.document_id = d.id
		WHERE t.tag IN (` + placeholders(len(tags)) + `)
		ORDER BY d.created_at DESC, d.id DESC LIMIT ?`
	return q, args
}

func documentsByIDsQuery(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY id`
	return q, args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// jsonArg encodes an artifact for a COALESCE(?, col) slot; nil leaves the column alone.
func jsonArg[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal artifact")
	}
	return string(b), nil
}

// args returns the artifactSet arguments in order.
func (u ProgressUpdate) args() ([]any, error) {
	out := []any{u.Step, u.Progress}

	var competitors any
	if u.CompetitorAnalyses != nil {
		b, err := json.Marshal(u.CompetitorAnalyses)
		if err != nil {
			return nil, errors.Wrap(err, "marshal competitor analyses")
		}
		competitors = string(b)
	}

	keywords, err := jsonArg(u.SeparatedKeywords)
	if err != nil {
		return nil, err
	}
	criteria, err := jsonArg(u.Criteria)
	if err != nil {
		return nil, err
	}
	audience, err := jsonArg(u.AudienceResearch)
	if err != nil {
		return nil, err
	}
	personas, err := jsonArg(u.PersonaBundle)
	if err != nil {
		return nil, err
	}
	structure, err := jsonArg(u.Structure)
	if err != nil {
		return nil, err
	}
	quality, err := jsonArg(u.QualityReport)
	if err != nil {
		return nil, err
	}
	enhancement, err := jsonArg(u.Enhancement)
	if err != nil {
		return nil, err
	}

	var contextBlob any
	if u.ContextBlob != nil {
		contextBlob = *u.ContextBlob
	}
	document := ""
	if u.Document != nil {
		document = *u.Document
	}

	return append(out, keywords, competitors, criteria, audience, contextBlob,
		personas, structure, document, quality, enhancement), nil
}

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var (
		j                                         types.Job
		status                                    string
		batchID, contextBlob, document, errMsg    sql.NullString
		keywords, competitors, criteria, audience []byte
		personas, structure, quality, enhancement []byte
		completedAt                               sql.NullTime
	)
	err := row.Scan(&j.ID, &j.Topic, &j.TargetLength, &j.AuthorVoice, &j.TargetPersona, &j.Notes, &j.Offer,
		&j.AutoEnhance, &batchID, &status, &j.CurrentStep, &j.Progress,
		&keywords, &competitors, &criteria, &audience, &contextBlob,
		&personas, &structure, &document, &quality, &enhancement,
		&errMsg, &j.CreatedAt, &j.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	j.Status = types.JobStatus(status)
	if batchID.Valid {
		j.BatchID = &batchID.String
	}
	j.ContextBlob = contextBlob.String
	j.Document = document.String
	if errMsg.Valid {
		j.ErrorMessage = &errMsg.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}

	decoders := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"separated_keywords", keywords, &j.SeparatedKeywords},
		{"competitor_analyses", competitors, &j.CompetitorAnalyses},
		{"criteria", criteria, &j.Criteria},
		{"audience_research", audience, &j.AudienceResearch},
		{"persona_bundle", personas, &j.PersonaBundle},
		{"structure", structure, &j.Structure},
		{"quality_report", quality, &j.QualityReport},
		{"enhancement", enhancement, &j.Enhancement},
	}
	for _, d := range decoders {
		if len(d.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(d.raw, d.dst); err != nil {
			return nil, errors.Wrapf(err, "decode %s of job %d", d.name, j.ID)
		}
	}
	return &j, nil
}

func scanSummary(row rowScanner) (types.JobSummary, error) {
	var (
		s           types.JobSummary
		status      string
		batchID     sql.NullString
		completedAt sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.Topic, &status, &s.CurrentStep, &s.Progress, &batchID, &s.CreatedAt, &completedAt); err != nil {
		return s, err
	}
	s.Status = types.JobStatus(status)
	if batchID.Valid {
		s.BatchID = &batchID.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}
	return s, nil
}

func scanDocument(row rowScanner) (types.Document, error) {
	var d types.Document
	err := row.Scan(&d.ID, &d.Title, &d.Content, &d.DocType, &d.CreatedAt)
	return d, err
}

func insertJobArgs(in types.JobInput) []any {
	var batch any
	if in.BatchID != nil {
		batch = *in.BatchID
	}
	return []any{in.Topic, in.TargetLength, in.AuthorVoice, in.TargetPersona, in.Notes, in.Offer, in.AutoEnhance, batch}
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func docTypeOrDefault(t string) string {
	if t == "" {
		return types.DocTypeReference
	}
	return t
}
