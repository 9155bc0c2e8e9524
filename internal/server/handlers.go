package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/jonathan/longform-writer/internal/batch"
	"github.com/jonathan/longform-writer/internal/db"
	"github.com/jonathan/longform-writer/internal/types"
)

// LeaseStatus is the scheduler slot as shown by /health.
type LeaseStatus struct {
	Held  bool       `json:"held"`
	JobID int64      `json:"job_id,omitempty"`
	Since *time.Time `json:"since,omitempty"`
}

// HealthResponse represents the response for /health
type HealthResponse struct {
	Status string       `json:"status"`
	Lease  *LeaseStatus `json:"lease,omitempty"`
}

// CreateJobResponse represents the response for POST /jobs
type CreateJobResponse struct {
	ID int64 `json:"id"`
}

// ListJobsResponse represents the response for GET /jobs
type ListJobsResponse struct {
	Jobs   []types.JobSummary `json:"jobs"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// handleHealth returns server health and, when a scheduler runs here, its lease.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if s.lease != nil {
		id, since, held := s.lease.Lease()
		resp.Lease = &LeaseStatus{Held: held}
		if held {
			resp.Lease.JobID = id
			resp.Lease.Since = &since
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleCreateJob queues one job.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var in types.JobInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	// Batch membership is only assigned by /jobs/batch.
	in.BatchID = nil
	if err := in.Validate(); err != nil {
		s.fail(w, r, validationError(err))
		return
	}

	id, err := s.store.CreateJob(r.Context(), in.WithDefaults(s.cfg.DefaultTargetLength))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Infow("Job created", "job_id", id, "topic", in.Topic, "request_id", RequestID(r.Context()))
	s.jsonResponse(w, http.StatusCreated, CreateJobResponse{ID: id})
}

// handleCreateBatch queues one job per CSV row under a shared batch id.
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	inputs, err := batch.Parse(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.fail(w, r, &ErrValidation{Message: err.Error()})
		return
	}

	res, err := batch.Create(r.Context(), s.store, inputs, s.cfg.DefaultTargetLength)
	if err != nil {
		s.logger.Errorw("Batch partially created", "batch_id", res.BatchID, "created", len(res.JobIDs), "error", err)
		s.fail(w, r, err)
		return
	}
	s.logger.Infow("Batch created", "batch_id", res.BatchID, "jobs", len(res.JobIDs))
	s.jsonResponse(w, http.StatusCreated, res)
}

// handleListJobs lists job summaries, newest first.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := db.JobFilter{
		Status:  types.JobStatus(q.Get("status")),
		BatchID: q.Get("batch_id"),
	}
	if f.Status != "" && !f.Status.Valid() {
		s.fail(w, r, &ErrValidation{Field: "status", Message: "unknown status " + strconv.Quote(string(f.Status))})
		return
	}

	var err error
	if f.Limit, err = queryInt(q.Get("limit"), 0); err != nil {
		s.fail(w, r, &ErrValidation{Field: "limit", Message: err.Error()})
		return
	}
	if f.Offset, err = queryInt(q.Get("offset"), 0); err != nil {
		s.fail(w, r, &ErrValidation{Field: "offset", Message: err.Error()})
		return
	}

	jobs, err := s.store.ListJobs(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []types.JobSummary{}
	}
	s.jsonResponse(w, http.StatusOK, ListJobsResponse{Jobs: jobs, Limit: f.PageSize(), Offset: f.Offset})
}

// handleGetJob returns the full job record.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

// handleGetDocument returns the current document as markdown.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Document == "" {
		s.fail(w, r, &ErrNotFound{Resource: "document of job", ID: job.ID})
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, job.Document); err != nil {
		s.logger.Warnw("Error writing document", "job_id", job.ID, "error", err)
	}
}

// handleCancelJob stops a pending or processing job at its next step boundary.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "cancel", s.store.CancelJob)
}

// handleRescueJob completes a failed or stuck job that already has a document.
func (s *Server) handleRescueJob(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "rescue", s.store.RescueJob)
}

// handleResetJob sends a job back to pending at step 1.
func (s *Server) handleResetJob(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "reset", s.store.ResetJob)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, action string, apply func(ctx context.Context, id int64) error) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := apply(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Infow("Job "+action, "job_id", id, "request_id", RequestID(r.Context()))

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

// handleCreateDocument adds a knowledge document.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req types.CreateDocumentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, r, validationError(err))
		return
	}

	doc, err := s.store.CreateDocument(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Infow("Document created", "document_id", doc.ID, "doc_type", doc.DocType, "tags", doc.Tags)
	s.jsonResponse(w, http.StatusCreated, doc)
}

// loadJob resolves {id}; on failure the response has been written.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*types.Job, bool) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	if job == nil {
		s.fail(w, r, &ErrNotFound{Resource: "job", ID: id})
		return nil, false
	}
	return job, true
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ErrValidation{Field: "id", Message: "invalid job id " + strconv.Quote(raw)}
	}
	return id, nil
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.Newf("must be a non-negative integer, got %q", raw)
	}
	return n, nil
}
