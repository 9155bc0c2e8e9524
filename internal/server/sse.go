package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonathan/longform-writer/internal/pipeline/steps"
	"github.com/jonathan/longform-writer/internal/types"
)

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSEWriter sets the stream headers and lifts the write deadline.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	rc := http.NewResponseController(w)
	// Not every writer supports deadlines; the stream still works without.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("streaming not supported: %w", err)
	}

	return &SSEWriter{w: w, rc: rc}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	return s.rc.Flush()
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", map[string]string{"error": message}) //nolint:errcheck
}

// ProgressEvent is the payload of a "progress" event.
type ProgressEvent struct {
	ID          int64           `json:"id"`
	Status      types.JobStatus `json:"status"`
	CurrentStep int             `json:"current_step"`
	StepName    string          `json:"step_name"`
	Progress    int             `json:"progress"`
}

// CompleteEvent is the payload of the final "complete" event.
type CompleteEvent struct {
	ID           int64           `json:"id"`
	Status       types.JobStatus `json:"status"`
	ErrorMessage *string         `json:"error_message,omitempty"`
}

func progressOf(job *types.Job) ProgressEvent {
	return ProgressEvent{
		ID:          job.ID,
		Status:      job.Status,
		CurrentStep: job.CurrentStep,
		StepName:    steps.Name(job.CurrentStep),
		Progress:    job.Progress,
	}
}

// handleJobEvents streams a job's progress until it reaches a terminal status or
// the client goes away. The job row is polled; the executor runs in another process.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.logger.Errorw("Event stream unavailable", "job_id", job.ID, "error", err)
		return
	}

	ticker := time.NewTicker(s.cfg.EventInterval)
	defer ticker.Stop()

	var last ProgressEvent
	first := true
	for {
		if ev := progressOf(job); first || ev != last {
			if err := sse.WriteEvent("progress", ev); err != nil {
				s.logger.Debugw("Event stream closed", "job_id", job.ID, "error", err)
				return
			}
			last, first = ev, false
		}
		if job.Status.IsTerminal() {
			sse.WriteEvent("complete", CompleteEvent{ //nolint:errcheck
				ID:           job.ID,
				Status:       job.Status,
				ErrorMessage: job.ErrorMessage,
			})
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		next, err := s.store.GetJob(r.Context(), job.ID)
		if err != nil {
			if r.Context().Err() == nil {
				s.logger.Warnw("Event stream lookup failed", "job_id", job.ID, "error", err)
				sse.WriteError("job lookup failed")
			}
			return
		}
		if next == nil {
			sse.WriteError("job deleted")
			return
		}
		job = next
	}
}
