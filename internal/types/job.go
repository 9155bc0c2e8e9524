// Package types provides the value types shared by the job pipeline, the store and the API.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job statuses. Completed, failed and cancelled are terminal.
const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further pipeline writes may happen.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// DefaultAuthorVoice selects the built-in author persona.
const DefaultAuthorVoice = "default"

// JobInput holds the caller-supplied parameters of a job.
type JobInput struct {
	Topic         string  `json:"topic" validate:"required,min=2,max=500"`
	TargetLength  int     `json:"target_length,omitempty" validate:"omitempty,min=500,max=100000"`
	AuthorVoice   string  `json:"author_voice,omitempty" validate:"max=100"`
	TargetPersona string  `json:"target_persona,omitempty" validate:"max=2000"`
	Notes         string  `json:"notes,omitempty" validate:"max=5000"`
	Offer         string  `json:"offer,omitempty" validate:"max=2000"`
	AutoEnhance   bool    `json:"auto_enhance,omitempty"`
	BatchID       *string `json:"batch_id,omitempty" validate:"omitempty,uuid"`
}

// Validate validates the JobInput using the validator.
func (in *JobInput) Validate() error {
	return validate.Struct(in)
}

// WithDefaults fills unset optional fields.
func (in JobInput) WithDefaults(defaultTarget int) JobInput {
	if in.TargetLength == 0 {
		in.TargetLength = defaultTarget
	}
	if in.AuthorVoice == "" {
		in.AuthorVoice = DefaultAuthorVoice
	}
	return in
}

// Job is the durable unit of work. Artifacts are nil until the step that owns them runs.
type Job struct {
	ID int64 `json:"id"`
	JobInput

	Status      JobStatus `json:"status"`
	CurrentStep int       `json:"current_step"`
	Progress    int       `json:"progress"`

	SeparatedKeywords  *SeparatedKeywords   `json:"separated_keywords,omitempty"`
	CompetitorAnalyses []CompetitorAnalysis `json:"competitor_analyses,omitempty"`
	Criteria           *Criteria            `json:"criteria,omitempty"`
	AudienceResearch   *AudienceResearch    `json:"audience_research,omitempty"`
	ContextBlob        string               `json:"-"`
	PersonaBundle      *PersonaBundle       `json:"persona_bundle,omitempty"`
	Structure          *Structure           `json:"structure,omitempty"`
	Document           string               `json:"document,omitempty"`
	QualityReport      *QualityReport       `json:"quality_report,omitempty"`
	Enhancement        *Enhancement         `json:"enhancement,omitempty"`

	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// JobSummary is the list view of a job.
type JobSummary struct {
	ID          int64      `json:"id"`
	Topic       string     `json:"topic"`
	Status      JobStatus  `json:"status"`
	CurrentStep int        `json:"current_step"`
	Progress    int        `json:"progress"`
	BatchID     *string    `json:"batch_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Summary returns the list view of j.
func (j *Job) Summary() JobSummary {
	return JobSummary{
		ID:          j.ID,
		Topic:       j.Topic,
		Status:      j.Status,
		CurrentStep: j.CurrentStep,
		Progress:    j.Progress,
		BatchID:     j.BatchID,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
	}
}
