// Package pipeline runs one job through every step, persisting each artifact with a
// checked write so a cancelled job stops at the next step boundary.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/jonathan/longform-writer/internal/criteria"
	"github.com/jonathan/longform-writer/internal/db"
	"github.com/jonathan/longform-writer/internal/enhance"
	"github.com/jonathan/longform-writer/internal/knowledge"
	"github.com/jonathan/longform-writer/internal/llm"
	"github.com/jonathan/longform-writer/internal/logging"
	"github.com/jonathan/longform-writer/internal/persona"
	"github.com/jonathan/longform-writer/internal/pipeline/steps"
	"github.com/jonathan/longform-writer/internal/quality"
	"github.com/jonathan/longform-writer/internal/refine"
	"github.com/jonathan/longform-writer/internal/research"
	"github.com/jonathan/longform-writer/internal/structure"
	"github.com/jonathan/longform-writer/internal/types"
	"github.com/jonathan/longform-writer/internal/writer"
)

// TotalSteps is the number of pipeline steps.
const TotalSteps = steps.Total

// ErrNotClaimed marks a job this executor does not own: it was not pending, or
// another executor won the start transition. Nothing was written to the job.
var ErrNotClaimed = errors.New("job not claimed by this executor")

// KnowledgeLimit caps tagged documents retrieved for the context blob.
const KnowledgeLimit = 8

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	JobID    int64  `json:"job_id"`
	Step     int    `json:"step"`
	Name     string `json:"name"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// Store is the part of db.Store the pipeline uses.
type Store interface {
	GetJob(ctx context.Context, id int64) (*types.Job, error)
	StartJob(ctx context.Context, id int64) error
	SaveProgress(ctx context.Context, id int64, u db.ProgressUpdate) error
	CompleteJob(ctx context.Context, id int64, u db.ProgressUpdate) error
	FailJob(ctx context.Context, id int64, message string) error
	CreateDocument(ctx context.Context, req types.CreateDocumentRequest) (*types.Document, error)
	DocumentsByTags(ctx context.Context, tags []string, limit int) ([]types.Document, error)
	DocumentsByIDs(ctx context.Context, ids []int64) ([]types.Document, error)
}

// Options holds the collaborators of a Processor.
type Options struct {
	Client   llm.Client
	Store    Store
	Searcher research.Searcher
	Fetcher  research.PageFetcher
	Analyzer research.AnalyzerConfig
	Personas persona.Config
	// ForbiddenPronoun is checked by refinement and quality; empty selects the default.
	ForbiddenPronoun string
	OnProgress       ProgressCallback
}

// Processor executes jobs.
type Processor struct {
	opts     Options
	analyzer *research.Analyzer
	personas *persona.Synthesizer
	planner  *structure.Planner
	writer   *writer.Writer
	refiner  *refine.Refiner
	checker  *quality.Checker
	enhancer *enhance.Enhancer
	logger   *zap.SugaredLogger
}

// New creates a Processor.
func New(opts Options) *Processor {
	return &Processor{
		opts:     opts,
		analyzer: research.NewAnalyzer(opts.Client, opts.Searcher, opts.Fetcher, opts.Analyzer),
		personas: persona.NewSynthesizer(opts.Client, opts.Store, opts.Personas),
		planner:  structure.NewPlanner(opts.Client),
		writer:   writer.New(opts.Client),
		refiner:  refine.New(opts.Client, opts.ForbiddenPronoun),
		checker:  quality.NewChecker(opts.ForbiddenPronoun),
		enhancer: enhance.New(opts.Client),
		logger:   logging.Named("pipeline"),
	}
}

// Process runs job id to completion. Only a pending job is accepted, and it is
// started first; anything else returns ErrNotClaimed. It returns
// db.ErrJobCancelled (wrapped) when the job was cancelled mid-run. When ctx itself is
// cancelled the job is left processing for startup recovery; any other error has
// already been written to the job as a failure.
func (p *Processor) Process(ctx context.Context, id int64) (job *types.Job, err error) {
	job, err = p.opts.Store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, errors.Wrapf(db.ErrJobNotFound, "job %d", id)
	}

	if job.Status != types.StatusPending {
		return job, errors.Mark(errors.Wrapf(db.ErrInvalidTransition, "job %d is %s", id, job.Status), ErrNotClaimed)
	}
	if err := p.opts.Store.StartJob(ctx, id); err != nil {
		if errors.Is(err, db.ErrInvalidTransition) {
			return job, errors.Mark(errors.Wrapf(err, "job %d was started by another executor", id), ErrNotClaimed)
		}
		return job, err
	}
	job.Status = types.StatusProcessing

	log := p.logger.With("job_id", id)
	log.Infow("Processing job", "topic", job.Topic, "target_length", job.TargetLength)

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Pipeline panic", "panic", r, "stack", string(debug.Stack()))
			err = errors.Newf("pipeline panic: %v", r)
		}
		if err == nil {
			return
		}
		if errors.Is(err, db.ErrJobCancelled) {
			log.Infow("Job cancelled, stopping at step boundary", "step", job.CurrentStep)
			return
		}
		if ctx.Err() != nil {
			log.Warnw("Job interrupted, leaving it for recovery", "step", job.CurrentStep, "error", err)
			return
		}
		log.Errorw("Job failed", "step", job.CurrentStep, "error", err)
		if ferr := p.opts.Store.FailJob(ctx, id, err.Error()); ferr != nil {
			log.Warnw("Could not mark job failed", "error", ferr)
		}
	}()

	for _, def := range steps.Registry {
		if err := ctx.Err(); err != nil {
			return job, err
		}
		if err := steps.ValidateDependencies(job, def.Number); err != nil {
			return job, err
		}
		log.Infow("Step started", "step", def.Number, "name", def.Name)
		msg, err := p.runStep(ctx, job, def)
		if err != nil {
			return job, errors.Wrapf(err, "step %d (%s)", def.Number, def.Name)
		}
		job.CurrentStep = def.Number
		job.Progress = def.Progress
		log.Infow("Step completed", "step", def.Number, "progress", def.Progress)
		p.emit(ProgressEvent{JobID: id, Step: def.Number, Name: def.Name, Progress: def.Progress, Message: msg})
	}
	job.Status = types.StatusCompleted
	return job, nil
}

func (p *Processor) emit(ev ProgressEvent) {
	if p.opts.OnProgress != nil {
		p.opts.OnProgress(ev)
	}
}

func (p *Processor) save(ctx context.Context, job *types.Job, def steps.StepDefinition, u db.ProgressUpdate) error {
	u.Step = def.Number
	u.Progress = def.Progress
	return p.opts.Store.SaveProgress(ctx, job.ID, u)
}

func (p *Processor) runStep(ctx context.Context, job *types.Job, def steps.StepDefinition) (string, error) {
	switch def.Number {
	case steps.SeparateKeywords:
		kw, err := research.SeparateKeywords(ctx, p.opts.Client, job.Topic)
		if err != nil {
			return "", err
		}
		job.SeparatedKeywords = kw
		return fmt.Sprintf("conclusion: %s; traffic: %s",
			strings.Join(kw.ConclusionKeywords, ", "), strings.Join(kw.TrafficKeywords, ", ")),
			p.save(ctx, job, def, db.ProgressUpdate{SeparatedKeywords: kw})

	case steps.SearchQueries:
		queries, err := research.GenerateSearchQueries(ctx, p.opts.Client, job.Topic, job.SeparatedKeywords.TrafficKeywords)
		if err != nil {
			return "", err
		}
		job.SeparatedKeywords.SearchQueries = queries
		return fmt.Sprintf("%d queries", len(queries)),
			p.save(ctx, job, def, db.ProgressUpdate{SeparatedKeywords: job.SeparatedKeywords})

	case steps.Competitors:
		samples, err := p.analyzer.Analyze(ctx, job.Topic, job.SeparatedKeywords.SearchQueries, job.SeparatedKeywords.AllKeywords())
		if err != nil {
			return "", err
		}
		if len(samples) == 0 {
			return "", criteria.ErrNoSamples
		}
		job.CompetitorAnalyses = samples
		if err := p.save(ctx, job, def, db.ProgressUpdate{CompetitorAnalyses: samples}); err != nil {
			return "", err
		}
		p.storeCompetitors(ctx, job)
		return fmt.Sprintf("%d samples", len(samples)), nil

	case steps.Criteria:
		c, err := criteria.Calculate(criteria.Input{
			Samples:          job.CompetitorAnalyses,
			UserTargetLength: job.TargetLength,
			KeywordOrder:     job.SeparatedKeywords.AllKeywords(),
		})
		if err != nil {
			return "", err
		}
		job.Criteria = c
		return fmt.Sprintf("target %d chars, %d sections", c.TargetLength, c.H2Count),
			p.save(ctx, job, def, db.ProgressUpdate{Criteria: c})

	case steps.Audience:
		audience, err := research.ResearchAudience(ctx, p.opts.Client, research.AudienceInput{
			Topic:         job.Topic,
			TargetPersona: job.TargetPersona,
			Notes:         job.Notes,
			Offer:         job.Offer,
			Competitors:   job.CompetitorAnalyses,
		})
		if err != nil {
			return "", err
		}
		fragments, err := p.knowledge(ctx, job)
		if err != nil {
			return "", err
		}
		blob := knowledge.Assemble(knowledge.Input{
			Knowledge:   fragments,
			Competitors: job.CompetitorAnalyses,
			Audience:    audience,
		})
		job.AudienceResearch = audience
		job.ContextBlob = blob
		return fmt.Sprintf("%d pain points, %d knowledge fragments", len(audience.PainPoints), len(fragments)),
			p.save(ctx, job, def, db.ProgressUpdate{AudienceResearch: audience, ContextBlob: &blob})

	case steps.Personas:
		bundle, err := p.personas.Synthesize(ctx, persona.Input{
			Topic:         job.Topic,
			TargetPersona: job.TargetPersona,
			AuthorVoice:   job.AuthorVoice,
		})
		if err != nil {
			return "", err
		}
		job.PersonaBundle = bundle
		return fmt.Sprintf("author %s (%s)", bundle.Author.Name, bundle.Author.Source),
			p.save(ctx, job, def, db.ProgressUpdate{PersonaBundle: bundle})

	case steps.Structure:
		s, err := p.planner.Plan(ctx, structure.Input{
			Topic:             job.Topic,
			Notes:             job.Notes,
			ConclusionKeyword: conclusionKeyword(job),
			Criteria:          job.Criteria,
			Context:           job.ContextBlob,
			Personas:          job.PersonaBundle,
		})
		if err != nil {
			return "", err
		}
		job.Structure = s
		return fmt.Sprintf("%s, revised=%t", s.Outcome, s.Revised),
			p.save(ctx, job, def, db.ProgressUpdate{Structure: s})

	case steps.Write:
		res, err := p.writer.Write(ctx, writer.Input{
			Topic:     job.Topic,
			Structure: job.Structure,
			Criteria:  job.Criteria,
			Context:   job.ContextBlob,
			Personas:  job.PersonaBundle,
		})
		if err != nil {
			return "", err
		}
		job.Document = res.Document
		return fmt.Sprintf("%d sections, %d chars", res.Sections, quality.CharCount(res.Document)),
			p.save(ctx, job, def, db.ProgressUpdate{Document: &res.Document})

	case steps.Refine:
		res, err := p.refiner.Refine(ctx, refine.Input{
			Document: job.Document,
			Personas: job.PersonaBundle,
			Keywords: job.Criteria.PriorityKeywords(),
		})
		if err != nil {
			return "", err
		}
		job.Document = res.Document
		report := p.checker.Check(job.Document, job.Criteria, estimates(job))
		job.QualityReport = report
		return fmt.Sprintf("quality passed=%t, %d issues", report.Passed, len(report.Issues)),
			p.save(ctx, job, def, db.ProgressUpdate{Document: &res.Document, QualityReport: report})

	case steps.Export:
		return p.export(ctx, job, def)
	}
	return "", fmt.Errorf("no handler for step %d", def.Number)
}

// export finalizes the document and completes the job.
func (p *Processor) export(ctx context.Context, job *types.Job, def steps.StepDefinition) (string, error) {
	keyword := conclusionKeyword(job)
	doc := enhance.ReplacePlaceholder(job.Document, keyword)

	fixed, n, err := enhance.FixSpacedKeywords(ctx, p.opts.Client, doc, job.SeparatedKeywords.AllKeywords())
	if err != nil {
		p.logger.Warnw("Spaced keyword fix failed, keeping document", "job_id", job.ID, "error", err)
	} else {
		doc = fixed
	}
	trimmed, removed, err := enhance.RemoveHowTo(ctx, p.opts.Client, doc)
	if err != nil {
		p.logger.Warnw("How-to removal failed, keeping document", "job_id", job.ID, "error", err)
	} else {
		doc = trimmed
	}

	var enh *types.Enhancement
	if job.AutoEnhance {
		enh = p.enhancer.Enhance(ctx, enhance.Input{Topic: job.Topic, Keyword: keyword, Document: doc})
	}

	if err := p.opts.Store.CompleteJob(ctx, job.ID, db.ProgressUpdate{
		Step:        def.Number,
		Progress:    def.Progress,
		Document:    &doc,
		Enhancement: enh,
	}); err != nil {
		return "", err
	}
	job.Document = doc
	job.Enhancement = enh
	p.storeGenerated(ctx, job)
	return fmt.Sprintf("%d chunks rewritten, %d how-to chunks trimmed, enhanced=%t", n, removed, enh != nil), nil
}

// knowledge gathers tagged reference fragments. Competitor documents are skipped since
// this job's own samples are passed separately.
func (p *Processor) knowledge(ctx context.Context, job *types.Job) ([]knowledge.Fragment, error) {
	all, err := knowledge.Gather(ctx, p.opts.Store, job.SeparatedKeywords.AllKeywords(), nil, KnowledgeLimit)
	if err != nil {
		return nil, errors.Wrap(err, "knowledge retrieval failed")
	}
	var out []knowledge.Fragment
	for _, f := range all {
		if f.Role != types.DocTypeCompetitor {
			out = append(out, f)
		}
	}
	return out, nil
}

// storeCompetitors saves real competitor samples for later jobs. Failures are logged.
func (p *Processor) storeCompetitors(ctx context.Context, job *types.Job) {
	tags := job.SeparatedKeywords.AllKeywords()
	for _, c := range job.CompetitorAnalyses {
		if c.Simulated || strings.TrimSpace(c.Excerpt) == "" {
			continue
		}
		content := c.Excerpt
		if len(c.Headings) > 0 {
			content = "Sections: " + strings.Join(c.Headings, " / ") + "\n\n" + content
		}
		if _, err := p.opts.Store.CreateDocument(ctx, types.CreateDocumentRequest{
			Title:   c.Title,
			Content: content,
			DocType: types.DocTypeCompetitor,
			Tags:    append([]string{"url:" + c.URL}, tags...),
		}); err != nil {
			p.logger.Warnw("Could not store competitor document", "job_id", job.ID, "url", c.URL, "error", err)
		}
	}
}

func (p *Processor) storeGenerated(ctx context.Context, job *types.Job) {
	title := structure.Title(job.Document)
	if title == "" {
		title = job.Topic
	}
	if _, err := p.opts.Store.CreateDocument(ctx, types.CreateDocumentRequest{
		Title:   title,
		Content: job.Document,
		DocType: types.DocTypeGenerated,
		Tags:    append([]string{fmt.Sprintf("job:%d", job.ID)}, job.SeparatedKeywords.AllKeywords()...),
	}); err != nil {
		p.logger.Warnw("Could not store generated document", "job_id", job.ID, "error", err)
	}
}

func conclusionKeyword(job *types.Job) string {
	if job.SeparatedKeywords != nil && len(job.SeparatedKeywords.ConclusionKeywords) > 0 {
		return job.SeparatedKeywords.ConclusionKeywords[0]
	}
	return job.Topic
}

func estimates(job *types.Job) *types.Estimates {
	if job.Structure == nil {
		return nil
	}
	return &job.Structure.Estimates
}
