// Package scheduler polls the job store and runs one job at a time in a child
// process. It also reconciles jobs left processing by a previous crash.
package scheduler

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/jonathan/longform-writer/internal/logging"
	"github.com/jonathan/longform-writer/internal/types"
)

// Defaults for Config.
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultStderrTailBytes = 4096
	DefaultStopTimeout     = 30 * time.Second

	// LowMemoryBytes is the available-memory level below which a spawn is logged as risky.
	LowMemoryBytes = 512 << 20

	errorsBeforeBackoff = 5
	minBackoff          = time.Second
	maxBackoff          = 30 * time.Second
)

// Store is the part of the job store the scheduler needs.
type Store interface {
	NextPendingJob(ctx context.Context) (*types.Job, error)
	GetJob(ctx context.Context, id int64) (*types.Job, error)
	ListJobsByStatus(ctx context.Context, status types.JobStatus) ([]*types.Job, error)
	FailJob(ctx context.Context, id int64, message string) error
	RescueJob(ctx context.Context, id int64) error
	ResetJob(ctx context.Context, id int64) error
}

// Config controls polling and the executor process.
type Config struct {
	PollInterval time.Duration
	// Executable is the binary started per job; the job id is appended to Args.
	Executable string
	Args       []string
	// Env is appended to the inherited environment.
	Env             []string
	StderrTailBytes int
	// StopTimeout is how long a child gets after an interrupt before it is killed.
	StopTimeout time.Duration
}

// DefaultConfig returns the defaults, with Executable set to the running binary.
func DefaultConfig() Config {
	exe, _ := os.Executable()
	return Config{
		PollInterval:    DefaultPollInterval,
		Executable:      exe,
		Args:            []string{"process-job"},
		StderrTailBytes: DefaultStderrTailBytes,
		StopTimeout:     DefaultStopTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Executable == "" {
		c.Executable = d.Executable
	}
	if c.Args == nil {
		c.Args = d.Args
	}
	if c.StderrTailBytes <= 0 {
		c.StderrTailBytes = d.StderrTailBytes
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	return c
}

// Scheduler owns the single execution slot.
type Scheduler struct {
	store  Store
	cfg    Config
	logger *zap.SugaredLogger

	mu         sync.Mutex
	held       bool
	leaseJob   int64
	leaseSince time.Time

	// availableMemory is swapped in tests.
	availableMemory func(ctx context.Context) (uint64, error)
}

// New creates a Scheduler. Zero fields of cfg take their defaults.
func New(store Store, cfg Config) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("scheduler requires a store")
	}
	cfg = cfg.withDefaults()
	if cfg.Executable == "" {
		return nil, errors.New("scheduler requires an executor binary")
	}
	return &Scheduler{
		store:           store,
		cfg:             cfg,
		logger:          logging.Named("scheduler"),
		availableMemory: virtualMemoryAvailable,
	}, nil
}

// Lease reports which job holds the execution slot and since when.
func (s *Scheduler) Lease() (jobID int64, since time.Time, held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaseJob, s.leaseSince, s.held
}

func (s *Scheduler) acquire(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		return false
	}
	s.held, s.leaseJob, s.leaseSince = true, id, time.Now()
	return true
}

func (s *Scheduler) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held, s.leaseJob, s.leaseSince = false, 0, time.Time{}
}

// Recovery lists what Recover did.
type Recovery struct {
	Rescued []int64
	Reset   []int64
	// Failed holds jobs the store refused to settle; they stay processing.
	Failed []int64
}

// Recover settles every job left processing: jobs with a document are completed,
// the rest go back to pending at step 1. A job that cannot be settled is logged
// and skipped. Run calls it before the first poll.
func (s *Scheduler) Recover(ctx context.Context) (Recovery, error) {
	var out Recovery
	jobs, err := s.store.ListJobsByStatus(ctx, types.StatusProcessing)
	if err != nil {
		return out, errors.Wrap(err, "failed to list processing jobs")
	}
	if len(jobs) == 0 {
		return out, nil
	}
	s.logger.Infow("Recovering interrupted jobs", "count", len(jobs))

	for _, job := range jobs {
		rescue := strings.TrimSpace(job.Document) != ""
		settle := s.store.ResetJob
		if rescue {
			settle = s.store.RescueJob
		}
		if err := settle(ctx, job.ID); err != nil {
			s.logger.Warnw("Job recovery failed", "job_id", job.ID, "rescued", rescue, "error", err)
			out.Failed = append(out.Failed, job.ID)
			continue
		}
		s.logger.Infow("Job recovered", "job_id", job.ID, "rescued", rescue, "step", job.CurrentStep)
		if rescue {
			out.Rescued = append(out.Rescued, job.ID)
		} else {
			out.Reset = append(out.Reset, job.ID)
		}
	}
	return out, nil
}

// Run recovers interrupted jobs, then polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.Recover(ctx); err != nil {
		s.logger.Warnw("Startup recovery failed", "error", err)
	}
	s.logger.Infow("Scheduler started", "poll_interval", s.cfg.PollInterval, "executable", s.cfg.Executable)

	timer := time.NewTimer(0)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("Scheduler stopped")
			return nil
		case <-timer.C:
		}

		_, err := s.Tick(ctx)
		switch {
		case err == nil:
			failures = 0
		case ctx.Err() != nil:
			continue
		default:
			failures++
			s.logger.Warnw("Poll failed", "error", err, "consecutive_failures", failures)
		}
		timer.Reset(s.nextDelay(failures))
	}
}

// nextDelay is the poll interval until errorsBeforeBackoff consecutive failures, then
// doubles from minBackoff up to maxBackoff.
func (s *Scheduler) nextDelay(failures int) time.Duration {
	if failures < errorsBeforeBackoff {
		return s.cfg.PollInterval
	}
	d := minBackoff
	for i := errorsBeforeBackoff; i < failures && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// Tick runs at most one pending job. It reports whether a job was run. A busy slot
// is not an error.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	if _, _, held := s.Lease(); held {
		return false, nil
	}
	job, err := s.store.NextPendingJob(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	if !s.acquire(job.ID) {
		return false, nil
	}
	defer s.release()

	s.runJob(ctx, job.ID)
	return true, nil
}

func (s *Scheduler) runJob(ctx context.Context, id int64) {
	log := s.logger.With("job_id", id, "lease_holder", id)
	s.checkMemory(ctx, log)

	args := append(append([]string{}, s.cfg.Args...), strconv.FormatInt(id, 10))
	cmd := exec.CommandContext(ctx, s.cfg.Executable, args...)
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Stdout = os.Stdout
	tail := newTailBuffer(s.cfg.StderrTailBytes)
	cmd.Stderr = io.MultiWriter(os.Stderr, tail)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = s.cfg.StopTimeout

	log.Infow("Starting executor", "args", args)
	started := time.Now()
	if err := cmd.Start(); err != nil {
		s.failIfRunning(ctx, log, id, "executor failed to start: "+err.Error())
		return
	}
	err := cmd.Wait()
	elapsed := time.Since(started).Round(time.Millisecond)

	if err == nil {
		log.Infow("Executor finished", "exit_code", 0, "elapsed", elapsed)
		return
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		// Startup recovery settles whatever the interrupted child left behind.
		log.Warnw("Executor interrupted by shutdown", "exit_code", code, "elapsed", elapsed)
		return
	}
	log.Warnw("Executor exited abnormally", "exit_code", code, "elapsed", elapsed, "error", err)

	msg := "executor exited with code " + strconv.Itoa(code)
	if t := strings.TrimSpace(tail.String()); t != "" {
		msg += ": " + t
	}
	s.failIfRunning(ctx, log, id, msg)
}

// failIfRunning marks the job failed unless the executor already wrote a terminal status.
func (s *Scheduler) failIfRunning(ctx context.Context, log *zap.SugaredLogger, id int64, msg string) {
	ctx = context.WithoutCancel(ctx)
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		log.Errorw("Could not reload job after executor exit", "error", err)
		return
	}
	if job == nil || job.Status.IsTerminal() {
		return
	}
	if err := s.store.FailJob(ctx, id, msg); err != nil {
		log.Errorw("Could not mark job failed", "error", err)
		return
	}
	log.Warnw("Job marked failed", "error_message", msg)
}

func (s *Scheduler) checkMemory(ctx context.Context, log *zap.SugaredLogger) {
	if s.availableMemory == nil {
		return
	}
	avail, err := s.availableMemory(ctx)
	if err != nil {
		// Can't check, assume OK.
		return
	}
	if avail < LowMemoryBytes {
		log.Warnw("Low available memory before spawning executor", "available_mb", avail>>20)
	}
}

func virtualMemoryAvailable(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
