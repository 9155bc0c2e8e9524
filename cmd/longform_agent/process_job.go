package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/jonathan/longform-writer/internal/db"
	"github.com/jonathan/longform-writer/internal/logging"
	"github.com/jonathan/longform-writer/internal/pipeline"
	"github.com/jonathan/longform-writer/internal/types"
)

var processJobCmd = &cobra.Command{
	Use:   "process-job <id>",
	Short: "Execute one job (started by the scheduler)",
	Long: `Run every pipeline step of one job in this process and exit. The scheduler starts
one of these per job; it exits 0 when the job completed or was cancelled and 1 otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcessJob,
}

func init() {
	rootCmd.AddCommand(processJobCmd)
}

func parseJobID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}

func runProcessJob(_ *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	proc, closeClient, err := newProcessor(ctx, cfg, store, nil)
	if err != nil {
		failUnclaimed(ctx, store, id, "executor setup failed: "+err.Error())
		return err
	}
	defer closeClient()

	_, err = proc.Process(ctx, id)
	if errors.Is(err, pipeline.ErrNotClaimed) {
		logging.Named("executor").Infow("Job not claimed, exiting", "job_id", id, "reason", err)
	}
	return executorOutcome(err)
}

// executorOutcome maps a pipeline result to the process exit status: nil for a
// completed or cancelled job and for a job this executor never claimed, an error
// for everything else. A non-zero exit makes the scheduler fail the job.
func executorOutcome(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, db.ErrJobCancelled) || errors.Is(err, pipeline.ErrNotClaimed) {
		return nil
	}
	return err
}

// failUnclaimed records a setup failure on a job that is still pending, so it does
// not sit in pending forever. A job in any other state belongs to someone else.
func failUnclaimed(ctx context.Context, store db.Store, id int64, msg string) {
	log := logging.Named("executor").With("job_id", id)
	job, err := store.GetJob(ctx, id)
	if err != nil || job == nil || job.Status != types.StatusPending {
		return
	}
	if err := store.FailJob(ctx, id, msg); err != nil {
		log.Warnw("Could not mark job failed", "error", err)
	}
}
