package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/jonathan/longform-writer/internal/db"
	"github.com/jonathan/longform-writer/internal/observability"
	"github.com/jonathan/longform-writer/internal/pipeline/steps"
	"github.com/jonathan/longform-writer/internal/types"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage jobs",
}

var (
	listStatus string
	listBatch  string
	listLimit  int
	listOffset int

	getJSON      bool
	getDocument  bool
	getArtifacts bool
)

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := db.JobFilter{Status: types.JobStatus(listStatus), BatchID: listBatch, Limit: listLimit, Offset: listOffset}
		if f.Status != "" && !f.Status.Valid() {
			return fmt.Errorf("unknown status %q", listStatus)
		}
		return withStore(cmd.Context(), func(ctx context.Context, store db.Store) error {
			jobs, err := store.ListJobs(ctx, f)
			if err != nil {
				return err
			}
			return renderJobTable(cmd.OutOrStdout(), jobs)
		})
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(ctx context.Context, store db.Store) error {
			job, err := store.GetJob(ctx, id)
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %d not found", id)
			}
			out := cmd.OutOrStdout()
			switch {
			case getDocument:
				_, err = io.WriteString(out, job.Document)
				return err
			case getJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(job)
			case getArtifacts:
				if err := renderJob(out, job); err != nil {
					return err
				}
				observability.NewPrinter(out).PrintArtifacts(job)
				return nil
			default:
				return renderJob(out, job)
			}
		})
	},
}

// transitionCmd builds a subcommand that applies one store transition.
func transitionCmd(use, short, done string, apply func(db.Store) func(context.Context, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, store db.Store) error {
				if err := apply(store)(ctx, id); err != nil {
					return err
				}
				pterm.Success.Printfln("Job %d %s", id, done)
				return nil
			})
		},
	}
}

func init() {
	jobsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending, processing, completed, failed, cancelled)")
	jobsListCmd.Flags().StringVar(&listBatch, "batch", "", "Filter by batch id")
	jobsListCmd.Flags().IntVar(&listLimit, "limit", db.DefaultListLimit, "Maximum jobs to show")
	jobsListCmd.Flags().IntVar(&listOffset, "offset", 0, "Jobs to skip")

	jobsGetCmd.Flags().BoolVar(&getJSON, "json", false, "Print the full job record as JSON")
	jobsGetCmd.Flags().BoolVar(&getDocument, "document", false, "Print only the markdown document")
	jobsGetCmd.Flags().BoolVar(&getArtifacts, "artifacts", false, "Also print the intermediate step artifacts")
	jobsGetCmd.MarkFlagsMutuallyExclusive("json", "document", "artifacts")

	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd,
		transitionCmd("cancel", "Cancel a pending or processing job", "cancelled",
			func(s db.Store) func(context.Context, int64) error { return s.CancelJob }),
		transitionCmd("rescue", "Complete a failed or stuck job that already has a document", "rescued",
			func(s db.Store) func(context.Context, int64) error { return s.RescueJob }),
		transitionCmd("reset", "Send a failed, cancelled or stuck job back to pending", "reset to pending",
			func(s db.Store) func(context.Context, int64) error { return s.ResetJob }),
	)
	rootCmd.AddCommand(jobsCmd)
}

// withStore opens the store for one command.
func withStore(ctx context.Context, fn func(context.Context, db.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func renderJobTable(w io.Writer, jobs []types.JobSummary) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "No jobs.")
		return err
	}
	rows := pterm.TableData{{"ID", "Status", "Step", "Progress", "Topic", "Created"}}
	for _, j := range jobs {
		rows = append(rows, []string{
			fmt.Sprint(j.ID),
			colorStatus(j.Status),
			fmt.Sprintf("%d %s", j.CurrentStep, steps.Name(j.CurrentStep)),
			fmt.Sprintf("%d%%", j.Progress),
			truncate(j.Topic, 48),
			j.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(rows).Render()
}

func renderJob(w io.Writer, job *types.Job) error {
	rows := pterm.TableData{
		{"Field", "Value"},
		{"ID", fmt.Sprint(job.ID)},
		{"Topic", job.Topic},
		{"Status", colorStatus(job.Status)},
		{"Step", fmt.Sprintf("%d/%d %s", job.CurrentStep, steps.Total, steps.Name(job.CurrentStep))},
		{"Progress", fmt.Sprintf("%d%%", job.Progress)},
		{"Target length", fmt.Sprint(job.TargetLength)},
		{"Author voice", job.AuthorVoice},
		{"Document", fmt.Sprintf("%d chars", len([]rune(job.Document)))},
	}
	if job.BatchID != nil {
		rows = append(rows, []string{"Batch", *job.BatchID})
	}
	if job.ErrorMessage != nil {
		rows = append(rows, []string{"Error", truncate(*job.ErrorMessage, 200)})
	}
	if job.QualityReport != nil {
		rows = append(rows, []string{"Quality passed", fmt.Sprint(job.QualityReport.Passed)})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(rows).Render()
}

func colorStatus(s types.JobStatus) string {
	switch s {
	case types.StatusCompleted:
		return pterm.Green(string(s))
	case types.StatusFailed:
		return pterm.Red(string(s))
	case types.StatusProcessing:
		return pterm.LightCyan(string(s))
	case types.StatusCancelled:
		return pterm.Yellow(string(s))
	default:
		return string(s)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
