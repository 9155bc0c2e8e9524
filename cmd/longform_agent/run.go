package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/jonathan/longform-writer/internal/pipeline"
	"github.com/jonathan/longform-writer/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Queue a job, optionally running it here with live progress",
	Long: `Create a pending job. Without --wait the job is left for the scheduler. With --wait
every step runs in this process and progress is printed as it happens:
keywords -> search queries -> competitors -> criteria -> audience -> context -> personas ->
structure -> writing -> refinement, quality and export.`,
	Args: cobra.NoArgs,
	RunE: runJobCmd,
}

var (
	runTopic         string
	runTargetLength  int
	runAuthorVoice   string
	runTargetPersona string
	runNotes         string
	runOffer         string
	runAutoEnhance   bool
	runWait          bool
	runOut           string
)

func init() {
	runCommand.Flags().StringVarP(&runTopic, "topic", "t", "", "Article topic (required)")
	runCommand.Flags().IntVar(&runTargetLength, "target-length", 0, "Target length in characters (default from config)")
	runCommand.Flags().StringVar(&runAuthorVoice, "author-voice", "", "Author voice tag (default: builtin voice)")
	runCommand.Flags().StringVar(&runTargetPersona, "target-persona", "", "Free-form description of the intended reader")
	runCommand.Flags().StringVar(&runNotes, "notes", "", "Additional notes for the writer")
	runCommand.Flags().StringVar(&runOffer, "offer", "", "Product or service the article leads to")
	runCommand.Flags().BoolVar(&runAutoEnhance, "auto-enhance", false, "Run auto-enhancement after the quality check")
	runCommand.Flags().BoolVarP(&runWait, "wait", "w", false, "Process the job in this process and wait for it")
	runCommand.Flags().StringVarP(&runOut, "out", "o", "", "Write the finished document to this file (with --wait)")
	_ = runCommand.MarkFlagRequired("topic")

	rootCmd.AddCommand(runCommand)
}

func runJobInput(cmd *cobra.Command) (types.JobInput, error) {
	in := types.JobInput{
		Topic:         runTopic,
		AuthorVoice:   runAuthorVoice,
		TargetPersona: runTargetPersona,
		Notes:         runNotes,
		Offer:         runOffer,
		AutoEnhance:   runAutoEnhance,
	}
	if cmd.Flags().Changed("target-length") {
		in.TargetLength = runTargetLength
	}
	if err := in.Validate(); err != nil {
		return in, fmt.Errorf("invalid job: %w", err)
	}
	return in.WithDefaults(cfg.Pipeline.DefaultTargetLength), nil
}

func runJobCmd(cmd *cobra.Command, _ []string) error {
	in, err := runJobInput(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.CreateJob(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	pterm.Info.Printfln("Created job %d: %s", id, in.Topic)
	if !runWait {
		pterm.Printfln("The scheduler will pick it up; follow it with `jobs get %d`.", id)
		return nil
	}

	out := cmd.OutOrStdout()
	proc, closeClient, err := newProcessor(ctx, cfg, store, printProgress(out))
	if err != nil {
		return err
	}
	defer closeClient()

	job, perr := proc.Process(ctx, id)
	if err := executorOutcome(perr); err != nil {
		pterm.Error.Printfln("Job %d failed: %v", id, err)
		return err
	}
	switch {
	case errors.Is(perr, pipeline.ErrNotClaimed):
		pterm.Warning.Printfln("Job %d is already being processed elsewhere", id)
		return nil
	case perr != nil || job == nil || job.Status != types.StatusCompleted:
		pterm.Warning.Printfln("Job %d was cancelled", id)
		return nil
	}

	printQuality(job)
	if runOut != "" {
		if err := os.WriteFile(runOut, []byte(job.Document), 0o644); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
		pterm.Success.Printfln("Document written to %s", runOut)
	}
	return nil
}

// printProgress prints one "Step N/10" line per completed step.
func printProgress(w io.Writer) pipeline.ProgressCallback {
	return func(ev pipeline.ProgressEvent) {
		fmt.Fprintf(w, "%s %s %s\n",
			pterm.LightCyan(fmt.Sprintf("Step %d/%d:", ev.Step, pipeline.TotalSteps)),
			ev.Name,
			pterm.Gray(fmt.Sprintf("(%d%%) %s", ev.Progress, ev.Message)))
	}
}

func printQuality(job *types.Job) {
	pterm.Success.Printfln("Job %d completed", job.ID)
	q := job.QualityReport
	if q == nil {
		return
	}
	rows := pterm.TableData{
		{"Check", "Value"},
		{"Passed", fmt.Sprint(q.Passed)},
		{"Length", fmt.Sprint(q.WordCount)},
		{"H2 / H3", fmt.Sprintf("%d / %d", q.H2Count, q.H3Count)},
	}
	for _, k := range q.KeywordCounts {
		rows = append(rows, []string{"Keyword " + k.Keyword, fmt.Sprintf("%d (target %d)", k.Count, k.Target)})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	for _, issue := range q.Issues {
		pterm.Warning.Println(issue)
	}
}
