package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/jonathan/longform-writer/internal/batch"
	"github.com/jonathan/longform-writer/internal/db"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file.csv>",
	Short: "Queue one job per CSV row",
	Long: `Queue one pending job per row of a CSV file. Columns, in order:
` + strings.Join(batch.Columns, ",") + `
Only topic is required; a header row is optional. All jobs share one batch id.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open batch file: %w", err)
	}
	defer f.Close()

	inputs, err := batch.Parse(f)
	if err != nil {
		return fmt.Errorf("invalid batch file %s: %w", args[0], err)
	}

	return withStore(cmd.Context(), func(ctx context.Context, store db.Store) error {
		res, err := batch.Create(ctx, store, inputs, cfg.Pipeline.DefaultTargetLength)
		if err != nil {
			pterm.Warning.Printfln("Created %d of %d jobs before the error", len(res.JobIDs), len(inputs))
			return err
		}
		pterm.Success.Printfln("Queued %d jobs in batch %s", len(res.JobIDs), res.BatchID)
		pterm.Printfln("Follow them with `jobs list --batch %s`.", res.BatchID)
		return nil
	})
}
