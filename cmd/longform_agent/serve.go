package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/longform-writer/internal/logging"
	"github.com/jonathan/longform-writer/internal/scheduler"
	"github.com/jonathan/longform-writer/internal/server"
)

var (
	servePort       int
	serveWithWorker bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes REST endpoints for queuing jobs and following
their progress. With --with-worker the scheduler runs in the same process; jobs still
execute in separate executor processes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job scheduler without the API",
	Long: `Recover jobs interrupted by a previous crash, then poll for pending jobs and run
each one in its own executor process, one at a time.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "Also run the job scheduler in this process")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var sched *scheduler.Scheduler
	var lease server.LeaseReporter
	if serveWithWorker {
		if sched, err = newScheduler(store, cfg); err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		lease = sched
	}

	srv, err := server.New(store, lease, serverConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}
	return g.Wait()
}

func runWorker(_ *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sched, err := newScheduler(store, cfg)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	logging.Named("worker").Infow("Worker started", "poll_interval", cfg.Scheduler.PollInterval)
	return sched.Run(ctx)
}
