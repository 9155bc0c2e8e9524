// Package main provides the entry point for the long-form writer: API server,
// scheduler, per-job executor and operator commands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/longform-writer/internal/config"
	"github.com/jonathan/longform-writer/internal/logging"
)

var (
	configPath string
	logJSON    bool
	logLevel   string

	// cfg is loaded once per invocation by the root PersistentPreRunE.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "longform_agent",
	Short: "Long-form article generation service",
	Long: `longform_agent queues article jobs, runs them one at a time in isolated executor
processes and serves their progress and documents over a REST API.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML/JSON/TOML config file (LONGFORM_* env vars override it)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func setup(_ *cobra.Command, _ []string) error {
	if err := logging.Initialize(logJSON, logLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
