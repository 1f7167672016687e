// Package cli provides the command-line interface for pdimport.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/propertydigital/pdimport/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var verbose bool

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pdimport",
		Short: "pdimport - Bulk data import pipeline",
		Long: `pdimport imports bilingual CSV/Excel spreadsheets into the property
management platform: it normalizes rows into a canonical schema, uploads
them in chunks with cancellation and progress, and records per-job
outcomes with partial-failure detail.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(
		NewServeCommand(),
		NewImportCommand(),
		NewWatchCommand(),
		NewJobsCommand(),
		NewVersionCommand(Version),
	)

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("command failed", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger honoring the verbose flag.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads configuration from the working directory plus the
// command's flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Load(dir, cmd.Flags())
}
