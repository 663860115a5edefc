package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Global flags
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "datapipe",
	Short: "Load, normalize, deduplicate, analyze and save chat datasets",
	Long: `datapipe - a dataset preparation pipeline for chat and instruction data.

Jobs are described by YAML or JSON config files with up to five stages:

  load         Hugging Face and local file sources (csv, json, parquet)
  format       format detection and normalization into message lists
  deduplicate  semantic near-duplicate removal over embeddings
  analyze      judge-scored quality and category columns
  save         parquet, csv or json output, locally or on S3

Stages left out of a config are skipped.

Examples:
  # Write a documented starter config
  datapipe pipeline sample job.yaml

  # Show the jobs a config file or directory describes
  datapipe pipeline list configs/

  # Run them
  datapipe pipeline run configs/`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initLogging configures the default logger. --verbose raises the level
// to Debug.
func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
