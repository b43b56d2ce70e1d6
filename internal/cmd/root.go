// Package cmd implements the mediascribe command-line interface.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/scribeworks/mediascribe/internal/config"
	"github.com/scribeworks/mediascribe/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "mediascribe",
	Short: "Generate text descriptions for media collections",
	Long: `mediascribe walks a media collection, sends each item to an AI
description backend, and writes durable JSONL description records.

Runs are resumable: progress is recorded per item, and --resume picks up
an interrupted run without regenerating completed descriptions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if logFormat != "" {
			cfg.Logging.Format = logFormat
		}
		return observability.Init(cfg.Logging.Level, cfg.Logging.Format)
	},
}

var (
	// cfg is the resolved process configuration, loaded before any
	// command runs.
	cfg *config.Config

	cfgFile   string
	logLevel  string
	logFormat string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console|json)")
}

// Execute runs the CLI with the given context.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	return rootCmd.ExecuteContext(ctx)
}
