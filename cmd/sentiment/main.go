// Package main provides the sentiment CLI: train a review classifier, score
// survey tables with it and audit the predictions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sentiment",
		Short: "Sentiment - review classifier training, survey scoring and audit",
		Long: `Sentiment trains a positive/negative text classifier on a labeled review
corpus, scores the free-text answers of a survey table with it, and audits
the predictions against human evaluations.

Examples:
  sentiment train                      # Train unless the artifact exists
  sentiment predict "What a film"      # Score one review
  sentiment infer -i "Opinion Form.csv" -o testoutput.csv
  sentiment audit -i testoutputwithEvaluations.csv
  sentiment run                        # Train if missing, then infer`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (.yaml or .toml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(
		trainCmd(),
		predictCmd(),
		inferCmd(),
		auditCmd(),
		runCmd(),
		historyCmd(),
		eventsCmd(),
		metricsCmd(),
		versionCmd(),
	)
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sentiment %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}
