package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/epotapov/SentimentAnalysis/internal/audit"
	"github.com/epotapov/SentimentAnalysis/internal/bus"
	"github.com/epotapov/SentimentAnalysis/internal/config"
	"github.com/epotapov/SentimentAnalysis/internal/inference"
	"github.com/epotapov/SentimentAnalysis/internal/metrics"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/security"
	"github.com/epotapov/SentimentAnalysis/internal/table"
	"github.com/epotapov/SentimentAnalysis/internal/training"
)

// sampleReviews are scored by predict and run when no text is given.
var sampleReviews = []string{
	"This movie is the greatest movie I have ever seen. It was better than all the other movies which I have seen.",
	"I really just thought this movie was bad. It was the worst movie I have ever seen!",
	"This move was okay. I didn't love it, but I also didn't hate it. Pretty mediocre.",
}

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the classifier unless its artifact already exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			return withApp(cmd, func(ctx context.Context, a *app) error {
				applyTrainFlags(cmd, a)
				t, err := a.trainer()
				if err != nil {
					return err
				}
				if !force {
					model, err := t.EnsureModel(ctx, a.loadCorpus)
					if err != nil {
						return err
					}
					if !model.Trained {
						fmt.Printf("Artifact %s already exists, skipping training\n", a.store.Location(a.cfg.Artifact.Name))
					}
					return nil
				}
				train, test, err := a.loadCorpus()
				if err != nil {
					return err
				}
				_, err = t.Train(ctx, train, test)
				return err
			})
		},
	}

	cmd.Flags().Bool("force", false, "retrain even if the artifact exists")
	cmd.Flags().String("corpus", "", "corpus directory (overrides config)")
	cmd.Flags().Int("iterations", 0, "training epochs (overrides config)")
	cmd.Flags().Int("limit", 0, "use at most this many documents (overrides config)")
	return cmd
}

func applyTrainFlags(cmd *cobra.Command, a *app) {
	if dir, _ := cmd.Flags().GetString("corpus"); dir != "" {
		a.cfg.Corpus.Dir = dir
	}
	if cmd.Flags().Changed("iterations") {
		a.cfg.Train.Iterations, _ = cmd.Flags().GetInt("iterations")
	}
	if cmd.Flags().Changed("limit") {
		a.cfg.Corpus.Limit, _ = cmd.Flags().GetInt("limit")
	}
}

func predictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict [text...]",
		Short: "Score review texts with the stored classifier",
		Long: `Score each argument as one review. Without arguments three sample
reviews are scored. The classifier artifact must already exist; use train
or run to create it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				model, err := a.loadModel(ctx)
				if err != nil {
					return err
				}
				return predictAll(a, model, textsOrSamples(args))
			})
		},
	}
}

func textsOrSamples(args []string) []string {
	if len(args) == 0 {
		return sampleReviews
	}
	return args
}

func predictAll(a *app, model *training.Model, texts []string) error {
	for _, text := range texts {
		p, err := inference.Predict(model.Classifier, text)
		if err != nil {
			return err
		}
		a.log.Debug("Scored review", "text", security.SanitizeForLogWithLength(text, 80), "label", p.Label, "confidence", p.Confidence)
		inference.WriteReport(os.Stdout, text, p)
	}
	return nil
}

func inferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Score the question columns of a survey table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				applyInferFlags(cmd, a)
				tbl, err := inferInput(a)
				if err != nil {
					return err
				}
				model, err := a.loadModel(ctx)
				if err != nil {
					return err
				}
				return infer(ctx, a, model, tbl)
			})
		},
	}

	cmd.Flags().StringP("input", "i", "", "input CSV (overrides config)")
	cmd.Flags().StringP("output", "o", "", "output CSV (overrides config)")
	return cmd
}

func applyInferFlags(cmd *cobra.Command, a *app) {
	if in, _ := cmd.Flags().GetString("input"); in != "" {
		a.cfg.Inference.Input = in
	}
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		a.cfg.Inference.Output = out
	}
}

// inferInput reads the input table and checks its question columns, so a
// malformed table fails before any model is loaded or trained.
func inferInput(a *app) (*table.Table, error) {
	tbl, err := table.ReadFile(a.cfg.Inference.Input)
	if err != nil {
		return nil, err
	}
	if err := inference.CheckColumns(tbl, inference.QuestionsFrom(a.cfg.Inference.Questions)); err != nil {
		return nil, err
	}
	return tbl, nil
}

func infer(ctx context.Context, a *app, model *training.Model, tbl *table.Table) error {
	r, err := a.runner(model)
	if err != nil {
		return err
	}
	res, err := r.InferTable(ctx, tbl, a.cfg.Inference.Output,
		inference.QuestionsFrom(a.cfg.Inference.Questions))
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d rows to %s\n", res.Rows, a.cfg.Inference.Output)
	return nil
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare predicted labels with human evaluations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if in, _ := cmd.Flags().GetString("input"); in != "" {
					a.cfg.Audit.Input = in
				}
				pairs := audit.PairsFrom(a.cfg.Inference.Questions)
				if len(pairs) == 0 {
					return errors.ConfigurationError("no question has a truth column")
				}
				report, err := a.auditor().AuditFile(ctx, a.cfg.Audit.Input, pairs)
				if err != nil {
					return err
				}
				for _, q := range report.Questions {
					if ratio, ok := q.Ratio(); ok {
						fmt.Printf("%s accuracy: %.2f%%\n", q.Question, ratio*100)
					} else {
						fmt.Printf("%s accuracy: n/a (no eligible rows)\n", q.Question)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringP("input", "i", "", "evaluated CSV (overrides config)")
	return cmd
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train if missing, score the sample reviews, then score the survey table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				applyTrainFlags(cmd, a)
				applyInferFlags(cmd, a)
				model, err := a.ensureModel(ctx)
				if err != nil {
					return err
				}
				if err := predictAll(a, model, sampleReviews); err != nil {
					return err
				}
				tbl, err := inferInput(a)
				if err != nil {
					return err
				}
				return infer(ctx, a, model, tbl)
			})
		},
	}

	cmd.Flags().String("corpus", "", "corpus directory (overrides config)")
	cmd.Flags().Int("iterations", 0, "training epochs (overrides config)")
	cmd.Flags().Int("limit", 0, "use at most this many documents (overrides config)")
	cmd.Flags().StringP("input", "i", "", "input CSV (overrides config)")
	cmd.Flags().StringP("output", "o", "", "output CSV (overrides config)")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the run ledger",
	}

	runs := &cobra.Command{
		Use:   "runs",
		Short: "List training runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withLedger(cmd, func(ctx context.Context, a *app) error {
				list, err := a.ledger.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tEPOCHS\tBEST F\tFINAL F\tARTIFACT")
				for _, r := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.3f\t%.3f\t%s\n",
						r.ID, r.Status, r.StartedAt.Format(time.DateTime), r.Iterations,
						r.BestFScore, r.FinalFScore, r.Artifact)
				}
				return w.Flush()
			})
		},
	}
	runs.Flags().Int("limit", 20, "maximum runs to list (0 = all)")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its epochs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, func(ctx context.Context, a *app) error {
				run, err := a.ledger.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				epochs, err := a.ledger.Epochs(ctx, run.ID)
				if err != nil {
					return err
				}
				fmt.Printf("Run:       %s\n", run.ID)
				fmt.Printf("Status:    %s\n", run.Status)
				fmt.Printf("Artifact:  %s (%s)\n", run.Artifact, run.Strategy)
				fmt.Printf("Corpus:    %d train / %d test (%s)\n", run.TrainSize, run.TestSize, run.Fingerprint)
				if run.Error != "" {
					fmt.Printf("Error:     %s\n", run.Error)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "EPOCH\tLOSS\tPRECISION\tRECALL\tF-SCORE\tBATCHES\tDURATION")
				for _, e := range epochs {
					fmt.Fprintf(w, "%d\t%.3f\t%.3f\t%.3f\t%.3f\t%d\t%s\n",
						e.Epoch, e.Loss, e.Precision, e.Recall, e.FScore, e.Batches,
						time.Duration(e.DurationMs)*time.Millisecond)
				}
				return w.Flush()
			})
		},
	}

	audits := &cobra.Command{
		Use:   "audits",
		Short: "List audit results, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withLedger(cmd, func(ctx context.Context, a *app) error {
				entries, err := a.ledger.Audits(ctx, limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "AUDIT\tCREATED\tQUESTION\tCORRECT\tELIGIBLE\tINPUT")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
						e.AuditID, e.CreatedAt.Format(time.DateTime), e.Question, e.Correct, e.Eligible, e.Input)
				}
				return w.Flush()
			})
		},
	}
	audits.Flags().Int("limit", 20, "maximum entries to list (0 = all)")

	cmd.AddCommand(runs, show, audits)
	return cmd
}

func withLedger(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if a.ledger == nil {
			return errors.ConfigurationError("history is disabled")
		}
		return fn(ctx, a)
	})
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print journaled bus events",
		RunE: func(cmd *cobra.Command, args []string) error {
			since, _ := cmd.Flags().GetDuration("since")
			filter := bus.JournalFilter{}
			filter.RunID, _ = cmd.Flags().GetString("run")
			filter.Topic, _ = cmd.Flags().GetString("topic")
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Bus.EventLog == "" {
				return errors.ConfigurationError("bus event log is not configured")
			}
			entries, err := bus.ReadJournal(cfg.Bus.EventLog, filter)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s  %-26s %-36s %s\n", e.Timestamp.Format(time.RFC3339), e.Topic, e.Event.RunID, e.Event.Source)
			}
			return nil
		},
	}

	cmd.Flags().Duration("since", 0, "only events newer than this (0 = all)")
	cmd.Flags().String("run", "", "only events of this run")
	cmd.Flags().String("topic", "", "only events of this topic")
	cmd.Flags().Int("limit", 100, "maximum events to print (0 = all)")
	return cmd
}

func metricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print the metrics summary and persisted history",
		RunE: func(cmd *cobra.Command, args []string) error {
			prom, _ := cmd.Flags().GetBool("prometheus")
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if prom {
					fmt.Print(a.metrics.PrometheusFormat())
					return nil
				}
				fmt.Println(metrics.NewCollector(a.metrics).Summary(ctx))
				return nil
			})
		},
	}

	cmd.Flags().Bool("prometheus", false, "print the Prometheus text exposition instead")
	return cmd
}
