package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Collector gathers a point-in-time view of the metrics and their history.
type Collector struct {
	metrics *Metrics
}

// NewCollector creates a new metrics collector.
func NewCollector(metrics *Metrics) *Collector {
	return &Collector{metrics: metrics}
}

// Collect gathers current statistics.
func (c *Collector) Collect(ctx context.Context) (map[string]any, error) {
	m := c.metrics
	m.collectSystemMetrics()

	stats := map[string]any{
		"training_runs_total":    m.TrainingRuns.Value(),
		"epochs_total":           m.EpochsTotal.Value(),
		"examples_trained_total": m.ExamplesTrained.Value(),
		"epoch_loss":             m.EpochLoss.Value(),
		"epoch_f_score":          m.EpochFScore.Value(),
		"best_f_score":           m.BestFScore.Value(),
		"inference_runs_total":   m.InferenceRuns.Value(),
		"inference_rows_total":   m.InferenceRows.Value(),
		"goroutines":             m.GoroutineCount.Value(),
		"memory_bytes":           m.MemoryUsage.Value(),
		"uptime_seconds":         int64(m.Uptime().Seconds()),
	}

	accuracy := make(map[string]float64)
	for _, g := range m.AuditAccuracy.GetAll() {
		accuracy[g.Labels()["question"]] = g.Value()
	}
	stats["audit_accuracy"] = accuracy

	points, err := m.history.LoadHistory(ctx, SeriesEpochFScore, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("loading f-score history: %w", err)
	}
	stats["f_score_history"] = points

	return stats, nil
}

// Summary returns a human-readable summary of current metrics.
func (c *Collector) Summary(ctx context.Context) string {
	stats, err := c.Collect(ctx)
	if err != nil {
		return "Error collecting metrics: " + err.Error()
	}

	var sb strings.Builder
	sb.WriteString("Sentiment Metrics Summary\n")
	sb.WriteString("=========================\n\n")

	fmt.Fprintf(&sb, "Training Runs: %d\n", stats["training_runs_total"])
	fmt.Fprintf(&sb, "Epochs: %d\n", stats["epochs_total"])
	fmt.Fprintf(&sb, "Examples Trained: %s\n", formatInt(stats["examples_trained_total"].(int64)))
	fmt.Fprintf(&sb, "Last F-score: %.4f\n", stats["epoch_f_score"])
	fmt.Fprintf(&sb, "Best F-score: %.4f\n", stats["best_f_score"])
	fmt.Fprintf(&sb, "Rows Scored: %s\n", formatInt(stats["inference_rows_total"].(int64)))

	if accuracy := stats["audit_accuracy"].(map[string]float64); len(accuracy) > 0 {
		questions := make([]string, 0, len(accuracy))
		for q := range accuracy {
			questions = append(questions, q)
		}
		sort.Strings(questions)
		for _, q := range questions {
			fmt.Fprintf(&sb, "Audit %s: %.2f%%\n", q, accuracy[q]*100)
		}
	}

	if points := stats["f_score_history"].([]DataPoint); len(points) > 0 {
		values := make([]string, len(points))
		for i, dp := range points {
			values[i] = fmt.Sprintf("%.3f", dp.Value)
		}
		fmt.Fprintf(&sb, "F-score History: %s\n", strings.Join(values, " "))
	}

	fmt.Fprintf(&sb, "Goroutines: %d\n", int(stats["goroutines"].(float64)))
	fmt.Fprintf(&sb, "Memory Usage: %s\n", formatBytes(int64(stats["memory_bytes"].(float64))))
	fmt.Fprintf(&sb, "Uptime: %s\n", formatDuration(stats["uptime_seconds"].(int64)))

	return sb.String()
}

func formatInt(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatDuration(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
}
