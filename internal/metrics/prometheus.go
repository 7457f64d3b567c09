package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// PrometheusFormat exports all metrics in Prometheus text exposition format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func (m *Metrics) PrometheusFormat() string {
	m.collectSystemMetrics()

	var sb strings.Builder

	// Training metrics
	writeCounter(&sb, m.TrainingRuns)
	writeCounter(&sb, m.EpochsTotal)
	writeCounter(&sb, m.ExamplesTrained)
	writeCounter(&sb, m.BatchesTotal)
	writeGauge(&sb, m.EpochLoss)
	writeGauge(&sb, m.EpochPrecision)
	writeGauge(&sb, m.EpochRecall)
	writeGauge(&sb, m.EpochFScore)
	writeGauge(&sb, m.BestFScore)
	writeHistogram(&sb, m.EpochDuration)

	// Inference metrics
	writeCounter(&sb, m.InferenceRuns)
	writeCounter(&sb, m.InferenceRows)
	writeVec(&sb, m.Predictions, "counter", writeCounterSample)
	writeHistogram(&sb, m.PredictionConfidence)
	writeHistogram(&sb, m.InferenceDuration)

	// Audit metrics
	writeVec(&sb, m.AuditCorrect, "gauge", writeGaugeSample)
	writeVec(&sb, m.AuditEligible, "gauge", writeGaugeSample)
	writeVec(&sb, m.AuditAccuracy, "gauge", writeGaugeSample)

	// Bus metrics
	writeVec(&sb, m.BusEventsPublished, "counter", writeCounterSample)
	writeVec(&sb, m.BusEventLatency, "histogram", writeHistogramSamples)
	writeVec(&sb, m.BusErrors, "counter", writeCounterSample)

	// System metrics
	writeGauge(&sb, m.GoroutineCount)
	writeGauge(&sb, m.MemoryUsage)

	return sb.String()
}

// WriteFile writes the exposition text to path, replacing it atomically so a
// textfile collector never reads a partial file.
func (m *Metrics) WriteFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(m.PrometheusFormat()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing metrics file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing metrics file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func writeHeader(sb *strings.Builder, name, help, kind string) {
	fmt.Fprintf(sb, "# HELP %s %s\n", name, help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", name, kind)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// writeCounter writes a counter in Prometheus format.
func writeCounter(sb *strings.Builder, c *Counter) {
	writeHeader(sb, c.Name(), c.Help(), "counter")
	writeCounterSample(sb, c)
}

func writeCounterSample(sb *strings.Builder, c *Counter) {
	sb.WriteString(c.Name())
	writeLabels(sb, c.Labels(), "", "")
	sb.WriteString(" ")
	sb.WriteString(strconv.FormatInt(c.Value(), 10))
	sb.WriteString("\n")
}

// writeGauge writes a gauge in Prometheus format.
func writeGauge(sb *strings.Builder, g *Gauge) {
	writeHeader(sb, g.Name(), g.Help(), "gauge")
	writeGaugeSample(sb, g)
}

func writeGaugeSample(sb *strings.Builder, g *Gauge) {
	sb.WriteString(g.Name())
	writeLabels(sb, g.Labels(), "", "")
	sb.WriteString(" ")
	sb.WriteString(formatFloat(g.Value()))
	sb.WriteString("\n")
}

// writeHistogram writes a histogram in Prometheus format.
func writeHistogram(sb *strings.Builder, h *Histogram) {
	writeHeader(sb, h.Name(), h.Help(), "histogram")
	writeHistogramSamples(sb, h)
}

func writeHistogramSamples(sb *strings.Builder, h *Histogram) {
	labels := h.Labels()
	buckets := h.Buckets()
	counts := h.BucketCounts()

	for i, bucket := range buckets {
		sb.WriteString(h.Name())
		sb.WriteString("_bucket")
		writeLabels(sb, labels, "le", formatFloat(bucket))
		fmt.Fprintf(sb, " %d\n", counts[i])
	}

	sb.WriteString(h.Name())
	sb.WriteString("_bucket")
	writeLabels(sb, labels, "le", "+Inf")
	fmt.Fprintf(sb, " %d\n", counts[len(counts)-1])

	sb.WriteString(h.Name())
	sb.WriteString("_sum")
	writeLabels(sb, labels, "", "")
	sb.WriteString(" ")
	sb.WriteString(formatFloat(h.Sum()))
	sb.WriteString("\n")

	sb.WriteString(h.Name())
	sb.WriteString("_count")
	writeLabels(sb, labels, "", "")
	fmt.Fprintf(sb, " %d\n", h.Count())
}

// writeVec writes every member of a family under one header. GetAll
// returns members in label order, so the output is stable.
func writeVec[M any](sb *strings.Builder, v *vec[M], kind string, sample func(*strings.Builder, M)) {
	members := v.GetAll()
	if len(members) == 0 {
		return
	}
	writeHeader(sb, v.Name(), v.Help(), kind)
	for _, m := range members {
		sample(sb, m)
	}
}

// writeLabels writes labels in Prometheus format {key="value",key2="value2"}.
// A non-empty extraKey is appended after the sorted labels.
func writeLabels(sb *strings.Builder, labels map[string]string, extraKey, extraValue string) {
	if len(labels) == 0 && extraKey == "" {
		return
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(sb, "%s=\"%s\"", k, escapeString(labels[k]))
	}
	if extraKey != "" {
		if len(keys) > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(sb, "%s=\"%s\"", extraKey, escapeString(extraValue))
	}
	sb.WriteString("}")
}

// escapeString escapes special characters in label values.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
