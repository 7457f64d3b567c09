// Package metrics provides Prometheus-compatible metrics for training,
// inference and audit runs.
package metrics

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// desc is the identity shared by every metric kind. Labels are fixed at
// creation.
type desc struct {
	name   string
	help   string
	labels map[string]string
}

func newDesc(name, help string, labels map[string]string) desc {
	if labels == nil {
		labels = map[string]string{}
	}
	return desc{name: name, help: help, labels: labels}
}

// Name returns the metric name.
func (d *desc) Name() string { return d.name }

// Help returns the metric help text.
func (d *desc) Help() string { return d.help }

// Labels returns a copy of the metric labels.
func (d *desc) Labels() map[string]string { return maps.Clone(d.labels) }

// Counter is a monotonically increasing integer.
type Counter struct {
	desc
	value atomic.Int64
}

// NewCounter creates a new counter.
func NewCounter(name, help string, labels map[string]string) *Counter {
	return &Counter{desc: newDesc(name, help, labels)}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add adds delta. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta > 0 {
		c.value.Add(delta)
	}
}

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Reset resets the counter to 0.
func (c *Counter) Reset() { c.value.Store(0) }

// Gauge is a float64 that can go up and down, stored as its IEEE 754 bits.
type Gauge struct {
	desc
	bits atomic.Uint64
}

// NewGauge creates a new gauge.
func NewGauge(name, help string, labels map[string]string) *Gauge {
	return &Gauge{desc: newDesc(name, help, labels)}
}

// Set sets the gauge to value.
func (g *Gauge) Set(value float64) { g.bits.Store(math.Float64bits(value)) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.Add(-1) }

// Add adds delta with a compare-and-swap loop.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		if g.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+delta)) {
			return
		}
	}
}

// Value returns the current gauge value.
func (g *Gauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

// Histogram counts observations in cumulative buckets.
type Histogram struct {
	desc
	buckets []float64
	mu      sync.RWMutex
	counts  []int64 // len(buckets)+1, the last is +Inf
	sum     float64
	count   int64
}

// NewHistogram creates a histogram. Nil buckets mean DurationBuckets.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	return newHistogram(newDesc(name, help, nil), buckets)
}

func newHistogram(d desc, buckets []float64) *Histogram {
	if len(buckets) == 0 {
		buckets = DurationBuckets
	}
	buckets = slices.Clone(buckets)
	sort.Float64s(buckets)
	return &Histogram{desc: d, buckets: buckets, counts: make([]int64, len(buckets)+1)}
}

// Observe adds a single observation.
func (h *Histogram) Observe(value float64) {
	idx, _ := slices.BinarySearch(h.buckets, value)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += value
	h.count++
	for i := idx; i < len(h.counts); i++ {
		h.counts[i]++
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Sum returns the sum of all observed values.
func (h *Histogram) Sum() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sum
}

// Buckets returns the bucket upper bounds.
func (h *Histogram) Buckets() []float64 { return slices.Clone(h.buckets) }

// BucketCounts returns the cumulative count of each bucket, +Inf last.
func (h *Histogram) BucketCounts() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.counts)
}

// vec is a family of metrics of one kind keyed by label values.
type vec[M any] struct {
	name       string
	help       string
	labelNames []string
	create     func(desc) M
	mu         sync.RWMutex
	members    map[string]M
}

func newVec[M any](name, help string, labelNames []string, create func(desc) M) *vec[M] {
	return &vec[M]{
		name:       name,
		help:       help,
		labelNames: labelNames,
		create:     create,
		members:    make(map[string]M),
	}
}

// WithLabels returns the member for labelValues, creating it on first use.
// It panics when the number of values does not match the label names.
func (v *vec[M]) WithLabels(labelValues ...string) M {
	if len(labelValues) != len(v.labelNames) {
		panic(fmt.Sprintf("expected %d label values, got %d", len(v.labelNames), len(labelValues)))
	}
	labels := make(map[string]string, len(v.labelNames))
	for i, name := range v.labelNames {
		labels[name] = labelValues[i]
	}
	key := labelsToKey(labels)

	v.mu.RLock()
	m, ok := v.members[key]
	v.mu.RUnlock()
	if ok {
		return m
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if m, ok := v.members[key]; ok {
		return m
	}
	m = v.create(desc{name: v.name, help: v.help, labels: labels})
	v.members[key] = m
	return m
}

// GetAll returns every member ordered by label key.
func (v *vec[M]) GetAll() []M {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := slices.Sorted(maps.Keys(v.members))
	out := make([]M, len(keys))
	for i, k := range keys {
		out[i] = v.members[k]
	}
	return out
}

// Name returns the metric name.
func (v *vec[M]) Name() string { return v.name }

// Help returns the metric help text.
func (v *vec[M]) Help() string { return v.help }

type (
	// CounterVec is a counter family.
	CounterVec = vec[*Counter]
	// GaugeVec is a gauge family.
	GaugeVec = vec[*Gauge]
	// HistogramVec is a histogram family sharing one bucket layout.
	HistogramVec = vec[*Histogram]
)

// NewCounterVec creates a counter family.
func NewCounterVec(name, help string, labelNames []string) *CounterVec {
	return newVec(name, help, labelNames, func(d desc) *Counter { return &Counter{desc: d} })
}

// NewGaugeVec creates a gauge family.
func NewGaugeVec(name, help string, labelNames []string) *GaugeVec {
	return newVec(name, help, labelNames, func(d desc) *Gauge { return &Gauge{desc: d} })
}

// NewHistogramVec creates a histogram family.
func NewHistogramVec(name, help string, labelNames []string, buckets []float64) *HistogramVec {
	return newVec(name, help, labelNames, func(d desc) *Histogram { return newHistogram(d, buckets) })
}

// labelsToKey builds a stable key from a label map.
func labelsToKey(labels map[string]string) string {
	keys := slices.Sorted(maps.Keys(labels))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + labels[k]
	}
	return strings.Join(parts, ",")
}
