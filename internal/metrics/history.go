package metrics

import (
	"context"
	"sync"
	"time"
)

// Series names persisted by the event subscriber.
const (
	SeriesEpochLoss   = "epoch_loss"
	SeriesEpochFScore = "epoch_f_score"
	SeriesBestFScore  = "best_f_score"
	SeriesAuditAcc    = "audit_accuracy"
)

// DefaultMaxPoints bounds each in-memory series.
const DefaultMaxPoints = 1000

// DataPoint represents a single time-series data point.
type DataPoint struct {
	Timestamp time.Time
	Value     float64
}

// HistoryStore persists named time series.
type HistoryStore interface {
	SaveDataPoint(ctx context.Context, metric string, dp DataPoint) error
	LoadHistory(ctx context.Context, metric string, since time.Time) ([]DataPoint, error)
	Close() error
}

// MemoryHistory keeps the most recent points of every series in memory.
type MemoryHistory struct {
	mu        sync.RWMutex
	series    map[string][]DataPoint
	maxPoints int
}

// NewMemoryHistory creates an in-memory history retaining maxPoints per
// series. Zero selects DefaultMaxPoints.
func NewMemoryHistory(maxPoints int) *MemoryHistory {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &MemoryHistory{
		series:    make(map[string][]DataPoint),
		maxPoints: maxPoints,
	}
}

// SaveDataPoint appends dp to metric, dropping the oldest point when full.
func (h *MemoryHistory) SaveDataPoint(_ context.Context, metric string, dp DataPoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	points := append(h.series[metric], dp)
	if len(points) > h.maxPoints {
		points = points[len(points)-h.maxPoints:]
	}
	h.series[metric] = points
	return nil
}

// LoadHistory returns a copy of the points of metric at or after since.
func (h *MemoryHistory) LoadHistory(_ context.Context, metric string, since time.Time) ([]DataPoint, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	all := h.series[metric]
	result := make([]DataPoint, 0, len(all))
	for _, dp := range all {
		if !dp.Timestamp.Before(since) {
			result = append(result, dp)
		}
	}
	return result, nil
}

// Close is a no-op.
func (h *MemoryHistory) Close() error {
	return nil
}
