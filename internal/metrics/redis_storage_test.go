package metrics

import (
	"context"
	"os"
	"slices"
	"testing"
	"time"
)

func redisURL() string {
	if url := os.Getenv("SENTIMENT_TEST_REDIS_URL"); url != "" {
		return url
	}
	return "redis://localhost:6379/15"
}

func TestNewRedisStorage_InvalidURL(t *testing.T) {
	if _, err := NewRedisStorage("invalid://url"); err == nil {
		t.Error("NewRedisStorage(invalid URL) should fail")
	}
}

func TestNewRedisStorage_ConnectionFailure(t *testing.T) {
	if _, err := NewRedisStorage("redis://127.0.0.1:1"); err == nil {
		t.Error("NewRedisStorage(unreachable) should fail")
	}
}

func TestMemberEncoding(t *testing.T) {
	dp := DataPoint{Timestamp: time.Unix(5, 7), Value: 0.8125}
	member := encodeMember(dp)
	if member != "5000000007:0.8125" {
		t.Errorf("encodeMember() = %q", member)
	}

	got, ok := decodeMember(member)
	if !ok {
		t.Fatal("decodeMember() failed on its own encoding")
	}
	if got.Value != 0.8125 || got.Timestamp.UnixNano() != 5000000007 {
		t.Errorf("decodeMember() = %+v", got)
	}

	if _, ok := decodeMember("garbage"); ok {
		t.Error("decodeMember(garbage) should fail")
	}
}

func TestRedisStorage_SaveAndLoad(t *testing.T) {
	storage, err := NewRedisStorage(redisURL())
	if err != nil {
		t.Skip("Redis not available:", err)
	}
	defer storage.Close()

	ctx := context.Background()
	defer storage.DeleteMetric(ctx, "test_f_score")

	// Identical values at distinct times are separate points.
	now := time.Now()
	points := []DataPoint{
		{Timestamp: now.Add(-2 * time.Minute), Value: 0.5},
		{Timestamp: now.Add(-1 * time.Minute), Value: 0.5},
		{Timestamp: now, Value: 0.75},
	}
	for _, dp := range points {
		if err := storage.SaveDataPoint(ctx, "test_f_score", dp); err != nil {
			t.Fatalf("SaveDataPoint() error = %v", err)
		}
	}

	loaded, err := storage.LoadHistory(ctx, "test_f_score", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("LoadHistory() = %d points, want 3", len(loaded))
	}
	for i, dp := range loaded {
		if dp.Value != points[i].Value || dp.Timestamp.UnixNano() != points[i].Timestamp.UnixNano() {
			t.Errorf("point %d = %+v, want %+v", i, dp, points[i])
		}
	}

	names, err := storage.GetMetricNames(ctx)
	if err != nil {
		t.Fatalf("GetMetricNames() error = %v", err)
	}
	if !slices.Contains(names, "test_f_score") {
		t.Errorf("GetMetricNames() = %v, want test_f_score", names)
	}
}

func TestRedisStorage_TTLTrims(t *testing.T) {
	storage, err := NewRedisStorage(redisURL())
	if err != nil {
		t.Skip("Redis not available:", err)
	}
	defer storage.Close()

	ctx := context.Background()
	defer storage.DeleteMetric(ctx, "test_ttl")

	storage.SetTTL(time.Hour)
	now := time.Now()
	err = storage.SaveBatch(ctx, "test_ttl", []DataPoint{
		{Timestamp: now.Add(-2 * time.Hour), Value: 1},
		{Timestamp: now, Value: 2},
	})
	if err != nil {
		t.Fatalf("SaveBatch() error = %v", err)
	}

	loaded, err := storage.LoadHistory(ctx, "test_ttl", time.Time{})
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if len(loaded) != 1 || loaded[0].Value != 2 {
		t.Errorf("LoadHistory() = %v, want only the recent point", loaded)
	}
}
