package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// maxEntrySize bounds one journal line.
const maxEntrySize = 1 << 20

// JournalEntry is one journaled event.
type JournalEntry struct {
	Topic     string    `json:"topic"`
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// JournalFilter selects entries. Zero fields match everything.
type JournalFilter struct {
	Since time.Time // entries strictly after
	RunID string
	Topic string
	Limit int // at most this many, oldest first
}

func (f JournalFilter) match(e JournalEntry) bool {
	if f.RunID != "" && e.Event.RunID != f.RunID {
		return false
	}
	if f.Topic != "" && e.Topic != f.Topic {
		return false
	}
	return e.Timestamp.After(f.Since)
}

// Journal appends events to a JSON-lines file, one entry per line, so the
// events of training, inference and audit runs can be listed or replayed.
type Journal struct {
	path    string
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// OpenJournal opens path for appending, creating it and its directory.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Journal{path: path, file: f, encoder: json.NewEncoder(f)}, nil
}

// Path returns the journal file.
func (j *Journal) Path() string {
	return j.path
}

// Append writes one entry and syncs it to disk.
func (j *Journal) Append(topic string, event Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return fmt.Errorf("journal %s is closed", j.path)
	}
	if err := j.encoder.Encode(JournalEntry{Topic: topic, Event: event, Timestamp: time.Now()}); err != nil {
		return fmt.Errorf("encoding event %s: %w", event.ID, err)
	}
	return j.file.Sync()
}

// Read returns the entries matching f.
func (j *Journal) Read(f JournalFilter) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ReadJournal(j.path, f)
}

// Replay republishes the entries matching f to b in journal order, e.g. to
// rebuild metrics from earlier runs.
func (j *Journal) Replay(ctx context.Context, b Bus, f JournalFilter) error {
	entries, err := j.Read(f)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.Publish(ctx, e.Topic, e.Event); err != nil {
			return fmt.Errorf("replaying event %s: %w", e.Event.ID, err)
		}
	}
	return nil
}

// Close closes the journal file. Further appends fail.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file, j.encoder = nil, nil
	return err
}

// ReadJournal reads the entries of the journal at path matching f without
// opening it for writing. A missing file holds no entries; malformed lines
// are skipped.
func ReadJournal(path string, f JournalFilter) ([]JournalEntry, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer file.Close()

	var entries []JournalEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxEntrySize)
	for scanner.Scan() {
		var e JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if !f.match(e) {
			continue
		}
		entries = append(entries, e)
		if f.Limit > 0 && len(entries) >= f.Limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return entries, nil
}
