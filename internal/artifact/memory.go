package artifact

import (
	"context"
	"sync"

	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
)

type memoryEntry struct {
	blob []byte
	meta Meta
}

// MemoryStore stores artifacts in memory (for testing).
type MemoryStore struct {
	entries map[string]memoryEntry
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Exists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[name]
	return ok, nil
}

func (m *MemoryStore) Save(_ context.Context, name string, blob []byte, meta Meta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[name] = memoryEntry{blob: append([]byte(nil), blob...), meta: meta}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, name string) ([]byte, *Meta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[name]
	if !ok {
		return nil, nil, errors.ArtifactNotFoundError(name)
	}
	meta := e.meta
	return append([]byte(nil), e.blob...), &meta, nil
}

func (m *MemoryStore) Location(name string) string {
	return "memory://" + name
}
