package artifact

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
)

// MirrorStore writes every artifact to a primary and a secondary store
// concurrently. Reads prefer the primary and fall back to the secondary when
// the primary does not have the artifact.
type MirrorStore struct {
	primary   Store
	secondary Store
}

// NewMirrorStore creates a mirrored store.
func NewMirrorStore(primary, secondary Store) *MirrorStore {
	return &MirrorStore{primary: primary, secondary: secondary}
}

func (m *MirrorStore) Location(name string) string {
	return m.primary.Location(name) + " + " + m.secondary.Location(name)
}

func (m *MirrorStore) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := m.primary.Exists(ctx, name)
	if err != nil || ok {
		return ok, err
	}
	return m.secondary.Exists(ctx, name)
}

// Save fails if either copy fails.
func (m *MirrorStore) Save(ctx context.Context, name string, blob []byte, meta Meta) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.primary.Save(gctx, name, blob, meta) })
	g.Go(func() error { return m.secondary.Save(gctx, name, blob, meta) })
	return g.Wait()
}

func (m *MirrorStore) Load(ctx context.Context, name string) ([]byte, *Meta, error) {
	blob, meta, err := m.primary.Load(ctx, name)
	if err == nil || !errors.IsArtifactNotFound(err) {
		return blob, meta, err
	}
	return m.secondary.Load(ctx, name)
}
