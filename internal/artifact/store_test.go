package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epotapov/SentimentAnalysis/internal/classifier"
	"github.com/epotapov/SentimentAnalysis/internal/classifier/bow"
	"github.com/epotapov/SentimentAnalysis/internal/config"
	"github.com/epotapov/SentimentAnalysis/internal/corpus"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
)

func trainedModel(t *testing.T) (*bow.Model, bow.Factory) {
	t.Helper()
	f := bow.Factory{Options: bow.DefaultOptions()}
	f.Options.Buckets = 1 << 10
	f.Options.LearnRate = 0.5

	m, err := bow.New(f.Options)
	require.NoError(t, err)

	pos, err := corpus.NewExample("great fun", corpus.Positive)
	require.NoError(t, err)
	neg, err := corpus.NewExample("dull mess", corpus.Negative)
	require.NoError(t, err)
	for range 5 {
		_, err := m.Update([]corpus.Example{pos, neg}, 0)
		require.NoError(t, err)
	}
	return m, f
}

func TestFileStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir)

	ok, err := store.Exists(ctx, "model_artifacts")
	require.NoError(t, err)
	assert.False(t, ok)

	meta := Meta{RunID: "run-1", Epochs: 3}
	require.NoError(t, store.Save(ctx, "model_artifacts", []byte("blob"), meta))

	assert.FileExists(t, filepath.Join(dir, "model_artifacts", ModelFile))
	assert.FileExists(t, filepath.Join(dir, "model_artifacts", MetaFile))

	ok, err = store.Exists(ctx, "model_artifacts")
	require.NoError(t, err)
	assert.True(t, ok)

	blob, got, err := store.Load(ctx, "model_artifacts")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), blob)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 3, got.Epochs)
	assert.Equal(t, filepath.Join(dir, "model_artifacts"), store.Location("model_artifacts"))
}

func TestFileStore_Missing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir)

	_, _, err := store.Load(ctx, "nope")
	require.Error(t, err)
	assert.True(t, errors.IsArtifactNotFound(err))

	// a directory without the blob is not an artifact
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "partial"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partial", MetaFile), []byte("name: partial\n"), 0644))
	ok, err := store.Exists(ctx, "partial")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = store.Load(ctx, "partial")
	assert.True(t, errors.IsArtifactNotFound(err))
}

func TestSaveModel_LoadModel(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	m, f := trainedModel(t)

	meta, err := SaveModel(ctx, store, "model_artifacts", f.Name(), m, classifier.ParamsAveraged, Meta{RunID: "r"})
	require.NoError(t, err)
	assert.Equal(t, "averaged", meta.Params)
	assert.Equal(t, bow.Name, meta.Strategy)
	assert.NotEmpty(t, meta.Checksum)
	assert.Positive(t, meta.Size)
	assert.False(t, meta.CreatedAt.IsZero())

	loaded, gotMeta, err := LoadModel(ctx, store, "model_artifacts", f)
	require.NoError(t, err)
	assert.Equal(t, meta.Checksum, gotMeta.Checksum)

	want, err := m.Averaged().Score("great fun")
	require.NoError(t, err)
	got, err := loaded.Score("great fun")
	require.NoError(t, err)
	assert.InDelta(t, want[corpus.Positive], got[corpus.Positive], 1e-12)
}

func TestLoadModel_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m, f := trainedModel(t)

	meta, err := SaveModel(ctx, store, "a", f.Name(), m, classifier.ParamsLive, Meta{})
	require.NoError(t, err)

	blob, _, err := store.Load(ctx, "a")
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xff
	require.NoError(t, store.Save(ctx, "a", blob, *meta))

	_, _, err = LoadModel(ctx, store, "a", f)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestLoadModel_WrongStrategy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m, f := trainedModel(t)

	_, err := SaveModel(ctx, store, "a", "other", m, classifier.ParamsLive, Meta{})
	require.NoError(t, err)

	_, _, err = LoadModel(ctx, store, "a", f)
	assert.True(t, errors.IsValidation(err))
}

func TestLoadModel_Missing(t *testing.T) {
	_, f := trainedModel(t)
	_, _, err := LoadModel(context.Background(), NewMemoryStore(), "missing", f)
	assert.True(t, errors.IsArtifactNotFound(err))
	assert.Equal(t, 3, errors.ExitCode(err))
}

func TestMirrorStore(t *testing.T) {
	ctx := context.Background()
	primary, secondary := NewMemoryStore(), NewMemoryStore()
	mirror := NewMirrorStore(primary, secondary)

	require.NoError(t, mirror.Save(ctx, "a", []byte("x"), Meta{Name: "a"}))
	for _, s := range []Store{primary, secondary} {
		ok, err := s.Exists(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	// secondary-only artifacts are still readable
	require.NoError(t, secondary.Save(ctx, "b", []byte("y"), Meta{Name: "b"}))
	ok, err := mirror.Exists(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	blob, meta, err := mirror.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), blob)
	assert.Equal(t, "b", meta.Name)

	_, _, err = mirror.Load(ctx, "c")
	assert.True(t, errors.IsArtifactNotFound(err))
}

func TestNew(t *testing.T) {
	cfg := config.Default().Artifact
	cfg.Dir = t.TempDir()

	s, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	cfg.Backend = "s3"
	_, err = New(cfg)
	assert.Error(t, err, "bucket is required")

	cfg.S3.Bucket = "models"
	cfg.S3.Endpoint = "http://127.0.0.1:9000"
	s, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "s3://models/sentiment/model_artifacts", s.Location("model_artifacts"))

	cfg.Backend = "mirror"
	s, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MirrorStore{}, s)

	cfg.Backend = "ftp"
	_, err = New(cfg)
	assert.Error(t, err)
}
