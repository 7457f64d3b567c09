package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
)

// FileStore keeps each artifact in a directory named after it:
//
//	<base>/<name>/model.json.gz
//	<base>/<name>/meta.yaml
type FileStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileStore creates a file store rooted at basePath.
func NewFileStore(basePath string) *FileStore {
	return &FileStore{basePath: basePath}
}

func (f *FileStore) dir(name string) string {
	return filepath.Join(f.basePath, name)
}

// Location returns the artifact directory.
func (f *FileStore) Location(name string) string {
	return f.dir(name)
}

// Exists reports whether both the model blob and metadata are present. A
// directory holding anything else counts as absent.
func (f *FileStore) Exists(_ context.Context, name string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, file := range []string{ModelFile, MetaFile} {
		info, err := os.Stat(filepath.Join(f.dir(name), file))
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("checking artifact %s: %w", name, err)
		}
		if info.IsDir() {
			return false, nil
		}
	}
	return true, nil
}

// Save writes the blob first and the metadata last, each through a
// temporary file, so a reader never sees metadata without its blob.
func (f *FileStore) Save(_ context.Context, name string, blob []byte, meta Meta) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := f.dir(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.InternalError("creating artifact directory", err).WithDetail("path", dir)
	}

	data, err := yaml.Marshal(&meta)
	if err != nil {
		return errors.InternalError("marshaling artifact metadata", err)
	}

	if err := writeFileAtomic(filepath.Join(dir, ModelFile), blob); err != nil {
		return errors.InternalError("writing model blob", err).WithDetail("path", dir)
	}
	if err := writeFileAtomic(filepath.Join(dir, MetaFile), data); err != nil {
		return errors.InternalError("writing artifact metadata", err).WithDetail("path", dir)
	}
	return nil
}

// Load reads the blob and metadata of name.
func (f *FileStore) Load(_ context.Context, name string) ([]byte, *Meta, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	dir := f.dir(name)
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if os.IsNotExist(err) {
		return nil, nil, errors.ArtifactNotFoundError(name).WithDetail("path", dir)
	}
	if err != nil {
		return nil, nil, errors.InternalError("reading artifact metadata", err)
	}

	var meta Meta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, nil, errors.ValidationError(fmt.Sprintf("parsing metadata of artifact %s: %v", name, err))
	}

	blob, err := os.ReadFile(filepath.Join(dir, ModelFile))
	if os.IsNotExist(err) {
		return nil, nil, errors.ArtifactNotFoundError(name).WithDetail("path", dir)
	}
	if err != nil {
		return nil, nil, errors.InternalError("reading model blob", err)
	}
	return blob, &meta, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
