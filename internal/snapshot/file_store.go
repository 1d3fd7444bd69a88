package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"flatwatch/internal/model"
)

// FileStore persists the snapshot as one JSON object keyed by listing ID.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the cached snapshot. A missing file means no previous run and
// yields an empty snapshot.
func (f *FileStore) Load(_ context.Context) (model.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(model.Snapshot), nil
		}
		return nil, &model.StorageError{Op: "read", Path: f.path, Err: err}
	}

	s := make(model.Snapshot)
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &model.StorageError{Op: "decode", Path: f.path, Err: err}
	}
	if s == nil { // file held JSON null
		s = make(model.Snapshot)
	}
	return s, nil
}

// Save overwrites the cache. The snapshot goes to a temporary file next to the
// target first and is renamed into place, so readers never see a partial file.
func (f *FileStore) Save(_ context.Context, s model.Snapshot) error {
	if s == nil {
		s = make(model.Snapshot)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return &model.StorageError{Op: "encode", Path: f.path, Err: err}
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &model.StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return &model.StorageError{Op: "write", Path: f.path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &model.StorageError{Op: "write", Path: f.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &model.StorageError{Op: "write", Path: f.path, Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return &model.StorageError{Op: "write", Path: f.path, Err: err}
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return &model.StorageError{Op: "rename", Path: f.path, Err: fmt.Errorf("replace cache: %w", err)}
	}
	return nil
}
