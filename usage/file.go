// Package usage provides SnapshotStore backends for keyrelay.
//
// FileStore keeps the day's usage in one JSON file that is rewritten in full on
// every save. Writes go to a temporary file that is renamed over the target, so a
// crash leaves either the previous snapshot or the new one, never a mix.
package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ineyio/keyrelay"
)

// FileStore is a JSON-file-backed SnapshotStore.
type FileStore struct {
	path string
	perm fs.FileMode
}

var _ keyrelay.SnapshotStore = (*FileStore)(nil)

// FileOption configures FileStore.
type FileOption func(*FileStore)

// WithFileMode sets the permission bits of the snapshot file (default 0600).
func WithFileMode(perm fs.FileMode) FileOption {
	return func(s *FileStore) { s.perm = perm }
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	s := &FileStore{
		path: path,
		perm: 0o600,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the snapshot file.
func (s *FileStore) Load() (keyrelay.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return keyrelay.Snapshot{}, keyrelay.ErrSnapshotNotFound
	}
	if err != nil {
		return keyrelay.Snapshot{}, fmt.Errorf("%w: read %s: %w", keyrelay.ErrPersistence, s.path, err)
	}

	var snap keyrelay.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return keyrelay.Snapshot{}, fmt.Errorf("%w: decode %s: %w", keyrelay.ErrPersistence, s.path, err)
	}
	if snap.Counts == nil {
		snap.Counts = make(map[string]int64)
	}
	return snap, nil
}

// Save atomically replaces the snapshot file.
func (s *FileStore) Save(snap keyrelay.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", keyrelay.ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", keyrelay.ErrPersistence, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %w", keyrelay.ErrPersistence, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: sync %s: %w", keyrelay.ErrPersistence, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %w", keyrelay.ErrPersistence, tmpName, err)
	}
	if err := os.Chmod(tmpName, s.perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %w", keyrelay.ErrPersistence, tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename to %s: %w", keyrelay.ErrPersistence, s.path, err)
	}
	return nil
}
