package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	xerrors "QDataServer/internal/errors"
)

// ErrUnsupportedDriver is returned for unknown driver names.
var ErrUnsupportedDriver = errors.New("settings: unsupported driver")

// FileStore keeps all settings in memory and snapshots them to a JSON file
// under the host's data directory on every write.
type FileStore struct {
	dataFile string
	values   map[string][]string
}

// NewFileStore creates the store and loads the existing snapshot, if any.
func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store := &FileStore{
		dataFile: filepath.Join(dataDir, "settings.json"),
		values:   map[string][]string{},
	}
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

// StringList implements Store.
func (s *FileStore) StringList(key string) ([]string, error) {
	return s.values[key], nil
}

// SetStringList implements Store.
func (s *FileStore) SetStringList(key string, values []string) error {
	s.values[key] = values
	return s.saveToDisk()
}

// Close implements Store. The snapshot is already on disk, so there is
// nothing left to release.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) loadFromDisk() error {
	raw, err := os.ReadFile(s.dataFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "read settings snapshot")
	}
	if err := json.Unmarshal(raw, &s.values); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode settings snapshot")
	}
	return nil
}

func (s *FileStore) saveToDisk() error {
	encoded, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "encode settings snapshot")
	}
	if err := os.WriteFile(s.dataFile, encoded, 0o644); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "write settings snapshot")
	}
	return nil
}
