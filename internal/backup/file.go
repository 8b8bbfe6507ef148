package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"SupplySentinel/internal/model"
)

// FileStore keeps the snapshot in a JSON file.
type FileStore struct {
	Path string
}

// NewFileStore creates a store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Read loads the snapshot. A missing file yields nil, nil.
func (s *FileStore) Read(_ context.Context) (*model.BackupSnapshot, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup %s: %w", s.Path, err)
	}
	var snap model.BackupSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode backup %s: %w", s.Path, err)
	}
	return &snap, nil
}

// Write replaces the file through a temp file and rename, so a crash never
// leaves a half-written backup.
func (s *FileStore) Write(_ context.Context, snap *model.BackupSnapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".backup-*.json")
	if err != nil {
		return fmt.Errorf("create temp backup: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace backup %s: %w", s.Path, err)
	}
	return nil
}
