package data

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const snapshotTimeFormat = "2006-01-02T15-04-05"

// FileSnapshots writes one JSON file per edit batch into a directory.
type FileSnapshots struct {
	dir string
}

func NewFileSnapshots(dir string) *FileSnapshots {
	return &FileSnapshots{dir: dir}
}

func (f *FileSnapshots) Dir() string {
	return f.dir
}

// SaveSnapshot writes the file and syncs it before returning.
func (f *FileSnapshots) SaveSnapshot(_ context.Context, snapshot Snapshot) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	name := snapshot.CreatedAt.Format(snapshotTimeFormat)
	if len(snapshot.ID) >= 8 {
		name += "_" + snapshot.ID[:8]
	}
	path := filepath.Join(f.dir, name+".json")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return file.Sync()
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	return &snapshot, nil
}
