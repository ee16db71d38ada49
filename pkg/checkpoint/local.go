package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/meltflow/meltflow/pkg/errors"
)

const snapshotExt = ".checkpoint"

// LocalBackend stores snapshots as JSON files in a directory.
type LocalBackend struct {
	dir string
}

// NewLocalBackend creates a local checkpoint backend, creating the
// directory if needed.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if dir == "" {
		dir = "checkpoints"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpointSave, "cannot create checkpoint directory").
			WithContext("dir", dir)
	}
	return &LocalBackend{dir: dir}, nil
}

func (b *LocalBackend) path(id string) string {
	return filepath.Join(b.dir, id+snapshotExt)
}

// Save writes the snapshot to a temp file and renames it into place so a
// crash mid-write never corrupts an existing checkpoint.
func (b *LocalBackend) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, errors.CodeCheckpointSave, "cannot marshal snapshot")
	}

	tempPath := b.path(snap.ID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return errors.Wrap(err, errors.CodeCheckpointSave, "cannot write snapshot").
			WithContext("path", tempPath)
	}
	if err := os.Rename(tempPath, b.path(snap.ID)); err != nil {
		return errors.Wrap(err, errors.CodeCheckpointSave, "cannot finalize snapshot").
			WithContext("path", b.path(snap.ID))
	}
	return nil
}

// Load reads a snapshot by ID.
func (b *LocalBackend) Load(ctx context.Context, id string) (*Snapshot, error) {
	data, err := os.ReadFile(b.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound(b.path(id))
		}
		return nil, errors.Wrap(err, errors.CodeCheckpointLoad, "cannot read snapshot").
			WithContext("path", b.path(id))
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpointLoad, "cannot unmarshal snapshot").
			WithContext("path", b.path(id))
	}
	return &snap, nil
}

// Delete removes a snapshot by ID.
func (b *LocalBackend) Delete(ctx context.Context, id string) error {
	if err := os.Remove(b.path(id)); err != nil {
		return errors.Wrap(err, errors.CodeCheckpointSave, "cannot delete snapshot").
			WithContext("path", b.path(id))
	}
	return nil
}

// List returns all stored snapshot IDs.
func (b *LocalBackend) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpointLoad, "cannot list checkpoints").
			WithContext("dir", b.dir)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, snapshotExt))
	}
	return ids, nil
}
