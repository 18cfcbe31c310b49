// Package backup provides pre-mutation snapshots and rollback for tool
// execution. Handles are opaque tokens; a handle outlives the step that
// created it so rollback stays possible after the step is discarded.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// NoopHandle marks a snapshot of a tool that cannot mutate anything.
// Restoring it is a no-op and always succeeds.
const NoopHandle = "noop"

// ErrUnknownHandle is returned when a handle has no recorded snapshot.
var ErrUnknownHandle = errors.New("unknown backup handle")

// Snapshotter is the backup/restore collaborator contract.
type Snapshotter interface {
	// Snapshot captures the current state of the resource and returns an
	// opaque handle. An empty resourceRef yields the no-op handle.
	Snapshot(ctx context.Context, resourceRef string) (string, error)
	// Restore puts the resource back to its snapshotted state.
	Restore(ctx context.Context, handle string) error
	// Discard releases a snapshot that is no longer needed.
	Discard(handle string) error
}

// snapshotMeta is the on-disk record for one snapshot.
type snapshotMeta struct {
	Resource string `json:"resource"`
	Existed  bool   `json:"existed"` // false means restore deletes the file
	Mode     uint32 `json:"mode,omitempty"`
}

// FileSnapshotter snapshots files by copying them into a backup directory.
// Restoring a snapshot of a file that did not exist removes the file.
type FileSnapshotter struct {
	dir string
}

// NewFileSnapshotter creates a snapshotter rooted at dir.
func NewFileSnapshotter(dir string) (*FileSnapshotter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}
	return &FileSnapshotter{dir: dir}, nil
}

// Snapshot copies the file at resourceRef aside and returns a handle.
func (s *FileSnapshotter) Snapshot(ctx context.Context, resourceRef string) (string, error) {
	if resourceRef == "" {
		return NoopHandle, nil
	}

	handle := uuid.NewString()
	meta := snapshotMeta{Resource: resourceRef}

	data, err := os.ReadFile(resourceRef)
	switch {
	case err == nil:
		info, statErr := os.Stat(resourceRef)
		if statErr != nil {
			return "", statErr
		}
		meta.Existed = true
		meta.Mode = uint32(info.Mode().Perm())
		if err := os.WriteFile(s.dataPath(handle), data, 0600); err != nil {
			return "", fmt.Errorf("writing snapshot data: %w", err)
		}
	case os.IsNotExist(err):
		// Snapshot of absence: restore will delete whatever appeared.
	default:
		return "", fmt.Errorf("reading resource for snapshot: %w", err)
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(s.metaPath(handle), metaBytes, 0600); err != nil {
		return "", fmt.Errorf("writing snapshot metadata: %w", err)
	}
	return handle, nil
}

// Restore puts the file back exactly as it was at snapshot time.
func (s *FileSnapshotter) Restore(ctx context.Context, handle string) error {
	if handle == NoopHandle || handle == "" {
		return nil
	}

	meta, err := s.loadMeta(handle)
	if err != nil {
		return err
	}

	if !meta.Existed {
		if err := os.Remove(meta.Resource); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing resource on restore: %w", err)
		}
		return nil
	}

	data, err := os.ReadFile(s.dataPath(handle))
	if err != nil {
		return fmt.Errorf("reading snapshot data: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(meta.Resource), 0755); err != nil {
		return err
	}
	return os.WriteFile(meta.Resource, data, os.FileMode(meta.Mode))
}

// Discard drops the snapshot files for a handle.
func (s *FileSnapshotter) Discard(handle string) error {
	if handle == NoopHandle || handle == "" {
		return nil
	}
	if err := os.Remove(s.metaPath(handle)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(s.dataPath(handle)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FileSnapshotter) loadMeta(handle string) (*snapshotMeta, error) {
	data, err := os.ReadFile(s.metaPath(handle))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
		}
		return nil, err
	}
	var meta snapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing snapshot metadata: %w", err)
	}
	return &meta, nil
}

func (s *FileSnapshotter) metaPath(handle string) string {
	return filepath.Join(s.dir, handle+".meta.json")
}

func (s *FileSnapshotter) dataPath(handle string) string {
	return filepath.Join(s.dir, handle+".data")
}
