// Package filesystem contains filesystem-based adapter implementations.
package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/example/harness/internal/ports/secondary"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// CheckpointStore implements secondary.CheckpointStore with one JSON file
// per harness id under a state directory.
type CheckpointStore struct {
	stateDir string
}

// NewCheckpointStore creates a checkpoint store rooted at stateDir.
// If stateDir is empty, defaults to ~/.harness/state.
func NewCheckpointStore(stateDir string) (*CheckpointStore, error) {
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		stateDir = filepath.Join(home, ".harness", "state")
	}
	return &CheckpointStore{stateDir: stateDir}, nil
}

// Path returns the checkpoint file for a harness id.
func (s *CheckpointStore) Path(harnessID string) string {
	return filepath.Join(s.stateDir, FileName(harnessID)+".checkpoint.json")
}

// StateDir returns the directory checkpoints are written to.
func (s *CheckpointStore) StateDir() string {
	return s.stateDir
}

// Load reads the checkpoint for harnessID. A missing file is not an error.
func (s *CheckpointStore) Load(ctx context.Context, harnessID string) (*secondary.Checkpoint, error) {
	data, err := os.ReadFile(s.Path(harnessID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp secondary.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return &cp, nil
}

// Save writes the checkpoint through a temp file and rename so readers
// never observe a partial file.
func (s *CheckpointStore) Save(ctx context.Context, cp *secondary.Checkpoint) error {
	if cp == nil || cp.HarnessID == "" {
		return fmt.Errorf("checkpoint requires a harness id")
	}
	if err := os.MkdirAll(s.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.stateDir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(cp.HarnessID)); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// FileName maps an id onto a safe file name component.
func FileName(id string) string {
	if id == "" {
		return "default"
	}
	return unsafeName.ReplaceAllString(id, "_")
}

// Ensure CheckpointStore implements the interface
var _ secondary.CheckpointStore = (*CheckpointStore)(nil)
