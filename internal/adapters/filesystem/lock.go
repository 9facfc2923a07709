package filesystem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/example/harness/internal/ports/secondary"
)

// NewRunLock returns the advisory lock file for a harness id, creating the
// state directory if needed. The lock is not taken yet.
func NewRunLock(stateDir, harnessID string) (*flock.Flock, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return flock.New(filepath.Join(stateDir, FileName(harnessID)+".lock")), nil
}

// Ensure *flock.Flock satisfies the port
var _ secondary.RunLock = (*flock.Flock)(nil)
