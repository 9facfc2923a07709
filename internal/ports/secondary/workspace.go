package secondary

import (
	"context"
	"io"
	"time"

	"github.com/example/harness/internal/core/redirect"
)

// ProcessRunner defines the secondary port for spawning executor processes.
type ProcessRunner interface {
	// Run starts the process described by spec and waits for it.
	// A nonzero exit is reported in ProcessResult, not as an error; err is
	// reserved for failures to start or wait on the process.
	Run(ctx context.Context, spec ProcessSpec) (*ProcessResult, error)
}

// ProcessSpec describes one process invocation.
type ProcessSpec struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
	Stdin   string
	Tee     io.Writer // optional copy of combined output
}

// ProcessResult is the captured outcome of a process.
type ProcessResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// VersionControl defines the secondary port for inspecting a working tree.
type VersionControl interface {
	// HeadCommit returns the current HEAD commit of the repository at dir.
	HeadCommit(ctx context.Context, dir string) (string, error)
}

// Checkpoint is the coordinator state saved between runs.
type Checkpoint struct {
	HarnessID         string             `json:"harnessId"`
	SavedAt           time.Time          `json:"savedAt"`
	Snapshot          *redirect.Snapshot `json:"snapshot,omitempty"`
	Notes             string             `json:"notes,omitempty"`
	Paused            bool               `json:"paused"`
	PauseReason       string             `json:"pauseReason,omitempty"`
	SessionsCompleted int                `json:"sessionsCompleted"`
}

// CheckpointStore defines the secondary port for checkpoint persistence.
type CheckpointStore interface {
	// Load returns the saved checkpoint, or nil when none exists.
	Load(ctx context.Context, harnessID string) (*Checkpoint, error)

	// Save replaces the saved checkpoint.
	Save(ctx context.Context, cp *Checkpoint) error
}

// RunLock guards against two coordinators for the same harness on one host.
type RunLock interface {
	// TryLock takes the lock without blocking; false means another holder has it.
	TryLock() (bool, error)
	Unlock() error
	Path() string
}
