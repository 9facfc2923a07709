package secondary

import "context"

// ObserverWindow describes a tmux window that follows one stream of harness output.
type ObserverWindow struct {
	Name    string // window name, e.g. "worker-1"
	Dir     string // start directory
	Command string // root process, e.g. "tail -F /path/worker-1.log"
}

// TMuxAdapter defines the secondary port for the tmux observer session.
type TMuxAdapter interface {
	// SessionExists reports whether a session with the name is running.
	SessionExists(ctx context.Context, name string) bool

	// EnsureWindows creates the session and any missing windows, and prunes
	// dead panes in existing ones. Returns a description of each action taken.
	EnsureWindows(ctx context.Context, session string, windows []ObserverWindow) ([]string, error)

	// KillSession terminates a session.
	KillSession(ctx context.Context, name string) error

	// AttachInstructions returns user-facing instructions for attaching.
	AttachInstructions(session string) string
}
