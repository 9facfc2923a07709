// Package tmux contains TMux adapter implementations.
package tmux

import (
	"context"

	"github.com/example/harness/internal/ports/secondary"
	tmuxpkg "github.com/example/harness/internal/tmux"
)

// Adapter implements secondary.TMuxAdapter by wrapping the internal/tmux package.
type Adapter struct {
	gotmux *tmuxpkg.GotmuxAdapter
}

// NewAdapter creates a new TMux adapter.
func NewAdapter() (*Adapter, error) {
	g, err := tmuxpkg.NewGotmuxAdapter()
	if err != nil {
		return nil, err
	}
	return &Adapter{gotmux: g}, nil
}

// SessionExists checks if a TMux session exists.
func (a *Adapter) SessionExists(ctx context.Context, name string) bool {
	return a.gotmux.SessionExists(name)
}

// EnsureWindows reconciles the observer session with the desired windows.
func (a *Adapter) EnsureWindows(ctx context.Context, session string, windows []secondary.ObserverWindow) ([]string, error) {
	desired := make([]tmuxpkg.DesiredWindow, 0, len(windows))
	for _, w := range windows {
		desired = append(desired, tmuxpkg.DesiredWindow{Name: w.Name, Dir: w.Dir, Command: w.Command})
	}

	plan, err := a.gotmux.PlanApply(session, desired)
	if err != nil {
		return nil, err
	}
	if err := a.gotmux.ExecutePlan(plan); err != nil {
		return nil, err
	}

	var done []string
	for _, action := range plan.Actions {
		done = append(done, action.Description)
	}
	return done, nil
}

// KillSession terminates a TMux session.
func (a *Adapter) KillSession(ctx context.Context, name string) error {
	return a.gotmux.KillSession(name)
}

// AttachInstructions returns user-friendly instructions for attaching to a session.
func (a *Adapter) AttachInstructions(sessionName string) string {
	return a.gotmux.AttachInstructions(sessionName)
}

// Ensure Adapter implements the interface
var _ secondary.TMuxAdapter = (*Adapter)(nil)
