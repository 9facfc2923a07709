package tmux

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/GianlucaP106/gotmux/gotmux"
)

// GotmuxAdapter wraps gotmux library for session lifecycle management
type GotmuxAdapter struct {
	tmux *gotmux.Tmux
}

// NewGotmuxAdapter creates a new gotmux adapter
func NewGotmuxAdapter() (*GotmuxAdapter, error) {
	tmux, err := gotmux.DefaultTmux()
	if err != nil {
		return nil, fmt.Errorf("failed to create tmux client: %w", err)
	}
	return &GotmuxAdapter{
		tmux: tmux,
	}, nil
}

// DesiredWindow describes a window that should exist in the observer session.
type DesiredWindow struct {
	Name    string
	Dir     string
	Command string
}

// ApplyActionType identifies the kind of reconciliation action.
type ApplyActionType string

const (
	ActionCreateSession  ApplyActionType = "CreateSession"
	ActionAddWindow      ApplyActionType = "AddWindow"
	ActionPruneDeadPanes ApplyActionType = "PruneDeadPanes"
)

// ApplyAction represents a single reconciliation action in the plan.
type ApplyAction struct {
	Type        ApplyActionType
	Description string
	SessionName string
	Window      DesiredWindow
}

// ApplyPlan contains the full reconciliation plan.
type ApplyPlan struct {
	SessionName   string
	SessionExists bool
	Actions       []ApplyAction
}

// PlanWindows compares desired windows to what exists and returns actions.
// It is pure so it can be tested without a tmux server.
func PlanWindows(sessionName string, sessionExists bool, existing []string, desired []DesiredWindow) *ApplyPlan {
	plan := &ApplyPlan{SessionName: sessionName, SessionExists: sessionExists}
	if len(desired) == 0 {
		return plan
	}

	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	rest := desired
	if !sessionExists {
		first := desired[0]
		plan.Actions = append(plan.Actions, ApplyAction{
			Type:        ActionCreateSession,
			Description: fmt.Sprintf("Create session %s with window %s", sessionName, first.Name),
			SessionName: sessionName,
			Window:      first,
		})
		rest = desired[1:]
	}

	for _, w := range rest {
		if have[w.Name] {
			plan.Actions = append(plan.Actions, ApplyAction{
				Type:        ActionPruneDeadPanes,
				Description: fmt.Sprintf("Prune dead panes in %s", w.Name),
				SessionName: sessionName,
				Window:      w,
			})
			continue
		}
		plan.Actions = append(plan.Actions, ApplyAction{
			Type:        ActionAddWindow,
			Description: fmt.Sprintf("Add window %s", w.Name),
			SessionName: sessionName,
			Window:      w,
		})
	}
	return plan
}

// PlanApply inspects the live session and plans the reconciliation.
func (g *GotmuxAdapter) PlanApply(sessionName string, desired []DesiredWindow) (*ApplyPlan, error) {
	session, err := g.GetSession(sessionName)
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if session == nil {
		return PlanWindows(sessionName, false, nil, desired), nil
	}

	windows, err := session.ListWindows()
	if err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	var names []string
	for _, w := range windows {
		names = append(names, w.Name)
	}
	return PlanWindows(sessionName, true, names, desired), nil
}

// ExecutePlan runs every action of the plan in order.
func (g *GotmuxAdapter) ExecutePlan(plan *ApplyPlan) error {
	for _, action := range plan.Actions {
		if err := g.executeAction(action); err != nil {
			return fmt.Errorf("%s: %w", action.Description, err)
		}
	}
	return nil
}

func (g *GotmuxAdapter) executeAction(action ApplyAction) error {
	switch action.Type {
	case ActionCreateSession:
		session, err := g.tmux.NewSession(&gotmux.SessionOptions{
			Name:           action.SessionName,
			StartDirectory: action.Window.Dir,
		})
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		windows, err := session.ListWindows()
		if err != nil {
			return fmt.Errorf("failed to list windows: %w", err)
		}
		if len(windows) == 0 {
			return fmt.Errorf("no windows found in new session")
		}
		return setupWindow(windows[0], action.Window)

	case ActionAddWindow:
		session, err := g.GetSession(action.SessionName)
		if err != nil || session == nil {
			return fmt.Errorf("session %s not found", action.SessionName)
		}
		window, err := session.NewWindow(&gotmux.NewWindowOptions{
			WindowName:     action.Window.Name,
			StartDirectory: action.Window.Dir,
			DoNotAttach:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create window %s: %w", action.Window.Name, err)
		}
		return setupWindow(window, action.Window)

	case ActionPruneDeadPanes:
		return g.pruneDeadPanes(action.SessionName, action.Window.Name)

	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}

// setupWindow names the window and makes the desired command its root process.
func setupWindow(window *gotmux.Window, desired DesiredWindow) error {
	if err := window.Rename(desired.Name); err != nil {
		return fmt.Errorf("failed to rename window: %w", err)
	}
	if desired.Command == "" {
		return nil
	}

	panes, err := window.ListPanes()
	if err != nil || len(panes) == 0 {
		return fmt.Errorf("failed to get initial pane: %w", err)
	}

	// NewWindowOptions has no ShellCommand, so respawn the pane with it.
	if err := exec.Command("tmux", "respawn-pane", "-t", panes[0].Id, "-k", desired.Command).Run(); err != nil {
		return fmt.Errorf("failed to respawn pane: %w", err)
	}
	if err := panes[0].SetOption("@harness_role", desired.Name); err != nil {
		return fmt.Errorf("failed to set @harness_role: %w", err)
	}
	return nil
}

// pruneDeadPanes kills dead panes in a window.
func (g *GotmuxAdapter) pruneDeadPanes(sessionName, windowName string) error {
	session, err := g.GetSession(sessionName)
	if err != nil || session == nil {
		return fmt.Errorf("session %s not found", sessionName)
	}

	window, err := session.GetWindowByName(windowName)
	if err != nil || window == nil {
		return fmt.Errorf("window %s not found", windowName)
	}

	panes, err := window.ListPanes()
	if err != nil {
		return fmt.Errorf("failed to list panes: %w", err)
	}

	for _, p := range panes {
		if p.Dead {
			if err := p.Kill(); err != nil {
				return fmt.Errorf("failed to kill dead pane %s: %w", p.Id, err)
			}
		}
	}

	return nil
}

// GetSession returns a gotmux Session by name, or nil if not found.
func (g *GotmuxAdapter) GetSession(name string) (*gotmux.Session, error) {
	sessions, err := g.tmux.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, s := range sessions {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, nil
}

// SessionExists checks if a tmux session exists
func (g *GotmuxAdapter) SessionExists(name string) bool {
	s, err := g.GetSession(name)
	return err == nil && s != nil
}

// KillSession terminates a tmux session
func (g *GotmuxAdapter) KillSession(name string) error {
	s, err := g.GetSession(name)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("session %s not found", name)
	}
	return s.Kill()
}

// TailCommand builds the root command for a window that follows a log file.
func TailCommand(path string) string {
	return "tail -n 200 -F " + shellQuote(path)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// AttachInstructions returns instructions for attaching to a session
func (g *GotmuxAdapter) AttachInstructions(sessionName string) string {
	return fmt.Sprintf("Attach to session: tmux attach -t %s\n\n"+
		"Each worker has a window following its log.\n\n"+
		"TMux Commands:\n"+
		"  Switch windows: Ctrl+b then n / p\n"+
		"  Detach session: Ctrl+b then d\n",
		sessionName)
}
