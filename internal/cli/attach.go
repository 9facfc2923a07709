package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/harness/internal/app"
	"github.com/example/harness/internal/ports/secondary"
	"github.com/example/harness/internal/tmux"
	"github.com/example/harness/internal/wire"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Open a tmux session following the harness logs",
	Long: `Create or update a tmux session with one window per worker log plus the
coordinator log, then attach to it.

  - Session name: harness-<harness id>
  - Windows: coordinator, worker-1 .. worker-N (tail -F of each log)

Existing sessions are reconciled: missing windows are added and dead panes
are replaced. --kill tears the session down instead.

Examples:
  harness attach
  harness attach --workers 4 --no-attach
  harness attach --kill`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		workers, _ := cmd.Flags().GetInt("workers")
		noAttach, _ := cmd.Flags().GetBool("no-attach")
		kill, _ := cmd.Flags().GetBool("kill")

		cfg := wire.Config()
		if workers <= 0 {
			workers = cfg.Workers
		}
		logDir, err := cfg.ResolveLogDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log dir: %w", err)
		}

		tmuxAdapter, err := wire.TMuxAdapter()
		if err != nil {
			return fmt.Errorf("failed to connect to tmux: %w", err)
		}

		sessionName := "harness-" + cfg.HarnessID
		if kill {
			return KillObserverSession(ctx, tmuxAdapter, sessionName, os.Stdout)
		}

		windows := ObserverWindows(logDir, wire.WorkerNames(workers))
		if err := PrepareObserverSession(ctx, tmuxAdapter, sessionName, windows, os.Stdout); err != nil {
			return err
		}

		if noAttach {
			fmt.Println(tmuxAdapter.AttachInstructions(sessionName))
			return nil
		}

		// Find tmux binary
		tmuxPath, err := exec.LookPath("tmux")
		if err != nil {
			return fmt.Errorf("tmux not found in PATH: %w", err)
		}

		// Replace current process with tmux attach
		if err := syscall.Exec(tmuxPath, []string{"tmux", "attach", "-t", sessionName}, os.Environ()); err != nil {
			return fmt.Errorf("failed to exec tmux attach: %w", err)
		}
		return nil
	},
}

// ObserverWindows returns the coordinator window followed by one window per worker.
func ObserverWindows(logDir string, workers []string) []secondary.ObserverWindow {
	windows := []secondary.ObserverWindow{{
		Name:    "coordinator",
		Dir:     logDir,
		Command: tmux.TailCommand(filepath.Join(logDir, CoordinatorLogName)),
	}}
	for _, w := range workers {
		windows = append(windows, secondary.ObserverWindow{
			Name:    w,
			Dir:     logDir,
			Command: tmux.TailCommand(app.LogPath(logDir, w)),
		})
	}
	return windows
}

// PrepareObserverSession creates or reconciles the observer session and
// reports each action taken.
func PrepareObserverSession(ctx context.Context, t secondary.TMuxAdapter, session string, windows []secondary.ObserverWindow, out io.Writer) error {
	if t.SessionExists(ctx, session) {
		fmt.Fprintf(out, "Updating session %s\n", session)
	} else {
		fmt.Fprintf(out, "Creating session %s\n", session)
	}

	actions, err := t.EnsureWindows(ctx, session, windows)
	if err != nil {
		return fmt.Errorf("failed to prepare session %s: %w", session, err)
	}
	for _, a := range actions {
		fmt.Fprintf(out, "✓ %s\n", a)
	}
	return nil
}

// KillObserverSession terminates the observer session if it is running.
func KillObserverSession(ctx context.Context, t secondary.TMuxAdapter, session string, out io.Writer) error {
	if !t.SessionExists(ctx, session) {
		fmt.Fprintf(out, "No session %s\n", session)
		return nil
	}
	if err := t.KillSession(ctx, session); err != nil {
		return fmt.Errorf("failed to kill session %s: %w", session, err)
	}
	fmt.Fprintf(out, "✓ Killed session %s\n", session)
	return nil
}

// AttachCmd returns the attach command
func AttachCmd() *cobra.Command {
	attachCmd.Flags().IntP("workers", "w", 0, "Worker windows to create (default from config)")
	attachCmd.Flags().Bool("no-attach", false, "Prepare the session without attaching")
	attachCmd.Flags().Bool("kill", false, "Kill the observer session and exit")
	return attachCmd
}
