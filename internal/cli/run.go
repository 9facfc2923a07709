package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/harness/internal/app"
	"github.com/example/harness/internal/config"
	"github.com/example/harness/internal/logging"
	"github.com/example/harness/internal/wire"
)

// CoordinatorLogName is the file under the log dir that `harness run` tees
// its log into, and `harness attach` follows.
const CoordinatorLogName = "coordinator.log"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run workers against the hook queue",
	Long: `Run the coordinator: claim ready issues, execute them on a pool of workers,
sweep stale claims and watch for redirects on the configured schedules.

A redirect that needs attention (new urgent work, a pause label) stops
claiming; in-flight work finishes and the run exits paused. Restart with
--resume once the redirect is handled.

Examples:
  harness run --workers 3
  harness run --once
  harness run --resume --context docs/agent-context.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, _ := cmd.Flags().GetInt("workers")
		once, _ := cmd.Flags().GetBool("once")
		resume, _ := cmd.Flags().GetBool("resume")
		contextFile, _ := cmd.Flags().GetString("context")

		cfg, err := config.LoadOrDefault(globalDir)
		if err != nil {
			return err
		}
		logDir, err := cfg.ResolveLogDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log dir: %w", err)
		}
		logFile, err := os.OpenFile(filepath.Join(logDir, CoordinatorLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open coordinator log: %w", err)
		}
		defer logFile.Close()
		wire.Configure(globalDir, logging.New(io.MultiWriter(os.Stderr, logFile), globalVerbose, globalLogJSON))

		var priming string
		if contextFile != "" {
			data, err := os.ReadFile(contextFile)
			if err != nil {
				return fmt.Errorf("failed to read context file: %w", err)
			}
			priming = string(data)
		}

		coordinator, err := wire.Coordinator(wire.RunOptions{
			Workers:        workers,
			Once:           once,
			Resume:         resume,
			PrimingContext: priming,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(NewContext(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Harness %s running with %d worker(s), logs in %s\n", cfg.HarnessID, len(coordinator.Status().Pool.Workers), logDir)

		runErr := coordinator.Run(ctx)
		printRunSummary(out, coordinator.Status())

		if errors.Is(runErr, app.ErrPaused) {
			fmt.Fprintf(out, "%s %v\n", color.New(color.FgYellow).Sprint("⚠"), runErr)
			return nil
		}
		return runErr
	},
}

func printRunSummary(out io.Writer, st app.CoordinatorStatus) {
	fmt.Fprintf(out, "\n%-12s %-10s %-9s %s\n", "WORKER", "STATUS", "SESSIONS", "LAST ERROR")
	fmt.Fprintln(out, "────────────────────────────────────────────────────────────────")
	for _, w := range st.Pool.Workers {
		fmt.Fprintf(out, "%-12s %-10s %-9d %s\n", w.ID, w.Status, w.SessionsCompleted, w.LastError)
	}
	fmt.Fprintf(out, "\nSessions completed: %d\n", st.SessionsCompleted)
}

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	runCmd.Flags().IntP("workers", "w", 0, "Worker count (default from config)")
	runCmd.Flags().Bool("once", false, "Claim one round of work, wait for it and exit")
	runCmd.Flags().Bool("resume", false, "Continue after a paused run")
	runCmd.Flags().String("context", "", "File whose contents are added to every prompt")
	return runCmd
}
