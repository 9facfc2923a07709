package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/example/harness/internal/adapters/filesystem"
	"github.com/example/harness/internal/core/detection"
	"github.com/example/harness/internal/logging"
	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/ports/secondary"
)

// Environment variables handed to every agent process.
const (
	EnvIssueID  = "HARNESS_ISSUE_ID"
	EnvWorkerID = "HARNESS_WORKER_ID"
)

// ExecutorConfig configures how agent processes are launched.
type ExecutorConfig struct {
	Command string
	Args    []string
	Model   string
	WorkDir string
	LogDir  string        // per-issue output logs; empty disables them
	Timeout time.Duration // zero means no limit
	Env     []string
}

// DefaultExecutorConfig runs `claude -p` in the current directory.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{Command: "claude", Args: []string{"-p"}}
}

// agentRunner holds the process plumbing both executors share.
type agentRunner struct {
	cfg     ExecutorConfig
	runner  secondary.ProcessRunner
	vcs     secondary.VersionControl
	prompts *PromptBuilder
	logger  *slog.Logger
	now     func() time.Time
}

func newAgentRunner(cfg ExecutorConfig, runner secondary.ProcessRunner, vcs secondary.VersionControl, prompts *PromptBuilder, logger *slog.Logger) agentRunner {
	if cfg.Command == "" {
		cfg.Command = DefaultExecutorConfig().Command
	}
	return agentRunner{
		cfg:     cfg,
		runner:  runner,
		vcs:     vcs,
		prompts: prompts,
		logger:  logging.OrDefault(logger),
		now:     time.Now,
	}
}

// run launches the agent with prompt on stdin and turns what it printed
// into a result. An error means the process could not be run at all.
func (a *agentRunner) run(ctx context.Context, req primary.ExecutionRequest, prompt string, extraArgs []string) (*primary.ExecutionResult, error) {
	issueID := req.Issue.ID
	start := a.now()

	before, tracking := a.head(ctx)

	runCtx := ctx
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	tee, closeLog := a.openLog(issueID, req.WorkerID, start)
	defer closeLog()

	args := append(append([]string(nil), a.cfg.Args...), extraArgs...)
	env := append(append([]string(nil), a.cfg.Env...),
		EnvIssueID+"="+issueID,
		EnvWorkerID+"="+req.WorkerID,
	)

	a.logger.Debug("starting agent", "issue", issueID, "worker", req.WorkerID, "command", a.cfg.Command, "args", args)
	res, err := a.runner.Run(runCtx, secondary.ProcessSpec{
		Command: a.cfg.Command,
		Args:    args,
		Dir:     a.cfg.WorkDir,
		Env:     env,
		Stdin:   prompt,
		Tee:     tee,
	})
	duration := a.now().Sub(start)

	if err != nil {
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			a.logger.Warn("agent timed out", "issue", issueID, "timeout", a.cfg.Timeout)
			return &primary.ExecutionResult{
				IssueID:  issueID,
				Outcome:  primary.OutcomeFailure,
				Summary:  "timed out",
				Duration: duration,
				Error:    fmt.Sprintf("timed out after %s", a.cfg.Timeout),
			}, nil
		}
		return nil, fmt.Errorf("failed to run %s for %s: %w", a.cfg.Command, issueID, err)
	}

	output := res.Stdout
	if res.Stderr != "" {
		output += "\n" + res.Stderr
	}
	cls := detection.DetectOutcome(output, res.ExitCode)

	result := &primary.ExecutionResult{
		IssueID:  issueID,
		Outcome:  cls.Outcome,
		Summary:  cls.Summary,
		Duration: duration,
	}
	if res.Duration > 0 {
		result.Duration = res.Duration
	}
	if cls.Outcome == primary.OutcomeFailure {
		result.Error = failureDetail(res, cls.Summary)
	}
	if reason, blocked := detection.DetectBlocked(output); blocked {
		result.Blocked = true
		if reason != "" {
			result.Summary = reason
		}
	}
	if tracking {
		if after, ok := a.head(ctx); ok && after != "" && after != before {
			result.GitCommit = after
		}
	}

	a.logger.Info("agent finished",
		"issue", issueID,
		"worker", req.WorkerID,
		"outcome", result.Outcome,
		"exit_code", res.ExitCode,
		"commit", result.GitCommit,
		"blocked", result.Blocked,
		"duration", result.Duration,
	)
	return result, nil
}

// head reads HEAD in the work dir; ok is false when commits cannot be tracked.
func (a *agentRunner) head(ctx context.Context) (string, bool) {
	if a.vcs == nil {
		return "", false
	}
	sha, err := a.vcs.HeadCommit(ctx, a.cfg.WorkDir)
	if err != nil {
		a.logger.Debug("commit tracking disabled", "dir", a.cfg.WorkDir, "error", err)
		return "", false
	}
	return sha, true
}

// openLog opens the issue log and the worker log for appending. Failures
// only disable logging.
func (a *agentRunner) openLog(issueID, workerID string, start time.Time) (io.Writer, func()) {
	if a.cfg.LogDir == "" {
		return nil, func() {}
	}
	if err := os.MkdirAll(a.cfg.LogDir, 0755); err != nil {
		a.logger.Warn("failed to create log dir", "dir", a.cfg.LogDir, "error", err)
		return nil, func() {}
	}

	var writers []io.Writer
	var files []*os.File
	for _, name := range []string{issueID, workerID} {
		if name == "" {
			continue
		}
		path := LogPath(a.cfg.LogDir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			a.logger.Warn("failed to open log", "path", path, "error", err)
			continue
		}
		fmt.Fprintf(f, "\n=== %s %s (%s) ===\n", start.UTC().Format(time.RFC3339), issueID, workerID)
		writers = append(writers, f)
		files = append(files, f)
	}
	if len(writers) == 0 {
		return nil, func() {}
	}
	return io.MultiWriter(writers...), func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
}

// LogPath is where output for an issue or worker is appended.
func LogPath(logDir, name string) string {
	return filepath.Join(logDir, filesystem.FileName(name)+".log")
}

func failureDetail(res *secondary.ProcessResult, summary string) string {
	if res.ExitCode != 0 {
		if summary == "" {
			return fmt.Sprintf("exit code %d", res.ExitCode)
		}
		return fmt.Sprintf("exit code %d: %s", res.ExitCode, summary)
	}
	if summary == "" {
		return "agent reported failure"
	}
	return summary
}

// HeavyweightExecutor runs a full agent session per issue.
type HeavyweightExecutor struct {
	agent agentRunner
}

// NewHeavyweightExecutor creates a heavyweight executor. vcs may be nil to
// disable commit detection.
func NewHeavyweightExecutor(cfg ExecutorConfig, runner secondary.ProcessRunner, vcs secondary.VersionControl, prompts *PromptBuilder, logger *slog.Logger) *HeavyweightExecutor {
	return &HeavyweightExecutor{agent: newAgentRunner(cfg, runner, vcs, prompts, logger)}
}

// Name implements primary.Executor.
func (e *HeavyweightExecutor) Name() string { return "heavyweight" }

// Execute implements primary.Executor.
func (e *HeavyweightExecutor) Execute(ctx context.Context, req primary.ExecutionRequest) (*primary.ExecutionResult, error) {
	prompt, err := e.agent.prompts.Build(req)
	if err != nil {
		return nil, err
	}
	var extra []string
	if e.agent.cfg.Model != "" {
		extra = append(extra, "--model", e.agent.cfg.Model)
	}
	return e.agent.run(ctx, req, prompt, extra)
}

// Ensure HeavyweightExecutor implements the interface
var _ primary.Executor = (*HeavyweightExecutor)(nil)
