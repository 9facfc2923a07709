package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	coreworker "github.com/example/harness/internal/core/worker"
	"github.com/example/harness/internal/logging"
	"github.com/example/harness/internal/ports/primary"
)

// ErrWorkerNotWorking is returned when Execute runs without a claimed issue.
var ErrWorkerNotWorking = errors.New("worker is not working")

// Worker runs one claimed issue at a time through its executor.
type Worker struct {
	id       string
	executor primary.Executor
	logger   *slog.Logger
	now      func() time.Time

	mu                sync.Mutex
	status            string
	currentIssue      *primary.Issue
	sessionStartedAt  time.Time
	sessionsCompleted int
	lastError         string
}

// NewWorker creates an idle worker bound to an executor.
func NewWorker(id string, executor primary.Executor, logger *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		executor: executor,
		logger:   logging.OrDefault(logger).With("worker", id),
		now:      time.Now,
		status:   coreworker.StatusIdle,
	}
}

// SetClock replaces the time source.
func (w *Worker) SetClock(now func() time.Time) {
	w.now = now
}

// ID returns the worker id.
func (w *Worker) ID() string {
	return w.id
}

// Status returns the current status.
func (w *Worker) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// CurrentIssue returns the held issue, or nil.
func (w *Worker) CurrentIssue() *primary.Issue {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentIssue
}

// IsAvailable reports whether the worker is idle.
func (w *Worker) IsAvailable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return coreworker.IsAvailable(w.status)
}

// ClaimWork takes an issue. It returns false and changes nothing unless the
// worker is idle and issue is non-nil.
func (w *Worker) ClaimWork(issue *primary.Issue) bool {
	if issue == nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if guard := coreworker.CanClaim(w.id, w.status); !guard.Allowed {
		w.logger.Debug("claim refused", "reason", guard.Reason)
		return false
	}
	w.status = coreworker.StatusWorking
	w.currentIssue = issue
	w.sessionStartedAt = w.now()
	return true
}

// Execute runs the held issue. A structured result of any outcome returns
// the worker to idle; an executor error leaves it failed until Reset. A run
// cut short by ctx returns the worker to idle and wraps ctx.Err().
func (w *Worker) Execute(ctx context.Context, primingContext string) (*primary.ExecutionResult, error) {
	w.mu.Lock()
	if guard := coreworker.CanExecute(w.id, w.status); !guard.Allowed {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrWorkerNotWorking, guard.Reason)
	}
	issue := w.currentIssue
	w.mu.Unlock()

	w.logger.Info("executing", "issue", issue.ID, "executor", w.executor.Name())
	result, err := w.executor.Execute(ctx, primary.ExecutionRequest{
		WorkerID:       w.id,
		Issue:          issue,
		PrimingContext: primingContext,
	})

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil && ctx.Err() != nil {
		w.status = coreworker.StatusIdle
		w.currentIssue = nil
		w.sessionStartedAt = time.Time{}
		w.logger.Warn("execution interrupted", "issue", issue.ID, "error", err)
		return nil, fmt.Errorf("worker %s interrupted on %s: %w", w.id, issue.ID, ctx.Err())
	}
	if err != nil {
		w.status = coreworker.StatusFailed
		w.lastError = err.Error()
		w.logger.Error("executor failed", "issue", issue.ID, "error", err)
		return nil, fmt.Errorf("worker %s failed on %s: %w", w.id, issue.ID, err)
	}

	w.sessionsCompleted++
	if result.Error != "" {
		w.lastError = result.Error
	}
	if result.Blocked {
		w.status = coreworker.StatusBlocked
		w.logger.Warn("worker blocked", "issue", issue.ID, "summary", result.Summary)
		return result, nil
	}

	w.status = coreworker.StatusIdle
	w.currentIssue = nil
	w.sessionStartedAt = time.Time{}
	w.logger.Info("execution finished", "issue", issue.ID, "outcome", result.Outcome, "duration", result.Duration)
	return result, nil
}

// Reset forces the worker back to idle.
func (w *Worker) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = coreworker.StatusIdle
	w.currentIssue = nil
	w.sessionStartedAt = time.Time{}
}

// GetMetrics returns a point-in-time view of the worker.
func (w *Worker) GetMetrics() primary.WorkerMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()

	m := primary.WorkerMetrics{
		ID:                w.id,
		SessionsCompleted: w.sessionsCompleted,
		Status:            w.status,
		LastError:         w.lastError,
	}
	if w.currentIssue != nil {
		m.CurrentIssueID = w.currentIssue.ID
	}
	if w.status == coreworker.StatusWorking && !w.sessionStartedAt.IsZero() {
		uptime := w.now().Sub(w.sessionStartedAt)
		m.Uptime = &uptime
	}
	return m
}
