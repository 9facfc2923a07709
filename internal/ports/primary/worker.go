package primary

import (
	"context"
	"time"
)

// Executor runs one claimed issue. Returning an error means the executor
// itself broke (infrastructure fault); task-level failure is reported as a
// result with OutcomeFailure.
type Executor interface {
	Name() string
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// ExecutionRequest is the input to an executor.
type ExecutionRequest struct {
	WorkerID       string
	Issue          *Issue
	PrimingContext string
}

// ExecutionResult is the uniform result of both execution strategies.
type ExecutionResult struct {
	IssueID   string
	Outcome   string
	Summary   string
	GitCommit string // empty when no commit was produced
	Duration  time.Duration
	Error     string

	// Blocked asks the worker to enter the blocked status.
	Blocked bool
}

// Execution outcome constants.
const (
	OutcomeSuccess      = "success"
	OutcomePartial      = "partial"
	OutcomeCodeComplete = "code_complete"
	OutcomeFailure      = "failure"
)

// WorkerMetrics is a point-in-time view of one worker.
type WorkerMetrics struct {
	ID                string
	SessionsCompleted int
	Status            string
	Uptime            *time.Duration // nil unless working
	CurrentIssueID    string
	LastError         string
}

// PoolMetrics aggregates a worker pool.
type PoolMetrics struct {
	Total             int
	Idle              int
	Working           int
	Blocked           int
	Failed            int
	SessionsCompleted int
	Workers           []WorkerMetrics
}
