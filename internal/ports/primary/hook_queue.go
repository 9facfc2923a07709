// Package primary defines the primary ports (driving adapters) for the application.
// These are the interfaces through which the CLI and the coordinator drive the core.
package primary

import (
	"context"
	"time"
)

// HookQueue defines the primary port for the lease-based work queue.
type HookQueue interface {
	// AgentID returns the unique id of this queue instance.
	AgentID() string

	// ClaimWork claims the most urgent ready issue for this agent.
	// Finding nothing to claim is not an error: Success is false and Reason says why.
	ClaimWork(ctx context.Context, opts ClaimOptions) (*ClaimResult, error)

	// Heartbeat refreshes this agent's claim on an issue.
	Heartbeat(ctx context.Context, issueID string) error

	// StartHeartbeat refreshes the claim every heartbeat interval until the
	// returned stop function is called or ctx is done.
	StartHeartbeat(ctx context.Context, issueID string) (stop func())

	// ReleaseWork returns an issue to ready, or to failed once retries are exhausted.
	ReleaseWork(ctx context.Context, issueID, reason string) (*ReleaseResult, error)

	// ReturnWork puts a claimed issue back to ready without counting a retry.
	ReturnWork(ctx context.Context, issueID string) error

	// CompleteWork removes all hook labels and closes the issue. Idempotent.
	CompleteWork(ctx context.Context, issueID string) error

	// MarkFailed forces an issue into hook:failed regardless of retries.
	MarkFailed(ctx context.Context, issueID, reason string) error

	// ReleaseStaleClaims returns abandoned in-progress issues to ready.
	ReleaseStaleClaims(ctx context.Context) ([]string, error)

	// RequeueFailed moves a failed issue back to ready.
	RequeueFailed(ctx context.Context, issueID string, opts RequeueOptions) error

	// GetStats counts issues per queue state.
	GetStats(ctx context.Context) (*QueueStats, error)
}

// ClaimOptions narrows which issues may be claimed.
type ClaimOptions struct {
	Labels      []string
	MaxPriority *int
}

// ClaimResult is the outcome of a claim attempt.
type ClaimResult struct {
	Success bool
	Issue   *Issue
	Claim   *Claim
	Reason  string
}

// Claim is a lease held by one agent at the port boundary.
type Claim struct {
	IssueID       string
	AgentID       string
	ClaimedAt     time.Time
	LastHeartbeat time.Time
	Title         string
}

// ReleaseResult reports where a released issue went.
type ReleaseResult struct {
	IssueID    string
	NewState   string // QueueStateReady or QueueStateFailed
	RetryCount int    // retry count after this release
}

// RequeueOptions controls RequeueFailed.
type RequeueOptions struct {
	// ResetRetries zeroes the retry counter so exhausted issues can run again.
	ResetRetries bool
}

// QueueStats counts issues by effective queue state.
type QueueStats struct {
	Ready       int
	InProgress  int
	Failed      int
	StaleClaims int
}

// Queue state constants.
const (
	QueueStateReady      = "ready"
	QueueStateInProgress = "in-progress"
	QueueStateFailed     = "failed"
)
