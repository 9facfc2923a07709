package hook

import (
	"fmt"
	"sort"
	"time"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// Candidate is the view of an issue the claim planner needs.
type Candidate struct {
	ID       string
	Priority int
	Status   string
	Labels   []string
}

// ClaimFilter narrows which ready issues may be claimed.
type ClaimFilter struct {
	Labels      []string
	MaxPriority *int
}

// SelectCandidates returns the claimable issues in claim order.
// Rules:
// - effective state must be ready
// - status must not be closed
// - every filter label must be present
// - priority must not exceed MaxPriority when set
// Order is priority ascending, stable on the input order.
func SelectCandidates(issues []Candidate, filter ClaimFilter) []Candidate {
	var out []Candidate
	for _, c := range issues {
		if ResolveState(c.Labels) != StateReady {
			continue
		}
		if c.Status == StatusClosed {
			continue
		}
		if !HasAllLabels(c.Labels, filter.Labels) {
			continue
		}
		if filter.MaxPriority != nil && c.Priority > *filter.MaxPriority {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// IsStale reports whether a claim whose last heartbeat was at lastHeartbeat
// has expired at now. Exactly timeout after the heartbeat is not yet stale.
func IsStale(lastHeartbeat, now time.Time, timeout time.Duration) bool {
	return now.Sub(lastHeartbeat) > timeout
}

// ReleaseTarget decides where a released issue goes given the retry count
// read before this release.
func ReleaseTarget(retryCount, maxRetries int) State {
	if retryCount >= maxRetries {
		return StateFailed
	}
	return StateReady
}

// StatusFor maps a queue state to the issue status written with it.
func StatusFor(s State) string {
	switch s {
	case StateInProgress:
		return StatusInProgress
	case StateFailed:
		return StatusBlocked
	default:
		return StatusOpen
	}
}

// RequeueContext provides context for the requeue guard.
type RequeueContext struct {
	IssueID      string
	State        State
	RetryCount   int
	MaxRetries   int
	ResetRetries bool
}

// CanRequeue evaluates whether a failed issue may return to ready.
// Rules:
// - issue must be in hook:failed
// - retry count must be under the limit unless the operator resets it
func CanRequeue(ctx RequeueContext) GuardResult {
	if ctx.State != StateFailed {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("issue %s is not failed (state: %s)", ctx.IssueID, displayState(ctx.State)),
		}
	}
	if !ctx.ResetRetries && ctx.RetryCount >= ctx.MaxRetries {
		return GuardResult{
			Allowed: false,
			Reason: fmt.Sprintf("issue %s exhausted its retries (%d/%d). Requeue with --reset to start over",
				ctx.IssueID, ctx.RetryCount, ctx.MaxRetries),
		}
	}
	return GuardResult{Allowed: true}
}

// HeartbeatContext provides context for the heartbeat guard.
type HeartbeatContext struct {
	IssueID  string
	HasClaim bool
	State    State
	AgentID  string
	Holder   string // agent named in the persisted claim blob, "" when absent
}

// CanHeartbeat evaluates whether a claim may be refreshed.
// Rules:
// - this agent must hold the claim
// - issue must still be in progress
// - the persisted claim, when present, must name this agent
func CanHeartbeat(ctx HeartbeatContext) GuardResult {
	if !ctx.HasClaim {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("no claim held on %s", ctx.IssueID),
		}
	}
	if ctx.State != StateInProgress {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("issue %s is no longer in progress (state: %s)", ctx.IssueID, displayState(ctx.State)),
		}
	}
	if ctx.Holder != "" && ctx.Holder != ctx.AgentID {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("issue %s was reclaimed by %s", ctx.IssueID, ctx.Holder),
		}
	}
	return GuardResult{Allowed: true}
}

// ReleaseContext provides context for the release guards.
type ReleaseContext struct {
	IssueID string
	State   State
	Status  string
}

// CanRelease evaluates whether an issue may be released or marked failed.
// Rules:
// - closed issues stay closed
func CanRelease(ctx ReleaseContext) GuardResult {
	if ctx.Status == StatusClosed && ctx.State == StateNone {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("issue %s is already closed", ctx.IssueID),
		}
	}
	return GuardResult{Allowed: true}
}

func displayState(s State) string {
	if s == StateNone {
		return "none"
	}
	return string(s)
}
