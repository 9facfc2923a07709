// Package worker contains the pure state machine for a worker.
package worker

import "fmt"

// Worker statuses.
const (
	StatusIdle    = "idle"
	StatusWorking = "working"
	StatusBlocked = "blocked"
	StatusFailed  = "failed"
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

// IsAvailable reports whether a worker in status can take work.
func IsAvailable(status string) bool {
	return status == StatusIdle
}

// CanClaim evaluates whether a worker may take an issue.
// Rules:
// - worker must be idle
func CanClaim(workerID, status string) GuardResult {
	if !IsAvailable(status) {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("worker %s is %s, not idle", workerID, status),
		}
	}
	return GuardResult{Allowed: true}
}

// CanExecute evaluates whether a worker may run its held issue.
// Rules:
// - worker must be working (claimed an issue first)
func CanExecute(workerID, status string) GuardResult {
	if status != StatusWorking {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("worker %s cannot execute while %s: claim work first", workerID, status),
		}
	}
	return GuardResult{Allowed: true}
}

// NeedsReset reports whether a worker must be reset before it can work again.
func NeedsReset(status string) bool {
	return status == StatusFailed || status == StatusBlocked
}
