package detection

import "fmt"

// Action types the coordinator takes on the queue after a run.
const (
	ActionComplete = "complete" // Close the issue
	ActionRelease  = "release"  // Return to ready, counts against retries
)

// Action represents what to do with a claimed issue once its worker returns.
type Action struct {
	Type        string // ActionComplete or ActionRelease
	Reason      string // Release reason recorded on the issue
	ResetWorker bool   // Worker must be reset before it can take more work
}

// RunReport is what a worker run produced.
type RunReport struct {
	IssueID       string
	Outcome       string // empty when the executor itself failed
	Summary       string
	Error         string
	InfraError    error
	WorkerBlocked bool
}

// SelectAction maps a run to the queue action.
// success and code_complete complete the issue; partial and failure release
// it; an executor fault or blocked worker releases it and resets the worker.
func SelectAction(r RunReport) Action {
	if r.InfraError != nil {
		return Action{
			Type:        ActionRelease,
			Reason:      fmt.Sprintf("executor error: %v", r.InfraError),
			ResetWorker: true,
		}
	}

	if r.WorkerBlocked {
		return Action{
			Type:        ActionRelease,
			Reason:      withDetail("worker blocked", r.Summary),
			ResetWorker: true,
		}
	}

	switch r.Outcome {
	case OutcomeSuccess, OutcomeCodeComplete:
		return Action{Type: ActionComplete}
	case OutcomePartial:
		return Action{Type: ActionRelease, Reason: withDetail("partial", r.Summary)}
	default:
		detail := r.Error
		if detail == "" {
			detail = r.Summary
		}
		return Action{Type: ActionRelease, Reason: withDetail("failure", detail)}
	}
}

func withDetail(kind, detail string) string {
	if detail == "" {
		return kind
	}
	return kind + ": " + detail
}
