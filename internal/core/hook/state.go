// Package hook contains the pure business logic for the hook queue.
// Labels on an issue encode its queue state; everything here is side-effect free.
package hook

import "strings"

// Hook state labels.
const (
	LabelReady      = "hook:ready"
	LabelInProgress = "hook:in-progress"
	LabelFailed     = "hook:failed"

	labelPrefix = "hook:"
)

// State is the effective queue state of an issue.
type State string

const (
	StateNone       State = ""
	StateReady      State = "ready"
	StateInProgress State = "in-progress"
	StateFailed     State = "failed"
)

// Issue statuses understood by the queue.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
	StatusBlocked    = "blocked"
)

// Label returns the label that encodes the state.
func (s State) Label() string {
	switch s {
	case StateReady:
		return LabelReady
	case StateInProgress:
		return LabelInProgress
	case StateFailed:
		return LabelFailed
	}
	return ""
}

// IsHookLabel reports whether label is a hook:* state label.
func IsHookLabel(label string) bool {
	return strings.HasPrefix(label, labelPrefix)
}

// ResolveState returns the effective state of an issue from its labels.
// When a non-atomic swap leaves more than one hook label behind, the
// precedence is in-progress > failed > ready.
func ResolveState(labels []string) State {
	var ready, failed bool
	for _, l := range labels {
		switch l {
		case LabelInProgress:
			return StateInProgress
		case LabelFailed:
			failed = true
		case LabelReady:
			ready = true
		}
	}
	if failed {
		return StateFailed
	}
	if ready {
		return StateReady
	}
	return StateNone
}

// StrayLabels returns the hook labels that must be removed so that only the
// label for target remains.
func StrayLabels(labels []string, target State) []string {
	keep := target.Label()
	var stray []string
	for _, l := range labels {
		if IsHookLabel(l) && l != keep {
			stray = append(stray, l)
		}
	}
	return stray
}

// HasLabel reports whether labels contains label.
func HasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// HasAllLabels reports whether labels contains every entry of want.
func HasAllLabels(labels, want []string) bool {
	for _, w := range want {
		if !HasLabel(labels, w) {
			return false
		}
	}
	return true
}
