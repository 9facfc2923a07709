// Package redirect detects external changes to the backlog that should
// interrupt an automated run. Snapshots are immutable; callers thread them.
package redirect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/harness/internal/core/hook"
)

// Redirect types.
const (
	TypePriorityChange = "priority_change"
	TypeIssueClosed    = "issue_closed"
	TypeNewUrgent      = "new_urgent"
	TypePauseRequested = "pause_requested"
)

// PauseLabel requests that a harness stop claiming work.
const PauseLabel = "pause"

// HarnessLabelPrefix scopes a pause request to one harness.
const HarnessLabelPrefix = "harness:"

// UrgentPriority is the highest priority value considered urgent.
const UrgentPriority = 1

// IssueState is what a snapshot remembers about an issue.
type IssueState struct {
	Priority int    `json:"priority"`
	Status   string `json:"status"`
}

// Snapshot is a point-in-time view of issue priorities and statuses.
type Snapshot struct {
	Timestamp time.Time             `json:"timestamp"`
	Issues    map[string]IssueState `json:"issues"`
	UrgentIDs map[string]bool       `json:"urgentIds"`
}

// Observed is the input for a snapshot.
type Observed struct {
	ID       string
	Title    string
	Priority int
	Status   string
	Labels   []string
}

// Redirect is one detected change.
type Redirect struct {
	Type        string
	IssueID     string
	Title       string
	OldPriority *int
	NewPriority *int
	DetectedAt  time.Time
}

// Check is the result of comparing a fresh scan with an older snapshot.
type Check struct {
	Redirects   []Redirect
	NewSnapshot *Snapshot
	ShouldPause bool
	PauseReason string
}

// IsUrgent reports whether an issue with the given priority and status is urgent.
func IsUrgent(priority int, status string) bool {
	return priority <= UrgentPriority && status != hook.StatusClosed
}

// HarnessLabel returns the label that addresses one harness.
func HarnessLabel(harnessID string) string {
	return HarnessLabelPrefix + harnessID
}

// NewSnapshot builds a snapshot from a full issue scan.
func NewSnapshot(issues []Observed, at time.Time) *Snapshot {
	s := &Snapshot{
		Timestamp: at,
		Issues:    make(map[string]IssueState, len(issues)),
		UrgentIDs: make(map[string]bool),
	}
	for _, is := range issues {
		s.Issues[is.ID] = IssueState{Priority: is.Priority, Status: is.Status}
		if IsUrgent(is.Priority, is.Status) {
			s.UrgentIDs[is.ID] = true
		}
	}
	return s
}

// Detect compares old against the current scan.
//
// Issues present in both snapshots produce priority_change when they cross
// from above UrgentPriority to at or below it, and issue_closed when they
// become closed. Issues urgent now but absent from old entirely produce
// new_urgent. Any open issue labelled both "pause" and "harness:<id>"
// produces pause_requested and sets ShouldPause.
func Detect(old *Snapshot, current []Observed, harnessID string, now time.Time) *Check {
	fresh := NewSnapshot(current, now)
	check := &Check{NewSnapshot: fresh}
	if old == nil {
		old = &Snapshot{Issues: map[string]IssueState{}}
	}

	harnessLabel := HarnessLabel(harnessID)
	for _, is := range current {
		prev, existed := old.Issues[is.ID]
		if existed {
			if prev.Priority > UrgentPriority && is.Priority <= UrgentPriority {
				check.Redirects = append(check.Redirects, Redirect{
					Type:        TypePriorityChange,
					IssueID:     is.ID,
					Title:       is.Title,
					OldPriority: intPtr(prev.Priority),
					NewPriority: intPtr(is.Priority),
					DetectedAt:  now,
				})
			}
			if prev.Status != hook.StatusClosed && is.Status == hook.StatusClosed {
				check.Redirects = append(check.Redirects, Redirect{
					Type:       TypeIssueClosed,
					IssueID:    is.ID,
					Title:      is.Title,
					DetectedAt: now,
				})
			}
		} else if fresh.UrgentIDs[is.ID] {
			check.Redirects = append(check.Redirects, Redirect{
				Type:        TypeNewUrgent,
				IssueID:     is.ID,
				Title:       is.Title,
				NewPriority: intPtr(is.Priority),
				DetectedAt:  now,
			})
		}

		if is.Status != hook.StatusClosed && hook.HasLabel(is.Labels, PauseLabel) && hook.HasLabel(is.Labels, harnessLabel) {
			if !check.ShouldPause {
				check.ShouldPause = true
				check.PauseReason = is.Title
			}
			check.Redirects = append(check.Redirects, Redirect{
				Type:       TypePauseRequested,
				IssueID:    is.ID,
				Title:      is.Title,
				DetectedAt: now,
			})
		}
	}
	return check
}

// RequiresImmediateAction reports whether any redirect should hard-pause a run.
func RequiresImmediateAction(redirects []Redirect) bool {
	for _, r := range redirects {
		if r.Type == TypePauseRequested || r.Type == TypeNewUrgent {
			return true
		}
	}
	return false
}

// FormatNotes renders redirects as a markdown list for checkpoint notes.
func FormatNotes(redirects []Redirect) string {
	if len(redirects) == 0 {
		return ""
	}
	sorted := make([]Redirect, len(redirects))
	copy(sorted, redirects)
	sort.SliceStable(sorted, func(i, j int) bool {
		return typeRank(sorted[i].Type) < typeRank(sorted[j].Type)
	})

	var b strings.Builder
	b.WriteString("## Redirects\n\n")
	for _, r := range sorted {
		b.WriteString("- ")
		b.WriteString(Describe(r))
		b.WriteString("\n")
	}
	return b.String()
}

// Describe renders a single redirect as one line.
func Describe(r Redirect) string {
	switch r.Type {
	case TypePriorityChange:
		return fmt.Sprintf("**Priority escalated** %s (%s): P%d -> P%d", r.IssueID, r.Title, deref(r.OldPriority), deref(r.NewPriority))
	case TypeIssueClosed:
		return fmt.Sprintf("**Closed externally** %s (%s)", r.IssueID, r.Title)
	case TypeNewUrgent:
		return fmt.Sprintf("**New urgent issue** %s (%s): P%d", r.IssueID, r.Title, deref(r.NewPriority))
	case TypePauseRequested:
		return fmt.Sprintf("**Pause requested** by %s: %s", r.IssueID, r.Title)
	}
	return fmt.Sprintf("%s %s (%s)", r.Type, r.IssueID, r.Title)
}

func typeRank(t string) int {
	switch t {
	case TypePauseRequested:
		return 0
	case TypeNewUrgent:
		return 1
	case TypePriorityChange:
		return 2
	}
	return 3
}

func intPtr(v int) *int { return &v }

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
