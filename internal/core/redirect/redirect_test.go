package redirect

import (
	"strings"
	"testing"
	"time"

	"github.com/example/harness/internal/core/hook"
)

var (
	t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(5 * time.Minute)
)

func TestNewSnapshot(t *testing.T) {
	s := NewSnapshot([]Observed{
		{ID: "a", Priority: 0, Status: hook.StatusOpen},
		{ID: "b", Priority: 1, Status: hook.StatusClosed},
		{ID: "c", Priority: 2, Status: hook.StatusOpen},
		{ID: "d", Priority: 1, Status: hook.StatusInProgress},
	}, t0)

	if len(s.Issues) != 4 {
		t.Errorf("len(Issues) = %d, want 4", len(s.Issues))
	}
	if !s.UrgentIDs["a"] || !s.UrgentIDs["d"] || s.UrgentIDs["b"] || s.UrgentIDs["c"] {
		t.Errorf("UrgentIDs = %v, want {a, d}", s.UrgentIDs)
	}
	if !s.Timestamp.Equal(t0) {
		t.Errorf("Timestamp = %v", s.Timestamp)
	}
}

func TestDetect_PriorityChangeOnly(t *testing.T) {
	old := NewSnapshot([]Observed{{ID: "issue1", Priority: 2, Status: hook.StatusOpen}}, t0)

	check := Detect(old, []Observed{{ID: "issue1", Title: "Outage", Priority: 0, Status: hook.StatusOpen}}, "abc", t1)

	if len(check.Redirects) != 1 {
		t.Fatalf("expected exactly one redirect, got %+v", check.Redirects)
	}
	r := check.Redirects[0]
	if r.Type != TypePriorityChange || r.IssueID != "issue1" {
		t.Errorf("redirect = %+v, want priority_change for issue1", r)
	}
	if *r.OldPriority != 2 || *r.NewPriority != 0 {
		t.Errorf("priorities = %d -> %d, want 2 -> 0", *r.OldPriority, *r.NewPriority)
	}
	if check.ShouldPause {
		t.Error("ShouldPause must stay false without a pause label")
	}
	if check.NewSnapshot == nil || !check.NewSnapshot.UrgentIDs["issue1"] {
		t.Error("expected new snapshot to mark issue1 urgent")
	}
}

func TestDetect_NewUrgentVersusPriorityChange(t *testing.T) {
	old := NewSnapshot([]Observed{{ID: "existing", Priority: 2, Status: hook.StatusOpen}}, t0)

	check := Detect(old, []Observed{
		{ID: "existing", Priority: 0, Status: hook.StatusOpen},
		{ID: "brand-new", Priority: 0, Status: hook.StatusOpen},
	}, "abc", t1)

	types := map[string]string{}
	for _, r := range check.Redirects {
		if prev, dup := types[r.IssueID]; dup {
			t.Errorf("issue %s categorised twice: %s and %s", r.IssueID, prev, r.Type)
		}
		types[r.IssueID] = r.Type
	}
	if types["existing"] != TypePriorityChange {
		t.Errorf("existing issue type = %q, want priority_change", types["existing"])
	}
	if types["brand-new"] != TypeNewUrgent {
		t.Errorf("new issue type = %q, want new_urgent", types["brand-new"])
	}
}

func TestDetect_NoRedirects(t *testing.T) {
	old := NewSnapshot([]Observed{
		{ID: "a", Priority: 0, Status: hook.StatusOpen},
		{ID: "b", Priority: 3, Status: hook.StatusOpen},
	}, t0)

	check := Detect(old, []Observed{
		{ID: "a", Priority: 1, Status: hook.StatusOpen},   // urgent before and after
		{ID: "b", Priority: 2, Status: hook.StatusOpen},   // not urgent
		{ID: "c", Priority: 3, Status: hook.StatusOpen},   // new but not urgent
		{ID: "d", Priority: 0, Status: hook.StatusClosed}, // new, urgent priority but closed
	}, "abc", t1)

	if len(check.Redirects) != 0 {
		t.Errorf("expected no redirects, got %+v", check.Redirects)
	}
}

func TestDetect_IssueClosed(t *testing.T) {
	old := NewSnapshot([]Observed{
		{ID: "a", Priority: 2, Status: hook.StatusInProgress},
		{ID: "b", Priority: 2, Status: hook.StatusClosed},
	}, t0)

	check := Detect(old, []Observed{
		{ID: "a", Title: "Done elsewhere", Priority: 2, Status: hook.StatusClosed},
		{ID: "b", Priority: 2, Status: hook.StatusClosed},
	}, "abc", t1)

	if len(check.Redirects) != 1 || check.Redirects[0].Type != TypeIssueClosed || check.Redirects[0].IssueID != "a" {
		t.Errorf("expected one issue_closed for a, got %+v", check.Redirects)
	}
	if RequiresImmediateAction(check.Redirects) {
		t.Error("issue_closed alone should not require immediate action")
	}
}

func TestDetect_PauseRequested(t *testing.T) {
	old := NewSnapshot([]Observed{{ID: "p", Priority: 3, Status: hook.StatusOpen}}, t0)

	check := Detect(old, []Observed{
		{ID: "p", Title: "Stop for release freeze", Priority: 3, Status: hook.StatusOpen, Labels: []string{"pause", "harness:abc"}},
		{ID: "q", Title: "Other harness", Priority: 3, Status: hook.StatusOpen, Labels: []string{"pause", "harness:xyz"}},
		{ID: "r", Title: "Closed request", Priority: 3, Status: hook.StatusClosed, Labels: []string{"pause", "harness:abc"}},
	}, "abc", t1)

	if !check.ShouldPause {
		t.Fatal("expected ShouldPause")
	}
	if check.PauseReason != "Stop for release freeze" {
		t.Errorf("PauseReason = %q", check.PauseReason)
	}
	if len(check.Redirects) != 1 || check.Redirects[0].Type != TypePauseRequested {
		t.Errorf("expected one pause_requested, got %+v", check.Redirects)
	}
	if !RequiresImmediateAction(check.Redirects) {
		t.Error("pause_requested should require immediate action")
	}
}

func TestDetect_PauseWithoutOldSnapshot(t *testing.T) {
	check := Detect(nil, []Observed{
		{ID: "p", Title: "halt", Priority: 3, Status: hook.StatusOpen, Labels: []string{"harness:abc", "pause"}},
	}, "abc", t1)
	if !check.ShouldPause || check.PauseReason != "halt" {
		t.Errorf("expected pause regardless of snapshot, got %+v", check)
	}
}

func TestRequiresImmediateAction(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		want  bool
	}{
		{name: "empty", types: nil, want: false},
		{name: "priority change", types: []string{TypePriorityChange}, want: false},
		{name: "closed", types: []string{TypeIssueClosed}, want: false},
		{name: "new urgent", types: []string{TypeIssueClosed, TypeNewUrgent}, want: true},
		{name: "pause", types: []string{TypePauseRequested}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rs []Redirect
			for _, ty := range tt.types {
				rs = append(rs, Redirect{Type: ty})
			}
			if got := RequiresImmediateAction(rs); got != tt.want {
				t.Errorf("RequiresImmediateAction = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatNotes(t *testing.T) {
	if FormatNotes(nil) != "" {
		t.Error("expected empty notes for no redirects")
	}

	from, to := 3, 0
	notes := FormatNotes([]Redirect{
		{Type: TypePriorityChange, IssueID: "a-1", Title: "Slow page", OldPriority: &from, NewPriority: &to},
		{Type: TypePauseRequested, IssueID: "a-2", Title: "freeze"},
	})

	if !strings.HasPrefix(notes, "## Redirects\n\n- **Pause requested** by a-2: freeze\n") {
		t.Errorf("pause should be listed first, got:\n%s", notes)
	}
	if !strings.Contains(notes, "- **Priority escalated** a-1 (Slow page): P3 -> P0") {
		t.Errorf("missing priority line:\n%s", notes)
	}
}
