package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/example/harness/internal/core/redirect"
	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/ports/secondary"
)

// mockRedirectService implements primary.RedirectService for testing
type mockRedirectService struct {
	snapshot *redirect.Snapshot
	check    *redirect.Check
	logged   []redirect.Redirect
	lastOld  *redirect.Snapshot
}

func (m *mockRedirectService) TakeSnapshot(ctx context.Context) (*redirect.Snapshot, error) {
	return m.snapshot, nil
}

func (m *mockRedirectService) CheckForRedirects(ctx context.Context, old *redirect.Snapshot, harnessID string) (*redirect.Check, error) {
	m.lastOld = old
	return m.check, nil
}

func (m *mockRedirectService) RequiresImmediateAction(redirects []redirect.Redirect) bool {
	return redirect.RequiresImmediateAction(redirects)
}

func (m *mockRedirectService) FormatRedirectNotes(redirects []redirect.Redirect) string {
	return redirect.FormatNotes(redirects)
}

func (m *mockRedirectService) LogRedirect(ctx context.Context, r redirect.Redirect) {
	m.logged = append(m.logged, r)
}

var _ primary.RedirectService = (*mockRedirectService)(nil)

// memCheckpoints is an in-memory CheckpointStore.
type memCheckpoints struct {
	saved map[string]*secondary.Checkpoint
}

func (m *memCheckpoints) Load(ctx context.Context, harnessID string) (*secondary.Checkpoint, error) {
	return m.saved[harnessID], nil
}

func (m *memCheckpoints) Save(ctx context.Context, cp *secondary.Checkpoint) error {
	if m.saved == nil {
		m.saved = make(map[string]*secondary.Checkpoint)
	}
	m.saved[cp.HarnessID] = cp
	return nil
}

func TestRedirectAdapter_Snapshot_KeepsCheckpointState(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := redirect.NewSnapshot([]redirect.Observed{{ID: "hs-1", Priority: 2, Status: "open"}}, at)
	checkpoints := &memCheckpoints{saved: map[string]*secondary.Checkpoint{
		"main": {HarnessID: "main", SessionsCompleted: 4, Notes: "earlier"},
	}}
	var buf bytes.Buffer
	adapter := NewRedirectAdapter(&mockRedirectService{snapshot: snap}, checkpoints, &buf)

	if err := adapter.Snapshot(context.Background(), "main"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	cp := checkpoints.saved["main"]
	if cp.Snapshot != snap || cp.SessionsCompleted != 4 || cp.Notes != "earlier" {
		t.Errorf("expected snapshot stored alongside existing state, got %+v", cp)
	}
	if !strings.Contains(buf.String(), "Snapshot of 1 issue(s) saved for harness main") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestRedirectAdapter_Check_NoSnapshot(t *testing.T) {
	adapter := NewRedirectAdapter(&mockRedirectService{}, &memCheckpoints{}, &bytes.Buffer{})

	_, err := adapter.Check(context.Background(), "main")
	if err == nil || !strings.Contains(err.Error(), "redirect snapshot") {
		t.Errorf("expected hint to take a snapshot, got %v", err)
	}
}

func TestRedirectAdapter_Check(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	old := redirect.NewSnapshot(nil, at)
	oldP, newP := 3, 1

	tests := []struct {
		name      string
		check     *redirect.Check
		wantPause bool
		want      []string
	}{
		{
			name:  "nothing changed",
			check: &redirect.Check{NewSnapshot: old},
			want:  []string{"No redirects since 2026-03-01 09:00:00"},
		},
		{
			name: "soft redirect",
			check: &redirect.Check{Redirects: []redirect.Redirect{
				{Type: redirect.TypePriorityChange, IssueID: "hs-2", Title: "Docs", OldPriority: &oldP, NewPriority: &newP},
			}},
			want: []string{"priority_change", "hs-2", "P3→P1"},
		},
		{
			name: "new urgent pauses",
			check: &redirect.Check{Redirects: []redirect.Redirect{
				{Type: redirect.TypeNewUrgent, IssueID: "hs-9", Title: "Prod down", NewPriority: intPtr(0)},
			}},
			wantPause: true,
			want:      []string{"new_urgent", "would pause"},
		},
		{
			name: "pause requested",
			check: &redirect.Check{
				Redirects:   []redirect.Redirect{{Type: redirect.TypePauseRequested, IssueID: "hs-5", Title: "Stop"}},
				ShouldPause: true,
				PauseReason: "pause requested on hs-5",
			},
			wantPause: true,
			want:      []string{"would pause: pause requested on hs-5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &mockRedirectService{check: tt.check}
			checkpoints := &memCheckpoints{saved: map[string]*secondary.Checkpoint{
				"main": {HarnessID: "main", Snapshot: old},
			}}
			var buf bytes.Buffer
			adapter := NewRedirectAdapter(service, checkpoints, &buf)

			pause, err := adapter.Check(context.Background(), "main")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if pause != tt.wantPause {
				t.Errorf("pause = %v, want %v", pause, tt.wantPause)
			}
			if service.lastOld != old {
				t.Error("expected the saved snapshot to be compared")
			}
			if checkpoints.saved["main"].Snapshot != old {
				t.Error("check must not replace the saved snapshot")
			}
			if len(service.logged) != len(tt.check.Redirects) {
				t.Errorf("expected every redirect logged, got %d", len(service.logged))
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("expected output to contain %q, got %q", want, buf.String())
				}
			}
		})
	}
}

func intPtr(i int) *int { return &i }
