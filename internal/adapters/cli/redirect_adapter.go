package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/example/harness/internal/core/redirect"
	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/ports/secondary"
)

// RedirectAdapter translates redirect commands to RedirectService calls,
// threading snapshots through the harness checkpoint.
type RedirectAdapter struct {
	service     primary.RedirectService
	checkpoints secondary.CheckpointStore
	out         io.Writer
}

// NewRedirectAdapter creates a new RedirectAdapter.
func NewRedirectAdapter(service primary.RedirectService, checkpoints secondary.CheckpointStore, out io.Writer) *RedirectAdapter {
	return &RedirectAdapter{
		service:     service,
		checkpoints: checkpoints,
		out:         out,
	}
}

// Snapshot captures the backlog and stores it in the harness checkpoint.
func (a *RedirectAdapter) Snapshot(ctx context.Context, harnessID string) error {
	snap, err := a.service.TakeSnapshot(ctx)
	if err != nil {
		return err
	}

	cp, err := a.checkpoints.Load(ctx, harnessID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil {
		cp = &secondary.Checkpoint{HarnessID: harnessID}
	}
	cp.Snapshot = snap
	cp.SavedAt = snap.Timestamp
	if err := a.checkpoints.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	fmt.Fprintf(a.out, "✓ Snapshot of %d issue(s) saved for harness %s\n", len(snap.Issues), harnessID)
	return nil
}

// Check compares the backlog with the saved snapshot without replacing it.
// Returns whether the harness would pause.
func (a *RedirectAdapter) Check(ctx context.Context, harnessID string) (bool, error) {
	cp, err := a.checkpoints.Load(ctx, harnessID)
	if err != nil {
		return false, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil || cp.Snapshot == nil {
		return false, fmt.Errorf("no snapshot for harness %s (run `harness redirect snapshot` first)", harnessID)
	}

	check, err := a.service.CheckForRedirects(ctx, cp.Snapshot, harnessID)
	if err != nil {
		return false, err
	}

	if len(check.Redirects) == 0 {
		fmt.Fprintf(a.out, "No redirects since %s\n", cp.Snapshot.Timestamp.Format("2006-01-02 15:04:05"))
		return false, nil
	}

	fmt.Fprintf(a.out, "\n%-16s %-12s %-9s %s\n", "TYPE", "ISSUE", "PRIORITY", "TITLE")
	fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────")
	for _, r := range check.Redirects {
		a.service.LogRedirect(ctx, r)
		fmt.Fprintf(a.out, "%-16s %-12s %-9s %s\n", r.Type, r.IssueID, priorityChange(r), r.Title)
	}
	fmt.Fprintln(a.out)

	pause := check.ShouldPause || a.service.RequiresImmediateAction(check.Redirects)
	if pause {
		reason := check.PauseReason
		if reason == "" {
			reason = "urgent work arrived"
		}
		fmt.Fprintf(a.out, "%s harness %s would pause: %s\n", color.New(color.FgYellow).Sprint("⚠"), harnessID, reason)
	}
	return pause, nil
}

func priorityChange(r redirect.Redirect) string {
	switch {
	case r.OldPriority != nil && r.NewPriority != nil:
		return fmt.Sprintf("P%d→P%d", *r.OldPriority, *r.NewPriority)
	case r.NewPriority != nil:
		return fmt.Sprintf("P%d", *r.NewPriority)
	}
	return "-"
}
