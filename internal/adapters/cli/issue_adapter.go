package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/example/harness/internal/core/hook"
	"github.com/example/harness/internal/ports/primary"
)

// IssueAdapter is a thin adapter that translates CLI operations to IssueService calls.
type IssueAdapter struct {
	service primary.IssueService
	out     io.Writer
}

// NewIssueAdapter creates a new IssueAdapter with the given service.
func NewIssueAdapter(service primary.IssueService, out io.Writer) *IssueAdapter {
	return &IssueAdapter{
		service: service,
		out:     out,
	}
}

// Create creates a new issue.
func (a *IssueAdapter) Create(ctx context.Context, req primary.CreateIssueRequest) error {
	issue, err := a.service.CreateIssue(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "✓ Created issue %s: %s\n", issue.ID, issue.Title)
	if req.Ready {
		fmt.Fprintf(a.out, "  Queued as %s\n", hook.LabelReady)
	}
	return nil
}

// List lists issues matching the filters.
func (a *IssueAdapter) List(ctx context.Context, filters primary.IssueFilters) error {
	issues, err := a.service.ListIssues(ctx, filters)
	if err != nil {
		return fmt.Errorf("failed to list issues: %w", err)
	}

	if len(issues) == 0 {
		fmt.Fprintln(a.out, "No issues found")
		return nil
	}

	fmt.Fprintf(a.out, "\n%-12s %-4s %-12s %-12s %s\n", "ID", "PRI", "STATUS", "QUEUE", "TITLE")
	fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────")
	for _, i := range issues {
		fmt.Fprintf(a.out, "%-12s P%-3d %-12s %-12s %s\n", i.ID, i.Priority, i.Status, queueState(i.Labels), i.Title)
	}
	fmt.Fprintln(a.out)

	return nil
}

// Show displays details for a single issue.
func (a *IssueAdapter) Show(ctx context.Context, id string) (*primary.Issue, error) {
	issue, err := a.service.GetIssue(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

	fmt.Fprintf(a.out, "\nIssue:    %s\n", issue.ID)
	fmt.Fprintf(a.out, "Title:    %s\n", issue.Title)
	fmt.Fprintf(a.out, "Type:     %s\n", issue.IssueType)
	fmt.Fprintf(a.out, "Priority: P%d\n", issue.Priority)
	fmt.Fprintf(a.out, "Status:   %s\n", issue.Status)
	fmt.Fprintf(a.out, "Queue:    %s\n", queueState(issue.Labels))
	if len(issue.Labels) > 0 {
		fmt.Fprintf(a.out, "Labels:   %s\n", strings.Join(issue.Labels, ", "))
	}
	if claim, ok := hook.ParseClaim(issue.Description); ok {
		fmt.Fprintf(a.out, "Claimed:  by %s at %s (heartbeat %s)\n",
			claim.AgentID,
			claim.ClaimedAt.Format("2006-01-02 15:04:05"),
			claim.LastHeartbeat.Format("15:04:05"))
	}
	if n := hook.RetryCount(issue.Description); n > 0 {
		fmt.Fprintf(a.out, "Retries:  %d\n", n)
	}
	if reason := hook.FailureReason(issue.Description); reason != "" {
		fmt.Fprintf(a.out, "Failure:  %s\n", reason)
	}
	if body := hook.StripMarkers(issue.Description); body != "" {
		fmt.Fprintf(a.out, "\n%s\n", body)
	}
	fmt.Fprintln(a.out)

	return issue, nil
}

// History prints the audit trail of an issue.
func (a *IssueAdapter) History(ctx context.Context, id string) error {
	events, err := a.service.GetHistory(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	if len(events) == 0 {
		fmt.Fprintf(a.out, "No history for %s\n", id)
		return nil
	}

	fmt.Fprintf(a.out, "\n%-20s %-10s %-12s %s\n", "TIME", "ACTION", "FIELD", "CHANGE")
	fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────")
	for _, e := range events {
		change := e.NewValue
		if e.OldValue != "" {
			change = e.OldValue + " → " + e.NewValue
		}
		fmt.Fprintf(a.out, "%-20s %-10s %-12s %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.Field, change)
	}
	fmt.Fprintln(a.out)

	return nil
}

// Update changes priority and/or status.
func (a *IssueAdapter) Update(ctx context.Context, req primary.UpdateIssueRequest) error {
	if err := a.service.UpdateIssue(ctx, req); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "✓ Updated issue %s\n", req.IssueID)
	return nil
}

// queueState renders the hook state of an issue, colored for terminals.
func queueState(labels []string) string {
	state := hook.ResolveState(labels)
	switch state {
	case hook.StateNone:
		return "-"
	case hook.StateFailed:
		return color.New(color.FgRed).Sprint(string(state))
	case hook.StateInProgress:
		return color.New(color.FgYellow).Sprint(string(state))
	}
	return string(state)
}
