package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/example/harness/internal/ports/primary"
)

// Convoy styles
var (
	convoyTitleStyle    = lipgloss.NewStyle().Bold(true)
	convoyNameStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	convoyProgressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	convoyEmptyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	convoyFailedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

const progressBarWidth = 20

// ConvoyAdapter is a thin adapter that translates CLI operations to ConvoyService calls.
type ConvoyAdapter struct {
	service primary.ConvoyService
	out     io.Writer
}

// NewConvoyAdapter creates a new ConvoyAdapter with the given service.
func NewConvoyAdapter(service primary.ConvoyService, out io.Writer) *ConvoyAdapter {
	return &ConvoyAdapter{
		service: service,
		out:     out,
	}
}

// Create labels the issues and creates the convoy sentinel.
func (a *ConvoyAdapter) Create(ctx context.Context, req primary.CreateConvoyRequest) error {
	convoy, err := a.service.CreateConvoy(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "✓ Created convoy %s: %s\n", convoy.Name, convoy.Title)
	fmt.Fprintf(a.out, "  Sentinel: %s\n", convoy.SentinelID)
	fmt.Fprintf(a.out, "  Issues:   %d\n", len(req.IssueIDs))
	return nil
}

// Status prints the full view of one convoy.
func (a *ConvoyAdapter) Status(ctx context.Context, name string) error {
	convoy, err := a.service.GetConvoy(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to get convoy: %w", err)
	}
	if convoy == nil {
		fmt.Fprintf(a.out, "Convoy %s not found\n", name)
		return nil
	}

	fmt.Fprintf(a.out, "\n%s %s\n", convoyTitleStyle.Render(convoy.Title), convoyNameStyle.Render("("+convoy.Name+")"))
	if convoy.Description != "" {
		fmt.Fprintf(a.out, "%s\n", convoy.Description)
	}
	fmt.Fprintf(a.out, "\n%s %.1f%%  %d/%d complete\n",
		renderProgressBar(convoy.CompletedIssues, convoy.TotalIssues, progressBarWidth),
		convoy.Progress, convoy.CompletedIssues, convoy.TotalIssues)
	fmt.Fprintf(a.out, "In progress: %d  Failed: %s\n", convoy.InProgressIssues, failedCount(convoy.FailedIssues))
	if len(convoy.Repositories) > 0 {
		fmt.Fprintf(a.out, "Repositories: %s\n", strings.Join(convoy.Repositories, ", "))
	}

	if len(convoy.Issues) > 0 {
		fmt.Fprintf(a.out, "\n%-12s %-4s %-12s %-12s %s\n", "ID", "PRI", "STATUS", "QUEUE", "TITLE")
		fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────")
		for _, i := range convoy.Issues {
			fmt.Fprintf(a.out, "%-12s P%-3d %-12s %-12s %s\n", i.ID, i.Priority, i.Status, queueState(i.Labels), i.Title)
		}
	}
	fmt.Fprintln(a.out)

	return nil
}

// List prints one line per convoy.
func (a *ConvoyAdapter) List(ctx context.Context) error {
	convoys, err := a.service.ListConvoys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list convoys: %w", err)
	}

	if len(convoys) == 0 {
		fmt.Fprintln(a.out, "No convoys found")
		return nil
	}

	fmt.Fprintf(a.out, "\n%-20s %-9s %-12s %s\n", "NAME", "DONE", "PROGRESS", "TITLE")
	fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────")
	for _, c := range convoys {
		done := fmt.Sprintf("%d/%d", c.CompletedIssues, c.TotalIssues)
		fmt.Fprintf(a.out, "%-20s %-9s %s %s\n", c.Name, done, renderProgressBar(c.CompletedIssues, c.TotalIssues, 10), c.Title)
	}
	fmt.Fprintln(a.out)

	return nil
}

// Add adds issues to a convoy.
func (a *ConvoyAdapter) Add(ctx context.Context, name string, issueIDs []string) error {
	for _, id := range issueIDs {
		if err := a.service.AddToConvoy(ctx, name, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✓ Added %s to convoy %s\n", id, name)
	}
	return nil
}

// Remove removes issues from a convoy.
func (a *ConvoyAdapter) Remove(ctx context.Context, name string, issueIDs []string) error {
	for _, id := range issueIDs {
		if err := a.service.RemoveFromConvoy(ctx, name, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✓ Removed %s from convoy %s\n", id, name)
	}
	return nil
}

// Next prints the convoy's next unit of work.
func (a *ConvoyAdapter) Next(ctx context.Context, name string) error {
	issue, err := a.service.GetNextIssue(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to get next issue: %w", err)
	}
	if issue == nil {
		fmt.Fprintf(a.out, "No ready work in convoy %s\n", name)
		return nil
	}
	fmt.Fprintf(a.out, "%s P%d %s\n", issue.ID, issue.Priority, issue.Title)
	return nil
}

// renderProgressBar draws a fixed-width bar of completed over total.
func renderProgressBar(completed, total, width int) string {
	if total <= 0 {
		return convoyEmptyStyle.Render(strings.Repeat("░", width))
	}
	filled := (completed * width) / total
	if filled > width {
		filled = width
	}
	return convoyProgressStyle.Render(strings.Repeat("█", filled)) +
		convoyEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func failedCount(n int) string {
	if n == 0 {
		return "0"
	}
	return convoyFailedStyle.Render(fmt.Sprint(n))
}
