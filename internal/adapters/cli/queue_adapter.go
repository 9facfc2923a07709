// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle argument parsing, output formatting,
// but delegate business logic to services.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/example/harness/internal/ports/primary"
)

// QueueAdapter is a thin adapter that translates CLI operations to HookQueue calls.
type QueueAdapter struct {
	queue primary.HookQueue
	out   io.Writer
}

// NewQueueAdapter creates a new QueueAdapter with the given queue.
func NewQueueAdapter(queue primary.HookQueue, out io.Writer) *QueueAdapter {
	return &QueueAdapter{
		queue: queue,
		out:   out,
	}
}

// Claim claims the most urgent ready issue matching the filter.
func (a *QueueAdapter) Claim(ctx context.Context, labels []string, maxPriority *int) error {
	res, err := a.queue.ClaimWork(ctx, primary.ClaimOptions{Labels: labels, MaxPriority: maxPriority})
	if err != nil {
		return fmt.Errorf("failed to claim work: %w", err)
	}
	if !res.Success {
		fmt.Fprintf(a.out, "Nothing claimed: %s\n", res.Reason)
		return nil
	}

	fmt.Fprintf(a.out, "✓ Claimed %s: %s\n", res.Issue.ID, res.Issue.Title)
	fmt.Fprintf(a.out, "  Agent:    %s\n", res.Claim.AgentID)
	fmt.Fprintf(a.out, "  Priority: P%d\n", res.Issue.Priority)
	return nil
}

// Release returns a claimed issue to the queue.
func (a *QueueAdapter) Release(ctx context.Context, issueID, reason string) error {
	res, err := a.queue.ReleaseWork(ctx, issueID, reason)
	if err != nil {
		return err
	}

	if res.NewState == primary.QueueStateFailed {
		fmt.Fprintf(a.out, "%s %s failed after %d retries\n", color.New(color.FgRed).Sprint("✗"), issueID, res.RetryCount)
		return nil
	}
	fmt.Fprintf(a.out, "✓ Released %s (retry %d)\n", issueID, res.RetryCount)
	return nil
}

// Complete closes an issue and removes its hook labels.
func (a *QueueAdapter) Complete(ctx context.Context, issueID string) error {
	if err := a.queue.CompleteWork(ctx, issueID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "✓ Completed %s\n", issueID)
	return nil
}

// Fail moves an issue straight to hook:failed.
func (a *QueueAdapter) Fail(ctx context.Context, issueID, reason string) error {
	if err := a.queue.MarkFailed(ctx, issueID, reason); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "✓ Marked %s failed: %s\n", issueID, reason)
	return nil
}

// Requeue moves a failed issue back to ready.
func (a *QueueAdapter) Requeue(ctx context.Context, issueID string, resetRetries bool) error {
	if err := a.queue.RequeueFailed(ctx, issueID, primary.RequeueOptions{ResetRetries: resetRetries}); err != nil {
		return err
	}
	if resetRetries {
		fmt.Fprintf(a.out, "✓ Requeued %s (retries reset)\n", issueID)
		return nil
	}
	fmt.Fprintf(a.out, "✓ Requeued %s\n", issueID)
	return nil
}

// Sweep releases stale claims.
func (a *QueueAdapter) Sweep(ctx context.Context) error {
	released, err := a.queue.ReleaseStaleClaims(ctx)
	if err != nil {
		return fmt.Errorf("failed to release stale claims: %w", err)
	}
	if len(released) == 0 {
		fmt.Fprintln(a.out, "No stale claims")
		return nil
	}
	fmt.Fprintf(a.out, "✓ Released %d stale claim(s)\n", len(released))
	for _, id := range released {
		fmt.Fprintf(a.out, "  - %s\n", id)
	}
	return nil
}

// Stats prints issue counts per queue state.
func (a *QueueAdapter) Stats(ctx context.Context) error {
	stats, err := a.queue.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get queue stats: %w", err)
	}

	fmt.Fprintf(a.out, "\n%-12s %s\n", "STATE", "COUNT")
	fmt.Fprintln(a.out, "──────────────────────")
	fmt.Fprintf(a.out, "%-12s %d\n", primary.QueueStateReady, stats.Ready)
	fmt.Fprintf(a.out, "%-12s %d\n", primary.QueueStateInProgress, stats.InProgress)
	fmt.Fprintf(a.out, "%-12s %s\n", primary.QueueStateFailed, countColor(stats.Failed, color.FgRed))
	fmt.Fprintf(a.out, "%-12s %s\n", "stale", countColor(stats.StaleClaims, color.FgYellow))
	fmt.Fprintln(a.out)
	return nil
}

func countColor(n int, attr color.Attribute) string {
	if n == 0 {
		return "0"
	}
	return color.New(attr).Sprint(n)
}
