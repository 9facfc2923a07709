package primary

import (
	"context"

	"github.com/example/harness/internal/core/redirect"
)

// RedirectService defines the primary port for redirect detection.
// It keeps no state; callers thread snapshots from one check to the next.
type RedirectService interface {
	// TakeSnapshot captures the current priority and status of every issue.
	TakeSnapshot(ctx context.Context) (*redirect.Snapshot, error)

	// CheckForRedirects rescans the store and compares it with old.
	CheckForRedirects(ctx context.Context, old *redirect.Snapshot, harnessID string) (*redirect.Check, error)

	// RequiresImmediateAction reports whether the redirects demand a hard pause.
	RequiresImmediateAction(redirects []redirect.Redirect) bool

	// FormatRedirectNotes renders redirects as markdown for checkpoint notes.
	FormatRedirectNotes(redirects []redirect.Redirect) string

	// LogRedirect records a redirect in the structured log.
	LogRedirect(ctx context.Context, r redirect.Redirect)
}
