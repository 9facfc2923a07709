package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/harness/internal/core/redirect"
	"github.com/example/harness/internal/logging"
	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/ports/secondary"
)

// RedirectServiceImpl implements the RedirectService interface.
type RedirectServiceImpl struct {
	store  secondary.IssueStore
	logger *slog.Logger
	now    func() time.Time
}

// NewRedirectService creates a new RedirectService with injected dependencies.
func NewRedirectService(store secondary.IssueStore, logger *slog.Logger) *RedirectServiceImpl {
	return &RedirectServiceImpl{
		store:  store,
		logger: logging.OrDefault(logger),
		now:    time.Now,
	}
}

// SetClock replaces the time source (tests).
func (s *RedirectServiceImpl) SetClock(now func() time.Time) {
	s.now = now
}

// TakeSnapshot captures every issue. Unlike the convoy reads a failed scan
// is an error: an empty snapshot would make every issue look new next time.
func (s *RedirectServiceImpl) TakeSnapshot(ctx context.Context) (*redirect.Snapshot, error) {
	observed, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	return redirect.NewSnapshot(observed, s.now()), nil
}

// CheckForRedirects rescans the store and compares it with old.
func (s *RedirectServiceImpl) CheckForRedirects(ctx context.Context, old *redirect.Snapshot, harnessID string) (*redirect.Check, error) {
	observed, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	check := redirect.Detect(old, observed, harnessID, s.now())
	s.logger.Debug("checked for redirects",
		"harness", harnessID,
		"issues", len(observed),
		"redirects", len(check.Redirects),
		"should_pause", check.ShouldPause,
	)
	return check, nil
}

// RequiresImmediateAction reports whether the redirects demand a hard pause.
func (s *RedirectServiceImpl) RequiresImmediateAction(redirects []redirect.Redirect) bool {
	return redirect.RequiresImmediateAction(redirects)
}

// FormatRedirectNotes renders redirects as markdown for checkpoint notes.
func (s *RedirectServiceImpl) FormatRedirectNotes(redirects []redirect.Redirect) string {
	return redirect.FormatNotes(redirects)
}

// LogRedirect records a redirect in the structured log.
func (s *RedirectServiceImpl) LogRedirect(ctx context.Context, r redirect.Redirect) {
	attrs := []any{
		"type", r.Type,
		"issue", r.IssueID,
		"title", r.Title,
		"detected_at", r.DetectedAt,
	}
	if r.OldPriority != nil {
		attrs = append(attrs, "old_priority", *r.OldPriority)
	}
	if r.NewPriority != nil {
		attrs = append(attrs, "new_priority", *r.NewPriority)
	}

	level := slog.LevelInfo
	if redirect.RequiresImmediateAction([]redirect.Redirect{r}) {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, redirect.Describe(r), attrs...)
}

func (s *RedirectServiceImpl) scan(ctx context.Context) ([]redirect.Observed, error) {
	records, err := s.store.List(ctx, secondary.IssueFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to scan issues: %w", err)
	}
	observed := make([]redirect.Observed, len(records))
	for i, r := range records {
		observed[i] = redirect.Observed{
			ID:       r.ID,
			Title:    r.Title,
			Priority: r.Priority,
			Status:   r.Status,
			Labels:   r.Labels,
		}
	}
	return observed, nil
}

// Ensure RedirectServiceImpl implements the interface
var _ primary.RedirectService = (*RedirectServiceImpl)(nil)
