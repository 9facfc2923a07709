package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/harness/internal/core/convoy"
	"github.com/example/harness/internal/logging"
	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/ports/secondary"
)

// ConvoyServiceImpl implements the ConvoyService interface.
type ConvoyServiceImpl struct {
	store       secondary.IssueStore
	repoAliases map[string]string
	logger      *slog.Logger
}

// NewConvoyService creates a new ConvoyService with injected dependencies.
// repoAliases maps issue id prefixes to repository names and may be nil.
func NewConvoyService(store secondary.IssueStore, repoAliases map[string]string, logger *slog.Logger) *ConvoyServiceImpl {
	return &ConvoyServiceImpl{
		store:       store,
		repoAliases: repoAliases,
		logger:      logging.OrDefault(logger),
	}
}

// CreateConvoy labels every issue, then creates the sentinel.
func (s *ConvoyServiceImpl) CreateConvoy(ctx context.Context, req primary.CreateConvoyRequest) (*primary.Convoy, error) {
	label := convoy.Label(req.Name)

	existing, err := s.store.List(ctx, secondary.IssueFilters{Labels: []string{label}, Type: convoy.TypeConvoy})
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing convoy: %w", err)
	}
	if guard := convoy.CanCreate(req.Name, len(existing) > 0); !guard.Allowed {
		return nil, guard.Error()
	}

	for _, id := range req.IssueIDs {
		if err := s.store.AddLabel(ctx, id, label); err != nil {
			return nil, fmt.Errorf("failed to add %s to convoy %s: %w", id, req.Name, err)
		}
	}

	title := req.Title
	if title == "" {
		title = req.Name
	}
	sentinel, err := s.store.Create(ctx, secondary.CreateIssueRecord{
		Title:       title,
		Description: req.Description,
		Type:        convoy.TypeConvoy,
		Labels:      []string{label},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create convoy sentinel: %w", err)
	}
	s.logger.Info("created convoy", "convoy", req.Name, "sentinel", sentinel.ID, "issues", len(req.IssueIDs))

	view, err := s.GetConvoy(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	if view == nil {
		// The store has not caught up with its own writes; report what we know.
		view = &primary.Convoy{Name: req.Name, Title: title, Description: req.Description, SentinelID: sentinel.ID}
	}
	return view, nil
}

// GetConvoy recomputes the convoy from its labelled issues.
func (s *ConvoyServiceImpl) GetConvoy(ctx context.Context, name string) (*primary.Convoy, error) {
	records := s.issuesWithLabel(ctx, convoy.Label(name))
	if len(records) == 0 {
		return nil, nil
	}

	summary := convoy.Summarize(toMembers(records), s.repoAliases)
	view := &primary.Convoy{
		Name:             name,
		TotalIssues:      summary.TotalIssues,
		CompletedIssues:  summary.CompletedIssues,
		InProgressIssues: summary.InProgressIssues,
		FailedIssues:     summary.FailedIssues,
		Progress:         summary.Progress,
		Repositories:     summary.Repositories,
	}
	byID := make(map[string]*secondary.IssueRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	if summary.Sentinel != nil {
		sentinel := byID[summary.Sentinel.ID]
		view.SentinelID = sentinel.ID
		view.Title = sentinel.Title
		view.Description = sentinel.Description
	} else {
		view.Title = name
	}
	for _, m := range summary.Work {
		view.Issues = append(view.Issues, recordToIssue(byID[m.ID]))
	}
	return view, nil
}

// AddToConvoy adds the convoy label to an issue.
func (s *ConvoyServiceImpl) AddToConvoy(ctx context.Context, name, issueID string) error {
	if guard := convoy.CanCreate(name, false); !guard.Allowed {
		return guard.Error()
	}
	if err := s.store.AddLabel(ctx, issueID, convoy.Label(name)); err != nil {
		return fmt.Errorf("failed to add %s to convoy %s: %w", issueID, name, err)
	}
	return nil
}

// RemoveFromConvoy removes the convoy label from an issue.
func (s *ConvoyServiceImpl) RemoveFromConvoy(ctx context.Context, name, issueID string) error {
	if err := s.store.RemoveLabel(ctx, issueID, convoy.Label(name)); err != nil {
		return fmt.Errorf("failed to remove %s from convoy %s: %w", issueID, name, err)
	}
	return nil
}

// ListConvoys resolves every sentinel to a full view.
func (s *ConvoyServiceImpl) ListConvoys(ctx context.Context) ([]*primary.Convoy, error) {
	sentinels, err := s.store.List(ctx, secondary.IssueFilters{Type: convoy.TypeConvoy})
	if err != nil {
		s.logger.Warn("failed to list convoys", "error", err)
		return []*primary.Convoy{}, nil
	}

	seen := make(map[string]bool)
	convoys := make([]*primary.Convoy, 0, len(sentinels))
	for _, sentinel := range sentinels {
		name := convoyName(sentinel.Labels)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		view, err := s.GetConvoy(ctx, name)
		if err != nil {
			return nil, err
		}
		if view != nil {
			convoys = append(convoys, view)
		}
	}
	return convoys, nil
}

// GetProgress returns the roll-up numbers; an unknown convoy reports zero.
func (s *ConvoyServiceImpl) GetProgress(ctx context.Context, name string) (*primary.ConvoyProgress, error) {
	view, err := s.GetConvoy(ctx, name)
	if err != nil {
		return nil, err
	}
	progress := &primary.ConvoyProgress{Name: name}
	if view != nil {
		progress.Completed = view.CompletedIssues
		progress.Total = view.TotalIssues
		progress.Progress = view.Progress
	}
	return progress, nil
}

// GetNextIssue returns the most urgent open work issue of the convoy.
func (s *ConvoyServiceImpl) GetNextIssue(ctx context.Context, name string) (*primary.Issue, error) {
	records := s.issuesWithLabel(ctx, convoy.Label(name))
	next := convoy.NextIssue(toMembers(records))
	if next == nil {
		return nil, nil
	}
	for _, r := range records {
		if r.ID == next.ID {
			return recordToIssue(r), nil
		}
	}
	return nil, nil
}

// issuesWithLabel degrades to an empty list when the store fails.
func (s *ConvoyServiceImpl) issuesWithLabel(ctx context.Context, label string) []*secondary.IssueRecord {
	records, err := s.store.List(ctx, secondary.IssueFilters{Labels: []string{label}})
	if err != nil {
		s.logger.Warn("failed to list convoy issues", "label", label, "error", err)
		return nil
	}
	return records
}

func convoyName(labels []string) string {
	for _, l := range labels {
		if name := convoy.NameFromLabel(l); name != "" {
			return name
		}
	}
	return ""
}

func toMembers(records []*secondary.IssueRecord) []convoy.Member {
	members := make([]convoy.Member, len(records))
	for i, r := range records {
		members[i] = convoy.Member{
			ID:        r.ID,
			Title:     r.Title,
			Priority:  r.Priority,
			Status:    r.Status,
			Labels:    r.Labels,
			IssueType: r.IssueType,
		}
	}
	return members
}

// Ensure ConvoyServiceImpl implements the interface
var _ primary.ConvoyService = (*ConvoyServiceImpl)(nil)
