package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/harness/internal/core/hook"
	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/ports/secondary"
)

// IssueServiceImpl implements the IssueService interface.
type IssueServiceImpl struct {
	store  secondary.IssueStore
	events secondary.IssueEventReader // nil when the store keeps no history
}

// NewIssueService creates a new IssueService with injected dependencies.
// events may be nil.
func NewIssueService(store secondary.IssueStore, events secondary.IssueEventReader) *IssueServiceImpl {
	return &IssueServiceImpl{store: store, events: events}
}

// CreateIssue creates a new issue.
func (s *IssueServiceImpl) CreateIssue(ctx context.Context, req primary.CreateIssueRequest) (*primary.Issue, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("issue title is required")
	}
	if req.Priority != nil && *req.Priority < 0 {
		return nil, fmt.Errorf("priority must not be negative (got %d)", *req.Priority)
	}

	labels := req.Labels
	if req.Ready && !hook.HasLabel(labels, hook.LabelReady) {
		labels = append(append([]string{}, labels...), hook.LabelReady)
	}

	record, err := s.store.Create(ctx, secondary.CreateIssueRecord{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Priority:    req.Priority,
		Labels:      labels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	return recordToIssue(record), nil
}

// GetIssue retrieves an issue by ID.
func (s *IssueServiceImpl) GetIssue(ctx context.Context, id string) (*primary.Issue, error) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return recordToIssue(record), nil
}

// ListIssues lists issues matching the filters.
func (s *IssueServiceImpl) ListIssues(ctx context.Context, filters primary.IssueFilters) ([]*primary.Issue, error) {
	records, err := s.store.List(ctx, secondary.IssueFilters{
		Labels: filters.Labels,
		Status: filters.Status,
		Type:   filters.Type,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return recordsToIssues(records), nil
}

// UpdateIssue changes priority and/or status.
func (s *IssueServiceImpl) UpdateIssue(ctx context.Context, req primary.UpdateIssueRequest) error {
	update := secondary.IssueUpdate{Priority: req.Priority}
	if req.Status != "" {
		if !isValidStatus(req.Status) {
			return fmt.Errorf("invalid status %q (expected open, in_progress, closed or blocked)", req.Status)
		}
		status := req.Status
		update.Status = &status
	}
	if req.Priority != nil && *req.Priority < 0 {
		return fmt.Errorf("priority must not be negative (got %d)", *req.Priority)
	}
	if update.Status == nil && update.Priority == nil {
		return fmt.Errorf("nothing to update")
	}
	if err := s.store.Update(ctx, req.IssueID, update); err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
	}
	return nil
}

// AddLabel adds a label to an issue.
func (s *IssueServiceImpl) AddLabel(ctx context.Context, id, label string) error {
	if label == "" {
		return fmt.Errorf("label is required")
	}
	return s.store.AddLabel(ctx, id, label)
}

// RemoveLabel removes a label from an issue.
func (s *IssueServiceImpl) RemoveLabel(ctx context.Context, id, label string) error {
	if label == "" {
		return fmt.Errorf("label is required")
	}
	return s.store.RemoveLabel(ctx, id, label)
}

// GetHistory returns the audit trail of an issue, oldest first.
func (s *IssueServiceImpl) GetHistory(ctx context.Context, id string) ([]*primary.IssueEvent, error) {
	if s.events == nil {
		return nil, fmt.Errorf("the configured issue store keeps no history")
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	records, err := s.events.ListEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	events := make([]*primary.IssueEvent, len(records))
	for i, r := range records {
		events[i] = &primary.IssueEvent{
			IssueID:   r.IssueID,
			ActorID:   r.ActorID,
			Action:    r.Action,
			Field:     r.Field,
			OldValue:  r.OldValue,
			NewValue:  r.NewValue,
			CreatedAt: r.CreatedAt,
		}
	}
	return events, nil
}

func isValidStatus(status string) bool {
	switch status {
	case primary.IssueStatusOpen, primary.IssueStatusInProgress, primary.IssueStatusClosed, primary.IssueStatusBlocked:
		return true
	}
	return false
}

// Helper functions

func recordToIssue(r *secondary.IssueRecord) *primary.Issue {
	if r == nil {
		return nil
	}
	return &primary.Issue{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Priority:    r.Priority,
		Status:      r.Status,
		Labels:      append([]string(nil), r.Labels...),
		IssueType:   r.IssueType,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func recordsToIssues(records []*secondary.IssueRecord) []*primary.Issue {
	issues := make([]*primary.Issue, len(records))
	for i, r := range records {
		issues[i] = recordToIssue(r)
	}
	return issues
}

// Ensure IssueServiceImpl implements the interface
var _ primary.IssueService = (*IssueServiceImpl)(nil)
