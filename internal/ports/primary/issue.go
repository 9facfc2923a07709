package primary

import (
	"context"
	"time"
)

// IssueService defines the primary port for direct issue operations.
type IssueService interface {
	// CreateIssue creates a new issue. Ready issues also get hook:ready.
	CreateIssue(ctx context.Context, req CreateIssueRequest) (*Issue, error)

	// GetIssue retrieves an issue by ID.
	GetIssue(ctx context.Context, id string) (*Issue, error)

	// ListIssues lists issues matching the filters.
	ListIssues(ctx context.Context, filters IssueFilters) ([]*Issue, error)

	// UpdateIssue changes priority and/or status.
	UpdateIssue(ctx context.Context, req UpdateIssueRequest) error

	// AddLabel adds a label to an issue.
	AddLabel(ctx context.Context, id, label string) error

	// RemoveLabel removes a label from an issue.
	RemoveLabel(ctx context.Context, id, label string) error

	// GetHistory returns the audit trail of an issue, oldest first.
	GetHistory(ctx context.Context, id string) ([]*IssueEvent, error)
}

// Issue represents an issue at the port boundary.
type Issue struct {
	ID          string
	Title       string
	Description string
	Priority    int
	Status      string
	Labels      []string
	IssueType   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateIssueRequest contains parameters for creating an issue.
type CreateIssueRequest struct {
	Title       string
	Description string
	Type        string
	Priority    *int
	Labels      []string
	Ready       bool
}

// UpdateIssueRequest contains parameters for updating an issue.
type UpdateIssueRequest struct {
	IssueID  string
	Priority *int
	Status   string
}

// IssueFilters contains filter options for listing issues.
type IssueFilters struct {
	Labels []string
	Status string
	Type   string
}

// IssueEvent is one audit entry of an issue.
type IssueEvent struct {
	IssueID   string
	ActorID   string
	Action    string
	Field     string
	OldValue  string
	NewValue  string
	CreatedAt time.Time
}

// Issue status constants.
const (
	IssueStatusOpen       = "open"
	IssueStatusInProgress = "in_progress"
	IssueStatusClosed     = "closed"
	IssueStatusBlocked    = "blocked"
)
