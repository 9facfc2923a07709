// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"
	"errors"
	"time"
)

// ErrIssueNotFound is wrapped by stores when an issue id does not exist.
var ErrIssueNotFound = errors.New("issue not found")

// IssueStore defines the secondary port for the label-tagged issue tracker.
// Stores give last-writer-wins consistency; separate calls are not atomic.
type IssueStore interface {
	// List returns issues matching the filters, in creation order.
	List(ctx context.Context, filters IssueFilters) ([]*IssueRecord, error)

	// Get retrieves a single issue. Wraps ErrIssueNotFound when missing.
	Get(ctx context.Context, id string) (*IssueRecord, error)

	// AddLabel adds a label. Adding a present label is a no-op.
	AddLabel(ctx context.Context, id, label string) error

	// RemoveLabel removes a label. Removing an absent label is a no-op.
	RemoveLabel(ctx context.Context, id, label string) error

	// Update changes status and/or description. Nil fields are left alone.
	Update(ctx context.Context, id string, update IssueUpdate) error

	// Create stores a new issue and returns it with its generated id.
	Create(ctx context.Context, issue CreateIssueRecord) (*IssueRecord, error)
}

// LabelSwapper is implemented by stores that can atomically replace one label
// with another. SwapLabel returns false without changing anything when the
// issue no longer carries from.
type LabelSwapper interface {
	SwapLabel(ctx context.Context, id, from, to string) (bool, error)
}

// IssueRecord represents an issue as stored in the tracker.
type IssueRecord struct {
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

// IssueFilters contains filter options for listing issues.
// Labels must all be present.
type IssueFilters struct {
	Labels        []string
	Status        string
	ExcludeStatus string
	Type          string
}

// IssueUpdate contains the mutable fields of an issue.
type IssueUpdate struct {
	Status      *string
	Description *string
	Priority    *int
}

// DefaultPriority is stored for issues created or read without a priority.
const DefaultPriority = 2

// CreateIssueRecord contains the fields for a new issue.
// Priority nil means DefaultPriority.
type CreateIssueRecord struct {
	Title       string
	Description string
	Type        string
	Priority    *int
	Labels      []string
}

// PriorityOrDefault returns Priority, or DefaultPriority when unset.
func (r CreateIssueRecord) PriorityOrDefault() int {
	if r.Priority == nil {
		return DefaultPriority
	}
	return *r.Priority
}

// IssueEventRecord is one entry of an issue's audit trail.
type IssueEventRecord struct {
	ID        int64
	IssueID   string
	ActorID   string
	Action    string
	Field     string
	OldValue  string
	NewValue  string
	CreatedAt time.Time
}

// IssueEventReader reads an issue's audit trail.
type IssueEventReader interface {
	ListEvents(ctx context.Context, issueID string) ([]*IssueEventRecord, error)
}
