package primary

import "context"

// ConvoyService defines the primary port for convoy grouping and reporting.
// Read operations degrade to empty results when the store fails.
type ConvoyService interface {
	// CreateConvoy labels the issues and creates the sentinel issue.
	CreateConvoy(ctx context.Context, req CreateConvoyRequest) (*Convoy, error)

	// GetConvoy computes the convoy view. Returns nil when nothing carries the label.
	GetConvoy(ctx context.Context, name string) (*Convoy, error)

	// AddToConvoy adds the convoy label to an issue.
	AddToConvoy(ctx context.Context, name, issueID string) error

	// RemoveFromConvoy removes the convoy label from an issue.
	RemoveFromConvoy(ctx context.Context, name, issueID string) error

	// ListConvoys resolves every sentinel to a full view.
	ListConvoys(ctx context.Context) ([]*Convoy, error)

	// GetProgress returns only the roll-up numbers.
	GetProgress(ctx context.Context, name string) (*ConvoyProgress, error)

	// GetNextIssue returns the convoy's next unit of work, or nil.
	GetNextIssue(ctx context.Context, name string) (*Issue, error)
}

// CreateConvoyRequest contains parameters for creating a convoy.
type CreateConvoyRequest struct {
	Name        string
	Title       string
	Description string
	IssueIDs    []string
}

// Convoy is the computed view of one convoy.
type Convoy struct {
	Name             string
	Title            string
	Description      string
	SentinelID       string
	TotalIssues      int
	CompletedIssues  int
	InProgressIssues int
	FailedIssues     int
	Progress         float64
	Repositories     []string
	Issues           []*Issue
}

// ConvoyProgress is the roll-up of one convoy.
type ConvoyProgress struct {
	Name      string
	Completed int
	Total     int
	Progress  float64
}
