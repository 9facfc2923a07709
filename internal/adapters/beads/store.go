// Package beads adapts the `bd` issue tracker CLI to the issue store port.
//
// Every call shells out to bd with --json. Label mutations are separate bd
// invocations, so this store does not implement secondary.LabelSwapper and
// concurrent claims through it are best-effort.
package beads

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/harness/internal/ports/secondary"
)

// Store implements secondary.IssueStore on top of the bd CLI.
type Store struct {
	runner secondary.ProcessRunner
	binary string
	dir    string
}

// NewStore creates a bd-backed store. dir is the directory bd runs in
// (the one holding .beads); binary defaults to "bd".
func NewStore(runner secondary.ProcessRunner, binary, dir string) *Store {
	if binary == "" {
		binary = "bd"
	}
	return &Store{runner: runner, binary: binary, dir: dir}
}

// bdIssue mirrors the JSON bd prints for an issue.
type bdIssue struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    *int     `json:"priority"`
	IssueType   string   `json:"issue_type"`
	Labels      []string `json:"labels"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func (b bdIssue) toRecord() *secondary.IssueRecord {
	priority := secondary.DefaultPriority
	if b.Priority != nil {
		priority = *b.Priority
	}
	issueType := b.IssueType
	if issueType == "" {
		issueType = "task"
	}
	return &secondary.IssueRecord{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		Priority:    priority,
		Status:      b.Status,
		Labels:      b.Labels,
		IssueType:   issueType,
		CreatedAt:   parseTime(b.CreatedAt),
		UpdatedAt:   parseTime(b.UpdatedAt),
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// List runs `bd list --json` with the filters. Label filters are ANDed by bd.
func (s *Store) List(ctx context.Context, filters secondary.IssueFilters) ([]*secondary.IssueRecord, error) {
	args := []string{"list", "--json", "--limit", "0"}
	for _, l := range filters.Labels {
		args = append(args, "--label", l)
	}
	if filters.Status != "" {
		args = append(args, "--status", filters.Status)
	}
	if filters.Type != "" {
		args = append(args, "--type", filters.Type)
	}

	out, err := s.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}

	var raw []bdIssue
	if err := decode(out, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse issue list: %w", err)
	}

	records := make([]*secondary.IssueRecord, 0, len(raw))
	for _, b := range raw {
		if filters.ExcludeStatus != "" && b.Status == filters.ExcludeStatus {
			continue
		}
		records = append(records, b.toRecord())
	}
	return records, nil
}

// Get runs `bd show <id> --json`.
func (s *Store) Get(ctx context.Context, id string) (*secondary.IssueRecord, error) {
	out, err := s.run(ctx, "show", id, "--json")
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("issue %s: %w", id, secondary.ErrIssueNotFound)
		}
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

	var raw []bdIssue
	if err := decode(out, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse issue: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("issue %s: %w", id, secondary.ErrIssueNotFound)
	}
	return raw[0].toRecord(), nil
}

// AddLabel runs `bd label add`.
func (s *Store) AddLabel(ctx context.Context, id, label string) error {
	if _, err := s.run(ctx, "label", "add", id, label); err != nil {
		return fmt.Errorf("failed to add label %s to %s: %w", label, id, err)
	}
	return nil
}

// RemoveLabel runs `bd label remove`.
func (s *Store) RemoveLabel(ctx context.Context, id, label string) error {
	if _, err := s.run(ctx, "label", "remove", id, label); err != nil {
		return fmt.Errorf("failed to remove label %s from %s: %w", label, id, err)
	}
	return nil
}

// Update runs `bd update` with the set fields.
func (s *Store) Update(ctx context.Context, id string, update secondary.IssueUpdate) error {
	args := []string{"update", id}
	if update.Status != nil {
		args = append(args, "--status", *update.Status)
	}
	if update.Description != nil {
		args = append(args, "--description", *update.Description)
	}
	if update.Priority != nil {
		args = append(args, "--priority", strconv.Itoa(*update.Priority))
	}
	if len(args) == 2 {
		return nil
	}
	if _, err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("failed to update issue %s: %w", id, err)
	}
	return nil
}

// Create runs `bd create --json`.
func (s *Store) Create(ctx context.Context, issue secondary.CreateIssueRecord) (*secondary.IssueRecord, error) {
	args := []string{"create", issue.Title, "--json"}
	if issue.Type != "" {
		args = append(args, "--type", issue.Type)
	}
	if issue.Priority != nil {
		args = append(args, "--priority", strconv.Itoa(*issue.Priority))
	}
	if issue.Description != "" {
		args = append(args, "--description", issue.Description)
	}
	if len(issue.Labels) > 0 {
		args = append(args, "--labels", strings.Join(issue.Labels, ","))
	}

	out, err := s.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}

	var created bdIssue
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &created); err != nil {
		return nil, fmt.Errorf("failed to parse created issue: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("bd create returned no issue id")
	}
	return created.toRecord(), nil
}

// bdError carries bd's stderr so callers can classify failures.
type bdError struct {
	args     []string
	exitCode int
	stderr   string
}

func (e *bdError) Error() string {
	msg := strings.TrimSpace(e.stderr)
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", e.exitCode)
	}
	return fmt.Sprintf("bd %s: %s", strings.Join(e.args, " "), msg)
}

func isNotFound(err error) bool {
	e, ok := err.(*bdError)
	if !ok {
		return false
	}
	lower := strings.ToLower(e.stderr)
	return strings.Contains(lower, "not found") || strings.Contains(lower, "no issue")
}

func (s *Store) run(ctx context.Context, args ...string) (string, error) {
	res, err := s.runner.Run(ctx, secondary.ProcessSpec{
		Command: s.binary,
		Args:    args,
		Dir:     s.dir,
	})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", &bdError{args: args, exitCode: res.ExitCode, stderr: res.Stderr}
	}
	return res.Stdout, nil
}

// decode accepts either a JSON array or a single object.
func decode(out string, into *[]bdIssue) error {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" || trimmed == "null" {
		*into = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var one bdIssue
		if err := json.Unmarshal([]byte(trimmed), &one); err != nil {
			return err
		}
		*into = []bdIssue{one}
		return nil
	}
	return json.Unmarshal([]byte(trimmed), into)
}

// Ensure Store implements the interface
var _ secondary.IssueStore = (*Store)(nil)
