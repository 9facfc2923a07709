// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/harness/internal/ports/secondary"
)

// DefaultIDPrefix is used when no prefix is configured.
const DefaultIDPrefix = "hs"

// IssueRepository implements secondary.IssueStore with SQLite.
// Each mutation runs in its own transaction, so SwapLabel is a real
// compare-and-swap for every process sharing the database file.
type IssueRepository struct {
	db     *sql.DB
	prefix string
	now    func() time.Time
}

// NewIssueRepository creates a new SQLite issue repository.
// Generated ids look like "<prefix>-<n>".
func NewIssueRepository(db *sql.DB, prefix string) *IssueRepository {
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	return &IssueRepository{db: db, prefix: prefix, now: time.Now}
}

// scanIssue scans an issue row into an IssueRecord (labels are loaded separately).
func scanIssue(scanner interface {
	Scan(dest ...any) error
}) (*secondary.IssueRecord, error) {
	var (
		desc      sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)

	record := &secondary.IssueRecord{}
	err := scanner.Scan(
		&record.ID, &record.Title, &desc, &record.Priority, &record.Status,
		&record.IssueType, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Description = desc.String
	record.CreatedAt = createdAt
	record.UpdatedAt = updatedAt
	return record, nil
}

const issueSelectCols = "id, title, description, priority, status, issue_type, created_at, updated_at"

// Get retrieves an issue by its ID.
func (r *IssueRepository) Get(ctx context.Context, id string) (*secondary.IssueRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+issueSelectCols+" FROM issues WHERE id = ?", id)

	record, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("issue %s: %w", id, secondary.ErrIssueNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

	labels, err := r.loadLabels(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	record.Labels = labels[id]
	return record, nil
}

// List retrieves issues matching the given filters in creation order.
func (r *IssueRepository) List(ctx context.Context, filters secondary.IssueFilters) ([]*secondary.IssueRecord, error) {
	query := "SELECT " + issueSelectCols + " FROM issues WHERE 1=1"
	args := []any{}

	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}

	if filters.ExcludeStatus != "" {
		query += " AND status != ?"
		args = append(args, filters.ExcludeStatus)
	}

	if filters.Type != "" {
		query += " AND issue_type = ?"
		args = append(args, filters.Type)
	}

	if labels := dedupe(filters.Labels); len(labels) > 0 {
		query += " AND (SELECT COUNT(*) FROM issue_labels l WHERE l.issue_id = issues.id AND l.label IN (" +
			placeholders(len(labels)) + ")) = ?"
		for _, l := range labels {
			args = append(args, l)
		}
		args = append(args, len(labels))
	}

	query += " ORDER BY seq ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}

	var issues []*secondary.IssueRecord
	var ids []string
	for rows.Next() {
		record, err := scanIssue(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, record)
		ids = append(ids, record.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate issues: %w", err)
	}
	rows.Close()

	labels, err := r.loadLabels(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, is := range issues {
		is.Labels = labels[is.ID]
	}
	return issues, nil
}

// loadLabels returns labels per issue in the order they were added.
func (r *IssueRepository) loadLabels(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT issue_id, label FROM issue_labels WHERE issue_id IN ("+placeholders(len(ids))+") ORDER BY rowid",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, label string
		if err := rows.Scan(&id, &label); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		out[id] = append(out[id], label)
	}
	return out, rows.Err()
}

// Create persists a new issue with its labels.
func (r *IssueRepository) Create(ctx context.Context, issue secondary.CreateIssueRecord) (*secondary.IssueRecord, error) {
	if strings.TrimSpace(issue.Title) == "" {
		return nil, fmt.Errorf("issue title is required")
	}

	priority := issue.PriorityOrDefault()
	issueType := issue.Type
	if issueType == "" {
		issueType = "task"
	}

	var id string
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var seq int
		if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM issues").Scan(&seq); err != nil {
			return fmt.Errorf("failed to allocate issue id: %w", err)
		}
		id = fmt.Sprintf("%s-%d", r.prefix, seq)
		now := r.now().UTC()

		var desc sql.NullString
		if issue.Description != "" {
			desc = sql.NullString{String: issue.Description, Valid: true}
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO issues (id, seq, title, description, priority, status, issue_type, created_at, updated_at) VALUES (?, ?, ?, ?, ?, 'open', ?, ?, ?)",
			id, seq, issue.Title, desc, priority, issueType, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to create issue: %w", err)
		}
		if err := writeEvent(ctx, tx, id, EventCreate, "", "", issue.Title); err != nil {
			return err
		}

		for _, label := range dedupe(issue.Labels) {
			if _, err := tx.ExecContext(ctx, "INSERT INTO issue_labels (issue_id, label) VALUES (?, ?)", id, label); err != nil {
				return fmt.Errorf("failed to add label %s: %w", label, err)
			}
			if err := writeEvent(ctx, tx, id, EventLabelAdd, "label", "", label); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.Get(ctx, id)
}

// AddLabel adds a label. Adding a label the issue already has is a no-op.
func (r *IssueRepository) AddLabel(ctx context.Context, id, label string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireIssue(ctx, tx, id); err != nil {
			return err
		}
		added, err := insertLabel(ctx, tx, id, label)
		if err != nil || !added {
			return err
		}
		return r.touch(ctx, tx, id)
	})
}

// RemoveLabel removes a label. Removing an absent label is a no-op.
func (r *IssueRepository) RemoveLabel(ctx context.Context, id, label string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireIssue(ctx, tx, id); err != nil {
			return err
		}
		removed, err := deleteLabel(ctx, tx, id, label)
		if err != nil || !removed {
			return err
		}
		return r.touch(ctx, tx, id)
	})
}

// SwapLabel atomically replaces from with to. Returns false, changing
// nothing, when the issue no longer carries from.
func (r *IssueRepository) SwapLabel(ctx context.Context, id, from, to string) (bool, error) {
	swapped := false
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireIssue(ctx, tx, id); err != nil {
			return err
		}
		removed, err := deleteLabel(ctx, tx, id, from)
		if err != nil || !removed {
			return err
		}
		if _, err := insertLabel(ctx, tx, id, to); err != nil {
			return err
		}
		swapped = true
		return r.touch(ctx, tx, id)
	})
	return swapped, err
}

// Update changes status, description and/or priority.
func (r *IssueRepository) Update(ctx context.Context, id string, update secondary.IssueUpdate) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var (
			status   string
			desc     sql.NullString
			priority int
		)
		err := tx.QueryRowContext(ctx, "SELECT status, description, priority FROM issues WHERE id = ?", id).
			Scan(&status, &desc, &priority)
		if err == sql.ErrNoRows {
			return fmt.Errorf("issue %s: %w", id, secondary.ErrIssueNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read issue: %w", err)
		}

		var sets []string
		var args []any

		if update.Status != nil && *update.Status != status {
			sets = append(sets, "status = ?")
			args = append(args, *update.Status)
			if err := writeEvent(ctx, tx, id, EventUpdate, "status", status, *update.Status); err != nil {
				return err
			}
		}
		if update.Description != nil && *update.Description != desc.String {
			sets = append(sets, "description = ?")
			args = append(args, *update.Description)
			// Descriptions carry queue markers; record that they changed, not their bodies.
			if err := writeEvent(ctx, tx, id, EventUpdate, "description", "", ""); err != nil {
				return err
			}
		}
		if update.Priority != nil && *update.Priority != priority {
			sets = append(sets, "priority = ?")
			args = append(args, *update.Priority)
			if err := writeEvent(ctx, tx, id, EventUpdate, "priority", fmt.Sprint(priority), fmt.Sprint(*update.Priority)); err != nil {
				return err
			}
		}

		if len(sets) == 0 {
			return nil
		}

		sets = append(sets, "updated_at = ?")
		args = append(args, r.now().UTC(), id)
		if _, err := tx.ExecContext(ctx, "UPDATE issues SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
			return fmt.Errorf("failed to update issue: %w", err)
		}
		return nil
	})
}

func (r *IssueRepository) touch(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, "UPDATE issues SET updated_at = ? WHERE id = ?", r.now().UTC(), id); err != nil {
		return fmt.Errorf("failed to touch issue: %w", err)
	}
	return nil
}

func (r *IssueRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func requireIssue(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM issues WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("issue %s: %w", id, secondary.ErrIssueNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read issue: %w", err)
	}
	return nil
}

func insertLabel(ctx context.Context, tx *sql.Tx, id, label string) (bool, error) {
	res, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO issue_labels (issue_id, label) VALUES (?, ?)", id, label)
	if err != nil {
		return false, fmt.Errorf("failed to add label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	return true, writeEvent(ctx, tx, id, EventLabelAdd, "label", "", label)
}

func deleteLabel(ctx context.Context, tx *sql.Tx, id, label string) (bool, error) {
	res, err := tx.ExecContext(ctx, "DELETE FROM issue_labels WHERE issue_id = ? AND label = ?", id, label)
	if err != nil {
		return false, fmt.Errorf("failed to remove label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	return true, writeEvent(ctx, tx, id, EventLabelRemove, "label", label, "")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Ensure IssueRepository implements the interfaces
var (
	_ secondary.IssueStore       = (*IssueRepository)(nil)
	_ secondary.LabelSwapper     = (*IssueRepository)(nil)
	_ secondary.IssueEventReader = (*IssueRepository)(nil)
)
