package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/harness/internal/ctxutil"
	"github.com/example/harness/internal/ports/secondary"
)

// Issue event actions.
const (
	EventCreate      = "create"
	EventUpdate      = "update"
	EventLabelAdd    = "label_add"
	EventLabelRemove = "label_remove"
)

// writeEvent records one audit entry inside the caller's transaction.
// The actor comes from the context; mutations without one are recorded
// with an empty actor.
func writeEvent(ctx context.Context, tx *sql.Tx, issueID, action, fieldName, oldValue, newValue string) error {
	actorID := ctxutil.ActorFromContext(ctx)

	_, err := tx.ExecContext(ctx,
		"INSERT INTO issue_events (issue_id, actor_id, action, field_name, old_value, new_value) VALUES (?, ?, ?, ?, ?, ?)",
		issueID, nullIfEmpty(actorID), action, nullIfEmpty(fieldName), nullIfEmpty(oldValue), nullIfEmpty(newValue),
	)
	if err != nil {
		return fmt.Errorf("failed to write issue event: %w", err)
	}
	return nil
}

// ListEvents returns the audit trail of an issue, oldest first.
func (r *IssueRepository) ListEvents(ctx context.Context, issueID string) ([]*secondary.IssueEventRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, issue_id, actor_id, action, field_name, old_value, new_value, created_at FROM issue_events WHERE issue_id = ? ORDER BY id ASC",
		issueID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list issue events: %w", err)
	}
	defer rows.Close()

	var events []*secondary.IssueEventRecord
	for rows.Next() {
		var (
			e                              secondary.IssueEventRecord
			actor, field, oldVal, newValue sql.NullString
			createdAt                      time.Time
		)
		if err := rows.Scan(&e.ID, &e.IssueID, &actor, &e.Action, &field, &oldVal, &newValue, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan issue event: %w", err)
		}
		e.ActorID = actor.String
		e.Field = field.String
		e.OldValue = oldVal.String
		e.NewValue = newValue.String
		e.CreatedAt = createdAt
		events = append(events, &e)
	}
	return events, rows.Err()
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
