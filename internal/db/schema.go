package db

import "database/sql"

// SchemaSQL is the complete schema for fresh installs.
// This schema reflects the current state after all migrations.
//
// This is the single source of truth for the database schema. Tests load it
// through GetSchemaSQL() instead of declaring their own tables, so a column
// referenced by repository code but missing here fails immediately with
// "no such column".
//
// When adding new columns or tables:
//  1. Add a migration in migrations.go
//  2. Update SchemaSQL here
//  3. Bump the migration list so fresh installs record the new version
const SchemaSQL = `
-- Issues (the label-tagged work items)
CREATE TABLE IF NOT EXISTS issues (
	id TEXT PRIMARY KEY,
	seq INTEGER NOT NULL UNIQUE,
	title TEXT NOT NULL,
	description TEXT,
	priority INTEGER NOT NULL DEFAULT 2,
	status TEXT NOT NULL CHECK(status IN ('open', 'in_progress', 'closed', 'blocked')) DEFAULT 'open',
	issue_type TEXT NOT NULL DEFAULT 'task',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
CREATE INDEX IF NOT EXISTS idx_issues_type ON issues(issue_type);

-- Labels (workflow state and grouping)
CREATE TABLE IF NOT EXISTS issue_labels (
	issue_id TEXT NOT NULL,
	label TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (issue_id, label),
	FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_issue_labels_label ON issue_labels(label);

-- Issue events (actor-attributed audit trail)
CREATE TABLE IF NOT EXISTS issue_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id TEXT NOT NULL,
	actor_id TEXT,
	action TEXT NOT NULL CHECK(action IN ('create', 'update', 'label_add', 'label_remove')),
	field_name TEXT,
	old_value TEXT,
	new_value TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_issue_events_issue ON issue_events(issue_id);
`

// InitSchema brings a database up to date.
// Fresh databases get SchemaSQL directly with every migration recorded as
// applied; existing databases run pending migrations.
func InitSchema(db *sql.DB) error {
	var tableCount int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableCount)
	if err != nil {
		return err
	}

	if tableCount > 0 {
		return RunMigrations(db)
	}

	var issueTables int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='issues'").Scan(&issueTables)
	if err != nil {
		return err
	}
	if issueTables > 0 {
		// Tables predate version tracking; let migrations reconcile them.
		return RunMigrations(db)
	}

	if _, err := db.Exec(SchemaSQL); err != nil {
		return err
	}
	if err := createVersionTable(db); err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			return err
		}
	}
	return nil
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
