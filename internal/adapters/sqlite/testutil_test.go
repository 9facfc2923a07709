// Package sqlite_test contains integration tests for SQLite repositories.
//
// This file is the single point where the database schema is loaded for
// tests. Setup goes through db.GetSchemaSQL() so tests run against the
// authoritative schema; do not declare tables in test files.
package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/harness/internal/adapters/sqlite"
	"github.com/example/harness/internal/db"
	"github.com/example/harness/internal/ports/secondary"
)

// setupTestDB creates an in-memory database with the authoritative schema.
// A single connection keeps every query on the same in-memory database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	testDB.SetMaxOpenConns(1)

	if _, err := testDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	_, err = testDB.Exec(db.GetSchemaSQL())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// seedIssue creates an issue through the repository and returns it.
func seedIssue(t *testing.T, repo *sqlite.IssueRepository, title string, priority int, labels ...string) *secondary.IssueRecord {
	t.Helper()
	p := priority
	issue, err := repo.Create(context.Background(), secondary.CreateIssueRecord{
		Title:    title,
		Priority: &p,
		Labels:   labels,
	})
	if err != nil {
		t.Fatalf("failed to seed issue %q: %v", title, err)
	}
	return issue
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
