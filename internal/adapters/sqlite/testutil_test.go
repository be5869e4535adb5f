// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() to ensure tests run against
// the authoritative schema, preventing drift between test and production.
//
// DO NOT hardcode CREATE TABLE statements in test files. Use setupTestDB()
// and the seed* helpers instead.
package sqlite_test

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/foreman/internal/db"
)

// setupTestDB creates an in-memory database with the authoritative schema.
// This is the single shared test database setup function for all repository tests.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	// Every pooled connection to :memory: is a new database.
	testDB.SetMaxOpenConns(1)

	_, err = testDB.Exec(db.GetSchemaSQL())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// seedPlan inserts a test plan and returns its ID.
func seedPlan(t *testing.T, db *sql.DB, id string) string {
	t.Helper()
	if id == "" {
		id = "PLAN-001"
	}
	_, err := db.Exec("INSERT INTO plans (id, name, task_count) VALUES (?, 'Test Plan', 0)", id)
	if err != nil {
		t.Fatalf("failed to seed plan: %v", err)
	}
	return id
}

// seedSession inserts a test session (and its plan when missing) and returns its ID.
func seedSession(t *testing.T, db *sql.DB, id, planID, state string) string {
	t.Helper()
	if id == "" {
		id = "run-1"
	}
	if planID == "" {
		planID = "PLAN-001"
	}
	if state == "" {
		state = "active"
	}
	var n int
	db.QueryRow("SELECT COUNT(*) FROM plans WHERE id = ?", planID).Scan(&n)
	if n == 0 {
		seedPlan(t, db, planID)
	}
	_, err := db.Exec("INSERT INTO sessions (id, plan_id, state, max_failures) VALUES (?, ?, ?, 5)", id, planID, state)
	if err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	return id
}

// seedTrack inserts a test track and returns its ID.
func seedTrack(t *testing.T, db *sql.DB, runID, id string, seq int) string {
	t.Helper()
	_, err := db.Exec("INSERT INTO tracks (run_id, id, seq, status) VALUES (?, ?, ?, 'pending')", runID, id, seq)
	if err != nil {
		t.Fatalf("failed to seed track: %v", err)
	}
	return id
}

// seedTask inserts a pending test task and returns its ID.
func seedTask(t *testing.T, db *sql.DB, runID, id, trackID string, seq int) string {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO tasks (run_id, id, title, track_id, sprint_id, seq, status, complexity_score, start_tier, current_tier) VALUES (?, ?, ?, ?, ?, ?, 'pending', 2, 0, 0)",
		runID, id, "Task "+id, trackID, trackID+"-S1", seq,
	)
	if err != nil {
		t.Fatalf("failed to seed task: %v", err)
	}
	return id
}
