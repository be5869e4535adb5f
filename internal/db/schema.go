package db

import (
	"database/sql"
	"fmt"
)

// SchemaSQL is the complete schema for fresh foreman installs.
// This schema reflects the current state after all migrations.
//
// # Schema Drift Protection
//
// This is the SINGLE SOURCE OF TRUTH for the database schema. All repository
// tests build their database from GetSchemaSQL(), so a repository that
// references a missing column fails immediately with "no such column".
//
// When adding new columns or tables:
//  1. Add a migration in migrations.go
//  2. Update SchemaSQL here
//
// Every run-scoped table is keyed by (run_id, entity id) so tracks writing
// different tasks never touch the same row.
const SchemaSQL = `
-- Plans (validated task graphs)
CREATE TABLE IF NOT EXISTS plans (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	source_path TEXT,
	task_count INTEGER NOT NULL DEFAULT 0,
	layer_count INTEGER NOT NULL DEFAULT 0,
	critical_path_length INTEGER NOT NULL DEFAULT 0,
	critical_path TEXT,
	max_parallelism INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Plan tasks (assessed task definitions)
CREATE TABLE IF NOT EXISTS plan_tasks (
	plan_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	title TEXT NOT NULL,
	depends_on TEXT NOT NULL DEFAULT '[]',
	weight INTEGER NOT NULL DEFAULT 1,
	files TEXT NOT NULL DEFAULT '[]',
	category TEXT,
	complexity_score INTEGER NOT NULL CHECK(complexity_score BETWEEN 0 AND 14),
	start_tier INTEGER NOT NULL CHECK(start_tier BETWEEN 0 AND 2),
	score_override INTEGER NOT NULL DEFAULT 0,
	executor TEXT,
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (plan_id, task_id),
	FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
);

-- Execution sessions (one per run, archived on end)
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL,
	state TEXT NOT NULL CHECK(state IN ('active', 'halted', 'completed', 'archived')) DEFAULT 'active',
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	max_failures INTEGER NOT NULL DEFAULT 5,
	breaker_open INTEGER NOT NULL DEFAULT 0,
	iterations INTEGER NOT NULL DEFAULT 0,
	track_count INTEGER NOT NULL DEFAULT 1,
	halt_reason TEXT,
	started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	ended_at DATETIME,
	FOREIGN KEY (plan_id) REFERENCES plans(id)
);

CREATE INDEX IF NOT EXISTS idx_sessions_plan ON sessions(plan_id);
CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);

-- Tracks (isolated workspaces)
CREATE TABLE IF NOT EXISTS tracks (
	run_id TEXT NOT NULL,
	id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending', 'running', 'completed', 'failed')) DEFAULT 'pending',
	weight INTEGER NOT NULL DEFAULT 0,
	branch TEXT,
	workspace_path TEXT,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, id),
	FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
);

-- Sprints (ordered task groups within a track)
CREATE TABLE IF NOT EXISTS sprints (
	run_id TEXT NOT NULL,
	id TEXT NOT NULL,
	track_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	layer INTEGER NOT NULL,
	task_ids TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL CHECK(status IN ('pending', 'running', 'completed', 'failed')) DEFAULT 'pending',
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, id),
	FOREIGN KEY (run_id, track_id) REFERENCES tracks(run_id, id) ON DELETE CASCADE
);

-- Tasks (per-run execution state)
CREATE TABLE IF NOT EXISTS tasks (
	run_id TEXT NOT NULL,
	id TEXT NOT NULL,
	title TEXT NOT NULL,
	track_id TEXT NOT NULL,
	sprint_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending', 'running', 'passed', 'failed', 'escalated_to_council')) DEFAULT 'pending',
	complexity_score INTEGER NOT NULL,
	start_tier INTEGER NOT NULL,
	current_tier INTEGER NOT NULL,
	iteration INTEGER NOT NULL DEFAULT 0,
	dependencies TEXT NOT NULL DEFAULT '[]',
	executor TEXT,
	failure_reason TEXT,
	council_attempted INTEGER NOT NULL DEFAULT 0,
	council_context TEXT,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, id),
	FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_tasks_track ON tasks(run_id, track_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(run_id, status);

-- Checkpoints (append-only progress snapshots)
CREATE TABLE IF NOT EXISTS checkpoints (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	entity_type TEXT NOT NULL CHECK(entity_type IN ('task', 'sprint', 'track', 'session')),
	entity_id TEXT NOT NULL,
	task_id TEXT,
	sprint_id TEXT,
	track_id TEXT,
	status TEXT NOT NULL,
	workspace_revision TEXT,
	metrics TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id, created_at);
CREATE INDEX IF NOT EXISTS idx_checkpoints_task ON checkpoints(run_id, task_id);

-- Escalations (tier decisions, one per iteration)
CREATE TABLE IF NOT EXISTS escalations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	from_tier INTEGER NOT NULL,
	to_tier INTEGER NOT NULL,
	reason TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_escalations_task ON escalations(run_id, task_id);

-- Attempts (execute + validate outcome per iteration)
CREATE TABLE IF NOT EXISTS attempts (
	run_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	iteration INTEGER NOT NULL,
	tier INTEGER NOT NULL,
	executor TEXT,
	passed INTEGER NOT NULL DEFAULT 0,
	failure_class TEXT CHECK(failure_class IS NULL OR failure_class IN ('syntax', 'logic', 'architecture', 'security', 'flaky')),
	unmet_criteria TEXT NOT NULL DEFAULT '[]',
	files_changed TEXT NOT NULL DEFAULT '[]',
	diagnostic TEXT,
	council INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME,
	finished_at DATETIME,
	PRIMARY KEY (run_id, task_id, seq),
	FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
);

-- Council proposals (one per analyzer)
CREATE TABLE IF NOT EXISTS council_proposals (
	run_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	analyzer TEXT NOT NULL,
	summary TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, task_id, idx),
	FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
);

-- Council votes (one full rank vector per analyzer)
CREATE TABLE IF NOT EXISTS council_votes (
	run_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	analyzer TEXT NOT NULL,
	proposal_id INTEGER NOT NULL,
	rank_vector TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, task_id, analyzer),
	FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
);

-- Track merges (sequential integration into the base line)
CREATE TABLE IF NOT EXISTS merges (
	run_id TEXT NOT NULL,
	track_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending', 'merged', 'conflict', 'skipped')) DEFAULT 'pending',
	conflict_paths TEXT NOT NULL DEFAULT '[]',
	revision TEXT,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, track_id),
	FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
);
`

// InitSchema creates the database schema on a fresh database and runs any
// pending migrations on an existing one.
func InitSchema(db *sql.DB) error {
	// Check if schema_version table exists to determine if this is a fresh install
	var tableCount int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}

	if tableCount > 0 {
		return RunMigrations(db)
	}

	// Fresh install - create the current schema directly and mark every
	// migration as applied
	if _, err := db.Exec(SchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := createVersionTable(db); err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
