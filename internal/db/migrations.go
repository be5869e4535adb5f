package db

import (
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// migrations is the list of all migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_plan_session_and_task_tables",
		Up:      migrationV1,
	},
	{
		Version: 2,
		Name:    "add_council_tables",
		Up:      migrationV2,
	},
	{
		Version: 3,
		Name:    "add_merges_table_and_halt_reason",
		Up:      migrationV3,
	},
}

func createVersionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	return nil
}

// RunMigrations executes all pending migrations, each in its own transaction.
func RunMigrations(db *sql.DB) error {
	if err := createVersionTable(db); err != nil {
		return err
	}

	// Get current schema version
	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// migrationV1 creates the plan, session, track, sprint, task, checkpoint and
// escalation history tables.
func migrationV1(tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS plans (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_path TEXT,
			task_count INTEGER NOT NULL DEFAULT 0,
			layer_count INTEGER NOT NULL DEFAULT 0,
			critical_path_length INTEGER NOT NULL DEFAULT 0,
			critical_path TEXT,
			max_parallelism INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS plan_tasks (
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
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			plan_id TEXT NOT NULL,
			state TEXT NOT NULL CHECK(state IN ('active', 'halted', 'completed', 'archived')) DEFAULT 'active',
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			max_failures INTEGER NOT NULL DEFAULT 5,
			breaker_open INTEGER NOT NULL DEFAULT 0,
			iterations INTEGER NOT NULL DEFAULT 0,
			track_count INTEGER NOT NULL DEFAULT 1,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			FOREIGN KEY (plan_id) REFERENCES plans(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_plan ON sessions(plan_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)`,
		`CREATE TABLE IF NOT EXISTS tracks (
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
		)`,
		`CREATE TABLE IF NOT EXISTS sprints (
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
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
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
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, id),
			FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_track ON tasks(run_id, track_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(run_id, status)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
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
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_task ON checkpoints(run_id, task_id)`,
		`CREATE TABLE IF NOT EXISTS escalations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			from_tier INTEGER NOT NULL,
			to_tier INTEGER NOT NULL,
			reason TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_escalations_task ON escalations(run_id, task_id)`,
		`CREATE TABLE IF NOT EXISTS attempts (
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
			started_at DATETIME,
			finished_at DATETIME,
			PRIMARY KEY (run_id, task_id, seq),
			FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
	}
	return execAll(tx, statements)
}

// migrationV2 adds the council tables and the council columns on tasks and attempts.
func migrationV2(tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS council_proposals (
			run_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			analyzer TEXT NOT NULL,
			summary TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, task_id, idx),
			FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS council_votes (
			run_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			analyzer TEXT NOT NULL,
			proposal_id INTEGER NOT NULL,
			rank_vector TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, task_id, analyzer),
			FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`ALTER TABLE tasks ADD COLUMN council_attempted INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE tasks ADD COLUMN council_context TEXT`,
		`ALTER TABLE attempts ADD COLUMN council INTEGER NOT NULL DEFAULT 0`,
	}
	return execAll(tx, statements)
}

// migrationV3 adds the merges table and records why a session halted.
func migrationV3(tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS merges (
			run_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('pending', 'merged', 'conflict', 'skipped')) DEFAULT 'pending',
			conflict_paths TEXT NOT NULL DEFAULT '[]',
			revision TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, track_id),
			FOREIGN KEY (run_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`ALTER TABLE sessions ADD COLUMN halt_reason TEXT`,
	}
	return execAll(tx, statements)
}

func execAll(tx *sql.Tx, statements []string) error {
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
