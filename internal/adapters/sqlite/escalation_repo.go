package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/foreman/internal/ports/secondary"
)

// EscalationRepository implements secondary.EscalationRepository with SQLite.
type EscalationRepository struct {
	db *sql.DB
}

// NewEscalationRepository creates a new SQLite escalation repository.
func NewEscalationRepository(db *sql.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// Create persists a tier decision.
func (r *EscalationRepository) Create(ctx context.Context, escalation *secondary.EscalationRecord) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO escalations (run_id, task_id, iteration, from_tier, to_tier, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		escalation.RunID,
		escalation.TaskID,
		escalation.Iteration,
		escalation.FromTier,
		escalation.ToTier,
		escalation.Reason,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create escalation: %w", err)
	}
	escalation.ID, _ = result.LastInsertId()
	return nil
}

// List retrieves escalations matching the given filters, oldest first.
func (r *EscalationRepository) List(ctx context.Context, filters secondary.EscalationFilters) ([]*secondary.EscalationRecord, error) {
	query := `SELECT id, run_id, task_id, iteration, from_tier, to_tier, reason, created_at FROM escalations WHERE 1=1`
	args := []any{}

	if filters.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filters.RunID)
	}

	if filters.TaskID != "" {
		query += " AND task_id = ?"
		args = append(args, filters.TaskID)
	}

	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}
	defer rows.Close()

	var escalations []*secondary.EscalationRecord
	for rows.Next() {
		var createdAt time.Time
		record := &secondary.EscalationRecord{}
		err := rows.Scan(&record.ID, &record.RunID, &record.TaskID, &record.Iteration, &record.FromTier, &record.ToTier, &record.Reason, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation: %w", err)
		}
		record.CreatedAt = formatTime(createdAt)
		escalations = append(escalations, record)
	}

	return escalations, rows.Err()
}

// RecordAttempt persists an iteration outcome. Re-recording the same
// sequence number replaces the row.
func (r *EscalationRepository) RecordAttempt(ctx context.Context, a *secondary.AttemptRecord) error {
	var failureClass sql.NullString
	if !a.Passed && a.FailureClass != "" {
		failureClass = sql.NullString{String: a.FailureClass, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO attempts (run_id, task_id, seq, iteration, tier, executor, passed, failure_class, unmet_criteria, files_changed, diagnostic, council, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RunID,
		a.TaskID,
		a.Seq,
		a.Iteration,
		a.Tier,
		nullString(a.Executor),
		boolToInt(a.Passed),
		failureClass,
		encodeStrings(a.UnmetCriteria),
		encodeStrings(a.FilesChanged),
		nullString(a.Diagnostic),
		boolToInt(a.Council),
		nullString(a.StartedAt),
		nullString(a.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// ListAttempts retrieves a task's attempts, oldest first.
func (r *EscalationRepository) ListAttempts(ctx context.Context, runID, taskID string) ([]*secondary.AttemptRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, task_id, seq, iteration, tier, executor, passed, failure_class, unmet_criteria, files_changed, diagnostic, council, started_at, finished_at FROM attempts WHERE run_id = ? AND task_id = ? ORDER BY seq`,
		runID, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*secondary.AttemptRecord
	for rows.Next() {
		var (
			executor, failureClass, diagnostic sql.NullString
			startedAt, finishedAt              sql.NullString
			unmet, files                       string
			passed, council                    int
		)
		a := &secondary.AttemptRecord{}
		err := rows.Scan(&a.RunID, &a.TaskID, &a.Seq, &a.Iteration, &a.Tier, &executor, &passed, &failureClass,
			&unmet, &files, &diagnostic, &council, &startedAt, &finishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Executor = executor.String
		a.Passed = passed == 1
		a.FailureClass = failureClass.String
		a.UnmetCriteria = decodeStrings(unmet)
		a.FilesChanged = decodeStrings(files)
		a.Diagnostic = diagnostic.String
		a.Council = council == 1
		a.StartedAt = startedAt.String
		a.FinishedAt = finishedAt.String
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

var _ secondary.EscalationRepository = (*EscalationRepository)(nil)
