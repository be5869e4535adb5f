package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/foreman/internal/ports/secondary"
)

// TaskRepository implements secondary.TaskRepository with SQLite.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new SQLite task repository.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create persists a task.
func (r *TaskRepository) Create(ctx context.Context, task *secondary.TaskRecord) error {
	status := task.Status
	if status == "" {
		status = "pending"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (run_id, id, title, track_id, sprint_id, seq, status, complexity_score, start_tier, current_tier, iteration, dependencies, executor, failure_reason, council_attempted, council_context, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.RunID,
		task.ID,
		task.Title,
		task.TrackID,
		task.SprintID,
		task.Seq,
		status,
		task.ComplexityScore,
		task.StartTier,
		task.CurrentTier,
		task.Iteration,
		encodeStrings(task.Dependencies),
		nullString(task.Executor),
		nullString(task.FailureReason),
		boolToInt(task.CouncilAttempted),
		nullString(task.CouncilContext),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

const taskColumns = `t.run_id, t.id, t.title, t.track_id, t.sprint_id, t.seq, t.status, t.complexity_score, t.start_tier, t.current_tier, t.iteration, t.dependencies, t.executor, t.failure_reason, t.council_attempted, t.council_context, t.updated_at`

func scanTask(row interface{ Scan(...any) error }) (*secondary.TaskRecord, error) {
	var (
		deps                         string
		executor, reason, councilCtx sql.NullString
		councilAttempted             int
		updatedAt                    time.Time
	)
	t := &secondary.TaskRecord{}
	err := row.Scan(&t.RunID, &t.ID, &t.Title, &t.TrackID, &t.SprintID, &t.Seq, &t.Status, &t.ComplexityScore,
		&t.StartTier, &t.CurrentTier, &t.Iteration, &deps, &executor, &reason, &councilAttempted, &councilCtx, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.Dependencies = decodeStrings(deps)
	t.Executor = executor.String
	t.FailureReason = reason.String
	t.CouncilAttempted = councilAttempted == 1
	t.CouncilContext = councilCtx.String
	t.UpdatedAt = formatTime(updatedAt)
	return t, nil
}

// GetByID retrieves a task.
func (r *TaskRepository) GetByID(ctx context.Context, runID, id string) (*secondary.TaskRecord, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks t WHERE t.run_id = ? AND t.id = ?`, runID, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// List retrieves tasks matching the given filters.
func (r *TaskRepository) List(ctx context.Context, filters secondary.TaskFilters) ([]*secondary.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t LEFT JOIN tracks tr ON tr.run_id = t.run_id AND tr.id = t.track_id WHERE t.run_id = ?`
	args := []any{filters.RunID}

	if filters.TrackID != "" {
		query += " AND t.track_id = ?"
		args = append(args, filters.TrackID)
	}

	if filters.Status != "" {
		query += " AND t.status = ?"
		args = append(args, filters.Status)
	}

	query += " ORDER BY tr.seq, t.seq"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*secondary.TaskRecord
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Update writes the mutable execution fields of a task.
func (r *TaskRepository) Update(ctx context.Context, task *secondary.TaskRecord) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, current_tier = ?, iteration = ?, executor = ?, failure_reason = ?, council_attempted = ?, council_context = ?, updated_at = ? WHERE run_id = ? AND id = ?`,
		task.Status,
		task.CurrentTier,
		task.Iteration,
		nullString(task.Executor),
		nullString(task.FailureReason),
		boolToInt(task.CouncilAttempted),
		nullString(task.CouncilContext),
		time.Now(),
		task.RunID,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("task %s: %w", task.ID, secondary.ErrNotFound)
	}
	return nil
}

// Statuses returns the status of every task in a run.
func (r *TaskRepository) Statuses(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, status FROM tasks WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan task status: %w", err)
		}
		out[id] = status
	}
	return out, rows.Err()
}

var _ secondary.TaskRepository = (*TaskRepository)(nil)
