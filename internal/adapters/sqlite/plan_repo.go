package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/foreman/internal/ports/secondary"
)

// PlanRepository implements secondary.PlanRepository with SQLite.
type PlanRepository struct {
	db *sql.DB
}

// NewPlanRepository creates a new SQLite plan repository.
func NewPlanRepository(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Create persists a plan and its tasks in one transaction.
func (r *PlanRepository) Create(ctx context.Context, plan *secondary.PlanRecord, tasks []*secondary.PlanTaskRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO plans (id, name, source_path, task_count, layer_count, critical_path_length, critical_path, max_parallelism, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.Name,
		nullString(plan.SourcePath),
		plan.TaskCount,
		plan.LayerCount,
		plan.CriticalPathLength,
		strings.Join(plan.CriticalPath, ","),
		plan.MaxParallelism,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	for _, t := range tasks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO plan_tasks (plan_id, task_id, title, depends_on, weight, files, category, complexity_score, start_tier, score_override, executor, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			plan.ID,
			t.TaskID,
			t.Title,
			encodeStrings(t.DependsOn),
			t.Weight,
			encodeStrings(t.Files),
			nullString(t.Category),
			t.ComplexityScore,
			t.StartTier,
			boolToInt(t.ScoreOverride),
			nullString(t.Executor),
			t.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to create plan task %s: %w", t.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plan: %w", err)
	}
	return nil
}

const planColumns = `id, name, source_path, task_count, layer_count, critical_path_length, critical_path, max_parallelism, created_at`

func scanPlan(row interface{ Scan(...any) error }) (*secondary.PlanRecord, error) {
	var (
		sourcePath   sql.NullString
		criticalPath sql.NullString
		createdAt    time.Time
	)
	record := &secondary.PlanRecord{}
	err := row.Scan(&record.ID, &record.Name, &sourcePath, &record.TaskCount, &record.LayerCount,
		&record.CriticalPathLength, &criticalPath, &record.MaxParallelism, &createdAt)
	if err != nil {
		return nil, err
	}
	record.SourcePath = sourcePath.String
	if criticalPath.String != "" {
		record.CriticalPath = strings.Split(criticalPath.String, ",")
	}
	record.CreatedAt = formatTime(createdAt)
	return record, nil
}

// GetByID retrieves a plan by its ID.
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*secondary.PlanRecord, error) {
	record, err := scanPlan(r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plan %s: %w", id, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return record, nil
}

// GetLatest retrieves the most recently created plan.
func (r *PlanRepository) GetLatest(ctx context.Context) (*secondary.PlanRecord, error) {
	record, err := scanPlan(r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans ORDER BY created_at DESC, rowid DESC LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("latest plan: %w", secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest plan: %w", err)
	}
	return record, nil
}

// ListTasks retrieves a plan's tasks in declaration order.
func (r *PlanRepository) ListTasks(ctx context.Context, planID string) ([]*secondary.PlanTaskRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT plan_id, task_id, title, depends_on, weight, files, category, complexity_score, start_tier, score_override, executor, position FROM plan_tasks WHERE plan_id = ? ORDER BY position, task_id`,
		planID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*secondary.PlanTaskRecord
	for rows.Next() {
		var (
			dependsOn, files   string
			category, executor sql.NullString
			override           int
		)
		t := &secondary.PlanTaskRecord{}
		if err := rows.Scan(&t.PlanID, &t.TaskID, &t.Title, &dependsOn, &t.Weight, &files, &category,
			&t.ComplexityScore, &t.StartTier, &override, &executor, &t.Position); err != nil {
			return nil, fmt.Errorf("failed to scan plan task: %w", err)
		}
		t.DependsOn = decodeStrings(dependsOn)
		t.Files = decodeStrings(files)
		t.Category = category.String
		t.Executor = executor.String
		t.ScoreOverride = override == 1
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// GetNextID returns the next available plan ID.
func (r *PlanRepository) GetNextID(ctx context.Context) (string, error) {
	var maxID int
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(CAST(SUBSTR(id, 6) AS INTEGER)), 0) FROM plans",
	).Scan(&maxID)
	if err != nil {
		return "", fmt.Errorf("failed to get next plan ID: %w", err)
	}

	return fmt.Sprintf("PLAN-%03d", maxID+1), nil
}

var _ secondary.PlanRepository = (*PlanRepository)(nil)
