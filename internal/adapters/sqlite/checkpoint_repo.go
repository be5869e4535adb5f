package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/foreman/internal/ports/secondary"
)

// CheckpointRepository implements secondary.CheckpointRepository with SQLite.
// Rows are only ever inserted.
type CheckpointRepository struct {
	db *sql.DB
}

// NewCheckpointRepository creates a new SQLite checkpoint repository.
func NewCheckpointRepository(db *sql.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Append persists a new checkpoint.
func (r *CheckpointRepository) Append(ctx context.Context, cp *secondary.CheckpointRecord) error {
	metrics := "{}"
	if len(cp.Metrics) > 0 {
		b, err := json.Marshal(cp.Metrics)
		if err != nil {
			return fmt.Errorf("failed to encode checkpoint metrics: %w", err)
		}
		metrics = string(b)
	}

	createdAt := time.Now()
	if cp.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, cp.CreatedAt); err == nil {
			createdAt = t
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, run_id, entity_type, entity_id, task_id, sprint_id, track_id, status, workspace_revision, metrics, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID,
		cp.RunID,
		cp.EntityType,
		cp.EntityID,
		nullString(cp.TaskID),
		nullString(cp.SprintID),
		nullString(cp.TrackID),
		cp.Status,
		nullString(cp.WorkspaceRevision),
		metrics,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append checkpoint: %w", err)
	}
	return nil
}

const checkpointColumns = `id, run_id, entity_type, entity_id, task_id, sprint_id, track_id, status, workspace_revision, metrics, created_at`

func scanCheckpoint(row interface{ Scan(...any) error }) (*secondary.CheckpointRecord, error) {
	var (
		taskID, sprintID, trackID, revision sql.NullString
		metrics                             string
		createdAt                           time.Time
	)
	cp := &secondary.CheckpointRecord{}
	err := row.Scan(&cp.ID, &cp.RunID, &cp.EntityType, &cp.EntityID, &taskID, &sprintID, &trackID,
		&cp.Status, &revision, &metrics, &createdAt)
	if err != nil {
		return nil, err
	}
	cp.TaskID = taskID.String
	cp.SprintID = sprintID.String
	cp.TrackID = trackID.String
	cp.WorkspaceRevision = revision.String
	if metrics != "" && metrics != "{}" {
		_ = json.Unmarshal([]byte(metrics), &cp.Metrics)
	}
	cp.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	return cp, nil
}

// List retrieves checkpoints matching the filters, oldest first.
func (r *CheckpointRepository) List(ctx context.Context, filters secondary.CheckpointFilters) ([]*secondary.CheckpointRecord, error) {
	query := `SELECT ` + checkpointColumns + ` FROM checkpoints WHERE run_id = ?`
	args := []any{filters.RunID}

	if filters.TaskID != "" {
		query += " AND task_id = ?"
		args = append(args, filters.TaskID)
	}

	if filters.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, filters.EntityType)
	}

	query += " ORDER BY created_at, rowid"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*secondary.CheckpointRecord
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// Latest retrieves the newest checkpoint of a run.
func (r *CheckpointRepository) Latest(ctx context.Context, runID string) (*secondary.CheckpointRecord, error) {
	cp, err := scanCheckpoint(r.db.QueryRowContext(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE run_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("checkpoint for run %s: %w", runID, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest checkpoint: %w", err)
	}
	return cp, nil
}

// Count returns the number of checkpoints in a run.
func (r *CheckpointRepository) Count(ctx context.Context, runID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count checkpoints: %w", err)
	}
	return n, nil
}

var _ secondary.CheckpointRepository = (*CheckpointRepository)(nil)
