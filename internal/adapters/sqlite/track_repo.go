package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/foreman/internal/ports/secondary"
)

// TrackRepository implements secondary.TrackRepository with SQLite.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new SQLite track repository.
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create persists a track with its sprints.
func (r *TrackRepository) Create(ctx context.Context, track *secondary.TrackRecord, sprints []*secondary.SprintRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	status := track.Status
	if status == "" {
		status = "pending"
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO tracks (run_id, id, seq, status, weight, branch, workspace_path, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		track.RunID, track.ID, track.Seq, status, track.Weight,
		nullString(track.Branch), nullString(track.WorkspacePath), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create track: %w", err)
	}

	for _, s := range sprints {
		sprintStatus := s.Status
		if sprintStatus == "" {
			sprintStatus = "pending"
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sprints (run_id, id, track_id, seq, layer, task_ids, status, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			track.RunID, s.ID, track.ID, s.Seq, s.Layer, encodeStrings(s.TaskIDs), sprintStatus, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to create sprint %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit track: %w", err)
	}
	return nil
}

const trackColumns = `run_id, id, seq, status, weight, branch, workspace_path, updated_at`

func scanTrack(row interface{ Scan(...any) error }) (*secondary.TrackRecord, error) {
	var (
		branch, path sql.NullString
		updatedAt    time.Time
	)
	t := &secondary.TrackRecord{}
	if err := row.Scan(&t.RunID, &t.ID, &t.Seq, &t.Status, &t.Weight, &branch, &path, &updatedAt); err != nil {
		return nil, err
	}
	t.Branch = branch.String
	t.WorkspacePath = path.String
	t.UpdatedAt = formatTime(updatedAt)
	return t, nil
}

// GetByID retrieves a track.
func (r *TrackRepository) GetByID(ctx context.Context, runID, id string) (*secondary.TrackRecord, error) {
	t, err := scanTrack(r.db.QueryRowContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE run_id = ? AND id = ?`, runID, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("track %s: %w", id, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}
	return t, nil
}

// List retrieves a run's tracks in sequence order.
func (r *TrackRepository) List(ctx context.Context, runID string) ([]*secondary.TrackRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*secondary.TrackRecord
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// UpdateStatus sets a track status.
func (r *TrackRepository) UpdateStatus(ctx context.Context, runID, id, status string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tracks SET status = ?, updated_at = ? WHERE run_id = ? AND id = ?`,
		status, time.Now(), runID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("track %s: %w", id, secondary.ErrNotFound)
	}
	return nil
}

// SetWorkspace records the track's branch and directory.
func (r *TrackRepository) SetWorkspace(ctx context.Context, runID, id, branch, path string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tracks SET branch = ?, workspace_path = ?, updated_at = ? WHERE run_id = ? AND id = ?`,
		nullString(branch), nullString(path), time.Now(), runID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set track workspace: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("track %s: %w", id, secondary.ErrNotFound)
	}
	return nil
}

// ListSprints retrieves sprints in track then sequence order.
func (r *TrackRepository) ListSprints(ctx context.Context, runID, trackID string) ([]*secondary.SprintRecord, error) {
	query := `SELECT s.run_id, s.id, s.track_id, s.seq, s.layer, s.task_ids, s.status, s.updated_at FROM sprints s JOIN tracks t ON t.run_id = s.run_id AND t.id = s.track_id WHERE s.run_id = ?`
	args := []any{runID}
	if trackID != "" {
		query += " AND s.track_id = ?"
		args = append(args, trackID)
	}
	query += " ORDER BY t.seq, s.seq"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sprints: %w", err)
	}
	defer rows.Close()

	var sprints []*secondary.SprintRecord
	for rows.Next() {
		var (
			taskIDs   string
			updatedAt time.Time
		)
		s := &secondary.SprintRecord{}
		if err := rows.Scan(&s.RunID, &s.ID, &s.TrackID, &s.Seq, &s.Layer, &taskIDs, &s.Status, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sprint: %w", err)
		}
		s.TaskIDs = decodeStrings(taskIDs)
		s.UpdatedAt = formatTime(updatedAt)
		sprints = append(sprints, s)
	}
	return sprints, rows.Err()
}

// UpdateSprintStatus sets a sprint status.
func (r *TrackRepository) UpdateSprintStatus(ctx context.Context, runID, id, status string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sprints SET status = ?, updated_at = ? WHERE run_id = ? AND id = ?`,
		status, time.Now(), runID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update sprint: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("sprint %s: %w", id, secondary.ErrNotFound)
	}
	return nil
}

var _ secondary.TrackRepository = (*TrackRepository)(nil)
