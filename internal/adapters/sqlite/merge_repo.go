package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/foreman/internal/ports/secondary"
)

// MergeRepository implements secondary.MergeRepository with SQLite.
type MergeRepository struct {
	db *sql.DB
}

// NewMergeRepository creates a new SQLite merge repository.
func NewMergeRepository(db *sql.DB) *MergeRepository {
	return &MergeRepository{db: db}
}

// Upsert creates or replaces a track's merge entry.
func (r *MergeRepository) Upsert(ctx context.Context, m *secondary.MergeRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO merges (run_id, track_id, seq, status, conflict_paths, revision, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, track_id) DO UPDATE SET status = excluded.status, conflict_paths = excluded.conflict_paths, revision = excluded.revision, updated_at = excluded.updated_at`,
		m.RunID, m.TrackID, m.Seq, m.Status, encodeStrings(m.ConflictPaths), nullString(m.Revision), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save merge of %s: %w", m.TrackID, err)
	}
	return nil
}

// List retrieves a run's merge entries in sequence order.
func (r *MergeRepository) List(ctx context.Context, runID string) ([]*secondary.MergeRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, track_id, seq, status, conflict_paths, revision, updated_at FROM merges WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list merges: %w", err)
	}
	defer rows.Close()

	var merges []*secondary.MergeRecord
	for rows.Next() {
		var (
			paths     string
			revision  sql.NullString
			updatedAt time.Time
		)
		m := &secondary.MergeRecord{}
		if err := rows.Scan(&m.RunID, &m.TrackID, &m.Seq, &m.Status, &paths, &revision, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan merge: %w", err)
		}
		m.ConflictPaths = decodeStrings(paths)
		m.Revision = revision.String
		m.UpdatedAt = formatTime(updatedAt)
		merges = append(merges, m)
	}
	return merges, rows.Err()
}

var _ secondary.MergeRepository = (*MergeRepository)(nil)
