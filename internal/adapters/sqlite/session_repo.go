package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/foreman/internal/ports/secondary"
)

// SessionRepository implements secondary.SessionRepository with SQLite.
// The failure counter is only ever changed by single UPDATE statements so
// concurrent tracks cannot lose an increment.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create persists a new session.
func (r *SessionRepository) Create(ctx context.Context, session *secondary.SessionRecord) error {
	state := session.State
	if state == "" {
		state = secondary.SessionStateActive
	}
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, plan_id, state, consecutive_failures, max_failures, breaker_open, iterations, track_count, started_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.PlanID,
		state,
		session.ConsecutiveFailures,
		session.MaxFailures,
		boolToInt(session.BreakerOpen),
		session.Iterations,
		session.TrackCount,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

const sessionColumns = `id, plan_id, state, consecutive_failures, max_failures, breaker_open, iterations, track_count, halt_reason, started_at, updated_at, ended_at`

func scanSession(row interface{ Scan(...any) error }) (*secondary.SessionRecord, error) {
	var (
		breakerOpen int
		haltReason  sql.NullString
		startedAt   time.Time
		updatedAt   time.Time
		endedAt     sql.NullTime
	)
	s := &secondary.SessionRecord{}
	err := row.Scan(&s.ID, &s.PlanID, &s.State, &s.ConsecutiveFailures, &s.MaxFailures, &breakerOpen,
		&s.Iterations, &s.TrackCount, &haltReason, &startedAt, &updatedAt, &endedAt)
	if err != nil {
		return nil, err
	}
	s.BreakerOpen = breakerOpen == 1
	s.HaltReason = haltReason.String
	s.StartedAt = formatTime(startedAt)
	s.UpdatedAt = formatTime(updatedAt)
	s.EndedAt = formatNullTime(endedAt)
	return s, nil
}

func (r *SessionRepository) getOne(ctx context.Context, what, query string, args ...any) (*secondary.SessionRecord, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", what, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*secondary.SessionRecord, error) {
	return r.getOne(ctx, "session "+id,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
}

// GetActive retrieves the non-archived session of a plan.
func (r *SessionRepository) GetActive(ctx context.Context, planID string) (*secondary.SessionRecord, error) {
	return r.getOne(ctx, "active session for plan "+planID,
		`SELECT `+sessionColumns+` FROM sessions WHERE plan_id = ? AND state != 'archived' ORDER BY started_at DESC, rowid DESC LIMIT 1`, planID)
}

// GetLatest retrieves the most recently started session.
func (r *SessionRepository) GetLatest(ctx context.Context) (*secondary.SessionRecord, error) {
	return r.getOne(ctx, "latest session",
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT 1`)
}

// GetLatestArchived retrieves the most recently archived session of a plan.
func (r *SessionRepository) GetLatestArchived(ctx context.Context, planID string) (*secondary.SessionRecord, error) {
	return r.getOne(ctx, "archived session for plan "+planID,
		`SELECT `+sessionColumns+` FROM sessions WHERE plan_id = ? AND state = 'archived' ORDER BY ended_at DESC, rowid DESC LIMIT 1`, planID)
}

// UpdateState sets the session state and halt reason.
func (r *SessionRepository) UpdateState(ctx context.Context, id, state, haltReason string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET state = ?, halt_reason = ?, updated_at = ? WHERE id = ?`,
		state, nullString(haltReason), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("session %s: %w", id, secondary.ErrNotFound)
	}
	return nil
}

func (r *SessionRepository) counter(ctx context.Context, id, query string) (*secondary.BreakerRecord, error) {
	var open int
	b := &secondary.BreakerRecord{}
	err := r.db.QueryRowContext(ctx, query, time.Now(), id).Scan(&b.ConsecutiveFailures, &b.MaxFailures, &open)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update failure counter: %w", err)
	}
	b.Open = open == 1
	return b, nil
}

// IncrementFailures atomically adds one failure. SET expressions see the
// pre-update row, so the breaker opens on the increment that reaches the
// threshold.
func (r *SessionRepository) IncrementFailures(ctx context.Context, id string) (*secondary.BreakerRecord, error) {
	return r.counter(ctx, id, `
		UPDATE sessions SET
			consecutive_failures = consecutive_failures + 1,
			breaker_open = CASE WHEN breaker_open = 1 OR consecutive_failures + 1 >= max_failures THEN 1 ELSE 0 END,
			updated_at = ?
		WHERE id = ?
		RETURNING consecutive_failures, max_failures, breaker_open`)
}

// ResetFailures atomically zeroes the counter unless the breaker is open.
func (r *SessionRepository) ResetFailures(ctx context.Context, id string) (*secondary.BreakerRecord, error) {
	return r.counter(ctx, id, `
		UPDATE sessions SET
			consecutive_failures = CASE WHEN breaker_open = 1 THEN consecutive_failures ELSE 0 END,
			updated_at = ?
		WHERE id = ?
		RETURNING consecutive_failures, max_failures, breaker_open`)
}

// CloseBreaker zeroes the counter and closes the breaker.
func (r *SessionRepository) CloseBreaker(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET consecutive_failures = 0, breaker_open = 0, updated_at = ? WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to close breaker: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("session %s: %w", id, secondary.ErrNotFound)
	}
	return nil
}

// AddIterations atomically adds to the global iteration count.
func (r *SessionRepository) AddIterations(ctx context.Context, id string, n int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET iterations = iterations + ?, updated_at = ? WHERE id = ?`,
		n, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to add iterations: %w", err)
	}
	return nil
}

// Archive marks a session archived. Archived sessions are kept for audit.
func (r *SessionRepository) Archive(ctx context.Context, id string) error {
	now := time.Now()
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET state = 'archived', ended_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to archive session: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("session %s: %w", id, secondary.ErrNotFound)
	}
	return nil
}

var _ secondary.SessionRepository = (*SessionRepository)(nil)
