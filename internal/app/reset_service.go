package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/foreman/internal/logging"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/ports/secondary"
)

// ResetServiceImpl implements the ResetService interface.
type ResetServiceImpl struct {
	sessions    secondary.SessionRepository
	marker      secondary.RunMarker
	checkpoints *CheckpointManager
	logger      *logging.Logger
}

// NewResetService creates a new ResetService with injected dependencies.
func NewResetService(
	sessions secondary.SessionRepository,
	marker secondary.RunMarker,
	checkpoints *CheckpointManager,
	logger *logging.Logger,
) *ResetServiceImpl {
	return &ResetServiceImpl{
		sessions:    sessions,
		marker:      marker,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// Reset closes the breaker, archives the latest session and clears the run
// marker. The next run starts a new session that carries over passed tasks.
func (s *ResetServiceImpl) Reset(ctx context.Context) (*primary.ResetResult, error) {
	result := &primary.ResetResult{}

	marked, err := s.marker.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read run marker: %w", err)
	}
	if marked != "" {
		if err := s.marker.Clear(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear run marker: %w", err)
		}
		result.MarkerCleared = true
	}

	session, err := s.sessions.GetLatest(ctx)
	if errors.Is(err, secondary.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	result.RunID = session.ID
	if session.State == secondary.SessionStateArchived {
		return result, nil
	}
	log := s.logger.WithRun(session.ID)

	if session.BreakerOpen || session.ConsecutiveFailures > 0 {
		if err := s.sessions.CloseBreaker(ctx, session.ID); err != nil {
			return nil, fmt.Errorf("failed to close circuit breaker: %w", err)
		}
		result.BreakerClosed = session.BreakerOpen
	}

	if err := s.sessions.Archive(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("failed to archive session: %w", err)
	}
	result.Archived = true
	if _, err := s.checkpoints.Record(ctx, Checkpoint{
		RunID:      session.ID,
		EntityType: secondary.CheckpointEntitySession,
		EntityID:   session.ID,
		Status:     secondary.SessionStateArchived,
	}); err != nil {
		return nil, err
	}

	log.Info("session reset", "breaker_closed", result.BreakerClosed, "marker_cleared", result.MarkerCleared)
	return result, nil
}

// Ensure ResetServiceImpl implements the interface
var _ primary.ResetService = (*ResetServiceImpl)(nil)
