package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/foreman/internal/logging"
	"github.com/example/foreman/internal/ports/secondary"
)

// Checkpoint describes one status transition to snapshot.
type Checkpoint struct {
	RunID      string
	EntityType string
	EntityID   string
	TaskID     string
	SprintID   string
	TrackID    string
	Status     string
	Revision   string
	Metrics    map[string]int
}

// CheckpointManager appends immutable progress snapshots.
type CheckpointManager struct {
	repo   secondary.CheckpointRepository
	logger *logging.Logger
	now    func() time.Time
}

// NewCheckpointManager creates a CheckpointManager.
func NewCheckpointManager(repo secondary.CheckpointRepository, logger *logging.Logger) *CheckpointManager {
	return &CheckpointManager{repo: repo, logger: logger, now: time.Now}
}

// Record appends a checkpoint. Writes are detached from cancellation so a
// transition caused by shutdown is still recorded.
func (m *CheckpointManager) Record(ctx context.Context, cp Checkpoint) (string, error) {
	id := uuid.NewString()
	rec := &secondary.CheckpointRecord{
		ID:                id,
		RunID:             cp.RunID,
		EntityType:        cp.EntityType,
		EntityID:          cp.EntityID,
		TaskID:            cp.TaskID,
		SprintID:          cp.SprintID,
		TrackID:           cp.TrackID,
		Status:            cp.Status,
		WorkspaceRevision: cp.Revision,
		Metrics:           cp.Metrics,
		CreatedAt:         m.now().UTC().Format(time.RFC3339Nano),
	}
	if err := m.repo.Append(context.WithoutCancel(ctx), rec); err != nil {
		return "", fmt.Errorf("failed to append checkpoint for %s %s: %w", cp.EntityType, cp.EntityID, err)
	}
	m.logger.Debug("checkpoint", "entity", cp.EntityType, "entity_id", cp.EntityID, "status", cp.Status, "checkpoint_id", id)
	return id, nil
}

// Task records a task transition.
func (m *CheckpointManager) Task(ctx context.Context, runID string, t *secondary.TaskRecord, revision string) error {
	_, err := m.Record(ctx, Checkpoint{
		RunID:      runID,
		EntityType: secondary.CheckpointEntityTask,
		EntityID:   t.ID,
		TaskID:     t.ID,
		SprintID:   t.SprintID,
		TrackID:    t.TrackID,
		Status:     t.Status,
		Revision:   revision,
		Metrics: map[string]int{
			"iteration": t.Iteration,
			"tier":      t.CurrentTier,
			"score":     t.ComplexityScore,
		},
	})
	return err
}
