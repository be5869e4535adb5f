package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/foreman/internal/core/complexity"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/ports/secondary"
)

// StatusServiceImpl implements the StatusService interface.
type StatusServiceImpl struct {
	store  secondary.Store
	marker secondary.RunMarker
}

// NewStatusService creates a new StatusService with injected dependencies.
func NewStatusService(store secondary.Store, marker secondary.RunMarker) *StatusServiceImpl {
	return &StatusServiceImpl{store: store, marker: marker}
}

// GetStatus returns the latest session with per-track progress.
func (s *StatusServiceImpl) GetStatus(ctx context.Context) (*primary.Status, error) {
	session, err := s.latest(ctx)
	if err != nil {
		return nil, err
	}

	status := &primary.Status{
		RunID:               session.ID,
		PlanID:              session.PlanID,
		State:               session.State,
		ConsecutiveFailures: session.ConsecutiveFailures,
		MaxFailures:         session.MaxFailures,
		BreakerOpen:         session.BreakerOpen,
		Iterations:          session.Iterations,
		HaltReason:          session.HaltReason,
		StartedAt:           session.StartedAt,
	}
	if plan, err := s.store.Plans.GetByID(ctx, session.PlanID); err == nil {
		status.PlanName = plan.Name
	}

	count, err := s.store.Checkpoints.Count(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count checkpoints: %w", err)
	}
	status.Checkpoints = count
	if latest, err := s.store.Checkpoints.Latest(ctx, session.ID); err == nil {
		status.LastCheckpoint = latest.CreatedAt
	} else if !errors.Is(err, secondary.ErrNotFound) {
		return nil, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}

	marked, err := s.marker.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read run marker: %w", err)
	}
	status.Marked = marked == session.ID

	tracks, err := s.store.Tracks.List(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	for _, tr := range tracks {
		ts := &primary.TrackStatus{ID: tr.ID, Status: tr.Status, Branch: tr.Branch, WorkspacePath: tr.WorkspacePath}

		sprints, err := s.store.Tracks.ListSprints(ctx, session.ID, tr.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list sprints: %w", err)
		}
		for _, sp := range sprints {
			ts.Sprints = append(ts.Sprints, &primary.SprintStatus{ID: sp.ID, Status: sp.Status, TaskIDs: sp.TaskIDs})
		}

		tasks, err := s.store.Tasks.List(ctx, secondary.TaskFilters{RunID: session.ID, TrackID: tr.ID})
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}
		for _, t := range tasks {
			ts.Tasks = append(ts.Tasks, recordToTask(t))
		}
		status.Tracks = append(status.Tracks, ts)
	}

	merges, err := s.store.Merges.List(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list merges: %w", err)
	}
	for _, m := range merges {
		status.Merges = append(status.Merges, &primary.MergeEntry{
			TrackID:       m.TrackID,
			Status:        m.Status,
			Revision:      m.Revision,
			ConflictPaths: m.ConflictPaths,
		})
	}
	return status, nil
}

// GetHistory returns the full escalation record of a task in the latest run.
func (s *StatusServiceImpl) GetHistory(ctx context.Context, taskID string) (*primary.TaskHistory, error) {
	session, err := s.latest(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.store.Tasks.GetByID(ctx, session.ID, taskID)
	if err != nil {
		return nil, fmt.Errorf("task %s not found in run %s: %w", taskID, session.ID, err)
	}
	h := &primary.TaskHistory{RunID: session.ID, Task: recordToTask(t)}

	escalations, err := s.store.Escalations.List(ctx, secondary.EscalationFilters{RunID: session.ID, TaskID: taskID})
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}
	for _, e := range escalations {
		h.Escalations = append(h.Escalations, &primary.Escalation{
			Iteration: e.Iteration,
			FromTier:  complexity.Tier(e.FromTier).String(),
			ToTier:    complexity.Tier(e.ToTier).String(),
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		})
	}

	attempts, err := s.store.Escalations.ListAttempts(ctx, session.ID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	for _, a := range attempts {
		h.Attempts = append(h.Attempts, &primary.Attempt{
			Iteration:     a.Iteration,
			Tier:          complexity.Tier(a.Tier).String(),
			Executor:      a.Executor,
			Passed:        a.Passed,
			FailureClass:  a.FailureClass,
			UnmetCriteria: a.UnmetCriteria,
			Diagnostic:    a.Diagnostic,
			Council:       a.Council,
		})
	}

	votes, err := s.store.Council.ListVotes(ctx, session.ID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	proposals, err := s.store.Council.ListProposals(ctx, session.ID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	sums := make([]int, len(proposals))
	for _, v := range votes {
		h.Votes = append(h.Votes, &primary.Vote{Analyzer: v.Analyzer, Ranks: v.Ranks})
		for i, r := range v.Ranks {
			if i < len(sums) {
				sums[i] += r
			}
		}
	}
	for i, p := range proposals {
		h.Proposals = append(h.Proposals, &primary.Proposal{
			Index:      p.Index,
			Analyzer:   p.Analyzer,
			Summary:    p.Summary,
			Confidence: p.Confidence,
			RankSum:    sums[i],
		})
	}
	return h, nil
}

func (s *StatusServiceImpl) latest(ctx context.Context) (*secondary.SessionRecord, error) {
	session, err := s.store.Sessions.GetLatest(ctx)
	if errors.Is(err, secondary.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

func recordToTask(t *secondary.TaskRecord) *primary.Task {
	return &primary.Task{
		ID:               t.ID,
		Title:            t.Title,
		TrackID:          t.TrackID,
		SprintID:         t.SprintID,
		Status:           t.Status,
		ComplexityScore:  t.ComplexityScore,
		StartTier:        complexity.Tier(t.StartTier).String(),
		CurrentTier:      complexity.Tier(t.CurrentTier).String(),
		Iteration:        t.Iteration,
		Dependencies:     t.Dependencies,
		Executor:         t.Executor,
		FailureReason:    t.FailureReason,
		CouncilAttempted: t.CouncilAttempted,
	}
}

// Ensure StatusServiceImpl implements the interface
var _ primary.StatusService = (*StatusServiceImpl)(nil)
