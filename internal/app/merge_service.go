package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/foreman/internal/core/merge"
	"github.com/example/foreman/internal/core/track"
	"github.com/example/foreman/internal/logging"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/ports/secondary"
)

// MergeServiceImpl integrates completed tracks into the base line one at a
// time, in track order.
type MergeServiceImpl struct {
	sessions    secondary.SessionRepository
	tracks      secondary.TrackRepository
	merges      secondary.MergeRepository
	vcs         secondary.VersionControl
	checkpoints *CheckpointManager
	logger      *logging.Logger
}

// NewMergeService creates a new MergeService with injected dependencies.
func NewMergeService(
	store secondary.Store,
	vcs secondary.VersionControl,
	checkpoints *CheckpointManager,
	logger *logging.Logger,
) *MergeServiceImpl {
	return &MergeServiceImpl{
		sessions:    store.Sessions,
		tracks:      store.Tracks,
		merges:      store.Merges,
		vcs:         vcs,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// Merge runs the merge sequence. On a conflict it stops at the conflicting
// track and returns the result together with an error wrapping
// ErrMergeConflict and a *merge.ConflictError. While tracks are still
// unfinished and none has failed, the error wraps ErrRunIncomplete.
func (s *MergeServiceImpl) Merge(ctx context.Context, req primary.MergeRequest) (*primary.MergeResult, error) {
	session, err := s.session(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithRun(session.ID).WithPhase("merge")

	tracks, err := s.tracks.List(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	byID := make(map[string]*secondary.TrackRecord, len(tracks))
	statuses := make(map[string]track.Status, len(tracks))
	for _, tr := range tracks {
		byID[tr.ID] = tr
		statuses[tr.ID] = track.Status(tr.Status)
	}
	if err := merge.CanStartMerge(statuses).Error(); err != nil {
		for _, st := range statuses {
			if st == track.StatusFailed {
				return nil, err
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrRunIncomplete, err)
	}

	entries, err := s.entries(ctx, session.ID, tracks)
	if err != nil {
		return nil, err
	}
	result := &primary.MergeResult{RunID: session.ID}

	if req.Skip != "" {
		if err := merge.CanSkip(entries, req.Skip).Error(); err != nil {
			return nil, err
		}
		if err := s.set(ctx, session.ID, entries, req.Skip, merge.StatusSkipped, "", nil); err != nil {
			return nil, err
		}
		log.Warn("track skipped by operator", "track_id", req.Skip)
	}

	for !merge.Complete(entries) {
		next, _ := merge.Next(entries)
		tr := byID[next.TrackID]

		if tr.Branch == "" {
			// Nothing was executed in this run's workspace for the track.
			if err := s.set(ctx, session.ID, entries, tr.ID, merge.StatusMerged, "", nil); err != nil {
				return nil, err
			}
			continue
		}

		log.Info("merging track", "track_id", tr.ID, "branch", tr.Branch, "base", s.vcs.BaseBranch())
		outcome, err := s.vcs.Merge(ctx, tr.Branch)
		if err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", tr.ID, err)
		}

		if !outcome.Merged {
			if err := s.set(ctx, session.ID, entries, tr.ID, merge.StatusConflict, "", outcome.ConflictPaths); err != nil {
				return nil, err
			}
			log.Warn("merge conflict", "track_id", tr.ID, "paths", outcome.ConflictPaths)
			result.PausedOn = tr.ID
			result.ConflictPaths = outcome.ConflictPaths
			result.Entries = toMergeEntries(entries)
			return result, fmt.Errorf("%w: %w", ErrMergeConflict, &merge.ConflictError{TrackID: tr.ID, Paths: outcome.ConflictPaths})
		}

		if err := s.set(ctx, session.ID, entries, tr.ID, merge.StatusMerged, outcome.Revision, nil); err != nil {
			return nil, err
		}
		if _, err := s.checkpoints.Record(ctx, Checkpoint{
			RunID:      session.ID,
			EntityType: secondary.CheckpointEntityTrack,
			EntityID:   tr.ID,
			TrackID:    tr.ID,
			Status:     string(merge.StatusMerged),
			Revision:   outcome.Revision,
		}); err != nil {
			return nil, err
		}
		log.Info("track merged", "track_id", tr.ID, "revision", outcome.Revision)
	}

	result.Complete = true
	result.Entries = toMergeEntries(entries)

	if session.State != secondary.SessionStateCompleted {
		if err := s.sessions.UpdateState(ctx, session.ID, secondary.SessionStateCompleted, ""); err != nil {
			return nil, fmt.Errorf("failed to complete session: %w", err)
		}
		if _, err := s.checkpoints.Record(ctx, Checkpoint{
			RunID:      session.ID,
			EntityType: secondary.CheckpointEntitySession,
			EntityID:   session.ID,
			Status:     secondary.SessionStateCompleted,
		}); err != nil {
			return nil, err
		}
		log.Info("all tracks merged", "tracks", len(entries))
	}
	return result, nil
}

func (s *MergeServiceImpl) session(ctx context.Context, runID string) (*secondary.SessionRecord, error) {
	var (
		session *secondary.SessionRecord
		err     error
	)
	if runID == "" {
		session, err = s.sessions.GetLatest(ctx)
	} else {
		session, err = s.sessions.GetByID(ctx, runID)
	}
	if errors.Is(err, secondary.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

// entries loads the merge sequence, creating it on first use.
func (s *MergeServiceImpl) entries(ctx context.Context, runID string, tracks []*secondary.TrackRecord) ([]merge.Entry, error) {
	records, err := s.merges.List(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list merges: %w", err)
	}
	if len(records) == 0 {
		for _, tr := range tracks {
			rec := &secondary.MergeRecord{RunID: runID, TrackID: tr.ID, Seq: tr.Seq, Status: string(merge.StatusPending)}
			if err := s.merges.Upsert(ctx, rec); err != nil {
				return nil, fmt.Errorf("failed to create merge entry for %s: %w", tr.ID, err)
			}
			records = append(records, rec)
		}
	}

	entries := make([]merge.Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, merge.Entry{TrackID: r.TrackID, Seq: r.Seq, Status: merge.Status(r.Status), Paths: r.ConflictPaths})
	}
	return merge.Order(entries), nil
}

// set persists one entry's new state and mirrors it into entries.
func (s *MergeServiceImpl) set(ctx context.Context, runID string, entries []merge.Entry, trackID string, status merge.Status, revision string, paths []string) error {
	for i := range entries {
		if entries[i].TrackID != trackID {
			continue
		}
		err := s.merges.Upsert(ctx, &secondary.MergeRecord{
			RunID:         runID,
			TrackID:       trackID,
			Seq:           entries[i].Seq,
			Status:        string(status),
			ConflictPaths: paths,
			Revision:      revision,
		})
		if err != nil {
			return fmt.Errorf("failed to update merge entry for %s: %w", trackID, err)
		}
		entries[i].Status = status
		entries[i].Paths = paths
		return nil
	}
	return fmt.Errorf("track %s is not part of the merge", trackID)
}

func toMergeEntries(entries []merge.Entry) []*primary.MergeEntry {
	out := make([]*primary.MergeEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, &primary.MergeEntry{TrackID: e.TrackID, Status: string(e.Status), ConflictPaths: e.Paths})
	}
	return out
}

// Ensure MergeServiceImpl implements the interface
var _ primary.MergeService = (*MergeServiceImpl)(nil)
