package primary

import "context"

// MergeService defines the primary port for integrating tracks.
type MergeService interface {
	// Merge integrates every completed track into the base line in track
	// order, resuming from a paused track.
	Merge(ctx context.Context, req MergeRequest) (*MergeResult, error)
}

// MergeRequest contains parameters for a merge.
type MergeRequest struct {
	// RunID selects the run; empty means the latest session.
	RunID string
	// Skip marks the paused track as resolved by the operator.
	Skip string
}

// MergeResult reports the merge sequence.
type MergeResult struct {
	RunID    string
	Complete bool
	// PausedOn names the track whose conflict stopped the merge.
	PausedOn      string
	ConflictPaths []string
	Entries       []*MergeEntry
}

// MergeEntry is one track's merge state.
type MergeEntry struct {
	TrackID       string
	Status        string
	Revision      string
	ConflictPaths []string
}
