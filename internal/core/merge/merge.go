// Package merge contains the ordering and guard rules for integrating track
// workspaces into the base line.
// This is part of the Functional Core - no I/O, only pure functions.
package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/example/foreman/internal/core/track"
)

// Status is the merge state of one track.
type Status string

const (
	StatusPending  Status = "pending"
	StatusMerged   Status = "merged"
	StatusConflict Status = "conflict"
	StatusSkipped  Status = "skipped"
)

// Done reports whether the coordinator may move past a track.
func (s Status) Done() bool {
	return s == StatusMerged || s == StatusSkipped
}

// Entry is one track's position in the merge sequence.
type Entry struct {
	TrackID string
	Seq     int
	Status  Status
	Paths   []string
}

// ConflictError reports the paths that stopped a track merge.
type ConflictError struct {
	TrackID string
	Paths   []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merge of %s conflicts on %d path(s): %s", e.TrackID, len(e.Paths), strings.Join(e.Paths, ", "))
}

// Order sorts entries by track sequence.
func Order(entries []Entry) []Entry {
	out := append([]Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Next returns the first entry not yet merged or skipped. A track paused on a
// conflict is returned again so the merge is re-attempted from it.
func Next(entries []Entry) (Entry, bool) {
	for _, e := range Order(entries) {
		if !e.Status.Done() {
			return e, true
		}
	}
	return Entry{}, false
}

// Complete reports whether every track has been integrated.
func Complete(entries []Entry) bool {
	_, pending := Next(entries)
	return !pending
}

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// CanStartMerge evaluates whether the coordinator may run.
// Every track must be completed.
func CanStartMerge(tracks map[string]track.Status) GuardResult {
	var waiting []string
	for id, st := range tracks {
		if st != track.StatusCompleted {
			waiting = append(waiting, fmt.Sprintf("%s (%s)", id, st))
		}
	}
	if len(tracks) == 0 {
		return GuardResult{Allowed: false, Reason: "no tracks to merge"}
	}
	if len(waiting) > 0 {
		sort.Strings(waiting)
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot merge until every track is completed: %s", strings.Join(waiting, ", ")),
		}
	}
	return GuardResult{Allowed: true}
}

// CanSkip evaluates whether an operator may skip a track. Only the track the
// merge is paused on can be skipped.
func CanSkip(entries []Entry, trackID string) GuardResult {
	next, ok := Next(entries)
	if !ok {
		return GuardResult{Allowed: false, Reason: "all tracks are already merged"}
	}
	if next.TrackID != trackID {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("can only skip the track the merge is paused on (%s), not %s", next.TrackID, trackID),
		}
	}
	if next.Status != StatusConflict {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("track %s has no merge conflict to skip", trackID),
		}
	}
	return GuardResult{Allowed: true}
}
