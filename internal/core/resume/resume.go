// Package resume computes where an interrupted run picks up again.
// This is part of the Functional Core - no I/O, only pure functions.
package resume

import (
	"sort"

	"github.com/example/foreman/internal/core/task"
)

// TrackState is a track's ordered task list.
type TrackState struct {
	ID      string
	TaskIDs []string
}

// Point describes the state of a run as loaded from the store.
type Point struct {
	// Complete is set when every task has passed. Resuming is then a no-op.
	Complete bool
	// Requeue lists tasks left running by a crash; they return to pending.
	Requeue []string
	// Next maps each unfinished track to its first non-passed task.
	Next map[string]string
	// FailedTracks lists tracks holding a failed task.
	FailedTracks []string
	Passed       int
	Total        int
}

// Compute finds the first non-terminal unit of every track. Tasks already
// passed are never scheduled again.
func Compute(tracks []TrackState, statuses map[string]task.Status) Point {
	p := Point{Next: make(map[string]string)}

	for _, tr := range tracks {
		failed := false
		for _, id := range tr.TaskIDs {
			p.Total++
			st := statuses[id]
			switch st {
			case task.StatusPassed:
				p.Passed++
				continue
			case task.StatusRunning:
				p.Requeue = append(p.Requeue, id)
			case task.StatusFailed:
				failed = true
			}
			if _, ok := p.Next[tr.ID]; !ok && !failed {
				p.Next[tr.ID] = id
			}
		}
		if failed {
			delete(p.Next, tr.ID)
			p.FailedTracks = append(p.FailedTracks, tr.ID)
		}
	}

	sort.Strings(p.Requeue)
	sort.Strings(p.FailedTracks)
	p.Complete = p.Total > 0 && p.Passed == p.Total
	return p
}

// CarryOver returns the tasks that passed in a previous session and exist in
// the current plan, sorted.
func CarryOver(previous map[string]task.Status, planTaskIDs []string) []string {
	var ids []string
	for _, id := range planTaskIDs {
		if previous[id] == task.StatusPassed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
