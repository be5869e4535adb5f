// Package track partitions a validated plan into parallel tracks and sprints.
// This is part of the Functional Core - no I/O, only pure functions.
package track

import (
	"fmt"
	"sort"

	"github.com/example/foreman/internal/core/graph"
	"github.com/example/foreman/internal/core/task"
)

// Status is the lifecycle state of a track or sprint.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Sprint is an ordered group of tasks in one track sharing a topological layer.
type Sprint struct {
	ID      string
	TrackID string
	Seq     int
	Layer   int
	TaskIDs []string
}

// Track is an independently progressing stream of sprints.
type Track struct {
	ID      string
	Seq     int
	Weight  int
	Sprints []Sprint
}

// TaskIDs returns the track's tasks in execution order.
func (t Track) TaskIDs() []string {
	var ids []string
	for _, s := range t.Sprints {
		ids = append(ids, s.TaskIDs...)
	}
	return ids
}

// ID formats the id of the n-th track (1-indexed).
func ID(n int) string {
	return fmt.Sprintf("TRACK-%d", n)
}

// SprintID formats the id of the n-th sprint of a track (1-indexed).
func SprintID(trackID string, n int) string {
	return fmt.Sprintf("%s-S%d", trackID, n)
}

// Partition splits the graph into count tracks, balancing total weight.
//
// Tasks are placed layer by layer. Within a layer each track takes at most
// ceil(width/count) tasks. A task follows the track of its heaviest
// dependency when that track still has room in the layer; otherwise it goes
// to the lightest track with room (lowest index on ties). Because every track
// runs its tasks in layer order, cross-track waits cannot form a cycle.
func Partition(g *graph.Graph, count int) []Track {
	count = g.TrackCount(count)

	tracks := make([]Track, count)
	for i := range tracks {
		tracks[i] = Track{ID: ID(i + 1), Seq: i + 1}
	}
	owner := make(map[string]int, g.Len())

	for layerIdx, layer := range g.Layers() {
		capacity := (len(layer) + count - 1) / count
		load := make([]int, count)
		placed := make([][]string, count)

		for _, id := range byWeight(g, layer) {
			n, _ := g.Node(id)
			target := -1

			if dep, ok := heaviestDependency(g, id); ok {
				if t := owner[dep]; load[t] < capacity {
					target = t
				}
			}
			if target < 0 {
				for i := range tracks {
					if load[i] >= capacity {
						continue
					}
					if target < 0 || tracks[i].Weight < tracks[target].Weight {
						target = i
					}
				}
			}

			owner[id] = target
			load[target]++
			tracks[target].Weight += n.Weight
			placed[target] = append(placed[target], id)
		}

		for i, ids := range placed {
			if len(ids) == 0 {
				continue
			}
			sort.Strings(ids)
			seq := len(tracks[i].Sprints) + 1
			tracks[i].Sprints = append(tracks[i].Sprints, Sprint{
				ID:      SprintID(tracks[i].ID, seq),
				TrackID: tracks[i].ID,
				Seq:     seq,
				Layer:   layerIdx,
				TaskIDs: ids,
			})
		}
	}

	return tracks
}

// byWeight orders a layer heaviest first, then by id.
func byWeight(g *graph.Graph, layer []string) []string {
	ids := append([]string(nil), layer...)
	sort.SliceStable(ids, func(i, j int) bool {
		a, _ := g.Node(ids[i])
		b, _ := g.Node(ids[j])
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		return ids[i] < ids[j]
	})
	return ids
}

func heaviestDependency(g *graph.Graph, id string) (string, bool) {
	best := ""
	bestWeight := 0
	for _, dep := range g.Dependencies(id) {
		n, _ := g.Node(dep)
		if best == "" || n.Weight > bestWeight || (n.Weight == bestWeight && dep < best) {
			best, bestWeight = dep, n.Weight
		}
	}
	return best, best != ""
}

// Aggregate derives a sprint or track status from its task statuses.
// Rules:
// - any failed task: failed
// - every task passed: completed
// - nothing started: pending
// - otherwise running
func Aggregate(statuses []task.Status) Status {
	if len(statuses) == 0 {
		return StatusCompleted
	}
	passed, pending := 0, 0
	for _, s := range statuses {
		switch s {
		case task.StatusFailed:
			return StatusFailed
		case task.StatusPassed:
			passed++
		case task.StatusPending:
			pending++
		}
	}
	switch {
	case passed == len(statuses):
		return StatusCompleted
	case pending == len(statuses):
		return StatusPending
	default:
		return StatusRunning
	}
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

// CanStartTrack evaluates whether a track may be (re)started.
func CanStartTrack(trackID string, status Status, breakerOpen bool) GuardResult {
	if breakerOpen {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("cannot start track %s: circuit breaker is open", trackID)}
	}
	if status == StatusFailed {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("track %s has failed and must be reset first", trackID)}
	}
	if status == StatusCompleted {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("track %s is already completed", trackID)}
	}
	return GuardResult{Allowed: true}
}
