package resume

import (
	"reflect"
	"testing"

	"github.com/example/foreman/internal/core/task"
)

func TestCompute_FreshRun(t *testing.T) {
	tracks := []TrackState{
		{ID: "TRACK-1", TaskIDs: []string{"A", "B"}},
		{ID: "TRACK-2", TaskIDs: []string{"C"}},
	}
	statuses := map[string]task.Status{
		"A": task.StatusPending, "B": task.StatusPending, "C": task.StatusPending,
	}

	p := Compute(tracks, statuses)
	if p.Complete {
		t.Error("fresh run should not be complete")
	}
	want := map[string]string{"TRACK-1": "A", "TRACK-2": "C"}
	if !reflect.DeepEqual(p.Next, want) {
		t.Errorf("Next = %v, want %v", p.Next, want)
	}
}

func TestCompute_SkipsPassedAndRequeuesRunning(t *testing.T) {
	tracks := []TrackState{
		{ID: "TRACK-1", TaskIDs: []string{"A", "B", "D"}},
		{ID: "TRACK-2", TaskIDs: []string{"C"}},
	}
	statuses := map[string]task.Status{
		"A": task.StatusPassed, "B": task.StatusRunning, "D": task.StatusPending,
		"C": task.StatusEscalated,
	}

	p := Compute(tracks, statuses)
	if p.Next["TRACK-1"] != "B" {
		t.Errorf("TRACK-1 should resume at B, got %q", p.Next["TRACK-1"])
	}
	if p.Next["TRACK-2"] != "C" {
		t.Errorf("TRACK-2 should resume at escalated C, got %q", p.Next["TRACK-2"])
	}
	if !reflect.DeepEqual(p.Requeue, []string{"B"}) {
		t.Errorf("Requeue = %v, want [B]", p.Requeue)
	}
	if p.Passed != 1 || p.Total != 4 {
		t.Errorf("Passed/Total = %d/%d, want 1/4", p.Passed, p.Total)
	}
}

func TestCompute_FailedTrack(t *testing.T) {
	tracks := []TrackState{{ID: "TRACK-1", TaskIDs: []string{"A", "B"}}}
	statuses := map[string]task.Status{"A": task.StatusFailed, "B": task.StatusPending}

	p := Compute(tracks, statuses)
	if _, ok := p.Next["TRACK-1"]; ok {
		t.Error("failed track should have no next task")
	}
	if !reflect.DeepEqual(p.FailedTracks, []string{"TRACK-1"}) {
		t.Errorf("FailedTracks = %v", p.FailedTracks)
	}
}

func TestCompute_CompleteIsIdempotent(t *testing.T) {
	tracks := []TrackState{{ID: "TRACK-1", TaskIDs: []string{"A", "B"}}}
	statuses := map[string]task.Status{"A": task.StatusPassed, "B": task.StatusPassed}

	first := Compute(tracks, statuses)
	second := Compute(tracks, statuses)
	if !first.Complete {
		t.Fatal("all passed should be complete")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Compute is not idempotent: %+v vs %+v", first, second)
	}
	if len(first.Next) != 0 {
		t.Errorf("complete run should have nothing next, got %v", first.Next)
	}
}

func TestCarryOver(t *testing.T) {
	prev := map[string]task.Status{
		"A": task.StatusPassed, "B": task.StatusFailed, "Z": task.StatusPassed,
	}
	got := CarryOver(prev, []string{"B", "A", "C"})
	if !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("CarryOver = %v, want [A]", got)
	}
}
