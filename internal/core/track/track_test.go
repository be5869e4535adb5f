package track

import (
	"reflect"
	"testing"

	"github.com/example/foreman/internal/core/graph"
	"github.com/example/foreman/internal/core/task"
)

func mustBuild(t *testing.T, nodes []graph.Node) *graph.Graph {
	t.Helper()
	g, err := graph.Build(nodes)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g
}

func trackOf(tracks []Track, id string) string {
	for _, tr := range tracks {
		for _, tid := range tr.TaskIDs() {
			if tid == id {
				return tr.ID
			}
		}
	}
	return ""
}

func TestPartition_TwoIndependentChains(t *testing.T) {
	g := mustBuild(t, []graph.Node{
		{ID: "A", Weight: 1},
		{ID: "B", DependsOn: []string{"A"}, Weight: 1},
		{ID: "C", Weight: 1},
	})

	tracks := Partition(g, 2)
	if len(tracks) != 2 {
		t.Fatalf("len(tracks) = %d, want 2", len(tracks))
	}
	if got := trackOf(tracks, "A"); got != "TRACK-1" {
		t.Errorf("A on %s, want TRACK-1", got)
	}
	if got := trackOf(tracks, "C"); got != "TRACK-2" {
		t.Errorf("C on %s, want TRACK-2", got)
	}
	if got := trackOf(tracks, "B"); got != "TRACK-1" {
		t.Errorf("B should follow A onto TRACK-1, got %s", got)
	}

	want := []Sprint{
		{ID: "TRACK-1-S1", TrackID: "TRACK-1", Seq: 1, Layer: 0, TaskIDs: []string{"A"}},
		{ID: "TRACK-1-S2", TrackID: "TRACK-1", Seq: 2, Layer: 1, TaskIDs: []string{"B"}},
	}
	if !reflect.DeepEqual(tracks[0].Sprints, want) {
		t.Errorf("TRACK-1 sprints = %+v, want %+v", tracks[0].Sprints, want)
	}
}

func TestPartition_CappedByParallelism(t *testing.T) {
	g := mustBuild(t, []graph.Node{
		{ID: "A"},
		{ID: "B", DependsOn: []string{"A"}},
	})
	if got := len(Partition(g, 4)); got != 1 {
		t.Errorf("len(tracks) = %d, want 1", got)
	}
}

func TestPartition_BalancesWeight(t *testing.T) {
	g := mustBuild(t, []graph.Node{
		{ID: "A", Weight: 5},
		{ID: "B", Weight: 3},
		{ID: "C", Weight: 2},
		{ID: "D", Weight: 1},
	})
	tracks := Partition(g, 2)

	// Heaviest first: A->1, B->2, C->2 (lighter), D->1.
	if tracks[0].Weight != 6 || tracks[1].Weight != 5 {
		t.Errorf("weights = %d/%d, want 6/5", tracks[0].Weight, tracks[1].Weight)
	}
	for _, tr := range tracks {
		if len(tr.Sprints) != 1 || len(tr.Sprints[0].TaskIDs) != 2 {
			t.Errorf("%s sprints = %+v, want one sprint of two tasks", tr.ID, tr.Sprints)
		}
	}
}

func TestPartition_EveryTaskPlacedOnce(t *testing.T) {
	g := mustBuild(t, []graph.Node{
		{ID: "A"}, {ID: "B"}, {ID: "C"},
		{ID: "D", DependsOn: []string{"A", "B"}},
		{ID: "E", DependsOn: []string{"C"}},
		{ID: "F", DependsOn: []string{"D", "E"}},
	})
	tracks := Partition(g, 3)

	seen := map[string]int{}
	for _, tr := range tracks {
		prevLayer := -1
		for _, s := range tr.Sprints {
			if s.Layer <= prevLayer {
				t.Errorf("%s sprints out of layer order", tr.ID)
			}
			prevLayer = s.Layer
			for _, id := range s.TaskIDs {
				seen[id]++
			}
		}
	}
	for _, id := range g.Order() {
		if seen[id] != 1 {
			t.Errorf("task %s placed %d times", id, seen[id])
		}
	}
}

func TestPartition_Deterministic(t *testing.T) {
	nodes := []graph.Node{
		{ID: "A", Weight: 2}, {ID: "B", Weight: 2}, {ID: "C", Weight: 1},
		{ID: "D", DependsOn: []string{"B"}}, {ID: "E", DependsOn: []string{"A", "C"}},
	}
	first := Partition(mustBuild(t, nodes), 3)
	for i := 0; i < 10; i++ {
		if got := Partition(mustBuild(t, nodes), 3); !reflect.DeepEqual(got, first) {
			t.Fatalf("partition changed between runs: %+v vs %+v", got, first)
		}
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		statuses []task.Status
		want     Status
	}{
		{"all pending", []task.Status{task.StatusPending, task.StatusPending}, StatusPending},
		{"all passed", []task.Status{task.StatusPassed, task.StatusPassed}, StatusCompleted},
		{"one failed", []task.Status{task.StatusPassed, task.StatusFailed}, StatusFailed},
		{"in progress", []task.Status{task.StatusPassed, task.StatusPending}, StatusRunning},
		{"escalated", []task.Status{task.StatusEscalated}, StatusRunning},
		{"empty", nil, StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Aggregate(tt.statuses); got != tt.want {
				t.Errorf("Aggregate = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCanStartTrack(t *testing.T) {
	if !CanStartTrack("TRACK-1", StatusPending, false).Allowed {
		t.Error("pending track should start")
	}
	if !CanStartTrack("TRACK-1", StatusRunning, false).Allowed {
		t.Error("running track should resume")
	}
	if CanStartTrack("TRACK-1", StatusPending, true).Allowed {
		t.Error("open breaker should block tracks")
	}
	if CanStartTrack("TRACK-1", StatusFailed, false).Allowed {
		t.Error("failed track should not restart")
	}
}
