package sqlite_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/example/foreman/internal/adapters/sqlite"
	"github.com/example/foreman/internal/ports/secondary"
)

func TestTrackRepository_CreateWithSprints(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewTrackRepository(db)
	ctx := context.Background()
	runID := seedSession(t, db, "", "", "")

	for _, tr := range []struct {
		id      string
		seq     int
		sprints []*secondary.SprintRecord
	}{
		{"TRACK-2", 2, []*secondary.SprintRecord{{ID: "TRACK-2-S1", Seq: 1, Layer: 0, TaskIDs: []string{"C"}}}},
		{"TRACK-1", 1, []*secondary.SprintRecord{
			{ID: "TRACK-1-S1", Seq: 1, Layer: 0, TaskIDs: []string{"A"}},
			{ID: "TRACK-1-S2", Seq: 2, Layer: 1, TaskIDs: []string{"B"}},
		}},
	} {
		err := repo.Create(ctx, &secondary.TrackRecord{RunID: runID, ID: tr.id, Seq: tr.seq, Weight: 1}, tr.sprints)
		if err != nil {
			t.Fatalf("Create %s failed: %v", tr.id, err)
		}
	}

	tracks, err := repo.List(ctx, runID)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tracks) != 2 || tracks[0].ID != "TRACK-1" {
		t.Fatalf("List = %+v, want TRACK-1 first", tracks)
	}
	if tracks[0].Status != "pending" {
		t.Errorf("Status = %q, want pending", tracks[0].Status)
	}

	sprints, err := repo.ListSprints(ctx, runID, "")
	if err != nil {
		t.Fatalf("ListSprints failed: %v", err)
	}
	var ids []string
	for _, s := range sprints {
		ids = append(ids, s.ID)
	}
	if want := []string{"TRACK-1-S1", "TRACK-1-S2", "TRACK-2-S1"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("sprints = %v, want %v", ids, want)
	}
	if !reflect.DeepEqual(sprints[1].TaskIDs, []string{"B"}) {
		t.Errorf("TRACK-1-S2 tasks = %v", sprints[1].TaskIDs)
	}
}

func TestTrackRepository_Updates(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewTrackRepository(db)
	ctx := context.Background()
	runID := seedSession(t, db, "", "", "")

	err := repo.Create(ctx, &secondary.TrackRecord{RunID: runID, ID: "TRACK-1", Seq: 1},
		[]*secondary.SprintRecord{{ID: "TRACK-1-S1", Seq: 1, TaskIDs: []string{"A"}}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.UpdateStatus(ctx, runID, "TRACK-1", "running"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if err := repo.SetWorkspace(ctx, runID, "TRACK-1", "foreman/run/TRACK-1", "/tmp/wt/TRACK-1"); err != nil {
		t.Fatalf("SetWorkspace failed: %v", err)
	}
	if err := repo.UpdateSprintStatus(ctx, runID, "TRACK-1-S1", "completed"); err != nil {
		t.Fatalf("UpdateSprintStatus failed: %v", err)
	}

	got, err := repo.GetByID(ctx, runID, "TRACK-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != "running" || got.Branch != "foreman/run/TRACK-1" || got.WorkspacePath != "/tmp/wt/TRACK-1" {
		t.Errorf("got %+v", got)
	}

	if err := repo.UpdateStatus(ctx, runID, "TRACK-1", "exploded"); err == nil {
		t.Error("expected CHECK constraint error for unknown status")
	}
	if err := repo.UpdateStatus(ctx, runID, "TRACK-9", "running"); err == nil {
		t.Error("expected not found error")
	}
}
