package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/example/foreman/internal/adapters/sqlite"
	"github.com/example/foreman/internal/ports/secondary"
)

func TestCheckpointRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCheckpointRepository(db)
	ctx := context.Background()
	runID := seedSession(t, db, "", "", "")

	if _, err := repo.Latest(ctx, runID); !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("Latest on empty run error = %v, want ErrNotFound", err)
	}

	for i, status := range []string{"running", "passed", "passed"} {
		entity := secondary.CheckpointEntityTask
		if i == 2 {
			entity = secondary.CheckpointEntitySprint
		}
		err := repo.Append(ctx, &secondary.CheckpointRecord{
			ID:                fmt.Sprintf("cp-%d", i),
			RunID:             runID,
			EntityType:        entity,
			EntityID:          "A",
			TaskID:            "A",
			TrackID:           "TRACK-1",
			Status:            status,
			WorkspaceRevision: "abc123",
			Metrics:           map[string]int{"passed": i},
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	n, err := repo.Count(ctx, runID)
	if err != nil || n != 3 {
		t.Errorf("Count = %d, %v; want 3", n, err)
	}

	latest, err := repo.Latest(ctx, runID)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.ID != "cp-2" || latest.Metrics["passed"] != 2 {
		t.Errorf("Latest = %+v", latest)
	}

	tasks, err := repo.List(ctx, secondary.CheckpointFilters{RunID: runID, EntityType: secondary.CheckpointEntityTask})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Status != "running" {
		t.Errorf("List = %+v", tasks)
	}

	// Checkpoints are never overwritten.
	err = repo.Append(ctx, &secondary.CheckpointRecord{ID: "cp-0", RunID: runID, EntityType: "task", EntityID: "A", Status: "failed"})
	if err == nil {
		t.Error("re-using a checkpoint ID should fail")
	}
}
