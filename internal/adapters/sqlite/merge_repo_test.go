package sqlite_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/example/foreman/internal/adapters/sqlite"
	"github.com/example/foreman/internal/ports/secondary"
)

func TestMergeRepository_UpsertAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewMergeRepository(db)
	ctx := context.Background()
	runID := seedSession(t, db, "", "", "")

	for _, m := range []*secondary.MergeRecord{
		{RunID: runID, TrackID: "TRACK-2", Seq: 2, Status: "pending"},
		{RunID: runID, TrackID: "TRACK-1", Seq: 1, Status: "conflict", ConflictPaths: []string{"go.sum", "api/routes.go"}},
	} {
		if err := repo.Upsert(ctx, m); err != nil {
			t.Fatalf("Upsert %s failed: %v", m.TrackID, err)
		}
	}

	merges, err := repo.List(ctx, runID)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(merges) != 2 || merges[0].TrackID != "TRACK-1" {
		t.Fatalf("List = %+v, want TRACK-1 first", merges)
	}
	if !reflect.DeepEqual(merges[0].ConflictPaths, []string{"go.sum", "api/routes.go"}) {
		t.Errorf("ConflictPaths = %v", merges[0].ConflictPaths)
	}
	if merges[1].Revision != "" {
		t.Errorf("pending merge Revision = %q, want empty", merges[1].Revision)
	}

	// Resolving the conflict replaces the entry in place.
	err = repo.Upsert(ctx, &secondary.MergeRecord{RunID: runID, TrackID: "TRACK-1", Seq: 1, Status: "merged", Revision: "abc123"})
	if err != nil {
		t.Fatalf("Upsert update failed: %v", err)
	}
	merges, err = repo.List(ctx, runID)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(merges) != 2 {
		t.Fatalf("expected 2 entries after update, got %d", len(merges))
	}
	if merges[0].Status != "merged" || merges[0].Revision != "abc123" || len(merges[0].ConflictPaths) != 0 {
		t.Errorf("updated entry = %+v", merges[0])
	}
}

func TestMergeRepository_ListOtherRun(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewMergeRepository(db)
	ctx := context.Background()
	runID := seedSession(t, db, "", "", "")

	if err := repo.Upsert(ctx, &secondary.MergeRecord{RunID: runID, TrackID: "TRACK-1", Seq: 1, Status: "pending"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	merges, err := repo.List(ctx, "run-other")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(merges) != 0 {
		t.Errorf("expected no entries for another run, got %d", len(merges))
	}
}
