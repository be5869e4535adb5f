package sqlite_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/example/foreman/internal/adapters/sqlite"
	"github.com/example/foreman/internal/ports/secondary"
)

func TestEscalationRepository_CreateAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewEscalationRepository(db)
	ctx := context.Background()

	runID := seedSession(t, db, "", "", "")

	decisions := []*secondary.EscalationRecord{
		{RunID: runID, TaskID: "C", Iteration: 1, FromTier: 2, ToTier: 2, Reason: "initial"},
		{RunID: runID, TaskID: "A", Iteration: 1, FromTier: 0, ToTier: 0, Reason: "initial"},
		{RunID: runID, TaskID: "C", Iteration: 2, FromTier: 2, ToTier: 2, Reason: "progression"},
	}
	for _, d := range decisions {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if d.ID == 0 {
			t.Error("Create should assign an ID")
		}
	}

	got, err := repo.List(ctx, secondary.EscalationFilters{RunID: runID, TaskID: "C"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Iteration != 1 || got[1].Reason != "progression" {
		t.Errorf("List order = %+v, %+v", got[0], got[1])
	}
}

func TestEscalationRepository_Attempts(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewEscalationRepository(db)
	ctx := context.Background()

	runID := seedSession(t, db, "", "", "")

	t.Run("records failed and passed attempts", func(t *testing.T) {
		failed := &secondary.AttemptRecord{
			RunID: runID, TaskID: "B", Seq: 1, Iteration: 1, Tier: 1, Executor: "general",
			FailureClass: "logic", UnmetCriteria: []string{"TestLogin fails"},
			FilesChanged: []string{"auth.go"}, Diagnostic: "assertion failed",
		}
		passed := &secondary.AttemptRecord{
			RunID: runID, TaskID: "B", Seq: 2, Iteration: 2, Tier: 1, Executor: "general", Passed: true,
			FailureClass: "logic",
		}
		if err := repo.RecordAttempt(ctx, failed); err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}
		if err := repo.RecordAttempt(ctx, passed); err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}

		got, err := repo.ListAttempts(ctx, runID, "B")
		if err != nil {
			t.Fatalf("ListAttempts failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		if !reflect.DeepEqual(got[0].UnmetCriteria, []string{"TestLogin fails"}) {
			t.Errorf("UnmetCriteria = %v", got[0].UnmetCriteria)
		}
		if got[0].FailureClass != "logic" || got[0].Passed {
			t.Errorf("first attempt = %+v", got[0])
		}
		if !got[1].Passed || got[1].FailureClass != "" {
			t.Errorf("passed attempt should not carry a failure class: %+v", got[1])
		}
	})

	t.Run("rejects unknown failure class", func(t *testing.T) {
		err := repo.RecordAttempt(ctx, &secondary.AttemptRecord{
			RunID: runID, TaskID: "B", Seq: 3, Iteration: 3, FailureClass: "cosmic-rays",
		})
		if err == nil {
			t.Error("expected CHECK constraint error")
		}
	})
}
