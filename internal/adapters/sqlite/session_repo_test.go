package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/foreman/internal/adapters/sqlite"
	"github.com/example/foreman/internal/ports/secondary"
)

func TestSessionRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewSessionRepository(db)
	ctx := context.Background()
	seedPlan(t, db, "PLAN-001")

	err := repo.Create(ctx, &secondary.SessionRecord{ID: "run-a", PlanID: "PLAN-001", MaxFailures: 5, TrackCount: 2})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, "run-a")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.State != secondary.SessionStateActive {
		t.Errorf("State = %q, want %q", got.State, secondary.SessionStateActive)
	}
	if got.TrackCount != 2 || got.MaxFailures != 5 {
		t.Errorf("got %+v", got)
	}

	active, err := repo.GetActive(ctx, "PLAN-001")
	if err != nil || active.ID != "run-a" {
		t.Errorf("GetActive = %v, %v", active, err)
	}

	_, err = repo.GetByID(ctx, "missing")
	if !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSessionRepository_BreakerCounter(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewSessionRepository(db)
	ctx := context.Background()
	runID := seedSession(t, db, "", "", "")

	for i := 1; i <= 4; i++ {
		b, err := repo.IncrementFailures(ctx, runID)
		if err != nil {
			t.Fatalf("IncrementFailures failed: %v", err)
		}
		if b.ConsecutiveFailures != i || b.Open {
			t.Fatalf("after %d failures: %+v", i, b)
		}
	}

	b, err := repo.ResetFailures(ctx, runID)
	if err != nil {
		t.Fatalf("ResetFailures failed: %v", err)
	}
	if b.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d after reset, want 0", b.ConsecutiveFailures)
	}

	for i := 0; i < 5; i++ {
		b, err = repo.IncrementFailures(ctx, runID)
		if err != nil {
			t.Fatalf("IncrementFailures failed: %v", err)
		}
	}
	if !b.Open {
		t.Fatalf("breaker should be open after 5 failures: %+v", b)
	}

	b, _ = repo.ResetFailures(ctx, runID)
	if !b.Open || b.ConsecutiveFailures != 5 {
		t.Errorf("success must not close an open breaker: %+v", b)
	}

	if err := repo.CloseBreaker(ctx, runID); err != nil {
		t.Fatalf("CloseBreaker failed: %v", err)
	}
	s, _ := repo.GetByID(ctx, runID)
	if s.BreakerOpen || s.ConsecutiveFailures != 0 {
		t.Errorf("after CloseBreaker: %+v", s)
	}
}

func TestSessionRepository_ConcurrentIncrements(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewSessionRepository(db)
	ctx := context.Background()
	runID := seedSession(t, db, "", "", "")
	db.Exec("UPDATE sessions SET max_failures = 1000 WHERE id = ?", runID)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementFailures(ctx, runID); err != nil {
				t.Errorf("IncrementFailures failed: %v", err)
			}
		}()
	}
	wg.Wait()

	s, err := repo.GetByID(ctx, runID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if s.ConsecutiveFailures != 20 {
		t.Errorf("ConsecutiveFailures = %d, want 20", s.ConsecutiveFailures)
	}
}

func TestSessionRepository_ArchiveAndState(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewSessionRepository(db)
	ctx := context.Background()
	runID := seedSession(t, db, "", "", "")

	if err := repo.UpdateState(ctx, runID, secondary.SessionStateHalted, "circuit breaker open at C"); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if err := repo.AddIterations(ctx, runID, 3); err != nil {
		t.Fatalf("AddIterations failed: %v", err)
	}
	s, _ := repo.GetByID(ctx, runID)
	if s.State != secondary.SessionStateHalted || s.HaltReason == "" || s.Iterations != 3 {
		t.Errorf("got %+v", s)
	}

	if err := repo.Archive(ctx, runID); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	if _, err := repo.GetActive(ctx, "PLAN-001"); !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("archived session should not be active, err = %v", err)
	}
	archived, err := repo.GetLatestArchived(ctx, "PLAN-001")
	if err != nil {
		t.Fatalf("GetLatestArchived failed: %v", err)
	}
	if archived.ID != runID || archived.EndedAt == "" {
		t.Errorf("archived = %+v", archived)
	}
}
