package sqlite_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/example/foreman/internal/adapters/sqlite"
	"github.com/example/foreman/internal/ports/secondary"
)

func TestCouncilRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCouncilRepository(db)
	ctx := context.Background()
	runID := seedSession(t, db, "", "", "")

	roles := []string{"root-cause", "history-archaeology", "pattern-matching", "systems-impact", "adversarial"}
	var proposals []*secondary.ProposalRecord
	var votes []*secondary.VoteRecord
	for i, role := range roles {
		proposals = append(proposals, &secondary.ProposalRecord{
			RunID: runID, TaskID: "C", Index: i, Analyzer: role, Summary: "diagnosis by " + role, Confidence: 0.5,
		})
		votes = append(votes, &secondary.VoteRecord{
			RunID: runID, TaskID: "C", Analyzer: role, ProposalID: i, Ranks: []int{1, 2, 3, 4, 5},
		})
	}

	if err := repo.SaveProposals(ctx, proposals); err != nil {
		t.Fatalf("SaveProposals failed: %v", err)
	}
	if err := repo.SaveVotes(ctx, votes); err != nil {
		t.Fatalf("SaveVotes failed: %v", err)
	}

	gotProposals, err := repo.ListProposals(ctx, runID, "C")
	if err != nil {
		t.Fatalf("ListProposals failed: %v", err)
	}
	if len(gotProposals) != 5 || gotProposals[3].Analyzer != "systems-impact" {
		t.Errorf("proposals = %+v", gotProposals)
	}

	gotVotes, err := repo.ListVotes(ctx, runID, "C")
	if err != nil {
		t.Fatalf("ListVotes failed: %v", err)
	}
	if len(gotVotes) != 5 || !reflect.DeepEqual(gotVotes[0].Ranks, []int{1, 2, 3, 4, 5}) {
		t.Errorf("votes = %+v", gotVotes)
	}

	// Proposals are write-once.
	if err := repo.SaveProposals(ctx, proposals[:1]); err == nil {
		t.Error("saving a proposal twice should fail")
	}
}

func TestMergeRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewMergeRepository(db)
	ctx := context.Background()
	runID := seedSession(t, db, "", "", "")

	for _, m := range []*secondary.MergeRecord{
		{RunID: runID, TrackID: "TRACK-2", Seq: 2, Status: "pending"},
		{RunID: runID, TrackID: "TRACK-1", Seq: 1, Status: "pending"},
	} {
		if err := repo.Upsert(ctx, m); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	err := repo.Upsert(ctx, &secondary.MergeRecord{
		RunID: runID, TrackID: "TRACK-1", Seq: 1, Status: "conflict", ConflictPaths: []string{"go.mod"},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := repo.List(ctx, runID)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 || got[0].TrackID != "TRACK-1" {
		t.Fatalf("List = %+v", got)
	}
	if got[0].Status != "conflict" || !reflect.DeepEqual(got[0].ConflictPaths, []string{"go.mod"}) {
		t.Errorf("TRACK-1 = %+v", got[0])
	}
}
