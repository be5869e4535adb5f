package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/foreman/internal/ports/primary"
)

// mockStatusService implements primary.StatusService for testing
type mockStatusService struct {
	getStatusFn  func(ctx context.Context) (*primary.Status, error)
	getHistoryFn func(ctx context.Context, taskID string) (*primary.TaskHistory, error)
}

func (m *mockStatusService) GetStatus(ctx context.Context) (*primary.Status, error) {
	if m.getStatusFn != nil {
		return m.getStatusFn(ctx)
	}
	return nil, errors.New("no session found")
}

func (m *mockStatusService) GetHistory(ctx context.Context, taskID string) (*primary.TaskHistory, error) {
	if m.getHistoryFn != nil {
		return m.getHistoryFn(ctx, taskID)
	}
	return nil, errors.New("no session found")
}

func TestStatusAdapter_Status(t *testing.T) {
	mock := &mockStatusService{getStatusFn: func(ctx context.Context) (*primary.Status, error) {
		return &primary.Status{
			RunID:               "run-1",
			PlanID:              "PLAN-001",
			PlanName:            "checkout",
			State:               "halted",
			ConsecutiveFailures: 3,
			MaxFailures:         3,
			BreakerOpen:         true,
			HaltReason:          "circuit breaker opened after task C failed",
			Checkpoints:         12,
			LastCheckpoint:      "2026-03-01T10:00:00Z",
			Tracks: []*primary.TrackStatus{{
				ID:     "TRACK-1",
				Status: "failed",
				Branch: "foreman/run-1/TRACK-1",
				Tasks: []*primary.Task{
					{ID: "A", SprintID: "TRACK-1-S1", Status: "passed", CurrentTier: "T0", Iteration: 1, Executor: "default"},
					{ID: "C", SprintID: "TRACK-1-S2", Status: "failed", FailureReason: "max_iterations", CurrentTier: "T2", Iteration: 5},
				},
			}},
			Merges: []*primary.MergeEntry{{TrackID: "TRACK-1", Status: "conflict", ConflictPaths: []string{"go.sum"}}},
		}, nil
	}}
	var buf bytes.Buffer
	adapter := NewStatusAdapter(mock, &buf)

	status, err := adapter.Status(context.Background())

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if status.RunID != "run-1" {
		t.Errorf("expected run-1, got %s", status.RunID)
	}
	output := buf.String()
	for _, w := range []string{
		"PLAN-001 (checkout)", "OPEN", "3/3", "task C failed", "12 total",
		"TRACK-1", "foreman/run-1/TRACK-1", "TRACK-1-S2", "max_iterations", "go.sum",
	} {
		if !strings.Contains(output, w) {
			t.Errorf("expected output to contain %q, got %q", w, output)
		}
	}
}

func TestStatusAdapter_Status_Error(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewStatusAdapter(&mockStatusService{}, &buf)

	_, err := adapter.Status(context.Background())

	if err == nil {
		t.Fatal("expected error")
	}
}

func TestStatusAdapter_History(t *testing.T) {
	var requested string
	mock := &mockStatusService{getHistoryFn: func(ctx context.Context, taskID string) (*primary.TaskHistory, error) {
		requested = taskID
		return &primary.TaskHistory{
			RunID: "run-1",
			Task: &primary.Task{ID: taskID, Title: "payments", Status: "passed", ComplexityScore: 10,
				StartTier: "T2", TrackID: "TRACK-2", SprintID: "TRACK-2-S1", Dependencies: []string{"A"}},
			Escalations: []*primary.Escalation{
				{Iteration: 1, FromTier: "T2", ToTier: "T2", Reason: "initial"},
				{Iteration: 5, FromTier: "T2", ToTier: "T2", Reason: "council_retry"},
			},
			Attempts: []*primary.Attempt{
				{Iteration: 1, Tier: "T2", Executor: "default", FailureClass: "logic", UnmetCriteria: []string{"refund rounding"}},
				{Iteration: 5, Tier: "T2", Executor: "default", Passed: true, Council: true},
			},
			Proposals: []*primary.Proposal{
				{Index: 0, Analyzer: "root-cause", Summary: "rounding happens twice\nsecond line", Confidence: 0.9, RankSum: 5},
			},
		}, nil
	}}
	var buf bytes.Buffer
	adapter := NewStatusAdapter(mock, &buf)

	_, err := adapter.History(context.Background(), "C")

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if requested != "C" {
		t.Errorf("expected history for C, got %s", requested)
	}
	output := buf.String()
	for _, w := range []string{"Task C: payments", "Depends on: A", "council_retry", "refund rounding", "5 (council)", "root-cause", "rounding happens twice", "0.90"} {
		if !strings.Contains(output, w) {
			t.Errorf("expected output to contain %q, got %q", w, output)
		}
	}
	if strings.Contains(output, "second line") {
		t.Errorf("expected only the first summary line, got %q", output)
	}
}
