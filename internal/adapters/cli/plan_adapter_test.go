package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/foreman/internal/ports/primary"
)

// mockPlanService implements primary.PlanService for testing
type mockPlanService struct {
	createPlanFn func(ctx context.Context, req primary.CreatePlanRequest) (*primary.Plan, error)
	getPlanFn    func(ctx context.Context, planID string) (*primary.Plan, error)
	latestErr    error
}

func samplePlan(id string) *primary.Plan {
	return &primary.Plan{
		ID:                 id,
		Name:               "checkout",
		TaskCount:          2,
		LayerCount:         2,
		CriticalPathLength: 4,
		CriticalPath:       []string{"A", "B"},
		MaxParallelism:     1,
		Tasks: []*primary.PlanTask{
			{ID: "A", Title: "schema", ComplexityScore: 2, StartTier: "T0", Executor: "default"},
			{ID: "B", Title: "api", DependsOn: []string{"A"}, ComplexityScore: 10, StartTier: "T2", ScoreOverride: true, Executor: "default"},
		},
	}
}

func (m *mockPlanService) CreatePlan(ctx context.Context, req primary.CreatePlanRequest) (*primary.Plan, error) {
	if m.createPlanFn != nil {
		return m.createPlanFn(ctx, req)
	}
	return samplePlan("PLAN-001"), nil
}

func (m *mockPlanService) GetPlan(ctx context.Context, planID string) (*primary.Plan, error) {
	if m.getPlanFn != nil {
		return m.getPlanFn(ctx, planID)
	}
	return samplePlan(planID), nil
}

func (m *mockPlanService) GetLatestPlan(ctx context.Context) (*primary.Plan, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	return samplePlan("PLAN-009"), nil
}

func TestPlanAdapter_Create(t *testing.T) {
	var path string
	mock := &mockPlanService{createPlanFn: func(ctx context.Context, req primary.CreatePlanRequest) (*primary.Plan, error) {
		path = req.Path
		return samplePlan("PLAN-001"), nil
	}}
	var buf bytes.Buffer
	adapter := NewPlanAdapter(mock, &buf)

	plan, err := adapter.Create(context.Background(), "plan.yaml")

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if path != "plan.yaml" || plan.ID != "PLAN-001" {
		t.Errorf("unexpected call: path=%s plan=%s", path, plan.ID)
	}
	output := buf.String()
	for _, w := range []string{"Created plan PLAN-001", "critical path (4): A → B", "10*", "T2"} {
		if !strings.Contains(output, w) {
			t.Errorf("expected output to contain %q, got %q", w, output)
		}
	}
}

func TestPlanAdapter_Create_Error(t *testing.T) {
	mock := &mockPlanService{createPlanFn: func(ctx context.Context, req primary.CreatePlanRequest) (*primary.Plan, error) {
		return nil, errors.New("circular dependency detected: A -> B -> A")
	}}
	var buf bytes.Buffer
	adapter := NewPlanAdapter(mock, &buf)

	_, err := adapter.Create(context.Background(), "plan.yaml")

	if err == nil || !strings.Contains(err.Error(), "circular dependency") {
		t.Errorf("expected wrapped cycle error, got %v", err)
	}
}

func TestPlanAdapter_Show(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewPlanAdapter(&mockPlanService{}, &buf)

	latest, err := adapter.Show(context.Background(), "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if latest.ID != "PLAN-009" {
		t.Errorf("expected latest plan, got %s", latest.ID)
	}

	byID, err := adapter.Show(context.Background(), "PLAN-002")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if byID.ID != "PLAN-002" {
		t.Errorf("expected PLAN-002, got %s", byID.ID)
	}
}
