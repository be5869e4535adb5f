package primary

import "context"

// PlanService defines the primary port for building and inspecting plans.
type PlanService interface {
	// CreatePlan validates a plan file, assesses its tasks and stores it.
	CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error)

	// GetPlan retrieves a stored plan by ID.
	GetPlan(ctx context.Context, planID string) (*Plan, error)

	// GetLatestPlan retrieves the most recently created plan.
	GetLatestPlan(ctx context.Context) (*Plan, error)
}

// CreatePlanRequest contains parameters for creating a plan.
type CreatePlanRequest struct {
	Path string
}

// Plan represents a validated plan at the port boundary.
type Plan struct {
	ID                 string
	Name               string
	SourcePath         string
	TaskCount          int
	LayerCount         int
	CriticalPathLength int
	CriticalPath       []string
	MaxParallelism     int
	Tasks              []*PlanTask
	CreatedAt          string
}

// PlanTask is an assessed task definition.
type PlanTask struct {
	ID              string
	Title           string
	DependsOn       []string
	Weight          int
	Category        string
	Files           []string
	ComplexityScore int
	StartTier       string
	ScoreOverride   bool
	Executor        string
}
