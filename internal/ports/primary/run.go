package primary

import "context"

// RunService defines the primary port for executing a plan.
type RunService interface {
	// Run starts or resumes a run of a plan, then merges the tracks once all
	// of them complete.
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// RunRequest contains parameters for a run.
type RunRequest struct {
	// PlanID selects the plan; empty means the latest plan.
	PlanID string
	// Tracks is the requested track count; zero uses the configured value.
	Tracks int
	// TaskBudget stops admitting tasks after this many complete; zero is unlimited.
	TaskBudget int
}

// Run outcomes.
const (
	RunOutcomeCompleted   = "completed"
	RunOutcomeBreakerOpen = "breaker_open"
	RunOutcomeFailed      = "failed"
	RunOutcomeIncomplete  = "incomplete"
)

// RunResult summarises a run invocation.
type RunResult struct {
	RunID   string
	PlanID  string
	Outcome string
	// Resumed is set when an existing session was continued.
	Resumed bool
	// AlreadyComplete is set when there was nothing left to do.
	AlreadyComplete bool
	Passed          int
	Failed          int
	Escalated       int
	Total           int
	// HaltedAt names the task whose failure opened the breaker.
	HaltedAt     string
	HaltReason   string
	FailedTracks []string
	Merge        *MergeResult
}
