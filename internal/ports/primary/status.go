package primary

import "context"

// StatusService defines the primary port for inspecting runs.
type StatusService interface {
	// GetStatus returns the current session and per-track progress.
	GetStatus(ctx context.Context) (*Status, error)

	// GetHistory returns the escalation history of a task in the current run.
	GetHistory(ctx context.Context, taskID string) (*TaskHistory, error)
}

// Status is a snapshot of the current ExecutionSession.
type Status struct {
	RunID               string
	PlanID              string
	PlanName            string
	State               string
	ConsecutiveFailures int
	MaxFailures         int
	BreakerOpen         bool
	Iterations          int
	HaltReason          string
	StartedAt           string
	Checkpoints         int
	LastCheckpoint      string
	Marked              bool
	Tracks              []*TrackStatus
	Merges              []*MergeEntry
}

// TrackStatus is one track's progress.
type TrackStatus struct {
	ID            string
	Status        string
	Branch        string
	WorkspacePath string
	Sprints       []*SprintStatus
	Tasks         []*Task
}

// SprintStatus is one sprint's progress.
type SprintStatus struct {
	ID      string
	Status  string
	TaskIDs []string
}
