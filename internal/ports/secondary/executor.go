package secondary

import (
	"context"
	"time"
)

// WorkItem is what collaborators are told about a task.
type WorkItem struct {
	RunID     string
	TaskID    string
	Title     string
	Category  string
	Files     []string
	Iteration int
	Tier      int
	// Executor is the registry entry chosen for the task.
	Executor string
	// Command is the executor's command line for the tier.
	Command string
	// Workspace is the track's working directory.
	Workspace string
	// Context carries extra guidance, such as the council's diagnosis.
	Context string
}

// ExecutionResult is returned by a WorkExecutor.
type ExecutionResult struct {
	FilesChanged   []string `json:"files_changed"`
	Success        bool     `json:"success"`
	DiagnosticText string   `json:"diagnostic"`
	Duration       time.Duration
}

// ValidationResult is returned by a Validator. FailureClass is required when
// Passed is false.
type ValidationResult struct {
	Passed        bool     `json:"passed"`
	UnmetCriteria []string `json:"unmet_criteria"`
	FailureClass  string   `json:"failure_class"`
}

// WorkExecutor performs a task at a tier. Retrying at a different tier must
// be safe.
type WorkExecutor interface {
	Execute(ctx context.Context, item WorkItem) (*ExecutionResult, error)
}

// Validator judges an execution result.
type Validator interface {
	Validate(ctx context.Context, item WorkItem, result *ExecutionResult) (*ValidationResult, error)
}

// Diagnosis is one analyzer's proposal.
type Diagnosis struct {
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// CouncilBrief is the material analyzers work from.
type CouncilBrief struct {
	RunID    string
	TaskID   string
	Title    string
	Attempts []*AttemptRecord
}

// Analyzer is one council role.
type Analyzer interface {
	// Propose produces the analyzer's diagnosis.
	Propose(ctx context.Context, role string, brief CouncilBrief) (*Diagnosis, error)

	// Rank returns the rank (1 = best) the analyzer gives each proposal.
	Rank(ctx context.Context, role string, brief CouncilBrief, proposals []Diagnosis) ([]int, error)
}
