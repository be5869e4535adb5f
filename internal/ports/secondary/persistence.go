// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"
	"errors"
)

// ErrNotFound is wrapped by repositories when a record does not exist.
var ErrNotFound = errors.New("not found")

// PlanRepository defines the secondary port for plan persistence.
type PlanRepository interface {
	// Create persists a plan with its assessed tasks.
	Create(ctx context.Context, plan *PlanRecord, tasks []*PlanTaskRecord) error

	// GetByID retrieves a plan by its ID.
	GetByID(ctx context.Context, id string) (*PlanRecord, error)

	// GetLatest retrieves the most recently created plan.
	GetLatest(ctx context.Context) (*PlanRecord, error)

	// ListTasks retrieves a plan's tasks in declaration order.
	ListTasks(ctx context.Context, planID string) ([]*PlanTaskRecord, error)

	// GetNextID returns the next available plan ID.
	GetNextID(ctx context.Context) (string, error)
}

// PlanRecord represents a validated plan as stored in persistence.
type PlanRecord struct {
	ID                 string
	Name               string
	SourcePath         string
	TaskCount          int
	LayerCount         int
	CriticalPathLength int
	CriticalPath       []string
	MaxParallelism     int
	CreatedAt          string
}

// PlanTaskRecord represents an assessed task definition.
type PlanTaskRecord struct {
	PlanID          string
	TaskID          string
	Title           string
	DependsOn       []string
	Weight          int
	Files           []string
	Category        string
	ComplexityScore int
	StartTier       int
	ScoreOverride   bool
	Executor        string
	Position        int
}

// SessionRepository defines the secondary port for execution sessions.
type SessionRepository interface {
	// Create persists a new session.
	Create(ctx context.Context, session *SessionRecord) error

	// GetByID retrieves a session by its ID.
	GetByID(ctx context.Context, id string) (*SessionRecord, error)

	// GetActive retrieves the non-archived session of a plan, if any.
	GetActive(ctx context.Context, planID string) (*SessionRecord, error)

	// GetLatest retrieves the most recently started session of any state.
	GetLatest(ctx context.Context) (*SessionRecord, error)

	// GetLatestArchived retrieves the most recently archived session of a plan.
	GetLatestArchived(ctx context.Context, planID string) (*SessionRecord, error)

	// UpdateState sets the session state and halt reason.
	UpdateState(ctx context.Context, id, state, haltReason string) error

	// IncrementFailures atomically adds one failure and opens the breaker when
	// the threshold is reached. It returns the new counter.
	IncrementFailures(ctx context.Context, id string) (*BreakerRecord, error)

	// ResetFailures atomically zeroes the counter unless the breaker is open.
	ResetFailures(ctx context.Context, id string) (*BreakerRecord, error)

	// CloseBreaker zeroes the counter and closes the breaker (operator reset).
	CloseBreaker(ctx context.Context, id string) error

	// AddIterations atomically adds to the global iteration count.
	AddIterations(ctx context.Context, id string, n int) error

	// Archive marks a session archived and stamps ended_at.
	Archive(ctx context.Context, id string) error
}

// SessionRecord represents an execution session.
type SessionRecord struct {
	ID                  string
	PlanID              string
	State               string
	ConsecutiveFailures int
	MaxFailures         int
	BreakerOpen         bool
	Iterations          int
	TrackCount          int
	HaltReason          string
	StartedAt           string
	UpdatedAt           string
	EndedAt             string
}

// BreakerRecord is the failure counter after an atomic update.
type BreakerRecord struct {
	ConsecutiveFailures int
	MaxFailures         int
	Open                bool
}

// Session states.
const (
	SessionStateActive    = "active"
	SessionStateHalted    = "halted"
	SessionStateCompleted = "completed"
	SessionStateArchived  = "archived"
)

// TrackRepository defines the secondary port for tracks and their sprints.
type TrackRepository interface {
	// Create persists a track with its sprints.
	Create(ctx context.Context, track *TrackRecord, sprints []*SprintRecord) error

	// GetByID retrieves a track.
	GetByID(ctx context.Context, runID, id string) (*TrackRecord, error)

	// List retrieves a run's tracks in sequence order.
	List(ctx context.Context, runID string) ([]*TrackRecord, error)

	// UpdateStatus sets a track status.
	UpdateStatus(ctx context.Context, runID, id, status string) error

	// SetWorkspace records the track's branch and directory.
	SetWorkspace(ctx context.Context, runID, id, branch, path string) error

	// ListSprints retrieves a track's sprints in order. An empty trackID lists all.
	ListSprints(ctx context.Context, runID, trackID string) ([]*SprintRecord, error)

	// UpdateSprintStatus sets a sprint status.
	UpdateSprintStatus(ctx context.Context, runID, id, status string) error
}

// TrackRecord represents a track.
type TrackRecord struct {
	RunID         string
	ID            string
	Seq           int
	Status        string
	Weight        int
	Branch        string
	WorkspacePath string
	UpdatedAt     string
}

// SprintRecord represents a sprint.
type SprintRecord struct {
	RunID     string
	ID        string
	TrackID   string
	Seq       int
	Layer     int
	TaskIDs   []string
	Status    string
	UpdatedAt string
}

// TaskRepository defines the secondary port for per-run task state.
type TaskRepository interface {
	// Create persists a task.
	Create(ctx context.Context, task *TaskRecord) error

	// GetByID retrieves a task.
	GetByID(ctx context.Context, runID, id string) (*TaskRecord, error)

	// List retrieves tasks matching the filters, ordered by track then sequence.
	List(ctx context.Context, filters TaskFilters) ([]*TaskRecord, error)

	// Update writes the mutable execution fields of a task.
	Update(ctx context.Context, task *TaskRecord) error

	// Statuses returns the status of every task in a run.
	Statuses(ctx context.Context, runID string) (map[string]string, error)
}

// TaskRecord represents a task's execution state.
type TaskRecord struct {
	RunID            string
	ID               string
	Title            string
	TrackID          string
	SprintID         string
	Seq              int
	Status           string
	ComplexityScore  int
	StartTier        int
	CurrentTier      int
	Iteration        int
	Dependencies     []string
	Executor         string
	FailureReason    string
	CouncilAttempted bool
	CouncilContext   string
	UpdatedAt        string
}

// TaskFilters contains filter options for querying tasks.
type TaskFilters struct {
	RunID   string
	TrackID string
	Status  string
}

// CheckpointRepository defines the secondary port for checkpoints. It is
// append-only.
type CheckpointRepository interface {
	// Append persists a new checkpoint.
	Append(ctx context.Context, checkpoint *CheckpointRecord) error

	// List retrieves a run's checkpoints, oldest first.
	List(ctx context.Context, filters CheckpointFilters) ([]*CheckpointRecord, error)

	// Latest retrieves the newest checkpoint of a run.
	Latest(ctx context.Context, runID string) (*CheckpointRecord, error)

	// Count returns the number of checkpoints in a run.
	Count(ctx context.Context, runID string) (int, error)
}

// CheckpointRecord represents an immutable progress snapshot.
type CheckpointRecord struct {
	ID                string
	RunID             string
	EntityType        string
	EntityID          string
	TaskID            string
	SprintID          string
	TrackID           string
	Status            string
	WorkspaceRevision string
	Metrics           map[string]int
	CreatedAt         string
}

// CheckpointFilters contains filter options for querying checkpoints.
type CheckpointFilters struct {
	RunID      string
	TaskID     string
	EntityType string
}

// Checkpoint entity types.
const (
	CheckpointEntityTask    = "task"
	CheckpointEntitySprint  = "sprint"
	CheckpointEntityTrack   = "track"
	CheckpointEntitySession = "session"
)

// EscalationRepository defines the secondary port for the per-task tier and
// attempt history.
type EscalationRepository interface {
	// Create persists a tier decision.
	Create(ctx context.Context, escalation *EscalationRecord) error

	// List retrieves a task's tier decisions, oldest first.
	List(ctx context.Context, filters EscalationFilters) ([]*EscalationRecord, error)

	// RecordAttempt persists an iteration outcome.
	RecordAttempt(ctx context.Context, attempt *AttemptRecord) error

	// ListAttempts retrieves a task's attempts, oldest first.
	ListAttempts(ctx context.Context, runID, taskID string) ([]*AttemptRecord, error)
}

// EscalationRecord represents one tier decision.
type EscalationRecord struct {
	ID        int64
	RunID     string
	TaskID    string
	Iteration int
	FromTier  int
	ToTier    int
	Reason    string
	CreatedAt string
}

// EscalationFilters contains filter options for querying escalations.
type EscalationFilters struct {
	RunID  string
	TaskID string
}

// AttemptRecord represents one execute/validate cycle.
type AttemptRecord struct {
	RunID         string
	TaskID        string
	Seq           int
	Iteration     int
	Tier          int
	Executor      string
	Passed        bool
	FailureClass  string
	UnmetCriteria []string
	FilesChanged  []string
	Diagnostic    string
	Council       bool
	StartedAt     string
	FinishedAt    string
}

// CouncilRepository defines the secondary port for council sessions.
type CouncilRepository interface {
	// SaveProposals persists the proposals of a council session.
	SaveProposals(ctx context.Context, proposals []*ProposalRecord) error

	// SaveVotes persists the votes of a council session.
	SaveVotes(ctx context.Context, votes []*VoteRecord) error

	// ListProposals retrieves a task's proposals in index order.
	ListProposals(ctx context.Context, runID, taskID string) ([]*ProposalRecord, error)

	// ListVotes retrieves a task's votes.
	ListVotes(ctx context.Context, runID, taskID string) ([]*VoteRecord, error)
}

// ProposalRecord represents a council diagnosis.
type ProposalRecord struct {
	RunID      string
	TaskID     string
	Index      int
	Analyzer   string
	Summary    string
	Confidence float64
}

// VoteRecord represents an analyzer's rank vector.
type VoteRecord struct {
	RunID      string
	TaskID     string
	Analyzer   string
	ProposalID int
	Ranks      []int
}

// MergeRepository defines the secondary port for track merge progress.
type MergeRepository interface {
	// Upsert creates or replaces a track's merge entry.
	Upsert(ctx context.Context, merge *MergeRecord) error

	// List retrieves a run's merge entries in sequence order.
	List(ctx context.Context, runID string) ([]*MergeRecord, error)
}

// MergeRecord represents a track's merge state.
type MergeRecord struct {
	RunID         string
	TrackID       string
	Seq           int
	Status        string
	ConflictPaths []string
	Revision      string
	UpdatedAt     string
}

// Store groups the repositories the application writes through.
type Store struct {
	Plans       PlanRepository
	Sessions    SessionRepository
	Tracks      TrackRepository
	Tasks       TaskRepository
	Checkpoints CheckpointRepository
	Escalations EscalationRepository
	Council     CouncilRepository
	Merges      MergeRepository
}
