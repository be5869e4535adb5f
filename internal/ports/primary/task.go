package primary

// Task represents a task's execution state at the port boundary.
type Task struct {
	ID               string
	Title            string
	TrackID          string
	SprintID         string
	Status           string
	ComplexityScore  int
	StartTier        string
	CurrentTier      string
	Iteration        int
	Dependencies     []string
	Executor         string
	FailureReason    string
	CouncilAttempted bool
}

// TaskHistory is the full escalation record of a task.
type TaskHistory struct {
	RunID       string
	Task        *Task
	Escalations []*Escalation
	Attempts    []*Attempt
	Proposals   []*Proposal
	Votes       []*Vote
}

// Escalation is one tier decision.
type Escalation struct {
	Iteration int
	FromTier  string
	ToTier    string
	Reason    string
	CreatedAt string
}

// Attempt is one execute/validate cycle.
type Attempt struct {
	Iteration     int
	Tier          string
	Executor      string
	Passed        bool
	FailureClass  string
	UnmetCriteria []string
	Diagnostic    string
	Council       bool
}

// Proposal is a council diagnosis.
type Proposal struct {
	Index      int
	Analyzer   string
	Summary    string
	Confidence float64
	RankSum    int
}

// Vote is an analyzer's rank vector.
type Vote struct {
	Analyzer string
	Ranks    []int
}
