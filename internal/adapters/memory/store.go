// Package memory provides in-process implementations of the persistence ports.
// They back dry runs and the application service tests, and follow the same
// ordering and not-found rules as the SQLite adapters.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/foreman/internal/core/breaker"
	"github.com/example/foreman/internal/ports/secondary"
)

type state struct {
	mu sync.RWMutex

	plans       []*secondary.PlanRecord
	planTasks   map[string][]*secondary.PlanTaskRecord
	sessions    []*secondary.SessionRecord
	tracks      []*secondary.TrackRecord
	sprints     []*secondary.SprintRecord
	tasks       []*secondary.TaskRecord
	checkpoints []*secondary.CheckpointRecord
	escalations []*secondary.EscalationRecord
	attempts    []*secondary.AttemptRecord
	proposals   []*secondary.ProposalRecord
	votes       []*secondary.VoteRecord
	merges      []*secondary.MergeRecord

	nextEscalation int64
}

// NewStore returns an empty in-memory store.
func NewStore() secondary.Store {
	s := &state{planTasks: make(map[string][]*secondary.PlanTaskRecord)}
	return secondary.Store{
		Plans:       &PlanRepository{s},
		Sessions:    &SessionRepository{s},
		Tracks:      &TrackRepository{s},
		Tasks:       &TaskRepository{s},
		Checkpoints: &CheckpointRepository{s},
		Escalations: &EscalationRepository{s},
		Council:     &CouncilRepository{s},
		Merges:      &MergeRepository{s},
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// PlanRepository implements secondary.PlanRepository in memory.
type PlanRepository struct{ s *state }

// Create stores a plan and its tasks.
func (r *PlanRepository) Create(ctx context.Context, plan *secondary.PlanRecord, tasks []*secondary.PlanTaskRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.plans {
		if p.ID == plan.ID {
			return fmt.Errorf("failed to create plan: plan %s already exists", plan.ID)
		}
	}
	p := *plan
	p.CriticalPath = slices.Clone(plan.CriticalPath)
	p.CreatedAt = now()
	r.s.plans = append(r.s.plans, &p)

	copies := make([]*secondary.PlanTaskRecord, 0, len(tasks))
	for _, t := range tasks {
		c := *t
		c.PlanID = plan.ID
		c.DependsOn = slices.Clone(t.DependsOn)
		c.Files = slices.Clone(t.Files)
		copies = append(copies, &c)
	}
	sort.SliceStable(copies, func(i, j int) bool {
		if copies[i].Position != copies[j].Position {
			return copies[i].Position < copies[j].Position
		}
		return copies[i].TaskID < copies[j].TaskID
	})
	r.s.planTasks[plan.ID] = copies
	return nil
}

// GetByID retrieves a plan.
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*secondary.PlanRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.plans {
		if p.ID == id {
			c := *p
			return &c, nil
		}
	}
	return nil, fmt.Errorf("plan %s: %w", id, secondary.ErrNotFound)
}

// GetLatest retrieves the most recently created plan.
func (r *PlanRepository) GetLatest(ctx context.Context) (*secondary.PlanRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if len(r.s.plans) == 0 {
		return nil, fmt.Errorf("latest plan: %w", secondary.ErrNotFound)
	}
	c := *r.s.plans[len(r.s.plans)-1]
	return &c, nil
}

// ListTasks retrieves a plan's tasks in declaration order.
func (r *PlanRepository) ListTasks(ctx context.Context, planID string) ([]*secondary.PlanTaskRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*secondary.PlanTaskRecord
	for _, t := range r.s.planTasks[planID] {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

// GetNextID returns the next available plan ID.
func (r *PlanRepository) GetNextID(ctx context.Context) (string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	maxID := 0
	for _, p := range r.s.plans {
		if n, err := strconv.Atoi(strings.TrimPrefix(p.ID, "PLAN-")); err == nil && n > maxID {
			maxID = n
		}
	}
	return fmt.Sprintf("PLAN-%03d", maxID+1), nil
}

// SessionRepository implements secondary.SessionRepository in memory.
type SessionRepository struct{ s *state }

func (r *SessionRepository) find(id string) (*secondary.SessionRecord, error) {
	for _, s := range r.s.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("session %s: %w", id, secondary.ErrNotFound)
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *secondary.SessionRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.find(session.ID); err == nil {
		return fmt.Errorf("failed to create session: session %s already exists", session.ID)
	}
	c := *session
	if c.State == "" {
		c.State = secondary.SessionStateActive
	}
	c.StartedAt = now()
	c.UpdatedAt = c.StartedAt
	r.s.sessions = append(r.s.sessions, &c)
	return nil
}

// GetByID retrieves a session.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*secondary.SessionRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	s, err := r.find(id)
	if err != nil {
		return nil, err
	}
	c := *s
	return &c, nil
}

func (r *SessionRepository) latest(what string, match func(*secondary.SessionRecord) bool) (*secondary.SessionRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for i := len(r.s.sessions) - 1; i >= 0; i-- {
		if match(r.s.sessions[i]) {
			c := *r.s.sessions[i]
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", what, secondary.ErrNotFound)
}

// GetActive retrieves the non-archived session of a plan.
func (r *SessionRepository) GetActive(ctx context.Context, planID string) (*secondary.SessionRecord, error) {
	return r.latest("active session for plan "+planID, func(s *secondary.SessionRecord) bool {
		return s.PlanID == planID && s.State != secondary.SessionStateArchived
	})
}

// GetLatest retrieves the most recently started session.
func (r *SessionRepository) GetLatest(ctx context.Context) (*secondary.SessionRecord, error) {
	return r.latest("latest session", func(*secondary.SessionRecord) bool { return true })
}

// GetLatestArchived retrieves the most recently archived session of a plan.
func (r *SessionRepository) GetLatestArchived(ctx context.Context, planID string) (*secondary.SessionRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var best *secondary.SessionRecord
	for _, s := range r.s.sessions {
		if s.PlanID != planID || s.State != secondary.SessionStateArchived {
			continue
		}
		if best == nil || s.EndedAt >= best.EndedAt {
			best = s
		}
	}
	if best == nil {
		return nil, fmt.Errorf("archived session for plan %s: %w", planID, secondary.ErrNotFound)
	}
	c := *best
	return &c, nil
}

func (r *SessionRepository) update(id string, fn func(*secondary.SessionRecord)) (*secondary.SessionRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, err := r.find(id)
	if err != nil {
		return nil, err
	}
	fn(s)
	s.UpdatedAt = now()
	c := *s
	return &c, nil
}

// UpdateState sets the session state and halt reason.
func (r *SessionRepository) UpdateState(ctx context.Context, id, state, haltReason string) error {
	_, err := r.update(id, func(s *secondary.SessionRecord) {
		s.State = state
		s.HaltReason = haltReason
	})
	return err
}

func breakerRecord(s *secondary.SessionRecord, err error) (*secondary.BreakerRecord, error) {
	if err != nil {
		return nil, err
	}
	return &secondary.BreakerRecord{
		ConsecutiveFailures: s.ConsecutiveFailures,
		MaxFailures:         s.MaxFailures,
		Open:                s.BreakerOpen,
	}, nil
}

// applyCounter runs a breaker transition on the session's failure counter.
func applyCounter(s *secondary.SessionRecord, step func(breaker.Counter) breaker.Counter) {
	c := step(breaker.Counter{
		ConsecutiveFailures: s.ConsecutiveFailures,
		Threshold:           s.MaxFailures,
		Tripped:             s.BreakerOpen,
	})
	s.ConsecutiveFailures = c.ConsecutiveFailures
	s.BreakerOpen = c.Tripped
}

// IncrementFailures adds one failure under the store lock.
func (r *SessionRepository) IncrementFailures(ctx context.Context, id string) (*secondary.BreakerRecord, error) {
	return breakerRecord(r.update(id, func(s *secondary.SessionRecord) {
		applyCounter(s, breaker.Counter.RecordFailure)
	}))
}

// ResetFailures zeroes the counter unless the breaker is open.
func (r *SessionRepository) ResetFailures(ctx context.Context, id string) (*secondary.BreakerRecord, error) {
	return breakerRecord(r.update(id, func(s *secondary.SessionRecord) {
		applyCounter(s, breaker.Counter.RecordSuccess)
	}))
}

// CloseBreaker zeroes the counter and closes the breaker.
func (r *SessionRepository) CloseBreaker(ctx context.Context, id string) error {
	_, err := r.update(id, func(s *secondary.SessionRecord) {
		applyCounter(s, breaker.Counter.Reset)
	})
	return err
}

// AddIterations adds to the global iteration count.
func (r *SessionRepository) AddIterations(ctx context.Context, id string, n int) error {
	_, err := r.update(id, func(s *secondary.SessionRecord) { s.Iterations += n })
	return err
}

// Archive marks a session archived.
func (r *SessionRepository) Archive(ctx context.Context, id string) error {
	_, err := r.update(id, func(s *secondary.SessionRecord) {
		s.State = secondary.SessionStateArchived
		s.EndedAt = now()
	})
	return err
}

// TrackRepository implements secondary.TrackRepository in memory.
type TrackRepository struct{ s *state }

func (r *TrackRepository) find(runID, id string) (*secondary.TrackRecord, error) {
	for _, t := range r.s.tracks {
		if t.RunID == runID && t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("track %s: %w", id, secondary.ErrNotFound)
}

func (r *TrackRepository) seq(runID, id string) int {
	if t, err := r.find(runID, id); err == nil {
		return t.Seq
	}
	return -1
}

// Create stores a track with its sprints.
func (r *TrackRepository) Create(ctx context.Context, track *secondary.TrackRecord, sprints []*secondary.SprintRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.find(track.RunID, track.ID); err == nil {
		return fmt.Errorf("failed to create track: track %s already exists", track.ID)
	}
	c := *track
	if c.Status == "" {
		c.Status = "pending"
	}
	c.UpdatedAt = now()
	r.s.tracks = append(r.s.tracks, &c)
	for _, sp := range sprints {
		sc := *sp
		sc.RunID = track.RunID
		sc.TrackID = track.ID
		sc.TaskIDs = slices.Clone(sp.TaskIDs)
		if sc.Status == "" {
			sc.Status = "pending"
		}
		sc.UpdatedAt = c.UpdatedAt
		r.s.sprints = append(r.s.sprints, &sc)
	}
	return nil
}

// GetByID retrieves a track.
func (r *TrackRepository) GetByID(ctx context.Context, runID, id string) (*secondary.TrackRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, err := r.find(runID, id)
	if err != nil {
		return nil, err
	}
	c := *t
	return &c, nil
}

// List retrieves a run's tracks in sequence order.
func (r *TrackRepository) List(ctx context.Context, runID string) ([]*secondary.TrackRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*secondary.TrackRecord
	for _, t := range r.s.tracks {
		if t.RunID == runID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// UpdateStatus sets a track status.
func (r *TrackRepository) UpdateStatus(ctx context.Context, runID, id, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, err := r.find(runID, id)
	if err != nil {
		return err
	}
	t.Status = status
	t.UpdatedAt = now()
	return nil
}

// SetWorkspace records the track's branch and directory.
func (r *TrackRepository) SetWorkspace(ctx context.Context, runID, id, branch, path string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, err := r.find(runID, id)
	if err != nil {
		return err
	}
	t.Branch = branch
	t.WorkspacePath = path
	t.UpdatedAt = now()
	return nil
}

// ListSprints retrieves sprints in track then sequence order.
func (r *TrackRepository) ListSprints(ctx context.Context, runID, trackID string) ([]*secondary.SprintRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*secondary.SprintRecord
	for _, sp := range r.s.sprints {
		if sp.RunID == runID && (trackID == "" || sp.TrackID == trackID) {
			c := *sp
			c.TaskIDs = slices.Clone(sp.TaskIDs)
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := r.seq(runID, out[i].TrackID), r.seq(runID, out[j].TrackID)
		if si != sj {
			return si < sj
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// UpdateSprintStatus sets a sprint status.
func (r *TrackRepository) UpdateSprintStatus(ctx context.Context, runID, id, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sp := range r.s.sprints {
		if sp.RunID == runID && sp.ID == id {
			sp.Status = status
			sp.UpdatedAt = now()
			return nil
		}
	}
	return fmt.Errorf("sprint %s: %w", id, secondary.ErrNotFound)
}

// TaskRepository implements secondary.TaskRepository in memory.
type TaskRepository struct{ s *state }

func (r *TaskRepository) find(runID, id string) (*secondary.TaskRecord, error) {
	for _, t := range r.s.tasks {
		if t.RunID == runID && t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("task %s: %w", id, secondary.ErrNotFound)
}

func copyTask(t *secondary.TaskRecord) *secondary.TaskRecord {
	c := *t
	c.Dependencies = slices.Clone(t.Dependencies)
	return &c
}

// Create stores a task.
func (r *TaskRepository) Create(ctx context.Context, task *secondary.TaskRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.find(task.RunID, task.ID); err == nil {
		return fmt.Errorf("failed to create task: task %s already exists", task.ID)
	}
	c := copyTask(task)
	if c.Status == "" {
		c.Status = "pending"
	}
	c.UpdatedAt = now()
	r.s.tasks = append(r.s.tasks, c)
	return nil
}

// GetByID retrieves a task.
func (r *TaskRepository) GetByID(ctx context.Context, runID, id string) (*secondary.TaskRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, err := r.find(runID, id)
	if err != nil {
		return nil, err
	}
	return copyTask(t), nil
}

// List retrieves tasks matching the filters, ordered by track then sequence.
func (r *TaskRepository) List(ctx context.Context, filters secondary.TaskFilters) ([]*secondary.TaskRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	tracks := &TrackRepository{r.s}
	var out []*secondary.TaskRecord
	for _, t := range r.s.tasks {
		if t.RunID != filters.RunID {
			continue
		}
		if filters.TrackID != "" && t.TrackID != filters.TrackID {
			continue
		}
		if filters.Status != "" && t.Status != filters.Status {
			continue
		}
		out = append(out, copyTask(t))
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := tracks.seq(filters.RunID, out[i].TrackID), tracks.seq(filters.RunID, out[j].TrackID)
		if si != sj {
			return si < sj
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// Update writes the mutable execution fields of a task.
func (r *TaskRepository) Update(ctx context.Context, task *secondary.TaskRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, err := r.find(task.RunID, task.ID)
	if err != nil {
		return err
	}
	t.Status = task.Status
	t.CurrentTier = task.CurrentTier
	t.Iteration = task.Iteration
	t.Executor = task.Executor
	t.FailureReason = task.FailureReason
	t.CouncilAttempted = task.CouncilAttempted
	t.CouncilContext = task.CouncilContext
	t.UpdatedAt = now()
	return nil
}

// Statuses returns the status of every task in a run.
func (r *TaskRepository) Statuses(ctx context.Context, runID string) (map[string]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]string)
	for _, t := range r.s.tasks {
		if t.RunID == runID {
			out[t.ID] = t.Status
		}
	}
	return out, nil
}

// CheckpointRepository implements secondary.CheckpointRepository in memory.
type CheckpointRepository struct{ s *state }

// Append stores a new checkpoint. IDs may not be reused.
func (r *CheckpointRepository) Append(ctx context.Context, cp *secondary.CheckpointRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.checkpoints {
		if existing.ID == cp.ID {
			return fmt.Errorf("failed to append checkpoint: checkpoint %s already exists", cp.ID)
		}
	}
	c := *cp
	c.Metrics = make(map[string]int, len(cp.Metrics))
	for k, v := range cp.Metrics {
		c.Metrics[k] = v
	}
	if c.CreatedAt == "" {
		c.CreatedAt = now()
	}
	r.s.checkpoints = append(r.s.checkpoints, &c)
	return nil
}

// List retrieves checkpoints, oldest first.
func (r *CheckpointRepository) List(ctx context.Context, filters secondary.CheckpointFilters) ([]*secondary.CheckpointRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*secondary.CheckpointRecord
	for _, cp := range r.s.checkpoints {
		if cp.RunID != filters.RunID {
			continue
		}
		if filters.TaskID != "" && cp.TaskID != filters.TaskID {
			continue
		}
		if filters.EntityType != "" && cp.EntityType != filters.EntityType {
			continue
		}
		c := *cp
		out = append(out, &c)
	}
	return out, nil
}

// Latest retrieves the newest checkpoint of a run.
func (r *CheckpointRepository) Latest(ctx context.Context, runID string) (*secondary.CheckpointRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for i := len(r.s.checkpoints) - 1; i >= 0; i-- {
		if r.s.checkpoints[i].RunID == runID {
			c := *r.s.checkpoints[i]
			return &c, nil
		}
	}
	return nil, fmt.Errorf("checkpoint for run %s: %w", runID, secondary.ErrNotFound)
}

// Count returns the number of checkpoints in a run.
func (r *CheckpointRepository) Count(ctx context.Context, runID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, cp := range r.s.checkpoints {
		if cp.RunID == runID {
			n++
		}
	}
	return n, nil
}

// EscalationRepository implements secondary.EscalationRepository in memory.
type EscalationRepository struct{ s *state }

// Create stores a tier decision and assigns its ID.
func (r *EscalationRepository) Create(ctx context.Context, e *secondary.EscalationRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextEscalation++
	e.ID = r.s.nextEscalation
	c := *e
	c.CreatedAt = now()
	r.s.escalations = append(r.s.escalations, &c)
	return nil
}

// List retrieves tier decisions, oldest first.
func (r *EscalationRepository) List(ctx context.Context, filters secondary.EscalationFilters) ([]*secondary.EscalationRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*secondary.EscalationRecord
	for _, e := range r.s.escalations {
		if filters.RunID != "" && e.RunID != filters.RunID {
			continue
		}
		if filters.TaskID != "" && e.TaskID != filters.TaskID {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

// RecordAttempt stores an iteration outcome, replacing one with the same sequence.
func (r *EscalationRepository) RecordAttempt(ctx context.Context, a *secondary.AttemptRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *a
	c.UnmetCriteria = slices.Clone(a.UnmetCriteria)
	c.FilesChanged = slices.Clone(a.FilesChanged)
	if c.Passed {
		c.FailureClass = ""
	}
	for i, existing := range r.s.attempts {
		if existing.RunID == a.RunID && existing.TaskID == a.TaskID && existing.Seq == a.Seq {
			r.s.attempts[i] = &c
			return nil
		}
	}
	r.s.attempts = append(r.s.attempts, &c)
	return nil
}

// ListAttempts retrieves a task's attempts, oldest first.
func (r *EscalationRepository) ListAttempts(ctx context.Context, runID, taskID string) ([]*secondary.AttemptRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*secondary.AttemptRecord
	for _, a := range r.s.attempts {
		if a.RunID == runID && a.TaskID == taskID {
			c := *a
			c.UnmetCriteria = slices.Clone(a.UnmetCriteria)
			c.FilesChanged = slices.Clone(a.FilesChanged)
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// CouncilRepository implements secondary.CouncilRepository in memory.
type CouncilRepository struct{ s *state }

// SaveProposals stores the proposals of a council session.
func (r *CouncilRepository) SaveProposals(ctx context.Context, proposals []*secondary.ProposalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range proposals {
		for _, existing := range r.s.proposals {
			if existing.RunID == p.RunID && existing.TaskID == p.TaskID && existing.Index == p.Index {
				return fmt.Errorf("failed to save proposal %d for task %s: already exists", p.Index, p.TaskID)
			}
		}
	}
	for _, p := range proposals {
		c := *p
		r.s.proposals = append(r.s.proposals, &c)
	}
	return nil
}

// SaveVotes stores the votes of a council session.
func (r *CouncilRepository) SaveVotes(ctx context.Context, votes []*secondary.VoteRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range votes {
		for _, existing := range r.s.votes {
			if existing.RunID == v.RunID && existing.TaskID == v.TaskID && existing.Analyzer == v.Analyzer {
				return fmt.Errorf("failed to save vote of %s for task %s: already exists", v.Analyzer, v.TaskID)
			}
		}
	}
	for _, v := range votes {
		c := *v
		c.Ranks = slices.Clone(v.Ranks)
		r.s.votes = append(r.s.votes, &c)
	}
	return nil
}

// ListProposals retrieves a task's proposals in index order.
func (r *CouncilRepository) ListProposals(ctx context.Context, runID, taskID string) ([]*secondary.ProposalRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*secondary.ProposalRecord
	for _, p := range r.s.proposals {
		if p.RunID == runID && p.TaskID == taskID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// ListVotes retrieves a task's votes.
func (r *CouncilRepository) ListVotes(ctx context.Context, runID, taskID string) ([]*secondary.VoteRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*secondary.VoteRecord
	for _, v := range r.s.votes {
		if v.RunID == runID && v.TaskID == taskID {
			c := *v
			c.Ranks = slices.Clone(v.Ranks)
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ProposalID < out[j].ProposalID })
	return out, nil
}

// MergeRepository implements secondary.MergeRepository in memory.
type MergeRepository struct{ s *state }

// Upsert creates or replaces a track's merge entry.
func (r *MergeRepository) Upsert(ctx context.Context, m *secondary.MergeRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *m
	c.ConflictPaths = slices.Clone(m.ConflictPaths)
	c.UpdatedAt = now()
	for i, existing := range r.s.merges {
		if existing.RunID == m.RunID && existing.TrackID == m.TrackID {
			r.s.merges[i] = &c
			return nil
		}
	}
	r.s.merges = append(r.s.merges, &c)
	return nil
}

// List retrieves a run's merge entries in sequence order.
func (r *MergeRepository) List(ctx context.Context, runID string) ([]*secondary.MergeRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*secondary.MergeRecord
	for _, m := range r.s.merges {
		if m.RunID == runID {
			c := *m
			c.ConflictPaths = slices.Clone(m.ConflictPaths)
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

var (
	_ secondary.PlanRepository       = (*PlanRepository)(nil)
	_ secondary.SessionRepository    = (*SessionRepository)(nil)
	_ secondary.TrackRepository      = (*TrackRepository)(nil)
	_ secondary.TaskRepository       = (*TaskRepository)(nil)
	_ secondary.CheckpointRepository = (*CheckpointRepository)(nil)
	_ secondary.EscalationRepository = (*EscalationRepository)(nil)
	_ secondary.CouncilRepository    = (*CouncilRepository)(nil)
	_ secondary.MergeRepository      = (*MergeRepository)(nil)
)
