package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/foreman/internal/adapters/memory"
	"github.com/example/foreman/internal/core/complexity"
	"github.com/example/foreman/internal/core/registry"
	"github.com/example/foreman/internal/logging"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/ports/secondary"
)

// ============================================================================
// Collaborator fakes
// ============================================================================

// fakeExecutor records every call and delegates to fn (success by default).
type fakeExecutor struct {
	mu    sync.Mutex
	calls []secondary.WorkItem
	fn    func(ctx context.Context, item secondary.WorkItem) (*secondary.ExecutionResult, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, item secondary.WorkItem) (*secondary.ExecutionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, item)
	}
	return &secondary.ExecutionResult{Success: true, FilesChanged: []string{item.TaskID + ".go"}}, nil
}

func (f *fakeExecutor) callsFor(taskID string) []secondary.WorkItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []secondary.WorkItem
	for _, c := range f.calls {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeExecutor) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.TaskID)
	}
	return out
}

// fakeValidator passes everything unless fn says otherwise.
type fakeValidator struct {
	fn func(item secondary.WorkItem) *secondary.ValidationResult
}

func (f *fakeValidator) Validate(ctx context.Context, item secondary.WorkItem, result *secondary.ExecutionResult) (*secondary.ValidationResult, error) {
	if f.fn != nil {
		return f.fn(item), nil
	}
	return &secondary.ValidationResult{Passed: result.Success}, nil
}

func failing(class string, unmet ...string) *secondary.ValidationResult {
	return &secondary.ValidationResult{Passed: false, FailureClass: class, UnmetCriteria: unmet}
}

// fakeAnalyzer proposes "<role> diagnosis" and ranks with the vector in
// ranks, or identity order when the role has none.
type fakeAnalyzer struct {
	confidence map[string]float64
	ranks      map[string][]int
	proposeErr error
}

func (f *fakeAnalyzer) Propose(ctx context.Context, role string, brief secondary.CouncilBrief) (*secondary.Diagnosis, error) {
	if f.proposeErr != nil {
		return nil, f.proposeErr
	}
	return &secondary.Diagnosis{Summary: role + " diagnosis", Confidence: f.confidence[role]}, nil
}

func (f *fakeAnalyzer) Rank(ctx context.Context, role string, brief secondary.CouncilBrief, proposals []secondary.Diagnosis) ([]int, error) {
	if r, ok := f.ranks[role]; ok {
		return r, nil
	}
	out := make([]int, len(proposals))
	for i := range out {
		out[i] = i + 1
	}
	return out, nil
}

// fakeVCS keeps workspaces in a map and merges according to conflicts.
type fakeVCS struct {
	mu        sync.Mutex
	created   map[string]string
	commits   int
	merged    []string
	conflicts map[string][]string
}

func newFakeVCS() *fakeVCS {
	return &fakeVCS{created: make(map[string]string), conflicts: make(map[string][]string)}
}

func (f *fakeVCS) CreateWorkspace(ctx context.Context, branch, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[path] = branch
	return nil
}

func (f *fakeVCS) WorkspaceExists(ctx context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.created[path]
	return ok, nil
}

func (f *fakeVCS) RemoveWorkspace(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.created, path)
	return nil
}

func (f *fakeVCS) Revision(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("rev-%d", f.commits), nil
}

func (f *fakeVCS) Commit(ctx context.Context, path, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return fmt.Sprintf("rev-%d", f.commits), nil
}

func (f *fakeVCS) Merge(ctx context.Context, branch string) (*secondary.MergeOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merged = append(f.merged, branch)
	if paths, ok := f.conflicts[branch]; ok {
		return &secondary.MergeOutcome{ConflictPaths: paths}, nil
	}
	return &secondary.MergeOutcome{Merged: true, Revision: "merge-" + branch}, nil
}

func (f *fakeVCS) BaseBranch() string { return "main" }

func (f *fakeVCS) WorkspacePath(runID, trackID string) string {
	return "/work/" + trackID
}

func (f *fakeVCS) BranchName(runID, trackID string) string {
	return "foreman/" + trackID
}

func (f *fakeVCS) mergeOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.merged...)
}

// fakeMarker is an in-memory run marker.
type fakeMarker struct {
	mu    sync.Mutex
	runID string
}

func (m *fakeMarker) Set(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runID = runID
	return nil
}

func (m *fakeMarker) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runID = ""
	return nil
}

func (m *fakeMarker) Get(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runID, nil
}

// ============================================================================
// Harness
// ============================================================================

type harness struct {
	store      secondary.Store
	executor   *fakeExecutor
	validator  *fakeValidator
	analyzer   *fakeAnalyzer
	vcs        *fakeVCS
	marker     *fakeMarker
	registry   *registry.Registry
	loopCfg    LoopConfig
	runCfg     RunConfig
	plans      *PlanServiceImpl
	loop       *TaskLoop
	council    *CouncilServiceImpl
	merges     *MergeServiceImpl
	runs       *RunServiceImpl
	status     *StatusServiceImpl
	resets     *ResetServiceImpl
	checkpoint *CheckpointManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg, err := registry.New([]registry.Entry{{
		Name: "default",
		Commands: map[complexity.Tier]string{
			complexity.Tier0: "run-t0",
			complexity.Tier1: "run-t1",
			complexity.Tier2: "run-t2",
		},
	}, {
		Name:     "validator",
		Kind:     registry.KindFixed,
		Commands: map[complexity.Tier]string{complexity.Tier0: "make check"},
	}}, "default")
	require.NoError(t, err)

	h := &harness{
		store:     memory.NewStore(),
		executor:  &fakeExecutor{},
		validator: &fakeValidator{},
		analyzer:  &fakeAnalyzer{},
		vcs:       newFakeVCS(),
		marker:    &fakeMarker{},
		registry:  reg,
		loopCfg:   LoopConfig{MaxIterations: 5, CouncilThreshold: 7},
		runCfg:    RunConfig{Tracks: 1, BreakerThreshold: 5},
	}
	h.build()
	return h
}

// build wires the services from the harness settings. Call it again after
// changing loopCfg or runCfg.
func (h *harness) build() {
	log := logging.NopLogger()
	h.checkpoint = NewCheckpointManager(h.store.Checkpoints, log)
	h.plans = NewPlanService(h.store.Plans, complexity.DefaultPolicy(), h.registry, log)
	h.council = NewCouncilService(h.analyzer, h.store.Council, h.store.Escalations, log)
	h.loop = NewTaskLoop(h.store, h.executor, h.validator, h.vcs, h.council, h.checkpoint, h.registry, h.loopCfg, log)
	h.merges = NewMergeService(h.store, h.vcs, h.checkpoint, log)
	h.runs = NewRunService(h.store, h.loop, h.merges, h.checkpoint, h.vcs, h.marker, nil, h.runCfg, log)
	h.status = NewStatusService(h.store, h.marker)
	h.resets = NewResetService(h.store.Sessions, h.marker, h.checkpoint, log)
}

// plan writes a plan file and stores it.
func (h *harness) plan(t *testing.T, doc string) *primary.Plan {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	p, err := h.plans.CreatePlan(context.Background(), primary.CreatePlanRequest{Path: path})
	require.NoError(t, err)
	return p
}

func (h *harness) task(t *testing.T, runID, id string) *secondary.TaskRecord {
	t.Helper()
	rec, err := h.store.Tasks.GetByID(context.Background(), runID, id)
	require.NoError(t, err)
	return rec
}

func (h *harness) checkpoints(t *testing.T, runID string) int {
	t.Helper()
	n, err := h.store.Checkpoints.Count(context.Background(), runID)
	require.NoError(t, err)
	return n
}

// seedTask creates a session and one pending task for loop tests.
func (h *harness) seedTask(t *testing.T, id string, score int, start complexity.Tier) (string, *secondary.TaskRecord) {
	t.Helper()
	ctx := context.Background()
	runID := "run-" + id
	require.NoError(t, h.store.Sessions.Create(ctx, &secondary.SessionRecord{ID: runID, PlanID: "PLAN-001", MaxFailures: 5, TrackCount: 1}))
	rec := &secondary.TaskRecord{
		RunID:           runID,
		ID:              id,
		Title:           "task " + id,
		TrackID:         "TRACK-1",
		SprintID:        "TRACK-1-S1",
		Seq:             1,
		Status:          "pending",
		ComplexityScore: score,
		StartTier:       int(start),
		CurrentTier:     int(start),
		Executor:        "default",
	}
	require.NoError(t, h.store.Tasks.Create(ctx, rec))
	return runID, h.task(t, runID, id)
}

func (h *harness) runLoop(t *testing.T, runID string, rec *secondary.TaskRecord) (*LoopOutcome, *CircuitBreaker) {
	t.Helper()
	cb := NewCircuitBreaker(h.store.Sessions, runID, nil, logging.NopLogger())
	out, err := h.loop.Run(context.Background(), LoopTask{RunID: runID, Task: rec, Workspace: "/work/TRACK-1"}, cb)
	require.NoError(t, err)
	return out, cb
}
