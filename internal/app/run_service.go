package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/foreman/internal/core/graph"
	"github.com/example/foreman/internal/core/resume"
	"github.com/example/foreman/internal/core/task"
	"github.com/example/foreman/internal/core/track"
	"github.com/example/foreman/internal/ctxutil"
	"github.com/example/foreman/internal/logging"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/ports/secondary"
)

// RunConfig holds the scheduler settings.
type RunConfig struct {
	Tracks           int
	TaskBudget       int
	BreakerThreshold int
	// WorkingDir is where the monitor session starts.
	WorkingDir string
	// MonitorCommand builds the command shown in a track's monitor window.
	MonitorCommand func(trackID string) string
}

// RunServiceImpl schedules a plan's tracks and drives their task loops.
type RunServiceImpl struct {
	store       secondary.Store
	loop        *TaskLoop
	merger      *MergeServiceImpl
	checkpoints *CheckpointManager
	vcs         secondary.VersionControl
	marker      secondary.RunMarker
	monitor     secondary.TrackMonitor
	cfg         RunConfig
	logger      *logging.Logger
	newID       func() string
}

// NewRunService creates a new RunService with injected dependencies. monitor
// may be nil.
func NewRunService(
	store secondary.Store,
	loop *TaskLoop,
	merger *MergeServiceImpl,
	checkpoints *CheckpointManager,
	vcs secondary.VersionControl,
	marker secondary.RunMarker,
	monitor secondary.TrackMonitor,
	cfg RunConfig,
	logger *logging.Logger,
) *RunServiceImpl {
	return &RunServiceImpl{
		store:       store,
		loop:        loop,
		merger:      merger,
		checkpoints: checkpoints,
		vcs:         vcs,
		marker:      marker,
		monitor:     monitor,
		cfg:         cfg,
		logger:      logger,
		newID:       uuid.NewString,
	}
}

// runState is shared by the track goroutines of one invocation.
type runState struct {
	runID     string
	planTasks map[string]*secondary.PlanTaskRecord
	sprints   map[string][]*secondary.SprintRecord
	board     *board
	budget    *taskBudget
	breaker   *CircuitBreaker
	log       *logging.Logger
}

// Run starts or resumes a run of a plan. Tracks run concurrently, one task at
// a time each; once every track completes the merge coordinator runs.
func (s *RunServiceImpl) Run(ctx context.Context, req primary.RunRequest) (*primary.RunResult, error) {
	plan, err := s.loadPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	planTasks, err := s.store.Plans.ListTasks(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan tasks: %w", err)
	}

	session, resumed, err := s.openSession(ctx, plan, planTasks, req)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithRun(session.ID)
	ctx = ctxutil.WithRunID(ctx, session.ID)
	result := &primary.RunResult{RunID: session.ID, PlanID: plan.ID, Resumed: resumed}

	if session.BreakerOpen {
		log.Warn("run refused: circuit breaker is open", "halt_reason", session.HaltReason)
		result.Outcome = primary.RunOutcomeBreakerOpen
		result.HaltReason = session.HaltReason
		return result, s.tally(ctx, result)
	}

	tracks, err := s.store.Tracks.List(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	statuses, err := s.store.Tasks.Statuses(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task statuses: %w", err)
	}
	sprints := make(map[string][]*secondary.SprintRecord, len(tracks))
	states := make([]resume.TrackState, 0, len(tracks))
	for _, tr := range tracks {
		list, err := s.store.Tracks.ListSprints(ctx, session.ID, tr.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list sprints: %w", err)
		}
		sprints[tr.ID] = list
		state := resume.TrackState{ID: tr.ID}
		for _, sp := range list {
			state.TaskIDs = append(state.TaskIDs, sp.TaskIDs...)
		}
		states = append(states, state)
	}

	if err := s.settleTracks(ctx, session.ID, tracks, sprints, statuses); err != nil {
		return nil, err
	}

	point := resume.Compute(states, lowerStatuses(statuses))
	if point.Complete {
		log.Info("all tasks passed", "tasks", point.Total)
		result.AlreadyComplete = session.State == secondary.SessionStateCompleted
		return s.finish(ctx, session, result, log)
	}

	for _, id := range point.Requeue {
		t, err := s.store.Tasks.GetByID(ctx, session.ID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load task %s: %w", id, err)
		}
		if err := transitionTask(ctx, s.store.Tasks, s.checkpoints, session.ID, t, task.StatusPending, ""); err != nil {
			return nil, err
		}
		statuses[id] = string(task.StatusPending)
		log.Info("requeued interrupted task", "task_id", id, "iteration", t.Iteration)
	}

	if session.State != secondary.SessionStateActive {
		if err := s.store.Sessions.UpdateState(ctx, session.ID, secondary.SessionStateActive, ""); err != nil {
			return nil, fmt.Errorf("failed to activate session: %w", err)
		}
	}
	if err := s.marker.Set(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("failed to set run marker: %w", err)
	}

	failedTracks := make(map[string]bool, len(point.FailedTracks))
	for _, id := range point.FailedTracks {
		failedTracks[id] = true
	}
	var runnable []*secondary.TrackRecord
	for _, tr := range tracks {
		if _, unfinished := point.Next[tr.ID]; !unfinished {
			continue
		}
		st := track.Status(tr.Status)
		if failedTracks[tr.ID] {
			st = track.StatusFailed
		}
		if guard := track.CanStartTrack(tr.ID, st, session.BreakerOpen); !guard.Allowed {
			log.Info("track not started", "track_id", tr.ID, "reason", guard.Reason)
			continue
		}
		if err := s.prepareWorkspace(ctx, session.ID, tr); err != nil {
			return nil, err
		}
		runnable = append(runnable, tr)
	}
	s.openMonitor(ctx, session.ID, runnable, log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	budget := req.TaskBudget
	if budget == 0 {
		budget = s.cfg.TaskBudget
	}
	rs := &runState{
		runID:     session.ID,
		planTasks: indexPlanTasks(planTasks),
		sprints:   sprints,
		board:     newBoard(statuses),
		budget:    newTaskBudget(budget),
		breaker:   NewCircuitBreaker(s.store.Sessions, session.ID, cancel, log),
		log:       log,
	}
	for id := range failedTracks {
		s.releaseTrack(rs, id)
	}

	log.Info("run started", "plan_id", plan.ID, "resumed", resumed, "tracks", len(tracks),
		"runnable", len(runnable), "passed", point.Passed, "total", point.Total, "task_budget", budget)

	g, gctx := errgroup.WithContext(runCtx)
	for _, tr := range runnable {
		g.Go(func() error {
			return s.runTrack(gctx, rs, tr)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run %s: %w", session.ID, err)
	}

	return s.conclude(ctx, session, rs, result, log)
}

// conclude maps the state after all tracks stopped to a run outcome.
func (s *RunServiceImpl) conclude(ctx context.Context, session *secondary.SessionRecord, rs *runState, result *primary.RunResult, log *logging.Logger) (*primary.RunResult, error) {
	ctx = context.WithoutCancel(ctx)

	if rs.breaker.Tripped() {
		result.Outcome = primary.RunOutcomeBreakerOpen
		result.HaltedAt = rs.breaker.HaltedAt()
		result.HaltReason = fmt.Sprintf("circuit breaker opened after task %s failed", result.HaltedAt)
		if err := s.failOpenTracks(ctx, rs, result); err != nil {
			return nil, err
		}
		if err := s.halt(ctx, session.ID, result.HaltReason); err != nil {
			return nil, err
		}
		log.Warn("run halted", "reason", result.HaltReason)
		return result, s.tally(ctx, result)
	}

	tracks, err := s.store.Tracks.List(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	completed := 0
	for _, tr := range tracks {
		switch track.Status(tr.Status) {
		case track.StatusFailed:
			result.FailedTracks = append(result.FailedTracks, tr.ID)
		case track.StatusCompleted:
			completed++
		}
	}

	if len(result.FailedTracks) > 0 {
		result.Outcome = primary.RunOutcomeFailed
		result.HaltReason = "track(s) failed: " + strings.Join(result.FailedTracks, ", ")
		if completed+len(result.FailedTracks) == len(tracks) {
			if err := s.halt(ctx, session.ID, result.HaltReason); err != nil {
				return nil, err
			}
		}
		log.Warn("run stopped with failed tracks", "tracks", result.FailedTracks)
		return result, s.tally(ctx, result)
	}

	if completed < len(tracks) {
		result.Outcome = primary.RunOutcomeIncomplete
		log.Info("run incomplete", "completed_tracks", completed, "tracks", len(tracks), "budget_stop", rs.board.isStopped())
		return result, s.tally(ctx, result)
	}

	return s.finish(ctx, session, result, log)
}

// finish merges the completed tracks.
func (s *RunServiceImpl) finish(ctx context.Context, session *secondary.SessionRecord, result *primary.RunResult, log *logging.Logger) (*primary.RunResult, error) {
	merged, err := s.merger.Merge(ctx, primary.MergeRequest{RunID: session.ID})
	result.Merge = merged
	if err != nil {
		if errors.Is(err, ErrMergeConflict) {
			result.Outcome = primary.RunOutcomeIncomplete
			log.Warn("merge paused", "track_id", merged.PausedOn, "paths", merged.ConflictPaths)
			return result, s.tally(ctx, result)
		}
		return nil, err
	}

	result.Outcome = primary.RunOutcomeCompleted
	if !result.AlreadyComplete {
		if err := s.marker.Clear(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear run marker: %w", err)
		}
		s.closeMonitor(ctx, session.ID, log)
		log.Info("run completed")
	}
	return result, s.tally(ctx, result)
}

// failOpenTracks fails every track that did not complete before the breaker
// opened, including tracks that were waiting on a dependency or refused
// admission and so never ran a task.
func (s *RunServiceImpl) failOpenTracks(ctx context.Context, rs *runState, result *primary.RunResult) error {
	tracks, err := s.store.Tracks.List(ctx, rs.runID)
	if err != nil {
		return fmt.Errorf("failed to list tracks: %w", err)
	}
	for _, tr := range tracks {
		if track.Status(tr.Status) == track.StatusCompleted {
			continue
		}
		if err := s.setTrackStatus(ctx, rs, tr, track.StatusFailed); err != nil {
			return err
		}
		result.FailedTracks = append(result.FailedTracks, tr.ID)
	}
	return nil
}

func (s *RunServiceImpl) halt(ctx context.Context, runID, reason string) error {
	if err := s.store.Sessions.UpdateState(ctx, runID, secondary.SessionStateHalted, reason); err != nil {
		return fmt.Errorf("failed to halt session: %w", err)
	}
	_, err := s.checkpoints.Record(ctx, Checkpoint{
		RunID:      runID,
		EntityType: secondary.CheckpointEntitySession,
		EntityID:   runID,
		Status:     secondary.SessionStateHalted,
	})
	return err
}

// runTrack executes a track's sprints in order, one task at a time.
func (s *RunServiceImpl) runTrack(ctx context.Context, rs *runState, tr *secondary.TrackRecord) error {
	ctx = ctxutil.WithTrackID(ctx, tr.ID)
	log := rs.log.WithTrack(tr.ID)

	if err := s.setTrackStatus(ctx, rs, tr, track.StatusRunning); err != nil {
		return err
	}
	log.Info("track started", "workspace", tr.WorkspacePath)

	for _, sp := range rs.sprints[tr.ID] {
		for _, id := range sp.TaskIDs {
			if rs.board.get(id) == task.StatusPassed {
				continue
			}
			t, err := s.store.Tasks.GetByID(ctx, rs.runID, id)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to load task %s: %w", id, err)
			}

			if !rs.board.wait(ctx, t.Dependencies) {
				log.Info("track stopped before task", "task_id", id)
				return nil
			}
			if err := rs.breaker.Admit(ctx); err != nil {
				if errors.Is(err, ErrBreakerOpen) || ctx.Err() != nil {
					log.Info("track stopped: circuit breaker open", "task_id", id)
					return nil
				}
				return err
			}

			if task.Status(t.Status) == task.StatusPending {
				deps := rs.board.statuses(t.Dependencies)
				guard := task.CanStartTask(task.StartTaskContext{TaskID: id, Status: task.StatusPending, Dependencies: deps})
				if !guard.Allowed {
					log.Warn("task blocked by dependency", "task_id", id, "reason", guard.Reason)
					t.FailureReason = task.ReasonDependencyFailed
					if err := transitionTask(ctx, s.store.Tasks, s.checkpoints, rs.runID, t, task.StatusFailed, ""); err != nil {
						return err
					}
					rs.board.resolve(id, task.StatusFailed)
					return s.haltTrack(ctx, rs, tr, sp)
				}
			}

			if !rs.budget.take() {
				log.Info("task budget reached", "task_id", id)
				rs.board.stop()
				return nil
			}

			pt := rs.planTasks[id]
			outcome, err := s.loop.Run(ctx, LoopTask{
				RunID:     rs.runID,
				Task:      t,
				Category:  pt.Category,
				Files:     pt.Files,
				Workspace: tr.WorkspacePath,
			}, rs.breaker)
			if err != nil {
				if errors.Is(err, errInterrupted) || ctx.Err() != nil {
					return s.interrupt(ctx, rs, tr, sp, id)
				}
				return err
			}

			rs.board.resolve(id, outcome.Status)
			if err := s.refreshSprint(ctx, rs, sp); err != nil {
				return err
			}
			if outcome.Status == task.StatusFailed {
				return s.haltTrack(ctx, rs, tr, sp)
			}
		}
	}

	return s.setTrackStatus(ctx, rs, tr, s.aggregateTrack(rs, tr.ID))
}

// interrupt settles a task whose loop was cut short. When the breaker caused
// it, the task fails; otherwise it goes back to pending for the next run.
func (s *RunServiceImpl) interrupt(ctx context.Context, rs *runState, tr *secondary.TrackRecord, sp *secondary.SprintRecord, id string) error {
	ctx = context.WithoutCancel(ctx)
	t, err := s.store.Tasks.GetByID(ctx, rs.runID, id)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", id, err)
	}

	if rs.breaker.Tripped() {
		rs.log.Warn("task stopped by circuit breaker", "task_id", id, "track_id", tr.ID)
		t.FailureReason = task.ReasonCircuitBreaker
		if err := transitionTask(ctx, s.store.Tasks, s.checkpoints, rs.runID, t, task.StatusFailed, ""); err != nil {
			return err
		}
		rs.board.resolve(id, task.StatusFailed)
		if err := s.refreshSprint(ctx, rs, sp); err != nil {
			return err
		}
		return s.setTrackStatus(ctx, rs, tr, track.StatusFailed)
	}

	rs.log.Info("task interrupted", "task_id", id, "track_id", tr.ID)
	if task.Status(t.Status) == task.StatusRunning {
		return transitionTask(ctx, s.store.Tasks, s.checkpoints, rs.runID, t, task.StatusPending, "")
	}
	return nil
}

// haltTrack marks a track failed after a task failure and releases any task
// in other tracks waiting on its remaining work.
func (s *RunServiceImpl) haltTrack(ctx context.Context, rs *runState, tr *secondary.TrackRecord, sp *secondary.SprintRecord) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.refreshSprint(ctx, rs, sp); err != nil {
		return err
	}
	if err := s.setTrackStatus(ctx, rs, tr, track.StatusFailed); err != nil {
		return err
	}
	rs.log.Warn("track failed", "track_id", tr.ID)
	s.releaseTrack(rs, tr.ID)
	return nil
}

func (s *RunServiceImpl) releaseTrack(rs *runState, trackID string) {
	for _, sp := range rs.sprints[trackID] {
		for _, id := range sp.TaskIDs {
			if st := rs.board.get(id); !task.IsTerminal(st) {
				rs.board.resolve(id, st)
			}
		}
	}
}

func (s *RunServiceImpl) refreshSprint(ctx context.Context, rs *runState, sp *secondary.SprintRecord) error {
	statuses := rs.board.statuses(sp.TaskIDs)
	list := make([]task.Status, 0, len(sp.TaskIDs))
	for _, id := range sp.TaskIDs {
		list = append(list, statuses[id])
	}
	st := string(track.Aggregate(list))
	if st == sp.Status {
		return nil
	}
	return s.updateSprint(ctx, rs.runID, sp, st)
}

func (s *RunServiceImpl) updateSprint(ctx context.Context, runID string, sp *secondary.SprintRecord, st string) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Tracks.UpdateSprintStatus(ctx, runID, sp.ID, st); err != nil {
		return fmt.Errorf("failed to update sprint %s: %w", sp.ID, err)
	}
	sp.Status = st
	_, err := s.checkpoints.Record(ctx, Checkpoint{
		RunID:      runID,
		EntityType: secondary.CheckpointEntitySprint,
		EntityID:   sp.ID,
		SprintID:   sp.ID,
		TrackID:    sp.TrackID,
		Status:     st,
	})
	return err
}

func (s *RunServiceImpl) aggregateTrack(rs *runState, trackID string) track.Status {
	var list []task.Status
	for _, sp := range rs.sprints[trackID] {
		for _, id := range sp.TaskIDs {
			list = append(list, rs.board.get(id))
		}
	}
	return track.Aggregate(list)
}

func (s *RunServiceImpl) setTrackStatus(ctx context.Context, rs *runState, tr *secondary.TrackRecord, st track.Status) error {
	if tr.Status == string(st) {
		return nil
	}
	return s.updateTrack(ctx, rs.runID, tr, st)
}

func (s *RunServiceImpl) updateTrack(ctx context.Context, runID string, tr *secondary.TrackRecord, st track.Status) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Tracks.UpdateStatus(ctx, runID, tr.ID, string(st)); err != nil {
		return fmt.Errorf("failed to update track %s: %w", tr.ID, err)
	}
	tr.Status = string(st)
	revision := ""
	if st == track.StatusCompleted && tr.WorkspacePath != "" {
		rev, err := s.vcs.Revision(ctx, tr.WorkspacePath)
		if err != nil {
			return fmt.Errorf("failed to read revision of %s: %w", tr.ID, err)
		}
		revision = rev
	}
	_, err := s.checkpoints.Record(ctx, Checkpoint{
		RunID:      runID,
		EntityType: secondary.CheckpointEntityTrack,
		EntityID:   tr.ID,
		TrackID:    tr.ID,
		Status:     string(st),
		Revision:   revision,
	})
	return err
}

// settleTracks completes sprints and tracks whose tasks all passed but whose
// rows were not updated before the previous invocation stopped.
func (s *RunServiceImpl) settleTracks(ctx context.Context, runID string, tracks []*secondary.TrackRecord, sprints map[string][]*secondary.SprintRecord, statuses map[string]string) error {
	done := string(track.StatusCompleted)
	for _, tr := range tracks {
		all := true
		for _, sp := range sprints[tr.ID] {
			list := make([]task.Status, 0, len(sp.TaskIDs))
			for _, id := range sp.TaskIDs {
				list = append(list, task.Status(statuses[id]))
			}
			if track.Aggregate(list) != track.StatusCompleted {
				all = false
				continue
			}
			if sp.Status != done {
				if err := s.updateSprint(ctx, runID, sp, done); err != nil {
					return err
				}
			}
		}
		if all && tr.Status != done {
			if err := s.updateTrack(ctx, runID, tr, track.StatusCompleted); err != nil {
				return err
			}
		}
	}
	return nil
}

// prepareWorkspace creates the track's isolated workspace on first use.
func (s *RunServiceImpl) prepareWorkspace(ctx context.Context, runID string, tr *secondary.TrackRecord) error {
	path := tr.WorkspacePath
	branch := tr.Branch
	if path == "" {
		path = s.vcs.WorkspacePath(runID, tr.ID)
		branch = s.vcs.BranchName(runID, tr.ID)
	}
	exists, err := s.vcs.WorkspaceExists(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to check workspace of %s: %w", tr.ID, err)
	}
	if !exists {
		if err := s.vcs.CreateWorkspace(ctx, branch, path); err != nil {
			return fmt.Errorf("failed to create workspace of %s: %w", tr.ID, err)
		}
	}
	if tr.WorkspacePath != path || tr.Branch != branch {
		if err := s.store.Tracks.SetWorkspace(ctx, runID, tr.ID, branch, path); err != nil {
			return fmt.Errorf("failed to record workspace of %s: %w", tr.ID, err)
		}
		tr.WorkspacePath, tr.Branch = path, branch
	}
	return nil
}

// openSession resumes the plan's active session or creates a new one,
// carrying over tasks that passed in the last archived session.
func (s *RunServiceImpl) openSession(ctx context.Context, plan *secondary.PlanRecord, planTasks []*secondary.PlanTaskRecord, req primary.RunRequest) (*secondary.SessionRecord, bool, error) {
	active, err := s.store.Sessions.GetActive(ctx, plan.ID)
	if err == nil {
		if req.Tracks > 0 && req.Tracks != active.TrackCount {
			s.logger.WithRun(active.ID).Info("resuming with the session's track count", "requested", req.Tracks, "tracks", active.TrackCount)
		}
		return active, true, nil
	}
	if !errors.Is(err, secondary.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to load active session: %w", err)
	}

	nodes := make([]graph.Node, 0, len(planTasks))
	for _, t := range planTasks {
		nodes = append(nodes, graph.Node{ID: t.TaskID, DependsOn: t.DependsOn, Weight: t.Weight})
	}
	g, err := graph.Build(nodes)
	if err != nil {
		return nil, false, fmt.Errorf("invalid plan %s: %w", plan.ID, err)
	}

	requested := req.Tracks
	if requested == 0 {
		requested = s.cfg.Tracks
	}
	parts := track.Partition(g, requested)

	carried, err := s.carryOver(ctx, plan.ID, planTasks)
	if err != nil {
		return nil, false, err
	}

	session := &secondary.SessionRecord{
		ID:          s.newID(),
		PlanID:      plan.ID,
		State:       secondary.SessionStateActive,
		MaxFailures: s.cfg.BreakerThreshold,
		TrackCount:  len(parts),
	}
	if err := s.store.Sessions.Create(ctx, session); err != nil {
		return nil, false, fmt.Errorf("failed to create session: %w", err)
	}

	byID := indexPlanTasks(planTasks)
	for _, part := range parts {
		if err := s.createTrack(ctx, session.ID, part, byID, carried); err != nil {
			return nil, false, err
		}
	}

	if _, err := s.checkpoints.Record(ctx, Checkpoint{
		RunID:      session.ID,
		EntityType: secondary.CheckpointEntitySession,
		EntityID:   session.ID,
		Status:     secondary.SessionStateActive,
		Metrics:    map[string]int{"tracks": len(parts), "tasks": len(planTasks), "carried_over": len(carried)},
	}); err != nil {
		return nil, false, err
	}

	s.logger.WithRun(session.ID).Info("session created", "plan_id", plan.ID, "tracks", len(parts),
		"requested_tracks", requested, "carried_over", len(carried))
	return session, false, nil
}

func (s *RunServiceImpl) createTrack(ctx context.Context, runID string, part track.Track, plan map[string]*secondary.PlanTaskRecord, carried map[string]bool) error {
	trackStatuses := make([]task.Status, 0)
	sprints := make([]*secondary.SprintRecord, 0, len(part.Sprints))
	var tasks []*secondary.TaskRecord

	seq := 0
	for _, sp := range part.Sprints {
		sprintStatuses := make([]task.Status, 0, len(sp.TaskIDs))
		for _, id := range sp.TaskIDs {
			seq++
			pt := plan[id]
			st := task.StatusPending
			if carried[id] {
				st = task.StatusPassed
			}
			sprintStatuses = append(sprintStatuses, st)
			tasks = append(tasks, &secondary.TaskRecord{
				RunID:           runID,
				ID:              id,
				Title:           pt.Title,
				TrackID:         part.ID,
				SprintID:        sp.ID,
				Seq:             seq,
				Status:          string(st),
				ComplexityScore: pt.ComplexityScore,
				StartTier:       pt.StartTier,
				CurrentTier:     pt.StartTier,
				Dependencies:    pt.DependsOn,
				Executor:        pt.Executor,
			})
		}
		trackStatuses = append(trackStatuses, sprintStatuses...)
		sprints = append(sprints, &secondary.SprintRecord{
			RunID:   runID,
			ID:      sp.ID,
			TrackID: part.ID,
			Seq:     sp.Seq,
			Layer:   sp.Layer,
			TaskIDs: sp.TaskIDs,
			Status:  string(track.Aggregate(sprintStatuses)),
		})
	}

	rec := &secondary.TrackRecord{
		RunID:  runID,
		ID:     part.ID,
		Seq:    part.Seq,
		Status: string(track.Aggregate(trackStatuses)),
		Weight: part.Weight,
	}
	if err := s.store.Tracks.Create(ctx, rec, sprints); err != nil {
		return fmt.Errorf("failed to create track %s: %w", part.ID, err)
	}
	for _, t := range tasks {
		if err := s.store.Tasks.Create(ctx, t); err != nil {
			return fmt.Errorf("failed to create task %s: %w", t.ID, err)
		}
	}
	return nil
}

func (s *RunServiceImpl) carryOver(ctx context.Context, planID string, planTasks []*secondary.PlanTaskRecord) (map[string]bool, error) {
	prev, err := s.store.Sessions.GetLatestArchived(ctx, planID)
	if errors.Is(err, secondary.ErrNotFound) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load archived session: %w", err)
	}
	statuses, err := s.store.Tasks.Statuses(ctx, prev.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load archived task statuses: %w", err)
	}
	ids := make([]string, 0, len(planTasks))
	for _, t := range planTasks {
		ids = append(ids, t.TaskID)
	}
	out := make(map[string]bool)
	for _, id := range resume.CarryOver(lowerStatuses(statuses), ids) {
		out[id] = true
	}
	return out, nil
}

func (s *RunServiceImpl) loadPlan(ctx context.Context, planID string) (*secondary.PlanRecord, error) {
	var (
		plan *secondary.PlanRecord
		err  error
	)
	if planID == "" {
		plan, err = s.store.Plans.GetLatest(ctx)
	} else {
		plan, err = s.store.Plans.GetByID(ctx, planID)
	}
	if errors.Is(err, secondary.ErrNotFound) {
		return nil, ErrNoPlan
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return plan, nil
}

func (s *RunServiceImpl) openMonitor(ctx context.Context, runID string, tracks []*secondary.TrackRecord, log *logging.Logger) {
	if s.monitor == nil || s.cfg.MonitorCommand == nil || len(tracks) == 0 {
		return
	}
	name := monitorSessionName(runID)
	if s.monitor.SessionExists(ctx, name) {
		return
	}
	windows := make([]secondary.MonitorWindow, 0, len(tracks))
	for _, tr := range tracks {
		windows = append(windows, secondary.MonitorWindow{
			Name:       tr.ID,
			WorkingDir: tr.WorkspacePath,
			Command:    s.cfg.MonitorCommand(tr.ID),
		})
	}
	if err := s.monitor.Open(ctx, name, s.cfg.WorkingDir, windows); err != nil {
		log.Warn("failed to open track monitor", "error", err)
		return
	}
	log.Info("track monitor opened", "attach", s.monitor.AttachInstructions(name))
}

func (s *RunServiceImpl) closeMonitor(ctx context.Context, runID string, log *logging.Logger) {
	if s.monitor == nil {
		return
	}
	name := monitorSessionName(runID)
	if !s.monitor.SessionExists(ctx, name) {
		return
	}
	if err := s.monitor.Close(ctx, name); err != nil {
		log.Warn("failed to close track monitor", "error", err)
	}
}

// tally fills the task counters of a result.
func (s *RunServiceImpl) tally(ctx context.Context, result *primary.RunResult) error {
	tasks, err := s.store.Tasks.List(context.WithoutCancel(ctx), secondary.TaskFilters{RunID: result.RunID})
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	result.Total = len(tasks)
	result.Passed, result.Failed, result.Escalated = 0, 0, 0
	for _, t := range tasks {
		switch task.Status(t.Status) {
		case task.StatusPassed:
			result.Passed++
		case task.StatusFailed:
			result.Failed++
		}
		if t.CouncilAttempted || task.Status(t.Status) == task.StatusEscalated {
			result.Escalated++
		}
	}
	sort.Strings(result.FailedTracks)
	return nil
}

func monitorSessionName(runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return "foreman-" + short
}

func indexPlanTasks(tasks []*secondary.PlanTaskRecord) map[string]*secondary.PlanTaskRecord {
	out := make(map[string]*secondary.PlanTaskRecord, len(tasks))
	for _, t := range tasks {
		out[t.TaskID] = t
	}
	return out
}

func lowerStatuses(in map[string]string) map[string]task.Status {
	out := make(map[string]task.Status, len(in))
	for id, st := range in {
		out[id] = task.Status(st)
	}
	return out
}

// Ensure RunServiceImpl implements the interface
var _ primary.RunService = (*RunServiceImpl)(nil)
