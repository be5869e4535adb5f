package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/foreman/internal/core/complexity"
	"github.com/example/foreman/internal/core/council"
	"github.com/example/foreman/internal/core/escalation"
	"github.com/example/foreman/internal/core/registry"
	"github.com/example/foreman/internal/core/task"
	"github.com/example/foreman/internal/logging"
	"github.com/example/foreman/internal/ports/secondary"
)

// LoopConfig bounds the task loop.
type LoopConfig struct {
	MaxIterations    int
	CouncilThreshold int
}

// LoopTask is one task handed to the loop by the scheduler.
type LoopTask struct {
	RunID     string
	Task      *secondary.TaskRecord
	Category  string
	Files     []string
	Workspace string
}

// LoopOutcome is the terminal result of a task in this run.
type LoopOutcome struct {
	Status        task.Status
	Reason        string
	Revision      string
	BreakerOpened bool
}

// TaskLoop drives one task through execute, validate and escalate until it
// passes or fails for good.
type TaskLoop struct {
	tasks       secondary.TaskRepository
	escalations secondary.EscalationRepository
	sessions    secondary.SessionRepository
	executor    secondary.WorkExecutor
	validator   secondary.Validator
	vcs         secondary.VersionControl
	council     *CouncilServiceImpl
	checkpoints *CheckpointManager
	registry    *registry.Registry
	cfg         LoopConfig
	logger      *logging.Logger
	now         func() time.Time
}

// NewTaskLoop creates a TaskLoop with injected dependencies.
func NewTaskLoop(
	store secondary.Store,
	executor secondary.WorkExecutor,
	validator secondary.Validator,
	vcs secondary.VersionControl,
	councilService *CouncilServiceImpl,
	checkpoints *CheckpointManager,
	reg *registry.Registry,
	cfg LoopConfig,
	logger *logging.Logger,
) *TaskLoop {
	return &TaskLoop{
		tasks:       store.Tasks,
		escalations: store.Escalations,
		sessions:    store.Sessions,
		executor:    executor,
		validator:   validator,
		vcs:         vcs,
		council:     councilService,
		checkpoints: checkpoints,
		registry:    reg,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes the task. It returns errInterrupted when ctx ends mid-iteration;
// the caller decides whether that was the breaker or a shutdown.
func (l *TaskLoop) Run(ctx context.Context, lt LoopTask, cb *CircuitBreaker) (*LoopOutcome, error) {
	t := lt.Task
	log := l.logger.WithRun(lt.RunID).WithTrack(t.TrackID).WithTask(t.ID)

	history, err := l.escalations.ListAttempts(ctx, lt.RunID, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts for %s: %w", t.ID, err)
	}

	switch {
	case task.Status(t.Status) == task.StatusEscalated:
		return l.convene(ctx, lt, cb, history, log)
	case t.CouncilAttempted:
		return l.councilRetry(ctx, lt, cb, history, log)
	}

	if err := l.transition(ctx, lt, task.StatusRunning, ""); err != nil {
		return nil, err
	}
	if n := len(history); n > 0 && history[n-1].Passed {
		return l.pass(ctx, lt, cb, log)
	}
	log.Info("task started", "start_tier", complexity.Tier(t.StartTier).String(), "score", t.ComplexityScore,
		"iteration", t.Iteration)

	for {
		i := iterationsUsed(history) + 1
		if i <= l.cfg.MaxIterations {
			sel := escalation.SelectTier(escalation.SelectInput{
				StartTier: complexity.Tier(t.StartTier),
				Iteration: i,
				History:   toAttempts(history),
			})
			if err := l.recordEscalation(ctx, lt, i, sel.Tier, sel.Reason); err != nil {
				return nil, err
			}
			log.Info("iteration", "iteration", i, "tier", sel.Tier.String(), "base", sel.Base.String(), "reason", sel.Reason)

			t.Iteration = i
			t.CurrentTier = int(sel.Tier)
			if err := l.tasks.Update(ctx, t); err != nil {
				return nil, fmt.Errorf("failed to update task %s: %w", t.ID, err)
			}
			if err := l.sessions.AddIterations(ctx, lt.RunID, 1); err != nil {
				return nil, fmt.Errorf("failed to count iteration: %w", err)
			}

			att, err := l.attempt(ctx, lt, i, sel.Tier, feedback(history), false, len(history)+1, log)
			if err != nil {
				return nil, err
			}
			history = append(history, att)
			if att.Passed {
				return l.pass(ctx, lt, cb, log)
			}
		}

		last := history[len(history)-1]
		d := escalation.Decide(escalation.DecideInput{
			Iteration:        min(i, l.cfg.MaxIterations),
			MaxIterations:    l.cfg.MaxIterations,
			Tier:             complexity.Tier(last.Tier),
			FailureClass:     escalation.FailureClass(last.FailureClass),
			Complexity:       t.ComplexityScore,
			CouncilThreshold: l.cfg.CouncilThreshold,
		})

		switch d.Outcome {
		case escalation.OutcomeRetry:
			continue
		case escalation.OutcomeEscalate:
			log.Warn("task escalated to council", "reason", d.Reason, "iteration", t.Iteration)
			if err := l.transition(ctx, lt, task.StatusEscalated, ""); err != nil {
				return nil, err
			}
			return l.convene(ctx, lt, cb, history, log)
		default:
			log.Warn("task failed", "reason", d.Reason, "iteration", t.Iteration)
			return l.fail(ctx, lt, cb, task.ReasonMaxIterations)
		}
	}
}

// convene runs the council and its single forced top-tier retry.
func (l *TaskLoop) convene(ctx context.Context, lt LoopTask, cb *CircuitBreaker, history []*secondary.AttemptRecord, log *logging.Logger) (*LoopOutcome, error) {
	t := lt.Task
	if g := council.CanConvene(t.ID, task.Status(t.Status), t.CouncilAttempted); !g.Allowed {
		log.Warn("council refused", "reason", g.Reason)
		return l.fail(ctx, lt, cb, task.ReasonCouncilFailed)
	}

	result, err := l.council.Convene(ctx, lt.RunID, t)
	if ctx.Err() != nil {
		return nil, errInterrupted
	}
	if err != nil {
		log.Warn("council session failed", "error", err)
		return l.fail(ctx, lt, cb, task.ReasonCouncilFailed)
	}

	t.CouncilAttempted = true
	t.CouncilContext = council.RetryContext(*result)
	return l.councilRetry(ctx, lt, cb, history, log)
}

// councilRetry performs, or settles after a crash, the council-informed
// retry. It does not consume an iteration.
func (l *TaskLoop) councilRetry(ctx context.Context, lt LoopTask, cb *CircuitBreaker, history []*secondary.AttemptRecord, log *logging.Logger) (*LoopOutcome, error) {
	t := lt.Task
	if err := l.transition(ctx, lt, task.StatusRunning, ""); err != nil {
		return nil, err
	}
	if n := len(history); n > 0 && history[n-1].Council {
		if history[n-1].Passed {
			return l.pass(ctx, lt, cb, log)
		}
		return l.fail(ctx, lt, cb, task.ReasonCouncilFailed)
	}

	sel := escalation.SelectTier(escalation.SelectInput{StartTier: complexity.Tier(t.StartTier), Iteration: t.Iteration, ForceTop: true})
	if err := l.recordEscalation(ctx, lt, t.Iteration, sel.Tier, sel.Reason); err != nil {
		return nil, err
	}
	t.CurrentTier = int(sel.Tier)
	if err := l.tasks.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", t.ID, err)
	}
	if err := l.sessions.AddIterations(ctx, lt.RunID, 1); err != nil {
		return nil, fmt.Errorf("failed to count iteration: %w", err)
	}
	log.Info("council retry", "tier", sel.Tier.String(), "iteration", t.Iteration)

	att, err := l.attempt(ctx, lt, t.Iteration, sel.Tier, t.CouncilContext, true, len(history)+1, log)
	if err != nil {
		return nil, err
	}
	if att.Passed {
		return l.pass(ctx, lt, cb, log)
	}
	log.Warn("council retry failed", "failure_class", att.FailureClass)
	return l.fail(ctx, lt, cb, task.ReasonCouncilFailed)
}

// attempt runs one execute/validate cycle and records it. Collaborator errors
// and timeouts count as logic failures.
func (l *TaskLoop) attempt(
	ctx context.Context,
	lt LoopTask,
	iteration int,
	tier complexity.Tier,
	guidance string,
	councilRetry bool,
	seq int,
	log *logging.Logger,
) (*secondary.AttemptRecord, error) {
	t := lt.Task
	handle := l.handle(lt)
	rec := &secondary.AttemptRecord{
		RunID:     lt.RunID,
		TaskID:    t.ID,
		Seq:       seq,
		Iteration: iteration,
		Tier:      int(tier),
		Executor:  handle.Name,
		Council:   councilRetry,
		StartedAt: l.stamp(),
	}

	l.run(ctx, lt, handle, iteration, tier, guidance, rec)
	if ctx.Err() != nil {
		return nil, errInterrupted
	}

	rec.FinishedAt = l.stamp()
	if err := l.escalations.RecordAttempt(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record attempt for %s: %w", t.ID, err)
	}
	log.Info("attempt finished", "iteration", iteration, "tier", tier.String(), "executor", handle.Name,
		"passed", rec.Passed, "failure_class", rec.FailureClass, "unmet", rec.UnmetCriteria)
	return rec, nil
}

func (l *TaskLoop) run(
	ctx context.Context,
	lt LoopTask,
	handle registry.Handle,
	iteration int,
	tier complexity.Tier,
	guidance string,
	rec *secondary.AttemptRecord,
) {
	failWith := func(err error) {
		rec.Passed = false
		rec.FailureClass = string(escalation.ClassLogic)
		rec.UnmetCriteria = []string{err.Error()}
	}

	command, err := handle.Command(tier)
	if err != nil {
		failWith(err)
		return
	}
	item := secondary.WorkItem{
		RunID:     lt.RunID,
		TaskID:    lt.Task.ID,
		Title:     lt.Task.Title,
		Category:  lt.Category,
		Files:     lt.Files,
		Iteration: iteration,
		Tier:      int(tier),
		Executor:  handle.Name,
		Command:   command,
		Workspace: lt.Workspace,
		Context:   guidance,
	}

	result, err := l.executor.Execute(ctx, item)
	if err != nil {
		failWith(fmt.Errorf("executor: %w", err))
		return
	}
	rec.FilesChanged = result.FilesChanged
	rec.Diagnostic = result.DiagnosticText

	verdict, err := l.validator.Validate(ctx, item, result)
	if err != nil {
		failWith(fmt.Errorf("validator: %w", err))
		return
	}
	rec.Passed = verdict.Passed
	rec.UnmetCriteria = verdict.UnmetCriteria
	rec.FailureClass = verdict.FailureClass
	if !rec.Passed && !escalation.FailureClass(rec.FailureClass).Valid() {
		rec.FailureClass = string(escalation.ClassLogic)
	}
	if rec.Passed {
		rec.FailureClass = ""
	}
}

func (l *TaskLoop) pass(ctx context.Context, lt LoopTask, cb *CircuitBreaker, log *logging.Logger) (*LoopOutcome, error) {
	t := lt.Task
	revision, err := l.vcs.Commit(ctx, lt.Workspace, fmt.Sprintf("%s: %s", t.ID, t.Title))
	if err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", t.ID, err)
	}
	if err := l.transition(ctx, lt, task.StatusPassed, revision); err != nil {
		return nil, err
	}
	if err := cb.RecordSuccess(ctx); err != nil {
		return nil, err
	}
	log.Info("task passed", "iteration", t.Iteration, "tier", complexity.Tier(t.CurrentTier).String(), "revision", revision)
	return &LoopOutcome{Status: task.StatusPassed, Revision: revision}, nil
}

func (l *TaskLoop) fail(ctx context.Context, lt LoopTask, cb *CircuitBreaker, reason string) (*LoopOutcome, error) {
	lt.Task.FailureReason = reason
	if err := l.transition(ctx, lt, task.StatusFailed, ""); err != nil {
		return nil, err
	}
	opened, err := cb.RecordFailure(ctx, lt.Task.ID)
	if err != nil {
		return nil, err
	}
	return &LoopOutcome{Status: task.StatusFailed, Reason: reason, BreakerOpened: opened}, nil
}

// transition moves the task to a new status and checkpoints it.
func (l *TaskLoop) transition(ctx context.Context, lt LoopTask, to task.Status, revision string) error {
	return transitionTask(ctx, l.tasks, l.checkpoints, lt.RunID, lt.Task, to, revision)
}

func (l *TaskLoop) recordEscalation(ctx context.Context, lt LoopTask, iteration int, to complexity.Tier, reason string) error {
	err := l.escalations.Create(ctx, &secondary.EscalationRecord{
		RunID:     lt.RunID,
		TaskID:    lt.Task.ID,
		Iteration: iteration,
		FromTier:  lt.Task.CurrentTier,
		ToTier:    int(to),
		Reason:    reason,
	})
	if err != nil {
		return fmt.Errorf("failed to record escalation for %s: %w", lt.Task.ID, err)
	}
	return nil
}

// handle resolves the task's executor, falling back to selection when the
// stored name is no longer registered.
func (l *TaskLoop) handle(lt LoopTask) registry.Handle {
	if h, ok := l.registry.Lookup(lt.Task.Executor); ok {
		return h
	}
	return l.registry.Select(registry.Subject{
		ID:       lt.Task.ID,
		Category: complexity.Category(lt.Category),
		Files:    lt.Files,
	})
}

func (l *TaskLoop) stamp() string {
	return l.now().UTC().Format(time.RFC3339Nano)
}

// transitionTask applies a guarded status change with its checkpoint. Writes
// are detached from cancellation so shutdown transitions are kept.
func transitionTask(
	ctx context.Context,
	tasks secondary.TaskRepository,
	checkpoints *CheckpointManager,
	runID string,
	t *secondary.TaskRecord,
	to task.Status,
	revision string,
) error {
	from := task.Status(t.Status)
	if from == to {
		return nil
	}
	if err := task.CanTransition(task.TransitionContext{TaskID: t.ID, From: from, To: to}).Error(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	t.Status = string(to)
	if err := tasks.Update(ctx, t); err != nil {
		return fmt.Errorf("failed to update task %s: %w", t.ID, err)
	}
	return checkpoints.Task(ctx, runID, t, revision)
}

// iterationsUsed counts the regular iterations in an attempt history.
func iterationsUsed(history []*secondary.AttemptRecord) int {
	n := 0
	for _, a := range history {
		if !a.Council {
			n++
		}
	}
	return n
}

func toAttempts(history []*secondary.AttemptRecord) []escalation.Attempt {
	out := make([]escalation.Attempt, 0, len(history))
	for _, a := range history {
		if a.Council {
			continue
		}
		out = append(out, escalation.Attempt{
			Iteration:     a.Iteration,
			Tier:          complexity.Tier(a.Tier),
			Passed:        a.Passed,
			FailureClass:  escalation.FailureClass(a.FailureClass),
			UnmetCriteria: a.UnmetCriteria,
		})
	}
	return out
}

// feedback summarises the previous failure for the next iteration.
func feedback(history []*secondary.AttemptRecord) string {
	if len(history) == 0 {
		return ""
	}
	last := history[len(history)-1]
	if last.Passed {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Previous attempt (iteration %d, %s) failed: %s", last.Iteration, complexity.Tier(last.Tier), last.FailureClass)
	for _, c := range last.UnmetCriteria {
		b.WriteString("\n- ")
		b.WriteString(c)
	}
	return b.String()
}
