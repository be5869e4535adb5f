package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/foreman/internal/core/complexity"
	"github.com/example/foreman/internal/core/graph"
	"github.com/example/foreman/internal/core/registry"
	"github.com/example/foreman/internal/logging"
	"github.com/example/foreman/internal/planfile"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/ports/secondary"
)

// PlanServiceImpl implements the PlanService interface.
type PlanServiceImpl struct {
	planRepo secondary.PlanRepository
	policy   complexity.Policy
	registry *registry.Registry
	logger   *logging.Logger
}

// NewPlanService creates a new PlanService with injected dependencies.
func NewPlanService(
	planRepo secondary.PlanRepository,
	policy complexity.Policy,
	reg *registry.Registry,
	logger *logging.Logger,
) *PlanServiceImpl {
	return &PlanServiceImpl{
		planRepo: planRepo,
		policy:   policy,
		registry: reg,
		logger:   logger,
	}
}

// CreatePlan validates a plan file, builds its graph, assesses every task and
// stores the result. A cyclic plan is rejected before anything is written.
func (s *PlanServiceImpl) CreatePlan(ctx context.Context, req primary.CreatePlanRequest) (*primary.Plan, error) {
	doc, err := planfile.Load(req.Path)
	if err != nil {
		return nil, err
	}
	return s.createFromDocument(ctx, doc, req.Path)
}

func (s *PlanServiceImpl) createFromDocument(ctx context.Context, doc *planfile.Plan, source string) (*primary.Plan, error) {
	g, err := graph.Build(doc.Nodes())
	if err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", doc.Name, err)
	}
	metrics := g.Metrics()

	tasks := make([]*secondary.PlanTaskRecord, 0, len(doc.Tasks))
	for i, t := range doc.Tasks {
		assessment := s.policy.Assess(t.Factors(), t.Complexity)

		executor := t.Executor
		if executor != "" {
			h, ok := s.registry.Lookup(executor)
			if !ok {
				return nil, fmt.Errorf("task %s: executor %q is not registered", t.ID, executor)
			}
			if h.Kind == registry.KindFixed {
				return nil, fmt.Errorf("task %s: %q is a fixed command, not a task executor", t.ID, executor)
			}
		} else {
			executor = s.registry.Select(registry.Subject{
				ID:       t.ID,
				Category: complexity.Category(t.Category),
				Files:    t.Files,
			}).Name
		}

		node, _ := g.Node(t.ID)
		tasks = append(tasks, &secondary.PlanTaskRecord{
			TaskID:          t.ID,
			Title:           t.Title,
			DependsOn:       g.Dependencies(t.ID),
			Weight:          node.Weight,
			Files:           t.Files,
			Category:        t.Category,
			ComplexityScore: assessment.Score,
			StartTier:       int(assessment.Tier),
			ScoreOverride:   assessment.Override,
			Executor:        executor,
			Position:        i,
		})
	}

	id, err := s.planRepo.GetNextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate plan ID: %w", err)
	}
	for _, t := range tasks {
		t.PlanID = id
	}

	record := &secondary.PlanRecord{
		ID:                 id,
		Name:               doc.Name,
		SourcePath:         source,
		TaskCount:          metrics.TaskCount,
		LayerCount:         metrics.LayerCount,
		CriticalPathLength: metrics.CriticalPathLength,
		CriticalPath:       metrics.CriticalPath,
		MaxParallelism:     metrics.MaxParallelism,
	}
	if err := s.planRepo.Create(ctx, record, tasks); err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	s.logger.Info("plan created", "plan_id", id, "name", doc.Name, "tasks", metrics.TaskCount,
		"layers", metrics.LayerCount, "critical_path", metrics.CriticalPathLength,
		"max_parallelism", metrics.MaxParallelism)

	return s.GetPlan(ctx, id)
}

// GetPlan retrieves a stored plan by ID.
func (s *PlanServiceImpl) GetPlan(ctx context.Context, planID string) (*primary.Plan, error) {
	record, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	tasks, err := s.planRepo.ListTasks(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan tasks: %w", err)
	}
	return recordToPlan(record, tasks), nil
}

// GetLatestPlan retrieves the most recently created plan.
func (s *PlanServiceImpl) GetLatestPlan(ctx context.Context) (*primary.Plan, error) {
	record, err := s.planRepo.GetLatest(ctx)
	if err != nil {
		if errors.Is(err, secondary.ErrNotFound) {
			return nil, ErrNoPlan
		}
		return nil, fmt.Errorf("failed to get latest plan: %w", err)
	}
	return s.GetPlan(ctx, record.ID)
}

func recordToPlan(r *secondary.PlanRecord, tasks []*secondary.PlanTaskRecord) *primary.Plan {
	p := &primary.Plan{
		ID:                 r.ID,
		Name:               r.Name,
		SourcePath:         r.SourcePath,
		TaskCount:          r.TaskCount,
		LayerCount:         r.LayerCount,
		CriticalPathLength: r.CriticalPathLength,
		CriticalPath:       r.CriticalPath,
		MaxParallelism:     r.MaxParallelism,
		CreatedAt:          r.CreatedAt,
	}
	for _, t := range tasks {
		p.Tasks = append(p.Tasks, &primary.PlanTask{
			ID:              t.TaskID,
			Title:           t.Title,
			DependsOn:       t.DependsOn,
			Weight:          t.Weight,
			Category:        t.Category,
			Files:           t.Files,
			ComplexityScore: t.ComplexityScore,
			StartTier:       complexity.Tier(t.StartTier).String(),
			ScoreOverride:   t.ScoreOverride,
			Executor:        t.Executor,
		})
	}
	return p
}

// Ensure PlanServiceImpl implements the interface
var _ primary.PlanService = (*PlanServiceImpl)(nil)
