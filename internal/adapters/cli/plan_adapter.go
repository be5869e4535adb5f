package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/example/foreman/internal/ports/primary"
)

// PlanAdapter is a thin adapter that translates CLI operations to PlanService calls.
type PlanAdapter struct {
	service primary.PlanService
	out     io.Writer
}

// NewPlanAdapter creates a new PlanAdapter with the given service.
func NewPlanAdapter(service primary.PlanService, out io.Writer) *PlanAdapter {
	return &PlanAdapter{
		service: service,
		out:     out,
	}
}

// Create validates and stores a plan file.
func (a *PlanAdapter) Create(ctx context.Context, path string) (*primary.Plan, error) {
	plan, err := a.service.CreatePlan(ctx, primary.CreatePlanRequest{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	fmt.Fprintf(a.out, "✓ Created plan %s: %s\n", plan.ID, plan.Name)
	a.print(plan)
	return plan, nil
}

// Show displays a stored plan. An empty id shows the latest one.
func (a *PlanAdapter) Show(ctx context.Context, planID string) (*primary.Plan, error) {
	var (
		plan *primary.Plan
		err  error
	)
	if planID == "" {
		plan, err = a.service.GetLatestPlan(ctx)
	} else {
		plan, err = a.service.GetPlan(ctx, planID)
	}
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(a.out, "Plan %s: %s\n", plan.ID, plan.Name)
	a.print(plan)
	return plan, nil
}

func (a *PlanAdapter) print(plan *primary.Plan) {
	fmt.Fprintf(a.out, "  %d tasks, %d layers, max parallelism %d\n", plan.TaskCount, plan.LayerCount, plan.MaxParallelism)
	fmt.Fprintf(a.out, "  critical path (%d): %s\n", plan.CriticalPathLength, strings.Join(plan.CriticalPath, " → "))
	fmt.Fprintln(a.out)

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSCORE\tTIER\tEXECUTOR\tDEPENDS ON")
	fmt.Fprintln(w, "--\t-----\t-----\t----\t--------\t----------")
	for _, t := range plan.Tasks {
		score := fmt.Sprintf("%d", t.ComplexityScore)
		if t.ScoreOverride {
			score += "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Title, score, t.StartTier, t.Executor, strings.Join(t.DependsOn, ","))
	}
	w.Flush()
}
