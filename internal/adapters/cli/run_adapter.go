package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/example/foreman/internal/ports/primary"
)

// RunAdapter translates run, merge and reset operations to their services.
type RunAdapter struct {
	runs   primary.RunService
	merges primary.MergeService
	resets primary.ResetService
	out    io.Writer
}

// NewRunAdapter creates a new RunAdapter with the given services.
func NewRunAdapter(runs primary.RunService, merges primary.MergeService, resets primary.ResetService, out io.Writer) *RunAdapter {
	return &RunAdapter{
		runs:   runs,
		merges: merges,
		resets: resets,
		out:    out,
	}
}

// Run executes or resumes a plan and prints the outcome.
func (a *RunAdapter) Run(ctx context.Context, req primary.RunRequest) (*primary.RunResult, error) {
	result, err := a.runs.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	if result.Resumed {
		fmt.Fprintf(a.out, "Resumed run %s (plan %s)\n", result.RunID, result.PlanID)
	} else {
		fmt.Fprintf(a.out, "Run %s (plan %s)\n", result.RunID, result.PlanID)
	}
	fmt.Fprintf(a.out, "Tasks: %d/%d passed, %d failed, %d escalated to council\n",
		result.Passed, result.Total, result.Failed, result.Escalated)

	switch result.Outcome {
	case primary.RunOutcomeCompleted:
		if result.AlreadyComplete {
			fmt.Fprintln(a.out, "✓ Nothing to do: run already completed")
		} else {
			fmt.Fprintln(a.out, color.New(color.FgGreen).Sprint("✓ All tracks completed and merged"))
		}
	case primary.RunOutcomeBreakerOpen:
		fmt.Fprintln(a.out, color.New(color.FgRed).Sprintf("✗ Circuit breaker open: %s", result.HaltReason))
		fmt.Fprintln(a.out, "  Inspect with 'foreman status', then 'foreman reset' to start a new session")
	case primary.RunOutcomeFailed:
		fmt.Fprintln(a.out, color.New(color.FgRed).Sprintf("✗ Failed tracks: %s", strings.Join(result.FailedTracks, ", ")))
	case primary.RunOutcomeIncomplete:
		if result.Merge != nil && result.Merge.PausedOn != "" {
			a.printPaused(result.Merge)
		} else {
			fmt.Fprintln(a.out, color.New(color.FgYellow).Sprint("… Run stopped before completion; run again to resume"))
		}
	}
	return result, nil
}

// Merge runs or resumes the merge sequence. A conflict is reported and also
// returned as the error.
func (a *RunAdapter) Merge(ctx context.Context, req primary.MergeRequest) (*primary.MergeResult, error) {
	result, err := a.merges.Merge(ctx, req)
	if result != nil {
		printMergeEntries(a.out, result.Entries)
		if result.PausedOn != "" {
			a.printPaused(result)
		}
	}
	if err != nil {
		return result, err
	}
	fmt.Fprintln(a.out, color.New(color.FgGreen).Sprintf("✓ Merged run %s", result.RunID))
	return result, nil
}

// Reset closes the breaker and archives the session.
func (a *RunAdapter) Reset(ctx context.Context) (*primary.ResetResult, error) {
	result, err := a.resets.Reset(ctx)
	if err != nil {
		return nil, err
	}
	if result.RunID == "" {
		fmt.Fprintln(a.out, "No session to reset.")
		return result, nil
	}
	if result.BreakerClosed {
		fmt.Fprintln(a.out, "✓ Circuit breaker closed")
	}
	if result.MarkerCleared {
		fmt.Fprintln(a.out, "✓ Run marker cleared")
	}
	if result.Archived {
		fmt.Fprintf(a.out, "✓ Session %s archived; the next run starts a new session\n", result.RunID)
	} else {
		fmt.Fprintf(a.out, "Session %s is already archived\n", result.RunID)
	}
	return result, nil
}

func (a *RunAdapter) printPaused(m *primary.MergeResult) {
	fmt.Fprintln(a.out, color.New(color.FgYellow).Sprintf("⚠ Merge paused on %s", m.PausedOn))
	for _, p := range m.ConflictPaths {
		fmt.Fprintf(a.out, "  conflict: %s\n", p)
	}
	fmt.Fprintf(a.out, "  Resolve and run 'foreman merge', or 'foreman merge --skip %s'\n", m.PausedOn)
}
