package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/example/foreman/internal/ports/primary"
)

// StatusAdapter renders run status and task history.
type StatusAdapter struct {
	service primary.StatusService
	out     io.Writer
}

// NewStatusAdapter creates a new StatusAdapter with the given service.
func NewStatusAdapter(service primary.StatusService, out io.Writer) *StatusAdapter {
	return &StatusAdapter{
		service: service,
		out:     out,
	}
}

// Status prints the latest session with per-track progress.
func (a *StatusAdapter) Status(ctx context.Context) (*primary.Status, error) {
	status, err := a.service.GetStatus(ctx)
	if err != nil {
		return nil, err
	}

	plan := status.PlanID
	if status.PlanName != "" {
		plan = fmt.Sprintf("%s (%s)", status.PlanID, status.PlanName)
	}
	fmt.Fprintf(a.out, "Run:        %s\n", status.RunID)
	fmt.Fprintf(a.out, "Plan:       %s\n", plan)
	fmt.Fprintf(a.out, "State:      %s\n", stateColor(status.State))
	fmt.Fprintf(a.out, "Breaker:    %s (%d/%d consecutive failures)\n",
		breakerLabel(status.BreakerOpen), status.ConsecutiveFailures, status.MaxFailures)
	fmt.Fprintf(a.out, "Iterations: %d\n", status.Iterations)
	fmt.Fprintf(a.out, "Started:    %s\n", status.StartedAt)
	if status.LastCheckpoint != "" {
		fmt.Fprintf(a.out, "Checkpoint: %s (%d total)\n", status.LastCheckpoint, status.Checkpoints)
	}
	if status.HaltReason != "" {
		fmt.Fprintf(a.out, "Halted:     %s\n", status.HaltReason)
	}
	if status.Marked {
		fmt.Fprintln(a.out, color.New(color.FgCyan).Sprint("Autonomous run in progress"))
	}

	for _, tr := range status.Tracks {
		fmt.Fprintln(a.out)
		fmt.Fprintf(a.out, "%s  %s  %s\n", color.New(color.Bold).Sprint(tr.ID), stateColor(tr.Status), tr.Branch)

		w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "  TASK\tSPRINT\tSTATUS\tTIER\tITER\tSCORE\tEXECUTOR")
		for _, t := range tr.Tasks {
			st := t.Status
			if t.FailureReason != "" {
				st = fmt.Sprintf("%s (%s)", st, t.FailureReason)
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				t.ID, t.SprintID, stateColor(st), t.CurrentTier, t.Iteration, t.ComplexityScore, t.Executor)
		}
		w.Flush()
	}

	if len(status.Merges) > 0 {
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Merge:")
		printMergeEntries(a.out, status.Merges)
	}
	return status, nil
}

// History prints a task's escalation trail, attempts and council record.
func (a *StatusAdapter) History(ctx context.Context, taskID string) (*primary.TaskHistory, error) {
	h, err := a.service.GetHistory(ctx, taskID)
	if err != nil {
		return nil, err
	}
	t := h.Task

	fmt.Fprintf(a.out, "Task %s: %s\n", t.ID, t.Title)
	fmt.Fprintf(a.out, "Status:     %s\n", stateColor(t.Status))
	if t.FailureReason != "" {
		fmt.Fprintf(a.out, "Reason:     %s\n", t.FailureReason)
	}
	fmt.Fprintf(a.out, "Complexity: %d (start %s)\n", t.ComplexityScore, t.StartTier)
	fmt.Fprintf(a.out, "Track:      %s / %s\n", t.TrackID, t.SprintID)
	if len(t.Dependencies) > 0 {
		fmt.Fprintf(a.out, "Depends on: %s\n", strings.Join(t.Dependencies, ", "))
	}

	if len(h.Escalations) > 0 {
		fmt.Fprintln(a.out)
		w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ITER\tFROM\tTO\tREASON")
		for _, e := range h.Escalations {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Iteration, e.FromTier, e.ToTier, e.Reason)
		}
		w.Flush()
	}

	if len(h.Attempts) > 0 {
		fmt.Fprintln(a.out)
		w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ITER\tTIER\tEXECUTOR\tRESULT\tUNMET")
		for _, at := range h.Attempts {
			result := color.New(color.FgGreen).Sprint("pass")
			if !at.Passed {
				result = color.New(color.FgRed).Sprint(at.FailureClass)
			}
			iter := fmt.Sprintf("%d", at.Iteration)
			if at.Council {
				iter += " (council)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", iter, at.Tier, at.Executor, result, strings.Join(at.UnmetCriteria, "; "))
		}
		w.Flush()
	}

	if len(h.Proposals) > 0 {
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Council:")
		w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "  #\tANALYZER\tRANK SUM\tCONFIDENCE\tSUMMARY")
		for _, p := range h.Proposals {
			fmt.Fprintf(w, "  %d\t%s\t%d\t%.2f\t%s\n", p.Index, p.Analyzer, p.RankSum, p.Confidence, firstLine(p.Summary))
		}
		w.Flush()
	}
	return h, nil
}

func printMergeEntries(out io.Writer, entries []*primary.MergeEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	for _, m := range entries {
		detail := m.Revision
		if len(m.ConflictPaths) > 0 {
			detail = strings.Join(m.ConflictPaths, ", ")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", m.TrackID, stateColor(m.Status), detail)
	}
	w.Flush()
}

func stateColor(s string) string {
	word, _, _ := strings.Cut(s, " ")
	switch word {
	case "passed", "completed", "merged":
		return color.New(color.FgGreen).Sprint(s)
	case "failed", "halted", "conflict":
		return color.New(color.FgRed).Sprint(s)
	case "running", "active":
		return color.New(color.FgYellow).Sprint(s)
	case "escalated_to_council":
		return color.New(color.FgHiMagenta).Sprint(s)
	case "skipped", "archived":
		return color.New(color.FgHiBlack).Sprint(s)
	}
	return s
}

func breakerLabel(open bool) string {
	if open {
		return color.New(color.FgRed, color.Bold).Sprint("OPEN")
	}
	return "closed"
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
