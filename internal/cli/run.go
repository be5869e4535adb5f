package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/wire"
)

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	var (
		tracks     int
		taskBudget int
		planID     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the latest plan, or resume the active session",
		Long: `Schedule the plan across parallel tracks and drive every task through
the execution loop. When all tracks complete, their branches are merged.

Exit codes:
  0  all tracks completed and merged
  1  circuit breaker open or a track failed; human intervention required
  2  incomplete but resumable (task budget reached, interrupted, merge paused)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := wire.RunAdapter().Run(ctx, primary.RunRequest{
				PlanID:     planID,
				Tracks:     tracks,
				TaskBudget: taskBudget,
			})
			if err != nil {
				return classify(err)
			}
			return outcomeError(result.Outcome)
		},
	}

	cmd.Flags().IntVarP(&tracks, "tracks", "n", 0, "Number of parallel tracks (default from config)")
	cmd.Flags().IntVar(&taskBudget, "task-budget", 0, "Stop admitting tasks once this many have started (0 = unlimited)")
	cmd.Flags().StringVar(&planID, "plan", "", "Plan to run (default latest)")

	return cmd
}

// MergeCmd returns the merge command
func MergeCmd() *cobra.Command {
	var skip string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge completed track branches in order, resuming after a conflict",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.RunAdapter().Merge(cmd.Context(), primary.MergeRequest{Skip: skip})
			return classify(err)
		},
	}

	cmd.Flags().StringVar(&skip, "skip", "", "Mark a conflicted track as resolved and continue with the next one")

	return cmd
}

// ResetCmd returns the reset command
func ResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Close the circuit breaker, archive the session and clear the run marker",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.RunAdapter().Reset(cmd.Context())
			return err
		},
	}
}
