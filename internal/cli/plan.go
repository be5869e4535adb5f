package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/wire"
)

// PlanCmd returns the plan command
func PlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [file]",
		Short: "Validate a plan file and store its dependency graph",
		Long: `Read a YAML plan file, reject dependency cycles, score every task's
complexity and store the result as the plan the next run will use.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.PlanAdapter().Create(cmd.Context(), args[0])
			return err
		},
	}
	cmd.AddCommand(planShowCmd())
	return cmd
}

func planShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [plan-id]",
		Short: "Show a stored plan (latest when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			_, err := wire.PlanAdapter().Show(cmd.Context(), id)
			return err
		},
	}
}
