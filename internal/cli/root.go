// Package cli provides the cobra commands for foreman.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/config"
	"github.com/example/foreman/internal/version"
	"github.com/example/foreman/internal/wire"
)

// RootCmd returns the foreman root command with every subcommand attached.
func RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "foreman",
		Short:   "foreman - autonomous task and sprint orchestration",
		Version: version.String(),
		Long: `foreman runs a plan of dependent tasks across parallel tracks.
Each task is retried with escalating executor tiers, difficult failures go to
a council of analyzers, and a circuit breaker halts the run when failures pile up.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = wire.Close()
		},
	}

	rootCmd.PersistentFlags().String("state-dir", "", "State directory (default .foreman)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(InitCmd())
	rootCmd.AddCommand(PlanCmd())
	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(MergeCmd())
	rootCmd.AddCommand(ResetCmd())
	rootCmd.AddCommand(StatusCmd())
	rootCmd.AddCommand(HistoryCmd())

	return rootCmd
}

// setup loads configuration, applies flag overrides and builds the services.
func setup(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	v, err := config.New(cwd)
	if err != nil {
		return err
	}
	if err := v.BindPFlag("state_dir", cmd.Flags().Lookup("state-dir")); err != nil {
		return fmt.Errorf("failed to bind flag: %w", err)
	}
	if err := v.BindPFlag("logging.level", cmd.Flags().Lookup("log-level")); err != nil {
		return fmt.Errorf("failed to bind flag: %w", err)
	}
	wire.SetViper(v)
	return wire.Init()
}
