package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/wire"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the foreman state directory",
		Long: `Create the state directory and database, and write a config.yaml holding
the default settings when none exists yet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := wire.Config()
			fmt.Printf("✓ Database ready at %s\n", cfg.DBPath)

			path := filepath.Join(cfg.StateDir, "config.yaml")
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("  Config already exists at %s\n", path)
			} else if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to check config: %w", err)
			} else {
				if err := wire.Viper().SafeWriteConfigAs(path); err != nil {
					return fmt.Errorf("failed to write config: %w", err)
				}
				fmt.Printf("✓ Wrote default config to %s\n", path)
			}

			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  set executor.command and validator.command in the config")
			fmt.Println("  foreman plan plan.yaml")
			fmt.Println("  foreman run --tracks 2")
			return nil
		},
	}
}
