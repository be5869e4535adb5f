package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/app"
	"github.com/example/foreman/internal/wire"
)

// watchDebounce coalesces the burst of writes a single transaction produces.
const watchDebounce = 250 * time.Millisecond

// StatusCmd returns the status command
func StatusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session, breaker state and per-track progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			render := func() error {
				_, err := wire.StatusAdapter().Status(cmd.Context())
				if errors.Is(err, app.ErrNoSession) {
					fmt.Println("No execution session found. Run 'foreman plan' and 'foreman run' to start one.")
					return nil
				}
				return err
			}
			if !watch {
				return render()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchStatus(ctx, filepath.Dir(wire.Config().DBPath), render)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-render whenever the state database changes")

	return cmd
}

// HistoryCmd returns the history command
func HistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [task-id]",
		Short: "Show a task's escalation history, attempts and council votes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.StatusAdapter().History(cmd.Context(), args[0])
			return err
		},
	}
}

// watchStatus renders once, then again after each burst of changes in dir.
// The database directory is watched rather than the file because SQLite
// writes through its -wal sidecar.
func watchStatus(ctx context.Context, dir string, render func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	redraw := func() error {
		fmt.Print("\033[H\033[2J")
		fmt.Printf("foreman status (watching %s, Ctrl-C to stop)\n\n", dir)
		return render()
	}
	if err := redraw(); err != nil {
		return err
	}

	var (
		timer  *time.Timer
		expire <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			expire = timer.C
		case <-expire:
			expire = nil
			if err := redraw(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			wire.Logger().Warn("status watch error", "error", err)
		}
	}
}
