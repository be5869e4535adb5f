// Package tmux contains the tmux track monitor.
package tmux

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/GianlucaP106/gotmux/gotmux"

	"github.com/example/foreman/internal/ports/secondary"
)

// Monitor implements secondary.TrackMonitor with gotmux. It opens one window
// per track, each running a command such as a filtered log tail.
type Monitor struct {
	tmux *gotmux.Tmux
}

// NewMonitor creates a tmux monitor.
func NewMonitor() (*Monitor, error) {
	tmux, err := gotmux.DefaultTmux()
	if err != nil {
		return nil, fmt.Errorf("failed to create tmux client: %w", err)
	}
	return &Monitor{tmux: tmux}, nil
}

// Open creates the session. The first window is the one tmux creates with the
// session; the rest are added detached.
func (m *Monitor) Open(ctx context.Context, sessionName, workingDir string, windows []secondary.MonitorWindow) error {
	if len(windows) == 0 {
		return fmt.Errorf("monitor session %s needs at least one window", sessionName)
	}
	if m.SessionExists(ctx, sessionName) {
		return fmt.Errorf("tmux session %s already exists", sessionName)
	}

	session, err := m.tmux.NewSession(&gotmux.SessionOptions{
		Name:           sessionName,
		StartDirectory: workingDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	existing, err := session.ListWindows()
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}
	if len(existing) == 0 {
		return fmt.Errorf("no windows found in new session")
	}
	if err := m.setupWindow(ctx, existing[0], windows[0]); err != nil {
		return err
	}

	for _, w := range windows[1:] {
		dir := w.WorkingDir
		if dir == "" {
			dir = workingDir
		}
		window, err := session.NewWindow(&gotmux.NewWindowOptions{
			WindowName:     w.Name,
			StartDirectory: dir,
			DoNotAttach:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create window %s: %w", w.Name, err)
		}
		if err := m.setupWindow(ctx, window, w); err != nil {
			return err
		}
	}
	return nil
}

// setupWindow names the window and makes the track command its root process.
func (m *Monitor) setupWindow(ctx context.Context, window *gotmux.Window, w secondary.MonitorWindow) error {
	if err := window.Rename(w.Name); err != nil {
		return fmt.Errorf("failed to rename window: %w", err)
	}
	panes, err := window.ListPanes()
	if err != nil || len(panes) == 0 {
		return fmt.Errorf("failed to get pane of window %s: %w", w.Name, err)
	}
	pane := panes[0]

	// NewWindowOptions has no ShellCommand, so the pane is respawned.
	if w.Command != "" {
		if err := exec.CommandContext(ctx, "tmux", "respawn-pane", "-t", pane.Id, "-k", w.Command).Run(); err != nil {
			return fmt.Errorf("failed to start command in window %s: %w", w.Name, err)
		}
	}
	if err := pane.SetOption("@track_id", w.Name); err != nil {
		return fmt.Errorf("failed to set @track_id on %s: %w", w.Name, err)
	}
	return nil
}

// Close kills the session.
func (m *Monitor) Close(ctx context.Context, sessionName string) error {
	sessions, err := m.tmux.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, s := range sessions {
		if s.Name == sessionName {
			return s.Kill()
		}
	}
	return fmt.Errorf("session %s not found", sessionName)
}

// SessionExists checks if a tmux session exists.
func (m *Monitor) SessionExists(ctx context.Context, name string) bool {
	sessions, err := m.tmux.ListSessions()
	if err != nil {
		return false
	}
	for _, s := range sessions {
		if s.Name == name {
			return true
		}
	}
	return false
}

// AttachInstructions returns instructions for attaching to a session.
func (m *Monitor) AttachInstructions(sessionName string) string {
	return fmt.Sprintf("Attach to track monitor: tmux attach -t %s\n"+
		"  Next track window: Ctrl+b then n\n"+
		"  Detach: Ctrl+b then d\n", sessionName)
}

// SessionName returns the monitor session name of a run.
func SessionName(runID string) string {
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return "foreman-" + runID
}

// TailCommand returns a command that follows the log and keeps only the
// lines of one track.
func TailCommand(logPath, trackID string) string {
	filter := fmt.Sprintf(`"track_id":"%s"`, trackID)
	return fmt.Sprintf("tail -n 200 -F %s | grep --line-buffered %s", shellQuote(logPath), shellQuote(filter))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var _ secondary.TrackMonitor = (*Monitor)(nil)
