// Package secondary defines the secondary ports (driven adapters) for the application.
package secondary

import "context"

// MonitorWindow is one track's view in the monitor session.
type MonitorWindow struct {
	Name       string // track ID
	WorkingDir string
	Command    string // command run in the window, e.g. a log tail
}

// TrackMonitor defines the secondary port for an optional terminal session
// that shows each track side by side.
type TrackMonitor interface {
	// Open creates the session with one window per track.
	Open(ctx context.Context, sessionName, workingDir string, windows []MonitorWindow) error

	// Close kills the session.
	Close(ctx context.Context, sessionName string) error

	// SessionExists reports whether the session is running.
	SessionExists(ctx context.Context, name string) bool

	// AttachInstructions returns the command an operator runs to watch.
	AttachInstructions(sessionName string) string
}
