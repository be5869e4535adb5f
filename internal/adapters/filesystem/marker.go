package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/foreman/internal/ports/secondary"
)

// MarkerFileName is the run marker written inside the state directory.
const MarkerFileName = "autonomous.marker"

// RunMarker implements secondary.RunMarker with a file holding the run ID.
type RunMarker struct {
	path string
}

// NewRunMarker creates a marker at {stateDir}/autonomous.marker.
func NewRunMarker(stateDir string) *RunMarker {
	return &RunMarker{path: filepath.Join(stateDir, MarkerFileName)}
}

// Set writes the marker.
func (m *RunMarker) Set(ctx context.Context, runID string) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(m.path, []byte(runID+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write run marker: %w", err)
	}
	return nil
}

// Clear removes the marker. A missing marker is not an error.
func (m *RunMarker) Clear(ctx context.Context) error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove run marker: %w", err)
	}
	return nil
}

// Get returns the marked run ID, or "" when there is no marker.
func (m *RunMarker) Get(ctx context.Context) (string, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read run marker: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

var _ secondary.RunMarker = (*RunMarker)(nil)
