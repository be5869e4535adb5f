package primary

import "context"

// ResetService defines the primary port for operator recovery.
type ResetService interface {
	// Reset closes an open circuit breaker, archives the session and clears
	// the autonomous-run marker.
	Reset(ctx context.Context) (*ResetResult, error)
}

// ResetResult reports what a reset changed.
type ResetResult struct {
	RunID         string
	BreakerClosed bool
	Archived      bool
	MarkerCleared bool
}
