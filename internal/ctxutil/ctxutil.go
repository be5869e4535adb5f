// Package ctxutil provides context utilities that can be safely imported anywhere.
// This package has no internal dependencies to avoid import cycles.
package ctxutil

import "context"

type runKey struct{}

type trackKey struct{}

// WithRunID returns a context carrying the run ID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, runID)
}

// RunFromContext returns the run ID from context, or empty string if not set.
func RunFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runKey{}).(string); ok {
		return v
	}
	return ""
}

// WithTrackID returns a context carrying the track ID.
func WithTrackID(ctx context.Context, trackID string) context.Context {
	return context.WithValue(ctx, trackKey{}, trackID)
}

// TrackFromContext returns the track ID from context, or empty string if not set.
func TrackFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(trackKey{}).(string); ok {
		return v
	}
	return ""
}
