// Package secondary defines the secondary ports (driven adapters) for the application.
package secondary

import "context"

// VersionControl defines the secondary port for isolated track workspaces and
// merging them into the base line.
type VersionControl interface {
	// Worktree operations
	CreateWorkspace(ctx context.Context, branch, path string) error
	WorkspaceExists(ctx context.Context, path string) (bool, error)
	RemoveWorkspace(ctx context.Context, path string) error

	// Revision returns the current commit of a workspace.
	Revision(ctx context.Context, path string) (string, error)

	// Commit records every change in a workspace and returns the new
	// revision. A clean workspace returns its current revision.
	Commit(ctx context.Context, path, message string) (string, error)

	// Merge integrates a branch into the base line. On conflict it aborts the
	// merge and returns the conflicting paths with a nil error.
	Merge(ctx context.Context, branch string) (*MergeOutcome, error)

	// Path resolution
	BaseBranch() string
	WorkspacePath(runID, trackID string) string
	BranchName(runID, trackID string) string
}

// MergeOutcome is the result of one merge attempt.
type MergeOutcome struct {
	Merged        bool
	Revision      string
	ConflictPaths []string
}

// RunMarker records that an autonomous run is in progress.
type RunMarker interface {
	Set(ctx context.Context, runID string) error
	Clear(ctx context.Context) error
	// Get returns the marked run ID, or "" when no run is marked.
	Get(ctx context.Context) (string, error)
}
