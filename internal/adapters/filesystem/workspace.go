// Package filesystem contains filesystem-based adapter implementations.
package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/example/foreman/internal/ports/secondary"
)

// GitWorkspace implements secondary.VersionControl with git worktrees. Each
// track gets its own branch checked out in its own worktree.
type GitWorkspace struct {
	repoPath     string
	worktreesDir string
	baseBranch   string
	branchPrefix string
}

// NewGitWorkspace creates a git workspace adapter for the repository at repoPath.
func NewGitWorkspace(repoPath, worktreesDir, baseBranch, branchPrefix string) (*GitWorkspace, error) {
	repo, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repo path: %w", err)
	}
	if worktreesDir == "" {
		worktreesDir = filepath.Join(repo, ".foreman", "worktrees")
	} else if !filepath.IsAbs(worktreesDir) {
		worktreesDir = filepath.Join(repo, worktreesDir)
	}
	if baseBranch == "" {
		baseBranch = "main"
	}
	if branchPrefix == "" {
		branchPrefix = "foreman"
	}
	return &GitWorkspace{
		repoPath:     repo,
		worktreesDir: worktreesDir,
		baseBranch:   baseBranch,
		branchPrefix: branchPrefix,
	}, nil
}

func (g *GitWorkspace) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("git %s failed: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CreateWorkspace creates a worktree at path on branch. A new branch starts
// from the base branch; an existing branch is checked out as is.
func (g *GitWorkspace) CreateWorkspace(ctx context.Context, branch, path string) error {
	if _, err := os.Stat(g.repoPath); os.IsNotExist(err) {
		return fmt.Errorf("repo not found at %s", g.repoPath)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create worktrees directory: %w", err)
	}

	args := []string{"worktree", "add", path, branch}
	if _, err := g.git(ctx, g.repoPath, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch); err != nil {
		args = []string{"worktree", "add", "-b", branch, path, g.baseBranch}
	}
	if _, err := g.git(ctx, g.repoPath, args...); err != nil {
		return err
	}
	return nil
}

// WorkspaceExists checks if a worktree exists at the given path.
func (g *GitWorkspace) WorkspaceExists(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check worktree: %w", err)
	}
	return info.IsDir(), nil
}

// RemoveWorkspace removes a worktree. The branch is kept.
func (g *GitWorkspace) RemoveWorkspace(ctx context.Context, path string) error {
	if _, err := g.git(ctx, g.repoPath, "worktree", "remove", path, "--force"); err != nil {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove worktree directory: %w", err)
		}
	}
	return nil
}

// Revision returns the HEAD commit of a workspace.
func (g *GitWorkspace) Revision(ctx context.Context, path string) (string, error) {
	return g.git(ctx, path, "rev-parse", "HEAD")
}

// Commit stages and commits every change in the workspace.
func (g *GitWorkspace) Commit(ctx context.Context, path, message string) (string, error) {
	status, err := g.git(ctx, path, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if status != "" {
		if _, err := g.git(ctx, path, "add", "-A"); err != nil {
			return "", err
		}
		if _, err := g.git(ctx, path, "commit", "--no-verify", "-m", message); err != nil {
			return "", err
		}
	}
	return g.Revision(ctx, path)
}

// Merge merges branch into the base branch of the main checkout. On conflict
// the merge is aborted and the conflicting paths are returned.
func (g *GitWorkspace) Merge(ctx context.Context, branch string) (*secondary.MergeOutcome, error) {
	if _, err := g.git(ctx, g.repoPath, "checkout", g.baseBranch); err != nil {
		return nil, err
	}

	_, mergeErr := g.git(ctx, g.repoPath, "merge", "--no-ff", "--no-edit", branch)
	if mergeErr != nil {
		out, err := g.git(ctx, g.repoPath, "diff", "--name-only", "--diff-filter=U")
		if err != nil {
			return nil, fmt.Errorf("%w (conflict listing failed: %v)", mergeErr, err)
		}
		paths := splitLines(out)
		if len(paths) == 0 {
			return nil, mergeErr
		}
		if _, err := g.git(ctx, g.repoPath, "merge", "--abort"); err != nil {
			return nil, err
		}
		return &secondary.MergeOutcome{ConflictPaths: paths}, nil
	}

	rev, err := g.Revision(ctx, g.repoPath)
	if err != nil {
		return nil, err
	}
	return &secondary.MergeOutcome{Merged: true, Revision: rev}, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// BaseBranch returns the branch tracks are merged into.
func (g *GitWorkspace) BaseBranch() string {
	return g.baseBranch
}

// WorkspacePath returns the worktree directory of a track.
func (g *GitWorkspace) WorkspacePath(runID, trackID string) string {
	return filepath.Join(g.worktreesDir, shortRun(runID), trackID)
}

// BranchName returns the branch of a track, e.g. foreman/1a2b3c4d/TRACK-1.
func (g *GitWorkspace) BranchName(runID, trackID string) string {
	return g.branchPrefix + "/" + shortRun(runID) + "/" + trackID
}

func shortRun(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

// Ensure GitWorkspace implements the interface
var _ secondary.VersionControl = (*GitWorkspace)(nil)
