package gitx

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Git implements Backend against a git repository on disk, shelling out
// to the git binary. Worktree bookkeeping is not safe under concurrent
// structural changes; serialization is the caller's responsibility.
type Git struct {
	repoPath string
}

// NewGit creates a Git backend for the repository at repoPath.
func NewGit(repoPath string) *Git {
	return &Git{repoPath: repoPath}
}

// RepoPath returns the configured repository root.
func (g *Git) RepoPath() string {
	return g.repoPath
}

// Check verifies the repository is reachable.
func (g *Git) Check(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "git", "-C", g.repoPath, "rev-parse", "--git-dir")
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, strings.TrimSpace(string(output)))
	}
	return nil
}

// Add creates a worktree at path with a detached head at ref.
func (g *Git) Add(ctx context.Context, path, ref string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", g.repoPath, "worktree", "add", "--detach", path, ref)
	if output, err := cmd.CombinedOutput(); err != nil {
		return &BackendError{Op: "worktree add", Output: strings.TrimSpace(string(output)), Err: err}
	}
	return nil
}

// Remove force-removes the worktree at path.
func (g *Git) Remove(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", g.repoPath, "worktree", "remove", "--force", path)
	if output, err := cmd.CombinedOutput(); err != nil {
		return &BackendError{Op: "worktree remove", Output: strings.TrimSpace(string(output)), Err: err}
	}
	return nil
}

// List returns the paths of all linked worktrees, excluding the main
// working copy.
func (g *Git) List(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", g.repoPath, "worktree", "list", "--porcelain")
	output, err := cmd.Output()
	if err != nil {
		return nil, &BackendError{Op: "worktree list", Err: err}
	}
	return parseWorktreeList(string(output), g.repoPath), nil
}

// Prune reconciles worktree bookkeeping after out-of-band removals.
func (g *Git) Prune(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "git", "-C", g.repoPath, "worktree", "prune")
	if output, err := cmd.CombinedOutput(); err != nil {
		return &BackendError{Op: "worktree prune", Output: strings.TrimSpace(string(output)), Err: err}
	}
	return nil
}

// CurrentBranch returns the branch checked out at path, or an empty
// string on a detached head.
func (g *Git) CurrentBranch(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", path, "branch", "--show-current")
	output, err := cmd.Output()
	if err != nil {
		return "", &BackendError{Op: "branch --show-current", Err: err}
	}
	return strings.TrimSpace(string(output)), nil
}

// parseWorktreeList extracts worktree paths from `git worktree list
// --porcelain` output. The main working copy is filtered out by
// comparing against repoPath.
func parseWorktreeList(output, repoPath string) []string {
	var paths []string
	mainPath := filepath.Clean(repoPath)

	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "worktree ") {
			continue
		}
		path := filepath.Clean(strings.TrimPrefix(line, "worktree "))
		if path == mainPath {
			continue
		}
		paths = append(paths, path)
	}

	return paths
}
