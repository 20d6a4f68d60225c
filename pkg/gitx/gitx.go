// Package gitx provides a worktree-level abstraction over a version
// control backend, allowing the lifecycle core to be tested against an
// in-memory fake instead of the real git binary.
package gitx

import (
	"context"
	"errors"
	"fmt"
)

// ErrBackendUnavailable is returned when the underlying repository
// cannot be reached at all. It is fatal to the current operation and is
// not retried automatically.
var ErrBackendUnavailable = errors.New("version control backend unavailable")

// Backend is the set of worktree operations the lifecycle core consumes.
type Backend interface {
	// Check verifies the underlying repository is reachable.
	Check(ctx context.Context) error

	// Add creates a worktree at path with a detached head checked out
	// at ref. The path must not exist yet.
	Add(ctx context.Context, path, ref string) error

	// Remove force-removes the worktree at path, both the directory
	// and the repository's bookkeeping for it.
	Remove(ctx context.Context, path string) error

	// List returns the paths of all linked worktrees known to the
	// repository, excluding the main working copy.
	List(ctx context.Context) ([]string, error)

	// Prune reconciles the repository's worktree bookkeeping after
	// directories were removed out-of-band.
	Prune(ctx context.Context) error

	// CurrentBranch returns the branch checked out at path, or an
	// empty string on a detached head.
	CurrentBranch(ctx context.Context, path string) (string, error)
}

// BackendError wraps a failure reported by the backend, keeping the
// command output for diagnostics.
type BackendError struct {
	Op     string
	Output string
	Err    error
}

func (e *BackendError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("git %s: %s", e.Op, e.Output)
	}
	return fmt.Sprintf("git %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
