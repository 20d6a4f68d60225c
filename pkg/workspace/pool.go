package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/salim/tukang/pkg/gitx"
)

// Pool creates, reuses, and destroys worktrees under a single root
// directory, all linked to one shared repository.
type Pool struct {
	backend gitx.Backend
	root    string
	logger  zerolog.Logger

	// Serializes all pool mutations; git worktree bookkeeping is not
	// safe under concurrent structural changes.
	mu sync.Mutex
}

// NewPool creates a pool rooted at root. The root directory is created
// if it does not exist.
func NewPool(backend gitx.Backend, root string, logger zerolog.Logger) (*Pool, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if root == "" {
		return nil, fmt.Errorf("worktrees root is required")
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create worktrees root: %w", err)
	}

	return &Pool{
		backend: backend,
		root:    root,
		logger:  logger,
	}, nil
}

// Root returns the worktrees root directory.
func (p *Pool) Root() string {
	return p.root
}

// PathFor returns the deterministic worktree path for a thread id.
func (p *Pool) PathFor(threadID string) string {
	return filepath.Join(p.root, "thread-"+sanitize(threadID))
}

// Ensure returns the worktree path for threadID, creating the worktree
// with a detached head at baseRef if it does not exist yet. Repeated
// calls with no intervening removal return the same path and perform no
// git mutation.
func (p *Pool) Ensure(ctx context.Context, threadID, baseRef string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := p.PathFor(threadID)

	if _, err := os.Stat(path); err == nil {
		known, err := p.isKnownWorktree(ctx, path)
		if err != nil {
			return "", &CreateError{ThreadID: threadID, Path: path, Err: err}
		}
		if !known {
			return "", &CreateError{
				ThreadID: threadID,
				Path:     path,
				Err:      fmt.Errorf("path exists but is not a registered worktree"),
			}
		}
		return path, nil
	}

	if err := p.backend.Check(ctx); err != nil {
		return "", &CreateError{ThreadID: threadID, Path: path, Err: err}
	}

	if err := p.backend.Add(ctx, path, baseRef); err != nil {
		return "", &CreateError{ThreadID: threadID, Path: path, Err: err}
	}

	p.logger.Info().
		Str("thread_id", threadID).
		Str("path", path).
		Str("ref", baseRef).
		Msg("Worktree created")

	return path, nil
}

// Remove force-removes the worktree at path and unregisters it from the
// repository's bookkeeping. A partial removal (directory gone but
// metadata stale, or vice versa) is reported as a RemoveError and is
// retryable.
func (p *Pool) Remove(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.backend.Remove(ctx, path); err != nil {
		return &RemoveError{Path: path, Err: err}
	}

	if _, err := os.Stat(path); err == nil {
		return &RemoveError{Path: path, Err: fmt.Errorf("directory still present after removal")}
	}

	known, err := p.isKnownWorktree(ctx, path)
	if err != nil {
		return &RemoveError{Path: path, Err: err}
	}
	if known {
		return &RemoveError{Path: path, Err: fmt.Errorf("metadata still present after removal")}
	}

	p.logger.Info().Str("path", path).Msg("Worktree removed")

	return nil
}

// ListAll enumerates every worktree under the pool root known to the
// repository. It does not take the pool lock; the snapshot may be stale
// with respect to a concurrent mutation.
func (p *Pool) ListAll(ctx context.Context) ([]string, error) {
	paths, err := p.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}

	var owned []string
	for _, path := range paths {
		if p.isUnderRoot(path) {
			owned = append(owned, path)
		}
	}
	return owned, nil
}

// PruneMetadata reconciles the repository's worktree bookkeeping after
// directories were removed out-of-band.
func (p *Pool) PruneMetadata(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.backend.Prune(ctx); err != nil {
		return fmt.Errorf("failed to prune worktree metadata: %w", err)
	}
	return nil
}

func (p *Pool) isKnownWorktree(ctx context.Context, path string) (bool, error) {
	paths, err := p.backend.List(ctx)
	if err != nil {
		return false, err
	}
	for _, known := range paths {
		if filepath.Clean(known) == filepath.Clean(path) {
			return true, nil
		}
	}
	return false, nil
}

func (p *Pool) isUnderRoot(path string) bool {
	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// sanitize maps a thread id to a path-safe name. Bytes outside
// [A-Za-z0-9_] are escaped as "-" plus two hex digits, dash included,
// so distinct ids always map to distinct names. A Slack thread key
// like "1700000000.123456" becomes "1700000000-2e123456".
func sanitize(threadID string) string {
	var b strings.Builder
	b.Grow(len(threadID))
	for i := 0; i < len(threadID); i++ {
		c := threadID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "-%02x", c)
		}
	}
	return b.String()
}
