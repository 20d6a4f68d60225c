package gitx

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Fake is an in-memory Backend for tests. It mirrors worktree state on
// the filesystem so callers that stat paths behave as they would with
// the real backend.
type Fake struct {
	mu        sync.Mutex
	worktrees map[string]string // path -> ref
	addCalls  int
	prunes    int

	// Error injection. When set, the corresponding operation fails.
	CheckErr  error
	AddErr    error
	ListErr   error
	PruneErr  error
	RemoveErr map[string]error // per-path removal failures

	// Branches reported by CurrentBranch, keyed by path.
	Branches map[string]string
}

// NewFake creates an empty fake backend.
func NewFake() *Fake {
	return &Fake{
		worktrees: make(map[string]string),
		RemoveErr: make(map[string]error),
		Branches:  make(map[string]string),
	}
}

// Check reports the injected availability error, if any.
func (f *Fake) Check(ctx context.Context) error {
	return f.CheckErr
}

// Add registers a worktree and creates its directory.
func (f *Fake) Add(ctx context.Context, path, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.AddErr != nil {
		return f.AddErr
	}
	if _, exists := f.worktrees[path]; exists {
		return &BackendError{Op: "worktree add", Output: fmt.Sprintf("'%s' already exists", path)}
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return err
	}

	f.worktrees[path] = ref
	f.addCalls++
	return nil
}

// Remove unregisters a worktree and deletes its directory.
func (f *Fake) Remove(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.RemoveErr[path]; ok {
		return err
	}
	if _, exists := f.worktrees[path]; !exists {
		return &BackendError{Op: "worktree remove", Output: fmt.Sprintf("'%s' is not a working tree", path)}
	}
	if err := os.RemoveAll(path); err != nil {
		return err
	}

	delete(f.worktrees, path)
	return nil
}

// List returns the registered worktree paths.
func (f *Fake) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListErr != nil {
		return nil, f.ListErr
	}

	paths := make([]string, 0, len(f.worktrees))
	for path := range f.worktrees {
		paths = append(paths, path)
	}
	return paths, nil
}

// Prune counts invocations and drops entries whose directory is gone.
func (f *Fake) Prune(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PruneErr != nil {
		return f.PruneErr
	}

	f.prunes++
	for path := range f.worktrees {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			delete(f.worktrees, path)
		}
	}
	return nil
}

// CurrentBranch returns the configured branch for path.
func (f *Fake) CurrentBranch(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Branches[path], nil
}

// AddCalls returns how many times Add was invoked.
func (f *Fake) AddCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addCalls
}

// PruneCalls returns how many times Prune was invoked.
func (f *Fake) PruneCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prunes
}

// Has reports whether a worktree is registered for path.
func (f *Fake) Has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.worktrees[path]
	return ok
}
