package workspace

import "fmt"

// CreateError is returned when a worktree could not be created. It is
// retryable from the caller's perspective.
type CreateError struct {
	ThreadID string
	Path     string
	Err      error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("failed to create worktree for thread %s at %s: %v", e.ThreadID, e.Path, e.Err)
}

func (e *CreateError) Unwrap() error {
	return e.Err
}

// RemoveError is returned when a worktree removal failed or partially
// succeeded (directory gone but metadata stale, or vice versa). The
// caller must treat it as retryable.
type RemoveError struct {
	Path string
	Err  error
}

func (e *RemoveError) Error() string {
	return fmt.Sprintf("failed to remove worktree %s: %v", e.Path, e.Err)
}

func (e *RemoveError) Unwrap() error {
	return e.Err
}
