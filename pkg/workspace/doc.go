// Package workspace manages a pool of git worktrees, one per
// conversation thread, all linked to a single shared repository.
//
// Invariants:
// - Worktree paths are derived deterministically from the thread id.
// - Ensure is idempotent between removals: no git mutation when the
//   worktree already exists.
// - All pool mutations are serialized by one repository-wide lock; the
//   underlying worktree bookkeeping is not safe under concurrent
//   structural changes.
// - ListAll may observe a state mid-transition; callers tolerate a
//   stale snapshot.
package workspace
