// Package thread maps conversation threads to isolated git worktrees
// and resumable agent sessions, guaranteeing at most one execution per
// thread at any instant.
//
// Invariants:
// - Exactly one record per live thread id; worktree paths are injective
//   over live records.
// - A thread transitions Idle to Busy only through Guard.TryEnter, and
//   Busy to Idle always follows, even on failure.
// - The registry is volatile: a worktree on disk without a registry
//   entry is by definition orphaned, and a restart is a cold start.
package thread
