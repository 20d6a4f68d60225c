// Package agent runs the coding agent CLI inside a thread's worktree
// and carries the continuation handle between runs.
package agent

import "context"

// Task describes one agent invocation
type Task struct {
	// ThreadID identifies the conversation, for log correlation
	ThreadID string

	// WorktreePath is the working directory for the run
	WorktreePath string

	// Prompt is the task text extracted from the chat event
	Prompt string

	// ContinuationHandle resumes the agent's prior context when set
	ContinuationHandle string
}

// Result is the outcome of a run
type Result struct {
	// Text is the agent's final answer, rendered back to the user
	Text string

	// ContinuationHandle resumes this run's context next time; may be
	// empty when the CLI output was unparsable
	ContinuationHandle string
}

// Runner executes agent tasks. Runs may block for long, unbounded
// durations; the caller holds the thread busy for the whole run.
type Runner interface {
	Run(ctx context.Context, task Task) (Result, error)
}
