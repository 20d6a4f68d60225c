package thread

import "time"

// State is the concurrency guard state of a thread
type State int

const (
	// StateIdle means no execution is in flight for the thread
	StateIdle State = iota
	// StateBusy means an execution currently holds the thread
	StateBusy
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Record is the session record for one conversation thread. It is owned
// exclusively by the Registry; callers always work on copies.
type Record struct {
	// ThreadID is the stable identifier of the conversation
	ThreadID string

	// ContinuationHandle references the agent's prior context; empty
	// until a first successful run
	ContinuationHandle string

	// Branch is the branch checked out in the thread's worktree
	Branch string

	// WorktreePath is the filesystem location, unique per thread
	WorktreePath string

	CreatedAt    time.Time
	LastActiveAt time.Time

	// State is filled in on snapshots from the Guard; the Registry
	// itself does not track it
	State State
}
