package thread

import "sync"

// Guard is the per-thread two-state machine preventing two executions
// from sharing a worktree. Guards are independent per thread: distinct
// threads may be concurrently busy without interference.
type Guard struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

// NewGuard creates a guard with every thread idle
func NewGuard() *Guard {
	return &Guard{
		busy: make(map[string]struct{}),
	}
}

// TryEnter transitions threadID from Idle to Busy. If the thread is
// already busy it fails immediately with ErrBusy; there is no queueing.
func (g *Guard) TryEnter(threadID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, taken := g.busy[threadID]; taken {
		return ErrBusy
	}
	g.busy[threadID] = struct{}{}
	return nil
}

// Exit transitions threadID back to Idle unconditionally. It must be
// called on every exit path of a run, including failure and timeout.
func (g *Guard) Exit(threadID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.busy, threadID)
}

// State returns the current state of threadID
func (g *Guard) State(threadID string) State {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, taken := g.busy[threadID]; taken {
		return StateBusy
	}
	return StateIdle
}
