package thread

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/salim/tukang/internal/metrics"
	"github.com/salim/tukang/pkg/agent"
	"github.com/salim/tukang/pkg/gitx"
	"github.com/salim/tukang/pkg/workspace"
)

// Options holds manager configuration
type Options struct {
	// Capacity is the maximum number of simultaneously tracked
	// threads, default 5
	Capacity int

	// BaseBranch is the ref new worktrees are detached at
	BaseBranch string

	// StaleAfter is the minimum idle duration before a worktree
	// becomes eligible for reclamation, default 24h
	StaleAfter time.Duration
}

// Result is what Handle returns to the caller for user-facing rendering
type Result struct {
	Text string
}

// Manager is the session and workspace lifecycle manager. It owns the
// registry and guard, drives the pool, and invokes the agent runner
// while holding a thread busy.
type Manager struct {
	pool     *workspace.Pool
	backend  gitx.Backend
	registry *Registry
	guard    *Guard
	runner   agent.Runner
	opts     Options
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	// admitMu makes the cap check and the record insert one step, so
	// concurrent first events for distinct threads cannot overshoot
	// the capacity
	admitMu sync.Mutex
}

// NewManager creates a lifecycle manager
func NewManager(pool *workspace.Pool, backend gitx.Backend, runner agent.Runner, opts Options, m *metrics.Metrics, logger zerolog.Logger) (*Manager, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 5
	}
	if opts.BaseBranch == "" {
		opts.BaseBranch = "main"
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 24 * time.Hour
	}

	return &Manager{
		pool:     pool,
		backend:  backend,
		registry: NewRegistry(),
		guard:    NewGuard(),
		runner:   runner,
		opts:     opts,
		metrics:  m,
		logger:   logger,
	}, nil
}

// Registry exposes the registry for status reporting
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Guard exposes the guard for status reporting
func (m *Manager) Guard() *Guard {
	return m.guard
}

// Snapshot returns all records with their current guard state filled in
func (m *Manager) Snapshot() []Record {
	recs := m.registry.Snapshot()
	for i := range recs {
		recs[i].State = m.guard.State(recs[i].ThreadID)
	}
	return recs
}

// Handle processes one inbound event for a thread. It returns ErrBusy
// when the thread is already executing, ErrCapacity when a new thread
// cannot be admitted, or the agent's result.
func (m *Manager) Handle(ctx context.Context, threadID, prompt string) (Result, error) {
	logger := m.logger.With().Str("thread_id", threadID).Logger()

	if err := m.guard.TryEnter(threadID); err != nil {
		logger.Debug().Msg("Thread busy, rejecting event")
		if m.metrics != nil {
			m.metrics.BusyRejections.Inc()
		}
		return Result{}, err
	}
	// Busy to Idle always follows, on every exit path
	defer m.guard.Exit(threadID)

	rec, tracked := m.registry.Get(threadID)
	if !tracked {
		var err error
		rec, err = m.admitAndTrack(ctx, threadID)
		if err != nil {
			return Result{}, err
		}
	}

	path, err := m.pool.Ensure(ctx, threadID, m.opts.BaseBranch)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to ensure worktree")
		if !tracked {
			// Roll back the admission so a thread without a worktree
			// does not hold a registry slot
			m.registry.Remove(threadID)
			m.updateGauges()
		}
		return Result{}, err
	}
	rec.WorktreePath = path

	// Upsert before the run so the sweeper sees the worktree as owned
	// while the guard holds the thread busy
	m.registry.Upsert(rec)

	start := time.Now()
	runResult, err := m.runner.Run(ctx, agent.Task{
		ThreadID:           threadID,
		WorktreePath:       path,
		Prompt:             prompt,
		ContinuationHandle: rec.ContinuationHandle,
	})
	if m.metrics != nil {
		m.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		logger.Error().Err(err).Msg("Agent run failed")
		if m.metrics != nil {
			m.metrics.RunsTotal.WithLabelValues("error").Inc()
		}
		return Result{}, err
	}

	if runResult.ContinuationHandle != "" {
		rec.ContinuationHandle = runResult.ContinuationHandle
	}
	if branch, err := m.backend.CurrentBranch(ctx, path); err == nil {
		rec.Branch = branch
	}
	rec.LastActiveAt = time.Now()
	m.registry.Upsert(rec)

	if m.metrics != nil {
		m.metrics.RunsTotal.WithLabelValues("ok").Inc()
	}
	logger.Info().
		Str("branch", rec.Branch).
		Dur("duration", time.Since(start)).
		Msg("Agent run completed")

	return Result{Text: runResult.Text}, nil
}

// admitAndTrack admits a thread with no existing record and inserts
// its record under the admission mutex. Without the mutex, concurrent
// first events could all pass the cap check before any record lands
// and the registry would exceed the cap permanently.
func (m *Manager) admitAndTrack(ctx context.Context, threadID string) (Record, error) {
	m.admitMu.Lock()
	defer m.admitMu.Unlock()

	if err := m.admit(ctx, threadID); err != nil {
		return Record{}, err
	}

	now := time.Now()
	rec := Record{
		ThreadID:     threadID,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	m.registry.Upsert(rec)
	m.updateGauges()
	return rec, nil
}

// admit enforces the admission cap for a thread with no existing
// record. At capacity it evicts the idle thread with the oldest
// LastActiveAt; if every tracked thread is busy it fails with
// ErrCapacity and no side effects.
func (m *Manager) admit(ctx context.Context, threadID string) error {
	recs := m.registry.Snapshot()
	if len(recs) < m.opts.Capacity {
		return nil
	}

	// Idle candidates, least recently active first
	candidates := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if m.guard.State(rec.ThreadID) == StateIdle {
			candidates = append(candidates, rec)
		}
	}
	sortByLastActive(candidates)

	for _, victim := range candidates {
		// Pin the victim so it cannot start a run mid-eviction
		if err := m.guard.TryEnter(victim.ThreadID); err != nil {
			continue
		}

		if err := m.pool.Remove(ctx, victim.WorktreePath); err != nil {
			// The registry entry still goes; the sweeper reclaims the
			// orphaned worktree on a later pass
			m.logger.Warn().
				Str("thread_id", victim.ThreadID).
				Err(err).
				Msg("Eviction left an orphaned worktree")
		} else if m.metrics != nil {
			m.metrics.WorktreesRemovedTotal.WithLabelValues("evicted").Inc()
		}
		m.registry.Remove(victim.ThreadID)
		m.guard.Exit(victim.ThreadID)

		if m.metrics != nil {
			m.metrics.ThreadsEvicted.Inc()
		}
		m.updateGauges()
		m.logger.Info().
			Str("evicted", victim.ThreadID).
			Str("admitted", threadID).
			Msg("Evicted least recently active thread")

		return nil
	}

	if m.metrics != nil {
		m.metrics.CapacityRejection.Inc()
	}
	return ErrCapacity
}

func (m *Manager) updateGauges() {
	if m.metrics != nil {
		m.metrics.ThreadsTracked.Set(float64(m.registry.Len()))
	}
}

// sortByLastActive orders records oldest LastActiveAt first
func sortByLastActive(recs []Record) {
	for i := 0; i < len(recs)-1; i++ {
		for j := i + 1; j < len(recs); j++ {
			if recs[j].LastActiveAt.Before(recs[i].LastActiveAt) {
				recs[i], recs[j] = recs[j], recs[i]
			}
		}
	}
}
