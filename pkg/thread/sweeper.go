package thread

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often the reclamation sweep runs
const DefaultSweepInterval = 6 * time.Hour

// Sweep performs one reclamation pass. A worktree is a removal
// candidate when no registry record references it, or when its record
// has been idle past the staleness threshold. Busy threads are never
// removed regardless of age, and a failure on one candidate never
// aborts the sweep.
func (m *Manager) Sweep(ctx context.Context) error {
	if m.metrics != nil {
		m.metrics.SweepsTotal.Inc()
	}

	paths, err := m.pool.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	byPath := make(map[string]Record)
	for _, rec := range m.registry.Snapshot() {
		byPath[rec.WorktreePath] = rec
	}

	removed := 0
	for _, path := range paths {
		rec, tracked := byPath[path]

		if !tracked {
			// Orphaned: on disk with no registry entry
			if err := m.pool.Remove(ctx, path); err != nil {
				m.logger.Warn().Str("path", path).Err(err).Msg("Failed to remove orphaned worktree")
				if m.metrics != nil {
					m.metrics.SweepRemoveFailures.Inc()
				}
				continue
			}
			removed++
			if m.metrics != nil {
				m.metrics.WorktreesRemovedTotal.WithLabelValues("orphan").Inc()
			}
			continue
		}

		if m.guard.State(rec.ThreadID) == StateBusy {
			continue
		}
		if time.Since(rec.LastActiveAt) < m.opts.StaleAfter {
			continue
		}

		// Pin the thread so it cannot go busy mid-removal; a thread
		// that raced to busy is simply skipped this pass
		if err := m.guard.TryEnter(rec.ThreadID); err != nil {
			continue
		}

		err := m.pool.Remove(ctx, path)
		if err == nil {
			m.registry.Remove(rec.ThreadID)
		}
		m.guard.Exit(rec.ThreadID)

		if err != nil {
			m.logger.Warn().
				Str("thread_id", rec.ThreadID).
				Str("path", path).
				Err(err).
				Msg("Failed to remove stale worktree")
			if m.metrics != nil {
				m.metrics.SweepRemoveFailures.Inc()
			}
			continue
		}

		removed++
		if m.metrics != nil {
			m.metrics.WorktreesRemovedTotal.WithLabelValues("stale").Inc()
		}
		m.logger.Info().
			Str("thread_id", rec.ThreadID).
			Str("path", path).
			Msg("Reclaimed stale worktree")
	}

	if err := m.pool.PruneMetadata(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to prune worktree metadata after sweep")
	}

	m.updateGauges()
	if m.metrics != nil {
		m.metrics.WorktreesActive.Set(float64(len(paths) - removed))
	}

	if removed > 0 {
		m.logger.Info().Int("removed", removed).Msg("Reclamation sweep completed")
	}

	return nil
}

// ReconcileStartup removes every worktree left by a previous run. The
// registry starts empty, so everything ListAll returns is orphaned by
// definition. Any failure is fatal: an inconsistent pool must not be
// allowed to silently persist.
func (m *Manager) ReconcileStartup(ctx context.Context) error {
	paths, err := m.pool.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("startup reconcile: %w", err)
	}

	for _, path := range paths {
		if err := m.pool.Remove(ctx, path); err != nil {
			return fmt.Errorf("startup reconcile: %w", err)
		}
		if m.metrics != nil {
			m.metrics.WorktreesRemovedTotal.WithLabelValues("startup").Inc()
		}
	}

	if err := m.pool.PruneMetadata(ctx); err != nil {
		return fmt.Errorf("startup reconcile: %w", err)
	}

	if len(paths) > 0 {
		m.logger.Info().Int("removed", len(paths)).Msg("Startup reconcile removed leftover worktrees")
	}

	return nil
}

// Sweeper runs reclamation sweeps on a fixed interval
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	cron     *cron.Cron
	logger   zerolog.Logger
}

// NewSweeper creates a sweeper for the manager
func NewSweeper(manager *Manager, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Sweeper{
		manager:  manager,
		interval: interval,
		logger:   logger,
	}
}

// Start schedules the periodic sweep
func (s *Sweeper) Start() error {
	if s.cron != nil {
		return fmt.Errorf("sweeper is already running")
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() {
		if err := s.manager.Sweep(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Reclamation sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	c.Start()
	s.cron = c

	s.logger.Info().Dur("interval", s.interval).Msg("Reclamation sweeper started")
	return nil
}

// Stop halts the periodic sweep, waiting for an in-flight sweep to end
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
	s.cron = nil

	s.logger.Info().Msg("Reclamation sweeper stopped")
}
