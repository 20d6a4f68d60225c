package thread

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher observes the worktrees root for out-of-band directory
// removals and prunes the repository's worktree metadata when one is
// detected, so stale bookkeeping does not linger until the next sweep.
type Watcher struct {
	manager *Manager
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  zerolog.Logger
}

// NewWatcher creates a watcher over the manager's worktrees root
func NewWatcher(manager *Manager, logger zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	if err := fsWatcher.Add(manager.pool.Root()); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch worktrees root: %w", err)
	}

	return &Watcher{
		manager: manager,
		watcher: fsWatcher,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
	}, nil
}

// Start begins processing filesystem events
func (w *Watcher) Start() {
	go w.run()
	w.logger.Info().Str("root", w.manager.pool.Root()).Msg("Worktree watcher started")
}

// Stop halts event processing and closes the underlying watcher
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	<-w.doneCh
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasPrefix(filepath.Base(event.Name), "thread-") {
				continue
			}

			w.logger.Warn().
				Str("path", event.Name).
				Msg("Worktree removed out-of-band, pruning metadata")

			if err := w.manager.pool.PruneMetadata(context.Background()); err != nil {
				w.logger.Error().Err(err).Msg("Failed to prune metadata after out-of-band removal")
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Worktree watcher error")

		case <-w.stopCh:
			return
		}
	}
}
