package thread

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salim/tukang/pkg/agent"
)

func runOnce(t *testing.T, f *managerFixture, threadID string) string {
	t.Helper()

	f.runner.RunFunc = func(ctx context.Context, task agent.Task) (agent.Result, error) {
		return agent.Result{Text: "ok"}, nil
	}
	_, err := f.manager.Handle(context.Background(), threadID, "task")
	require.NoError(t, err)

	rec, ok := f.manager.Registry().Get(threadID)
	require.True(t, ok)
	return rec.WorktreePath
}

func backdate(t *testing.T, f *managerFixture, threadID string, age time.Duration) {
	t.Helper()

	rec, ok := f.manager.Registry().Get(threadID)
	require.True(t, ok)
	rec.LastActiveAt = time.Now().Add(-age)
	f.manager.Registry().Upsert(rec)
}

func TestSweep_RemovesStaleIdleThread(t *testing.T) {
	f := newManagerFixture(t, Options{StaleAfter: 24 * time.Hour})
	ctx := context.Background()

	path := runOnce(t, f, "a")
	backdate(t, f, "a", 25*time.Hour)

	require.NoError(t, f.manager.Sweep(ctx))

	_, tracked := f.manager.Registry().Get("a")
	assert.False(t, tracked)
	assert.NoDirExists(t, path)
	assert.GreaterOrEqual(t, f.backend.PruneCalls(), 1)
}

func TestSweep_RetainsFreshThread(t *testing.T) {
	f := newManagerFixture(t, Options{StaleAfter: 24 * time.Hour})
	ctx := context.Background()

	path := runOnce(t, f, "a")
	backdate(t, f, "a", time.Hour)

	require.NoError(t, f.manager.Sweep(ctx))

	_, tracked := f.manager.Registry().Get("a")
	assert.True(t, tracked)
	assert.DirExists(t, path)
}

func TestSweep_NeverRemovesBusyThread(t *testing.T) {
	f := newManagerFixture(t, Options{StaleAfter: 24 * time.Hour})
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	f.runner.RunFunc = func(ctx context.Context, task agent.Task) (agent.Result, error) {
		close(started)
		<-release
		return agent.Result{Text: "ok"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Handle(ctx, "a", "task")
		done <- err
	}()
	<-started

	// Even a record idle past the threshold stays while the guard is
	// busy
	backdate(t, f, "a", 48*time.Hour)
	require.NoError(t, f.manager.Sweep(ctx))

	rec, tracked := f.manager.Registry().Get("a")
	require.True(t, tracked)
	assert.DirExists(t, rec.WorktreePath)

	close(release)
	require.NoError(t, <-done)
}

func TestSweep_RemovesOrphanedWorktrees(t *testing.T) {
	f := newManagerFixture(t, Options{})
	ctx := context.Background()

	orphan := filepath.Join(f.pool.Root(), "thread-orphan")
	require.NoError(t, f.backend.Add(ctx, orphan, "main"))

	require.NoError(t, f.manager.Sweep(ctx))

	assert.NoDirExists(t, orphan)
	paths, err := f.pool.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestSweep_OneFailureDoesNotAbortTheBatch(t *testing.T) {
	f := newManagerFixture(t, Options{StaleAfter: 24 * time.Hour})
	ctx := context.Background()

	pathA := runOnce(t, f, "a")
	pathB := runOnce(t, f, "b")
	backdate(t, f, "a", 48*time.Hour)
	backdate(t, f, "b", 48*time.Hour)

	f.backend.RemoveErr[pathA] = errors.New("worktree locked")

	require.NoError(t, f.manager.Sweep(ctx))

	// "a" failed and is skipped; "b" is still reclaimed
	_, trackedA := f.manager.Registry().Get("a")
	assert.True(t, trackedA)
	assert.DirExists(t, pathA)

	_, trackedB := f.manager.Registry().Get("b")
	assert.False(t, trackedB)
	assert.NoDirExists(t, pathB)

	// Metadata prune still ran after the partial failure
	assert.GreaterOrEqual(t, f.backend.PruneCalls(), 1)
}

func TestReconcileStartup_RemovesEverything(t *testing.T) {
	f := newManagerFixture(t, Options{})
	ctx := context.Background()

	// Worktrees left by a previous process run
	for _, name := range []string{"thread-old1", "thread-old2", "thread-old3"} {
		require.NoError(t, f.backend.Add(ctx, filepath.Join(f.pool.Root(), name), "main"))
	}

	require.NoError(t, f.manager.ReconcileStartup(ctx))

	paths, err := f.pool.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.GreaterOrEqual(t, f.backend.PruneCalls(), 1)
}

func TestReconcileStartup_FailureIsFatal(t *testing.T) {
	f := newManagerFixture(t, Options{})
	ctx := context.Background()

	leftover := filepath.Join(f.pool.Root(), "thread-old")
	require.NoError(t, f.backend.Add(ctx, leftover, "main"))
	f.backend.RemoveErr[leftover] = errors.New("permission denied")

	assert.Error(t, f.manager.ReconcileStartup(ctx))
}

func TestSweeper_StartStop(t *testing.T) {
	f := newManagerFixture(t, Options{})

	s := NewSweeper(f.manager, time.Minute, f.manager.logger)
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	s.Stop()
	require.NoError(t, s.Start())
	s.Stop()
}
