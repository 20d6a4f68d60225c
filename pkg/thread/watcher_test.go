package thread

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_PrunesAfterOutOfBandRemoval(t *testing.T) {
	f := newManagerFixture(t, Options{})
	ctx := context.Background()

	path := filepath.Join(f.pool.Root(), "thread-doomed")
	require.NoError(t, f.backend.Add(ctx, path, "main"))

	w, err := NewWatcher(f.manager, zerolog.Nop())
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	before := f.backend.PruneCalls()
	require.NoError(t, os.RemoveAll(path))

	assert.Eventually(t, func() bool {
		return f.backend.PruneCalls() > before
	}, 2*time.Second, 10*time.Millisecond)

	// Prune dropped the stale entry for the deleted directory
	assert.False(t, f.backend.Has(path))
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	f := newManagerFixture(t, Options{})

	w, err := NewWatcher(f.manager, zerolog.Nop())
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	before := f.backend.PruneCalls()

	scratch := filepath.Join(f.pool.Root(), "notes.txt")
	require.NoError(t, os.WriteFile(scratch, []byte("x"), 0644))
	require.NoError(t, os.Remove(scratch))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, before, f.backend.PruneCalls())
}
