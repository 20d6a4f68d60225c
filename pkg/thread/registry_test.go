package thread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetUpsertRemove(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get("a")
	assert.False(t, ok)

	rec := Record{
		ThreadID:     "a",
		WorktreePath: "/tmp/worktrees/thread-a",
		CreatedAt:    time.Now(),
	}
	r.Upsert(rec)

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, rec.WorktreePath, got.WorktreePath)
	assert.Equal(t, 1, r.Len())

	// Upsert replaces
	rec.ContinuationHandle = "sess-1"
	r.Upsert(rec)
	got, _ = r.Get("a")
	assert.Equal(t, "sess-1", got.ContinuationHandle)
	assert.Equal(t, 1, r.Len())

	r.Remove("a")
	_, ok = r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Record{ThreadID: "a", Branch: "main"})

	got, _ := r.Get("a")
	got.Branch = "mutated"

	again, _ := r.Get("a")
	assert.Equal(t, "main", again.Branch)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Record{ThreadID: "a"})
	r.Upsert(Record{ThreadID: "b"})

	snap := r.Snapshot()
	assert.Len(t, snap, 2)

	// Mutating the snapshot does not touch the registry
	snap[0].ThreadID = "mutated"
	_, ok := r.Get("a")
	okB := false
	if _, found := r.Get("b"); found {
		okB = true
	}
	assert.True(t, ok)
	assert.True(t, okB)
}
