package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitrone/kgeditor/internal/state"
)

func newTestHistory(t *testing.T) (*History, *state.Store) {
	t.Helper()
	db, err := state.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := New(db, nil)
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return h, db
}

var allEvents = map[string]bool{"viewed": true, "edited": true, "bookmarked": true, "released": true}

func TestUpdateWithoutWorkspaceIsNoop(t *testing.T) {
	h, _ := newTestHistory(t)
	require.NoError(t, h.Update(context.Background(), "a", "viewed"))
	assert.Empty(t, h.Entries())
}

func TestUpdateMovesExistingEntryToFront(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t)
	require.NoError(t, h.Load(ctx, "ws"))

	require.NoError(t, h.Update(ctx, "a", "viewed"))
	require.NoError(t, h.Update(ctx, "b", "viewed"))
	require.NoError(t, h.Update(ctx, "a", "viewed"))

	entries := h.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].InstanceID)
	assert.Equal(t, "b", entries[1].InstanceID)
	assert.Equal(t, "ws", entries[0].Workspace)
	assert.True(t, entries[0].Time.After(entries[1].Time))
}

func TestSameInstanceDifferentEvents(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t)
	require.NoError(t, h.Load(ctx, "ws"))

	require.NoError(t, h.Update(ctx, "a", "viewed"))
	require.NoError(t, h.Update(ctx, "a", "edited"))
	assert.Len(t, h.Entries(), 2)
	assert.Equal(t, []string{"a"}, h.IDs(allEvents, 10))
}

func TestIDsFiltersByEventAndSize(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t)
	require.NoError(t, h.Load(ctx, "ws"))

	require.NoError(t, h.Update(ctx, "a", "edited"))
	require.NoError(t, h.Update(ctx, "b", "viewed"))
	require.NoError(t, h.Update(ctx, "c", "edited"))
	require.NoError(t, h.Update(ctx, "d", "bookmarked"))

	edited := map[string]bool{"edited": true, "viewed": false}
	assert.Equal(t, []string{"c", "a"}, h.IDs(edited, 10))
	assert.Equal(t, []string{"d", "c"}, h.IDs(allEvents, 2))
}

func TestRemoveForgetsEvent(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t)
	require.NoError(t, h.Load(ctx, "ws"))

	require.NoError(t, h.Update(ctx, "a", "bookmarked"))
	require.NoError(t, h.Remove(ctx, "a", "bookmarked"))
	require.NoError(t, h.Remove(ctx, "missing", "bookmarked"))
	assert.Empty(t, h.Entries())
}

func TestHistoryIsCapped(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t)
	require.NoError(t, h.Load(ctx, "ws"))

	for i := 0; i < MaxEntries+5; i++ {
		require.NoError(t, h.Update(ctx, fmt.Sprintf("id-%d", i), "viewed"))
	}
	entries := h.Entries()
	assert.Len(t, entries, MaxEntries)
	assert.Equal(t, fmt.Sprintf("id-%d", MaxEntries+4), entries[0].InstanceID)
}

func TestHistoryIsPersistedPerWorkspace(t *testing.T) {
	ctx := context.Background()
	h, db := newTestHistory(t)
	require.NoError(t, h.Load(ctx, "ws1"))
	require.NoError(t, h.Update(ctx, "a", "edited"))
	require.NoError(t, h.Load(ctx, "ws2"))
	assert.Empty(t, h.Entries())
	require.NoError(t, h.Update(ctx, "b", "edited"))

	reopened := New(db, nil)
	require.NoError(t, reopened.Load(ctx, "ws1"))
	assert.Equal(t, []string{"a"}, reopened.IDs(allEvents, 10))
	require.NoError(t, reopened.Load(ctx, "ws2"))
	assert.Equal(t, []string{"b"}, reopened.IDs(allEvents, 10))
	assert.Equal(t, "ws2", reopened.Workspace())
}
