package views

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitrone/kgeditor/internal/api"
	"github.com/gravitrone/kgeditor/internal/state"
)

// fakeCache resolves linked ids from a static children map.
type fakeCache struct {
	children map[string][]string
	cached   map[string]bool
}

func newFakeCache(children map[string][]string) *fakeCache {
	c := &fakeCache{children: children, cached: map[string]bool{}}
	for id, kids := range children {
		c.cached[id] = true
		for _, k := range kids {
			c.cached[k] = true
		}
	}
	return c
}

func (c *fakeCache) IDs() []string {
	var ids []string
	for id := range c.cached {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *fakeCache) LinkedIDs(id string) []string {
	seen := map[string]bool{id: true}
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, k := range c.children[cur] {
			if !seen[k] && c.cached[k] {
				seen[k] = true
				stack = append(stack, k)
			}
		}
	}
	var out []string
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (c *fakeCache) Remove(ids ...string) {
	for _, id := range ids {
		delete(c.cached, id)
	}
}

func openAll(r *Registry, ids ...string) {
	for _, id := range ids {
		r.Open(View{InstanceID: id, Name: "name-" + id})
	}
}

func TestOpenFocusesAndUpdatesInPlace(t *testing.T) {
	r := New(nil, nil, nil)
	openAll(r, "a", "b")
	assert.Equal(t, "b", r.Focused())

	r.Open(View{InstanceID: "a", Mode: ModeEdit, PrimaryType: api.InstanceType{Name: "Dataset"}})
	assert.Equal(t, "a", r.Focused())
	assert.Equal(t, []string{"a", "b"}, r.IDs())

	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, ModeEdit, v.Mode)
	assert.Equal(t, "name-a", v.Name, "empty name keeps the previous one")
	assert.Equal(t, "Dataset", v.PrimaryType.Name)
}

func TestCloseRefocusesNextThenPrevious(t *testing.T) {
	r := New(nil, nil, nil)
	openAll(r, "a", "b", "c")

	r.Focus("b")
	assert.Equal(t, "c", r.Close("b"), "next view when one exists")
	assert.Equal(t, "a", r.Close("c"), "previous view when closing the last")
	assert.Equal(t, "", r.Close("a"), "none left")
	assert.Equal(t, 0, r.Len())
}

func TestCloseUnfocusedKeepsFocus(t *testing.T) {
	r := New(nil, nil, nil)
	openAll(r, "a", "b", "c")

	assert.Equal(t, "c", r.Close("a"))
	assert.Equal(t, "c", r.Close("missing"))
}

func TestCloseEvictsOnlyUnreferencedInstances(t *testing.T) {
	cache := newFakeCache(map[string][]string{
		"a": {"x"},
		"b": {"y"},
		"y": {"x"},
	})
	r := New(cache, nil, nil)
	openAll(r, "a", "b")

	r.Close("a")
	assert.Equal(t, []string{"b", "x", "y"}, cache.IDs(), "x stays linked through b -> y -> x")

	r.Close("b")
	assert.Empty(t, cache.IDs())
}

func TestCloseOnlyViewEvictsInstance(t *testing.T) {
	cache := newFakeCache(map[string][]string{"a": nil, "stray": nil})
	r := New(cache, nil, nil)
	openAll(r, "a")

	r.Close("a")
	assert.Empty(t, cache.IDs())
}

func TestFocusRotationWraps(t *testing.T) {
	r := New(nil, nil, nil)
	openAll(r, "a")
	assert.Equal(t, "a", r.FocusNext(), "no-op with one view")

	openAll(r, "b", "c")
	assert.Equal(t, "a", r.FocusNext())
	assert.Equal(t, "b", r.FocusNext())
	assert.Equal(t, "a", r.FocusPrevious())
	assert.Equal(t, "c", r.FocusPrevious())
}

func TestRotationFromNoFocus(t *testing.T) {
	r := New(nil, nil, nil)
	openAll(r, "a", "b", "c")
	r.mu.Lock()
	r.focused = ""
	r.mu.Unlock()

	assert.Equal(t, "a", r.FocusNext())
	r.mu.Lock()
	r.focused = ""
	r.mu.Unlock()
	assert.Equal(t, "c", r.FocusPrevious())
}

func TestReplaceKeepsPositionAndFocus(t *testing.T) {
	r := New(nil, nil, nil)
	r.Open(View{InstanceID: "tmp", Mode: ModeCreate})
	openAll(r, "b")
	r.Focus("tmp")

	require.True(t, r.Replace("tmp", "real", ModeEdit))
	assert.Equal(t, []string{"real", "b"}, r.IDs())
	assert.Equal(t, "real", r.Focused())
	v, _ := r.Get("real")
	assert.Equal(t, ModeEdit, v.Mode)

	assert.False(t, r.Replace("nope", "x", ModeView))
}

func TestSetModeAndName(t *testing.T) {
	r := New(nil, nil, nil)
	openAll(r, "a")

	assert.True(t, r.SetMode("a", ModeGraph))
	assert.False(t, r.SetMode("b", ModeGraph))
	r.SetName("a", "Alpha")
	v, _ := r.Get("a")
	assert.Equal(t, ModeGraph, v.Mode)
	assert.Equal(t, "Alpha", v.Name)
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("edit")
	assert.True(t, ok)
	assert.Equal(t, ModeEdit, m)
	_, ok = ParseMode("delete")
	assert.False(t, ok)
	assert.True(t, ModeView.IsReadOnly())
	assert.False(t, ModeCreate.IsReadOnly())
}

func TestSyncRestorePerWorkspace(t *testing.T) {
	db, err := state.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	r := New(nil, db, nil)
	_, err = r.Restore(ctx, "ws1")
	require.NoError(t, err)
	r.Open(View{InstanceID: "a", Name: "A", Mode: ModeEdit})
	r.Open(View{InstanceID: "new", Mode: ModeCreate})
	require.NoError(t, r.Sync(ctx))

	r.Clear()
	restored, err := r.Restore(ctx, "ws2")
	require.NoError(t, err)
	assert.Empty(t, restored)

	restored, err = r.Restore(ctx, "ws1")
	require.NoError(t, err)
	require.Len(t, restored, 1, "create views are not stored")
	assert.Equal(t, View{InstanceID: "a", Name: "A", Mode: ModeEdit}, restored[0])
	assert.Equal(t, []string{"a"}, r.IDs())

	require.NoError(t, r.ForgetStored(ctx))
	r.Clear()
	restored, err = r.Restore(ctx, "ws1")
	require.NoError(t, err)
	assert.Empty(t, restored)
}

func TestCloseAllStoresEmptyList(t *testing.T) {
	db, err := state.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	r := New(nil, db, nil)
	_, _ = r.Restore(ctx, "ws")
	openAll(r, "a", "b")
	require.NoError(t, r.Sync(ctx))
	require.NoError(t, r.CloseAll(ctx))

	restored, err := r.Restore(ctx, "ws")
	require.NoError(t, err)
	assert.Empty(t, restored)
	assert.Equal(t, "", r.Focused())
}
