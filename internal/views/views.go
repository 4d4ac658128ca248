// Package views tracks the instances open in the editor, their interaction
// mode and which one has focus.
package views

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gravitrone/kgeditor/internal/api"
	"github.com/gravitrone/kgeditor/internal/logging"
)

// Mode is how an open instance is displayed.
type Mode string

const (
	ModeView   Mode = "view"
	ModeEdit   Mode = "edit"
	ModeCreate Mode = "create"
	ModeGraph  Mode = "graph"
	ModeRaw    Mode = "raw"
)

// Modes lists every valid mode.
var Modes = []Mode{ModeView, ModeEdit, ModeCreate, ModeGraph, ModeRaw}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, bool) {
	m := Mode(s)
	return m, slices.Contains(Modes, m)
}

// IsReadOnly reports whether the mode does not allow editing.
func (m Mode) IsReadOnly() bool {
	return m != ModeEdit && m != ModeCreate
}

// View is one open instance.
type View struct {
	InstanceID  string           `json:"id"`
	Name        string           `json:"name"`
	PrimaryType api.InstanceType `json:"type"`
	Mode        Mode             `json:"mode"`
}

// Cache is the part of the instance store the registry evicts from.
type Cache interface {
	IDs() []string
	LinkedIDs(id string) []string
	Remove(ids ...string)
}

// Persister stores the view list between runs. *state.Store satisfies it.
type Persister interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Put(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}

// Registry is the ordered list of open views.
type Registry struct {
	cache   Cache
	persist Persister
	logger  *slog.Logger

	mu        sync.Mutex
	views     []View
	focused   string
	workspace string
}

// New creates a registry. persist may be nil.
func New(cache Cache, persist Persister, logger *slog.Logger) *Registry {
	return &Registry{
		cache:   cache,
		persist: persist,
		logger:  logging.OrDiscard(logger).With("component", "views"),
	}
}

func storageKey(workspace string) string {
	return "views/" + workspace
}

func (r *Registry) indexLocked(id string) int {
	return slices.IndexFunc(r.views, func(v View) bool { return v.InstanceID == id })
}

// Open adds v, or updates the view already open for its instance, and
// focuses it.
func (r *Registry) Open(v View) {
	if v.Mode == "" {
		v.Mode = ModeView
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexLocked(v.InstanceID); i >= 0 {
		cur := &r.views[i]
		cur.Mode = v.Mode
		if v.Name != "" {
			cur.Name = v.Name
		}
		if v.PrimaryType.Name != "" {
			cur.PrimaryType = v.PrimaryType
		}
	} else {
		r.views = append(r.views, v)
	}
	r.focused = v.InstanceID
}

// Close removes the view of id and evicts every cached instance no longer
// linked from a remaining view. When id had focus, the next view gets it,
// else the previous one, else none. It returns the focused id afterwards.
func (r *Registry) Close(id string) string {
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		focused := r.focused
		r.mu.Unlock()
		return focused
	}
	r.views = slices.Delete(r.views, i, i+1)
	if r.focused == id {
		switch {
		case i < len(r.views):
			r.focused = r.views[i].InstanceID
		case i > 0:
			r.focused = r.views[i-1].InstanceID
		default:
			r.focused = ""
		}
	}
	focused := r.focused
	open := r.idsLocked()
	r.mu.Unlock()

	r.evict(open)
	return focused
}

// evict drops cached instances outside the union of the linked ids of the
// open views. It runs without the registry lock since the cache notifies
// subscribers that may read the registry.
func (r *Registry) evict(open []string) {
	if r.cache == nil {
		return
	}
	keep := make(map[string]bool)
	for _, id := range open {
		for _, linked := range r.cache.LinkedIDs(id) {
			keep[linked] = true
		}
	}
	var evict []string
	for _, id := range r.cache.IDs() {
		if !keep[id] {
			evict = append(evict, id)
		}
	}
	if len(evict) > 0 {
		r.cache.Remove(evict...)
		r.logger.Debug("evicted instances", "count", len(evict))
	}
}

// Clear closes every view without touching the stored list.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.views = nil
	r.focused = ""
	r.mu.Unlock()
	r.evict(nil)
}

// CloseAll closes every view and stores the empty list.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.Clear()
	return r.Sync(ctx)
}

// FocusNext moves focus to the following view, wrapping around.
func (r *Registry) FocusNext() string {
	return r.rotate(1)
}

// FocusPrevious moves focus to the preceding view, wrapping around.
func (r *Registry) FocusPrevious() string {
	return r.rotate(-1)
}

func (r *Registry) rotate(step int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.views)
	if n < 2 {
		return r.focused
	}
	i := r.indexLocked(r.focused)
	switch {
	case i < 0 && step > 0:
		i = 0
	case i < 0:
		i = n - 1
	default:
		i = (i + step + n) % n
	}
	r.focused = r.views[i].InstanceID
	return r.focused
}

// Focus gives focus to an open view.
func (r *Registry) Focus(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(id) < 0 {
		return false
	}
	r.focused = id
	return true
}

// Replace moves the view of oldID to newID with the given mode, keeping its
// position and focus.
func (r *Registry) Replace(oldID, newID string, mode Mode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(oldID)
	if i < 0 {
		return false
	}
	if j := r.indexLocked(newID); j >= 0 && j != i {
		r.views = slices.Delete(r.views, j, j+1)
		if j < i {
			i--
		}
	}
	r.views[i].InstanceID = newID
	r.views[i].Mode = mode
	if r.focused == oldID {
		r.focused = newID
	}
	return true
}

// SetMode changes the mode of an open view.
func (r *Registry) SetMode(id string, mode Mode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return false
	}
	r.views[i].Mode = mode
	return true
}

// SetName updates the display name of an open view.
func (r *Registry) SetName(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(id); i >= 0 && name != "" {
		r.views[i].Name = name
	}
}

// Focused returns the focused instance id, or "".
func (r *Registry) Focused() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.focused
}

// Get returns the view open for id.
func (r *Registry) Get(id string) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.views[i], true
	}
	return View{}, false
}

// Has reports whether id is open.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Views returns the open views in order.
func (r *Registry) Views() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.views)
}

// IDs returns the open instance ids in order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idsLocked()
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, len(r.views))
	for i, v := range r.views {
		ids[i] = v.InstanceID
	}
	return ids
}

// Len returns the number of open views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// --- Persistence ---

// Workspace returns the workspace views are stored under.
func (r *Registry) Workspace() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workspace
}

// Sync stores the open views for the current workspace. Views in create
// mode are not stored.
func (r *Registry) Sync(ctx context.Context) error {
	r.mu.Lock()
	workspace := r.workspace
	stored := make([]View, 0, len(r.views))
	for _, v := range r.views {
		if v.Mode != ModeCreate {
			stored = append(stored, v)
		}
	}
	r.mu.Unlock()

	if r.persist == nil || workspace == "" {
		return nil
	}
	if err := r.persist.Put(ctx, storageKey(workspace), stored); err != nil {
		return fmt.Errorf("store views: %w", err)
	}
	return nil
}

// Restore switches the registry to workspace and reopens the views stored
// for it. Views already open are kept.
func (r *Registry) Restore(ctx context.Context, workspace string) ([]View, error) {
	r.mu.Lock()
	r.workspace = workspace
	r.mu.Unlock()

	if r.persist == nil || workspace == "" {
		return nil, nil
	}
	var stored []View
	if _, err := r.persist.Get(ctx, storageKey(workspace), &stored); err != nil {
		return nil, fmt.Errorf("restore views: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var restored []View
	for _, v := range stored {
		if _, ok := ParseMode(string(v.Mode)); !ok || v.Mode == ModeCreate || v.InstanceID == "" {
			continue
		}
		if r.indexLocked(v.InstanceID) >= 0 {
			continue
		}
		r.views = append(r.views, v)
		restored = append(restored, v)
	}
	r.logger.Debug("restored views", "workspace", workspace, "count", len(restored))
	return restored, nil
}

// ForgetStored deletes the stored views of the current workspace.
func (r *Registry) ForgetStored(ctx context.Context) error {
	workspace := r.Workspace()
	if r.persist == nil || workspace == "" {
		return nil
	}
	if err := r.persist.Delete(ctx, storageKey(workspace)); err != nil {
		return fmt.Errorf("forget views: %w", err)
	}
	return nil
}
