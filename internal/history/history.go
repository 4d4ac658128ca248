// Package history remembers which instances were viewed, edited, bookmarked
// or released, per workspace, most recent first.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gravitrone/kgeditor/internal/logging"
)

// MaxEntries caps the stored history of one workspace.
const MaxEntries = 100

// Entry is one remembered event.
type Entry struct {
	InstanceID string    `json:"id"`
	Workspace  string    `json:"workspace"`
	Event      string    `json:"event"`
	Time       time.Time `json:"time"`
}

// Persister stores the history between runs. *state.Store satisfies it.
type Persister interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Put(ctx context.Context, key string, v any) error
}

// History is the event list of the current workspace.
type History struct {
	persist Persister
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	workspace string
	entries   []Entry
}

// New creates an empty history. persist may be nil.
func New(persist Persister, logger *slog.Logger) *History {
	return &History{
		persist: persist,
		logger:  logging.OrDiscard(logger).With("component", "history"),
		now:     time.Now,
	}
}

func storageKey(workspace string) string {
	return "history/" + workspace
}

// Load switches to workspace and reads its stored entries.
func (h *History) Load(ctx context.Context, workspace string) error {
	var stored []Entry
	if h.persist != nil && workspace != "" {
		if _, err := h.persist.Get(ctx, storageKey(workspace), &stored); err != nil {
			return fmt.Errorf("load history: %w", err)
		}
	}
	if len(stored) > MaxEntries {
		stored = stored[:MaxEntries]
	}

	h.mu.Lock()
	h.workspace = workspace
	h.entries = stored
	h.mu.Unlock()
	return nil
}

// Workspace returns the workspace entries are recorded for.
func (h *History) Workspace() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.workspace
}

// Update records event for id at the front of the list. An earlier entry for
// the same id and event is moved rather than duplicated. Nothing is recorded
// while no workspace is selected.
func (h *History) Update(ctx context.Context, id, event string) error {
	return h.apply(ctx, id, event, false)
}

// Remove forgets event for id.
func (h *History) Remove(ctx context.Context, id, event string) error {
	return h.apply(ctx, id, event, true)
}

func (h *History) apply(ctx context.Context, id, event string, remove bool) error {
	h.mu.Lock()
	if h.workspace == "" || id == "" {
		h.mu.Unlock()
		return nil
	}
	i := slices.IndexFunc(h.entries, func(e Entry) bool {
		return e.InstanceID == id && e.Event == event
	})
	switch {
	case i >= 0:
		h.entries = slices.Delete(h.entries, i, i+1)
	case remove:
		h.mu.Unlock()
		return nil
	case len(h.entries) >= MaxEntries:
		h.entries = h.entries[:MaxEntries-1]
	}
	if !remove {
		entry := Entry{InstanceID: id, Workspace: h.workspace, Event: event, Time: h.now()}
		h.entries = slices.Insert(h.entries, 0, entry)
	}
	workspace := h.workspace
	snapshot := slices.Clone(h.entries)
	h.mu.Unlock()

	h.logger.Debug("history updated", "id", id, "event", event, "removed", remove)
	if h.persist == nil {
		return nil
	}
	if err := h.persist.Put(ctx, storageKey(workspace), snapshot); err != nil {
		return fmt.Errorf("store history: %w", err)
	}
	return nil
}

// Entries returns every entry of the current workspace, newest first.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.entries)
}

// IDs returns up to max distinct instance ids, newest first, whose entries
// have one of the enabled event types.
func (h *History) IDs(eventTypes map[string]bool, max int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ids []string
	seen := make(map[string]bool)
	for _, e := range h.entries {
		if max > 0 && len(ids) >= max {
			break
		}
		if !eventTypes[e.Event] || seen[e.InstanceID] {
			continue
		}
		seen[e.InstanceID] = true
		ids = append(ids, e.InstanceID)
	}
	return ids
}
