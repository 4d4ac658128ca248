package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gravitrone/kgeditor/internal/api"
	"github.com/gravitrone/kgeditor/internal/config"
	"github.com/gravitrone/kgeditor/internal/nav"
	"github.com/gravitrone/kgeditor/internal/store"
	"github.com/gravitrone/kgeditor/internal/views"
)

// --- Opening and closing ---

// OpenInstance registers a view of id, navigates to it and queues the fetch
// of its record.
func (c *Controller) OpenInstance(ctx context.Context, id, name string, typ api.InstanceType, mode views.Mode) error {
	c.Views.Open(views.View{InstanceID: id, Name: name, PrimaryType: typ, Mode: mode})
	c.Router.Push(nav.InstancePath(mode, id))

	var errs []error
	if mode != views.ModeCreate {
		c.Store.Fetch(id, false)
		errs = append(errs, c.History.Update(ctx, id, config.EventViewed))
	}
	errs = append(errs, c.Views.Sync(ctx))
	return errors.Join(errs...)
}

// SetMode switches an open view to mode and navigates to it.
func (c *Controller) SetMode(ctx context.Context, id string, mode views.Mode) error {
	if !c.Views.SetMode(id, mode) {
		return nil
	}
	c.Views.Focus(id)
	c.Router.Push(nav.InstancePath(mode, id))
	return c.Views.Sync(ctx)
}

// CloseInstance closes the view of id. When it was displayed, the
// neighboring view is shown instead, or the browser when none is left.
func (c *Controller) CloseInstance(ctx context.Context, id string) error {
	shown := nav.IsInstance(c.Router.Location(), id)
	if shown {
		c.Views.Focus(id)
	}
	c.Store.ForgetIDAvailability(id)
	next := c.Views.Close(id)

	if shown {
		if v, ok := c.Views.Get(next); ok {
			c.Router.Push(nav.InstancePath(v.Mode, v.InstanceID))
		} else {
			c.Router.Push(nav.Browse)
		}
	}
	return c.Views.Sync(ctx)
}

// CloseAllInstances closes every view.
func (c *Controller) CloseAllInstances(ctx context.Context) error {
	c.Store.ResetIDAvailability()
	c.leaveInstanceRoute()
	return c.Views.CloseAll(ctx)
}

// clearViews closes every view but keeps the stored list.
func (c *Controller) clearViews() {
	c.Store.ResetIDAvailability()
	c.leaveInstanceRoute()
	c.Views.Clear()
}

func (c *Controller) leaveInstanceRoute() {
	if !nav.IsBrowseLike(c.Router.Location()) {
		c.Router.Push(nav.Browse)
	}
}

// FocusNext shows the view after the displayed one, wrapping around. With
// fewer than two views it goes back to the browser.
func (c *Controller) FocusNext() string {
	return c.focus(1)
}

// FocusPrevious shows the view before the displayed one, wrapping around.
func (c *Controller) FocusPrevious() string {
	return c.focus(-1)
}

func (c *Controller) focus(step int) string {
	ids := c.Views.IDs()
	if len(ids) < 2 {
		c.Router.Push(nav.Browse)
		return ""
	}

	var next string
	if _, cur, ok := nav.MatchInstance(c.Router.Location()); ok && c.Views.Focus(cur) {
		if step > 0 {
			next = c.Views.FocusNext()
		} else {
			next = c.Views.FocusPrevious()
		}
	} else {
		next = ids[0]
		if step < 0 {
			next = ids[len(ids)-1]
		}
		c.Views.Focus(next)
	}

	v, _ := c.Views.Get(next)
	c.Router.Push(nav.InstancePath(v.Mode, next))
	return next
}

// SyncInstanceHistory records event for id while it is open.
func (c *Controller) SyncInstanceHistory(ctx context.Context, id, event string) error {
	if !c.Views.Has(id) {
		return nil
	}
	return c.History.Update(ctx, id, event)
}

// RecentInstanceIDs returns the history filtered by the history settings.
func (c *Controller) RecentInstanceIDs() []string {
	return c.History.IDs(c.cfg.History.EventTypes, c.cfg.History.Size)
}

// --- Creating ---

// CreateInstance navigates to the creation route of a fresh id.
func (c *Controller) CreateInstance() string {
	id := c.newID()
	c.Router.Push(nav.InstancePath(views.ModeCreate, id))
	return id
}

// StartNewInstance caches an unsaved instance of the workspace type
// typeName under id and opens it for creation.
func (c *Controller) StartNewInstance(ctx context.Context, id, typeName, name string) (store.Instance, error) {
	w, ok := c.Workspace()
	if !ok {
		return store.Instance{}, fmt.Errorf("create instance: no workspace selected")
	}
	typ, ok := c.Type(typeName)
	if !ok {
		return store.Instance{}, fmt.Errorf("create instance: unknown type %q in workspace %s", typeName, w.ID)
	}
	inst := c.Store.CreateNewInstance(store.NewInstance{
		Type:        typ,
		ID:          id,
		Name:        name,
		Workspace:   w.ID,
		Permissions: w.Permissions,
	})
	return inst, c.OpenInstance(ctx, id, inst.Name(), typ.InstanceType(), views.ModeCreate)
}

// --- Saving ---

// SaveInstance saves id. After the first save of a new instance its view
// switches to edit mode, under the server id when one was assigned, and the
// creation route is remembered for ReplaceResolvedPath.
func (c *Controller) SaveInstance(ctx context.Context, id string) (string, error) {
	inst, ok := c.Store.Get(id)
	isNew := ok && inst.IsNew

	newID, err := c.Store.Save(ctx, id)
	if err == nil && isNew {
		created := nav.InstancePath(views.ModeCreate, id)
		if newID != id {
			c.Views.Replace(id, newID, views.ModeEdit)
		} else {
			c.Views.SetMode(id, views.ModeEdit)
		}
		c.mu.Lock()
		c.pathsToResolve[created] = nav.InstancePath(views.ModeEdit, newID)
		c.mu.Unlock()
		if serr := c.Views.Sync(ctx); serr != nil {
			c.logger.Warn("store views", "error", serr)
		}
	}

	recorded := id
	if err == nil {
		recorded = newID
	}
	if herr := c.History.Update(ctx, recorded, config.EventEdited); herr != nil {
		c.logger.Warn("record history", "id", recorded, "error", herr)
	}
	return newID, err
}

// ReplaceResolvedPath swaps a creation route for the route of the saved
// instance. It reports whether path was pending.
func (c *Controller) ReplaceResolvedPath(path string) bool {
	c.mu.Lock()
	target, ok := c.pathsToResolve[path]
	delete(c.pathsToResolve, path)
	c.mu.Unlock()
	if ok {
		c.Router.Replace(target)
	}
	return ok
}

// --- Deleting ---

// DeleteState is the progress of the last delete.
type DeleteState struct {
	InstanceID string
	Deleting   bool
	Err        error
}

// DeleteInstance deletes id on the server, closes its view and clears the
// cache.
func (c *Controller) DeleteInstance(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	c.mu.Lock()
	c.instanceToDelete = id
	c.deleting = true
	c.deleteErr = nil
	c.mu.Unlock()

	if err := c.client.DeleteInstance(ctx, id); err != nil {
		derr := fmt.Errorf("failed to delete instance %q: %w", id, err)
		c.mu.Lock()
		c.deleting = false
		c.deleteErr = derr
		c.mu.Unlock()
		c.logger.Warn("delete failed", "id", id, "error", err)
		return derr
	}

	next := ""
	shown := nav.IsInstance(c.Router.Location(), id)
	if shown {
		next = nav.Browse
		ids := c.Views.IDs()
		if i := slices.Index(ids, id); i >= 0 && len(ids) > 1 {
			n := ids[len(ids)-2]
			if i < len(ids)-1 {
				n = ids[i+1]
			}
			v, _ := c.Views.Get(n)
			next = nav.InstancePath(v.Mode, n)
		}
	}

	c.Views.Close(id)
	c.Flush()
	if next != "" {
		c.Router.Push(next)
	}
	c.logger.Info("instance deleted", "id", id)
	return c.Views.Sync(ctx)
}

// RetryDeleteInstance repeats the last failed delete.
func (c *Controller) RetryDeleteInstance(ctx context.Context) error {
	c.mu.Lock()
	id := c.instanceToDelete
	c.mu.Unlock()
	return c.DeleteInstance(ctx, id)
}

// CancelDeleteInstance dismisses the last failed delete.
func (c *Controller) CancelDeleteInstance() {
	c.mu.Lock()
	c.instanceToDelete = ""
	c.deleteErr = nil
	c.mu.Unlock()
}

// DeleteState returns the progress of the last delete.
func (c *Controller) DeleteState() DeleteState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return DeleteState{InstanceID: c.instanceToDelete, Deleting: c.deleting, Err: c.deleteErr}
}

// --- Duplicating ---

// CopySuffix is appended to the label of a duplicated instance.
const CopySuffix = "(Copy)"

// DuplicateInstance creates a copy of the loaded values of fromID under a
// fresh id and opens it for editing.
func (c *Controller) DuplicateInstance(ctx context.Context, fromID string) (string, error) {
	src, ok := c.Store.Get(fromID)
	if !ok || src.Data == nil {
		return "", fmt.Errorf("duplicate %s: %w", fromID, store.ErrNotLoaded)
	}

	values := make(map[string]any, len(src.Data.Fields)+1)
	for key, field := range src.Data.Fields {
		values[key] = field.Value
	}
	delete(values, "id")
	delete(values, "@id")
	if lf := src.Data.LabelField; lf != "" {
		label, _ := values[lf].(string)
		if label != "" {
			label += " "
		}
		values[lf] = label + CopySuffix
	}
	typeNames := make([]string, len(src.Data.Types))
	for i, t := range src.Data.Types {
		typeNames[i] = t.Name
	}
	values["@type"] = typeNames

	c.mu.Lock()
	c.creating = true
	c.creationErr = nil
	c.mu.Unlock()

	data, err := c.client.CreateInstance(ctx, src.Data.Workspace, c.newID(), values)

	c.mu.Lock()
	c.creating = false
	if err != nil {
		c.creationErr = fmt.Errorf("duplicate %s: %w", fromID, err)
		err = c.creationErr
	}
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	if data == nil || data.ID == "" {
		return "", fmt.Errorf("duplicate %s: no instance returned", fromID)
	}

	inst := c.Store.Seed(data)
	return data.ID, c.OpenInstance(ctx, data.ID, inst.Name(), inst.PrimaryType(), views.ModeEdit)
}

// CreationState reports whether a duplicate is being created and the last
// creation error.
func (c *Controller) CreationState() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creating, c.creationErr
}
