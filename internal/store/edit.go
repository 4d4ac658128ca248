package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/gravitrone/kgeditor/internal/api"
)

// NewInstance describes an instance created on the client before its first save.
type NewInstance struct {
	Type        api.StructureOfType
	ID          string
	Name        string
	Workspace   string
	Permissions api.Permissions
}

// Availability is the result of an id availability check.
type Availability struct {
	Checked    bool
	Available  bool
	ResolvedID string
	Err        error
}

// --- Editing ---

// SetFieldValue changes one field value of a loaded instance.
func (s *Store) SetFieldValue(id, key string, value any) error {
	s.mu.Lock()
	inst, ok := s.instances[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("set %s on %s: %w", key, id, ErrNotCached)
	}
	if inst.Data == nil {
		s.mu.Unlock()
		return fmt.Errorf("set %s on %s: %w", key, id, ErrNotLoaded)
	}
	field, ok := inst.Data.Fields[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("set %s on %s: %w", key, id, ErrUnknownField)
	}

	inst.Values[key] = value
	inst.Changed = inst.IsNew || inst.hasEdits()
	var children []string
	if field.IsLink {
		inst.ChildrenIDs = linkIDs(inst.Data.Fields, inst.Values, inst.ID)
		children = s.adoptChildrenLocked(inst)
		s.invalidateLinked()
	}
	s.mu.Unlock()

	for _, child := range children {
		s.FetchLabel(child, false)
	}
	s.emit(Event{Kind: EventUpdated, IDs: []string{id}})
	return nil
}

// CancelChanges restores the loaded values of id.
func (s *Store) CancelChanges(id string) {
	s.update(id, func(inst *Instance) {
		inst.resetValues()
		inst.Changed = false
		inst.CancelChangesPending = false
		inst.SaveErr = nil
		s.invalidateLinked()
	})
}

// RequestCancelChanges marks id as waiting for a cancel confirmation.
func (s *Store) RequestCancelChanges(id string) {
	s.update(id, func(inst *Instance) { inst.CancelChangesPending = true })
}

// AbortCancelChanges withdraws a pending cancel confirmation.
func (s *Store) AbortCancelChanges(id string) {
	s.update(id, func(inst *Instance) { inst.CancelChangesPending = false })
}

// ClearSaveError dismisses the last save error of id.
func (s *Store) ClearSaveError(id string) {
	s.update(id, func(inst *Instance) { inst.SaveErr = nil })
}

func (s *Store) update(id string, fn func(inst *Instance)) {
	s.mu.Lock()
	inst, ok := s.instances[id]
	if ok {
		fn(inst)
	}
	s.mu.Unlock()
	if ok {
		s.emit(Event{Kind: EventUpdated, IDs: []string{id}})
	}
}

// UnsavedInstances returns the changed instances, most recently cached first.
func (s *Store) UnsavedInstances() []Instance {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Instance
	for _, inst := range s.instances {
		if inst.Changed {
			out = append(out, inst.clone())
		}
	}
	slices.SortFunc(out, func(a, b Instance) int { return cmp.Compare(b.seq, a.seq) })
	return out
}

// HasUnsavedChanges reports whether any cached instance has edits.
func (s *Store) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if inst.Changed {
			return true
		}
	}
	return false
}

// ClearUnsavedChanges discards every edit. New instances stop being new.
func (s *Store) ClearUnsavedChanges() {
	s.mu.Lock()
	var ids []string
	for id, inst := range s.instances {
		if !inst.Changed {
			continue
		}
		inst.resetValues()
		inst.Changed = false
		inst.CancelChangesPending = false
		inst.SaveErr = nil
		inst.IsNew = false
		ids = append(ids, id)
	}
	s.invalidateLinked()
	s.mu.Unlock()

	slices.Sort(ids)
	s.emit(Event{Kind: EventUpdated, IDs: ids})
}

// --- Saving ---

// Save creates (when new) or patches id with its current values. It returns
// the id the record is stored under afterwards, which differs from id when
// the server assigned a new one.
func (s *Store) Save(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	inst, ok := s.instances[id]
	switch {
	case !ok:
		s.mu.Unlock()
		return "", fmt.Errorf("save %s: %w", id, ErrNotCached)
	case inst.Data == nil:
		s.mu.Unlock()
		return "", fmt.Errorf("save %s: %w", id, ErrNotLoaded)
	case inst.Saving:
		s.mu.Unlock()
		return "", fmt.Errorf("save %s: %w", id, ErrSaveInProgress)
	}
	inst.Saving = true
	inst.SaveErr = nil
	inst.CancelChangesPending = false
	payload := inst.payload()
	isNew := inst.IsNew
	space := inst.Data.Workspace
	s.mu.Unlock()
	s.emit(Event{Kind: EventUpdated, IDs: []string{id}})

	var data *api.Instance
	var err error
	if isNew {
		data, err = s.source.CreateInstance(ctx, space, id, payload)
	} else {
		data, err = s.source.PatchInstance(ctx, id, payload)
	}

	s.mu.Lock()
	inst, ok = s.instances[id]
	if !ok {
		s.mu.Unlock()
		if err != nil {
			return "", fmt.Errorf("error while saving instance %q: %w", id, err)
		}
		return cmp.Or(data.ID, id), nil
	}
	inst.Saving = false
	if err != nil {
		inst.SaveErr = fmt.Errorf("error while saving instance %q: %w", id, err)
		saveErr := inst.SaveErr
		s.mu.Unlock()
		s.logger.Warn("save failed", "id", id, "new", isNew, "error", err)
		s.emit(Event{Kind: EventUpdated, IDs: []string{id}})
		return "", saveErr
	}

	newID := id
	if data.ID != "" && data.ID != id {
		newID = data.ID
		delete(s.instances, id)
		inst.ID = newID
		s.instances[newID] = inst
	}
	data.ID = newID
	inst.IsNew = false
	inst.generation = s.nextGen()
	inst.initialize(data)
	children := s.adoptChildrenLocked(inst)
	s.invalidateLinked()
	s.mu.Unlock()

	for _, child := range children {
		s.FetchLabel(child, false)
	}
	var events []Event
	if newID != id {
		events = append(events, Event{Kind: EventRekeyed, IDs: []string{newID}, OldID: id})
	}
	events = append(events, Event{Kind: EventSaved, IDs: []string{newID}})
	s.emit(events...)
	return newID, nil
}

// --- Creation ---

// CreateNewInstance caches an unsaved instance of the given type.
func (s *Store) CreateNewInstance(n NewInstance) Instance {
	s.mu.Lock()
	inst := s.createNewLocked(n)
	out := inst.clone()
	s.mu.Unlock()

	s.emit(Event{Kind: EventUpdated, IDs: []string{n.ID}})
	return out
}

func (s *Store) createNewLocked(n NewInstance) *Instance {
	name := n.ID
	if n.Type.LabelField != "" {
		name = n.Name
	}
	fields := make(map[string]api.Field, len(n.Type.Fields))
	maps.Copy(fields, n.Type.Fields)
	data := &api.Instance{
		ID:             n.ID,
		Name:           name,
		Workspace:      n.Workspace,
		Types:          []api.InstanceType{n.Type.InstanceType()},
		LabelField:     n.Type.LabelField,
		Fields:         fields,
		PromotedFields: slices.Clone(n.Type.PromotedFields),
		Metadata:       map[string]any{},
		Permissions:    n.Permissions,
	}

	s.seq++
	inst := &Instance{ID: n.ID, IsNew: true, seq: s.seq}
	inst.generation = s.nextGen()
	inst.initialize(data)
	if n.Type.LabelField != "" {
		if _, ok := fields[n.Type.LabelField]; ok {
			inst.Values[n.Type.LabelField] = n.Name
		}
	}
	s.instances[n.ID] = inst
	s.invalidateLinked()
	return inst
}

// CheckIDAvailability looks n.ID up on the server. An unknown id is
// available and gets a new unsaved instance; an existing one is cached and
// reported through ResolvedID. Concurrent checks of one id share a request.
func (s *Store) CheckIDAvailability(ctx context.Context, n NewInstance) Availability {
	s.mu.Lock()
	if a, ok := s.availability[n.ID]; ok && a.Checked {
		out := *a
		s.mu.Unlock()
		return out
	}
	s.mu.Unlock()

	v, _, _ := s.sf.Do(n.ID, func() (any, error) {
		data, err := s.source.GetInstance(ctx, n.ID)

		s.mu.Lock()
		defer s.mu.Unlock()
		a := Availability{Checked: true}
		switch {
		case err == nil && data != nil && data.ID != "":
			inst := s.getOrCreateLocked(data.ID)
			inst.generation = s.nextGen()
			inst.initialize(data)
			a.ResolvedID = data.ID
		case err == nil:
			a.Err = fmt.Errorf("failed to fetch instance %q (invalid response)", n.ID)
		case api.IsNotFound(err):
			s.createNewLocked(n)
			a.Available = true
		default:
			a.Err = fmt.Errorf("failed to fetch instance %q: %w", n.ID, err)
		}
		s.availability[n.ID] = &a
		return a, nil
	})
	a := v.(Availability)

	ids := []string{n.ID}
	if a.ResolvedID != "" && a.ResolvedID != n.ID {
		ids = append(ids, a.ResolvedID)
	}
	s.emit(Event{Kind: EventUpdated, IDs: ids})
	return a
}

// IDAvailability returns the last check of id.
func (s *Store) IDAvailability(id string) (Availability, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.availability[id]
	if !ok {
		return Availability{}, false
	}
	return *a, true
}

// ResetIDAvailability forgets every availability check.
func (s *Store) ResetIDAvailability() {
	s.mu.Lock()
	clear(s.availability)
	s.mu.Unlock()
}

// ForgetIDAvailability drops the availability check of id.
func (s *Store) ForgetIDAvailability(id string) {
	s.mu.Lock()
	delete(s.availability, id)
	s.mu.Unlock()
}

// Seed caches a full payload fetched outside the queues, replacing any
// record for the same id.
func (s *Store) Seed(data *api.Instance) Instance {
	s.mu.Lock()
	inst := s.getOrCreateLocked(data.ID)
	inst.IsNew = false
	inst.generation = s.nextGen()
	inst.initialize(data)
	children := s.adoptChildrenLocked(inst)
	s.invalidateLinked()
	out := inst.clone()
	s.mu.Unlock()

	for _, child := range children {
		s.FetchLabel(child, false)
	}
	s.emit(Event{Kind: EventFetched, IDs: []string{data.ID}})
	return out
}
