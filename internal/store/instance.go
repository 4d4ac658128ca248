package store

import (
	"maps"
	"reflect"
	"slices"

	"github.com/gravitrone/kgeditor/internal/api"
)

// Status is the fetch state of an instance or of its label.
type Status int

const (
	StatusNotFetched Status = iota
	StatusFetching
	StatusFetched
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusNotFetched:
		return "not_fetched"
	case StatusFetching:
		return "fetching"
	case StatusFetched:
		return "fetched"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Instance is the cached client-side record of one knowledge-graph instance.
// Values returned by Store.Get are copies; mutate through Store methods.
type Instance struct {
	ID string

	Status Status
	Err    *FetchError
	Data   *api.Instance

	LabelStatus Status
	LabelErr    *FetchError
	Label       *api.InstanceLabel

	// ChildrenIDs are the instances referenced from link fields.
	ChildrenIDs []string
	// Values holds the current, possibly edited, field values.
	Values map[string]any

	Changed              bool
	IsNew                bool
	Saving               bool
	SaveErr              error
	CancelChangesPending bool

	seq             uint64
	generation      uint64
	labelGeneration uint64
}

// Name returns the best known display name.
func (i Instance) Name() string {
	switch {
	case i.Data != nil && i.Data.Name != "":
		return i.Data.Name
	case i.Label != nil && i.Label.Name != "":
		return i.Label.Name
	default:
		return i.ID
	}
}

// PrimaryType returns the first type from the full or label payload.
func (i Instance) PrimaryType() api.InstanceType {
	if i.Data != nil && len(i.Data.Types) > 0 {
		return i.Data.Types[0]
	}
	if i.Label != nil && len(i.Label.Types) > 0 {
		return i.Label.Types[0]
	}
	return api.InstanceType{}
}

// Workspace returns the workspace the instance lives in, if known.
func (i Instance) Workspace() string {
	if i.Data != nil {
		return i.Data.Workspace
	}
	if i.Label != nil {
		return i.Label.Workspace
	}
	return ""
}

// IsFetched reports whether the full record is loaded.
func (i Instance) IsFetched() bool { return i.Status == StatusFetched }

// IsFetching reports whether a full-record fetch is in flight.
func (i Instance) IsFetching() bool { return i.Status == StatusFetching }

func (i *Instance) clone() Instance {
	out := *i
	out.ChildrenIDs = slices.Clone(i.ChildrenIDs)
	out.Values = maps.Clone(i.Values)
	return out
}

// initialize loads a full payload into the record, discarding edits.
func (i *Instance) initialize(data *api.Instance) {
	i.Data = data
	i.Status = StatusFetched
	i.Err = nil
	i.Values = make(map[string]any, len(data.Fields))
	for key, field := range data.Fields {
		i.Values[key] = field.Value
	}
	i.ChildrenIDs = linkIDs(data.Fields, i.Values, i.ID)
	i.Changed = i.IsNew
	i.SaveErr = nil
	i.CancelChangesPending = false
}

// resetValues restores the field values from the last loaded payload.
func (i *Instance) resetValues() {
	if i.Data == nil {
		return
	}
	for key, field := range i.Data.Fields {
		i.Values[key] = field.Value
	}
	i.ChildrenIDs = linkIDs(i.Data.Fields, i.Values, i.ID)
}

// hasEdits reports whether any value differs from the loaded payload.
func (i *Instance) hasEdits() bool {
	if i.Data == nil {
		return false
	}
	for key, field := range i.Data.Fields {
		if !reflect.DeepEqual(i.Values[key], field.Value) {
			return true
		}
	}
	return false
}

// payload is the body sent on create and patch.
func (i *Instance) payload() map[string]any {
	return maps.Clone(i.Values)
}

// linkIDs collects the ids referenced by link fields, in field-key order.
// Self references are skipped.
func linkIDs(fields map[string]api.Field, values map[string]any, self string) []string {
	keys := make([]string, 0, len(fields))
	for key, field := range fields {
		if field.IsLink {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	seen := map[string]bool{self: true}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, key := range keys {
		for _, id := range RefIDs(values[key]) {
			add(id)
		}
	}
	return ids
}

// RefIDs extracts ids from a link value: a bare id, an {"@id": …} object,
// or a list of either.
func RefIDs(v any) []string {
	switch value := v.(type) {
	case string:
		return []string{value}
	case map[string]any:
		for _, k := range []string{"@id", "id"} {
			if id, ok := value[k].(string); ok {
				return []string{id}
			}
		}
	case []any:
		var out []string
		for _, item := range value {
			out = append(out, RefIDs(item)...)
		}
		return out
	case []string:
		return value
	}
	return nil
}
