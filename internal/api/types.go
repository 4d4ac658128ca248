package api

import (
	"encoding/json"
	"sort"
)

// --- API Response Envelope ---

type apiResponse[T any] struct {
	Data  T       `json:"data"`
	Error *apiErr `json:"error,omitempty"`
}

type apiErr struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// ItemError is the per-id error carried inside bulk responses.
type ItemError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Result holds one id's share of a bulk response.
type Result[T any] struct {
	Data  *T
	Error *ItemError
}

// --- Instance ---

// InstanceType describes one of the types an instance carries.
type InstanceType struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// Field is one editable property of an instance.
type Field struct {
	Type          string         `json:"type"`
	Label         string         `json:"label"`
	Value         any            `json:"value"`
	IsLink        bool           `json:"isLink,omitempty"`
	Required      bool           `json:"isRequired,omitempty"`
	ReadOnly      bool           `json:"isReadOnly,omitempty"`
	TargetTypes   []InstanceType `json:"targetTypes,omitempty"`
	InstancesPath string         `json:"instancesPath,omitempty"`
}

// Permissions lists what the current user may do with an instance or workspace.
type Permissions struct {
	CanCreate  bool `json:"canCreate"`
	CanRead    bool `json:"canRead"`
	CanWrite   bool `json:"canWrite"`
	CanDelete  bool `json:"canDelete"`
	CanRelease bool `json:"canRelease"`
}

// Instance is the full record of a knowledge-graph instance.
type Instance struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Workspace      string           `json:"space"`
	Types          []InstanceType   `json:"types"`
	LabelField     string           `json:"labelField,omitempty"`
	Fields         map[string]Field `json:"fields"`
	PromotedFields []string         `json:"promotedFields,omitempty"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	Permissions    Permissions      `json:"permissions"`
}

// PrimaryType returns the first type, or the zero value.
func (i Instance) PrimaryType() InstanceType {
	if len(i.Types) == 0 {
		return InstanceType{}
	}
	return i.Types[0]
}

// FieldKeys returns the field keys, promoted fields first then alphabetical.
func (i Instance) FieldKeys() []string {
	keys := make([]string, 0, len(i.Fields))
	seen := make(map[string]bool, len(i.Fields))
	for _, k := range i.PromotedFields {
		if _, ok := i.Fields[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(i.Fields))
	for k := range i.Fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// InstanceLabel is the lightweight label-only payload.
type InstanceLabel struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Workspace string         `json:"space"`
	Types     []InstanceType `json:"types"`
}

// Neighbor is one node of the hierarchical neighbor tree.
type Neighbor struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Space    string         `json:"space,omitempty"`
	Types    []InstanceType `json:"types"`
	Inbound  []Neighbor     `json:"inbound,omitempty"`
	Outbound []Neighbor     `json:"outbound,omitempty"`
}

// StructureOfType is a type definition available in a workspace.
type StructureOfType struct {
	Name           string           `json:"name"`
	Label          string           `json:"label"`
	Color          string           `json:"color,omitempty"`
	LabelField     string           `json:"labelField,omitempty"`
	Fields         map[string]Field `json:"fields"`
	PromotedFields []string         `json:"promotedFields,omitempty"`
}

// InstanceType returns the type header of the structure.
func (s StructureOfType) InstanceType() InstanceType {
	return InstanceType{Name: s.Name, Label: s.Label, Color: s.Color}
}

// --- User ---

// Workspace is a space the user is a member of.
type Workspace struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Permissions Permissions `json:"permissions"`
}

// DisplayName returns the name, or the id when unnamed.
func (w Workspace) DisplayName() string {
	if w.Name != "" {
		return w.Name
	}
	return w.ID
}

// UserProfile is the authenticated user.
type UserProfile struct {
	ID         string      `json:"id"`
	Username   string      `json:"username"`
	Name       string      `json:"name"`
	GivenName  string      `json:"givenName,omitempty"`
	FamilyName string      `json:"familyName,omitempty"`
	Email      string      `json:"email,omitempty"`
	Workspaces []Workspace `json:"spaces"`
}

// Settings is the server bootstrap payload.
type Settings struct {
	Commit     string          `json:"commit"`
	AuthURL    string          `json:"authUrl,omitempty"`
	SentryURL  string          `json:"sentryUrl,omitempty"`
	Extensions json.RawMessage `json:"extensions,omitempty"`
}

// --- Query ---

// QueryParams is a map of URL query parameters.
type QueryParams map[string]string
