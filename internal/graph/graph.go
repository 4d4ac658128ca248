// Package graph turns the neighbor tree of an instance into a graph of
// nodes, type groups and directed links.
package graph

import (
	"cmp"
	"slices"
	"strings"

	"github.com/gravitrone/kgeditor/internal/api"
)

// Defaults for entities without types.
const (
	DefaultTypeName  = "-"
	DefaultTypeLabel = "Unknown"
	DefaultColor     = "white"
)

// Group collects the nodes sharing one type signature. A grouped group is
// drawn as a single node standing in for its members.
type Group struct {
	ID          string
	Name        string
	Color       string
	Types       []api.InstanceType
	NodeIDs     []string
	Show        bool
	Grouped     bool
	Highlighted bool
}

// Node is one entity.
type Node struct {
	ID          string
	Name        string
	Color       string
	GroupID     string
	IsMain      bool
	Highlighted bool
}

// Endpoint is either end of a link: a node or a group.
type Endpoint struct {
	ID      string
	IsGroup bool
}

// Link is a directed edge meaning Source references Target.
type Link struct {
	ID          string
	Source      Endpoint
	Target      Endpoint
	Highlighted bool
}

// Vertex is a visible node or group in rendered graph data.
type Vertex struct {
	ID          string
	Name        string
	Color       string
	IsGroup     bool
	IsMain      bool
	Size        int
	Highlighted bool
}

// Data is the visible part of a graph.
type Data struct {
	Vertices []Vertex
	Links    []Link
}

// Graph is built once from a neighbor tree and then only toggled.
// It is not safe for concurrent use; Explorer guards it.
type Graph struct {
	groups     map[string]*Group
	groupOrder []string
	nodes      map[string]*Node
	links      []*Link
	linkIndex  map[string]*Link
}

// Build walks root depth-first. Outbound children produce parent->child
// links and inbound children child->parent links, for the node and group
// representation of both ends.
func Build(root api.Neighbor) *Graph {
	g := &Graph{
		groups:    make(map[string]*Group),
		nodes:     make(map[string]*Node),
		linkIndex: make(map[string]*Link),
	}
	g.visit(root, nil, nil, false)
	for _, group := range g.groups {
		slices.SortFunc(group.NodeIDs, func(a, b string) int {
			return cmp.Or(cmp.Compare(g.nodes[a].sortKey(), g.nodes[b].sortKey()), cmp.Compare(a, b))
		})
	}
	return g
}

func (g *Graph) visit(n api.Neighbor, parent *Node, parentGroup *Group, inbound bool) {
	group := g.groupFor(n.Types)
	node := g.nodeFor(n.ID, n.Name, group)
	if parent == nil {
		node.IsMain = true
	}

	self := []Endpoint{{ID: node.ID}, {ID: group.ID, IsGroup: true}}
	if parent != nil {
		for _, from := range self {
			g.link(from, Endpoint{ID: parent.ID}, inbound)
		}
	}
	if parentGroup != nil {
		for _, from := range self {
			g.link(from, Endpoint{ID: parentGroup.ID, IsGroup: true}, inbound)
		}
	}

	for _, child := range n.Inbound {
		g.visit(child, node, group, true)
	}
	for _, child := range n.Outbound {
		g.visit(child, node, group, false)
	}
}

// link connects a child endpoint with its parent. The parent references an
// outbound child; an inbound child references the parent.
func (g *Graph) link(child, parent Endpoint, inbound bool) {
	source, target := parent, child
	if inbound {
		source, target = child, parent
	}
	if source == target {
		return
	}
	id := source.ID + "->" + target.ID
	if _, ok := g.linkIndex[id]; ok {
		return
	}
	l := &Link{ID: id, Source: source, Target: target}
	g.linkIndex[id] = l
	g.links = append(g.links, l)
}

func (g *Graph) groupFor(types []api.InstanceType) *Group {
	if len(types) == 0 {
		types = []api.InstanceType{{Name: DefaultTypeName, Label: DefaultTypeLabel}}
	}
	names := make([]string, len(types))
	labels := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name
		labels[i] = cmp.Or(t.Label, t.Name)
	}
	// Key on the sorted names so [A,B] and [B,A] share a group; the name
	// and color keep the order of the first member seen.
	slices.Sort(names)
	id := strings.Join(names, "|")
	if group, ok := g.groups[id]; ok {
		return group
	}
	group := &Group{
		ID:    id,
		Name:  strings.Join(labels, ", "),
		Color: cmp.Or(types[0].Color, DefaultColor),
		Types: slices.Clone(types),
		Show:  true,
	}
	g.groups[id] = group
	g.groupOrder = append(g.groupOrder, id)
	return group
}

func (g *Graph) nodeFor(id, name string, group *Group) *Node {
	if node, ok := g.nodes[id]; ok {
		return node
	}
	node := &Node{ID: id, Name: cmp.Or(name, id), Color: group.Color, GroupID: group.ID}
	g.nodes[id] = node
	group.NodeIDs = append(group.NodeIDs, id)
	// More than one member collapses the group by default.
	if len(group.NodeIDs) > 1 {
		group.Grouped = true
	}
	return node
}

func (n *Node) sortKey() string {
	return cmp.Or(n.Name, n.ID)
}

// --- Queries ---

// Group returns a copy of the group with the given id.
func (g *Graph) Group(id string) (Group, bool) {
	group, ok := g.groups[id]
	if !ok {
		return Group{}, false
	}
	return group.copy(), true
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	node, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *node, true
}

// Links returns every link in discovery order, visible or not.
func (g *Graph) Links() []Link {
	out := make([]Link, len(g.links))
	for i, l := range g.links {
		out[i] = *l
	}
	return out
}

// Groups returns every group sorted by name.
func (g *Graph) Groups() []Group {
	out := make([]Group, 0, len(g.groups))
	for _, id := range g.groupOrder {
		out = append(out, g.groups[id].copy())
	}
	slices.SortStableFunc(out, func(a, b Group) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func (gr *Group) copy() Group {
	out := *gr
	out.Types = slices.Clone(gr.Types)
	out.NodeIDs = slices.Clone(gr.NodeIDs)
	return out
}

// Visible reports whether an endpoint is drawn: a group only while grouped
// and shown, a node only while its group is expanded and shown.
func (g *Graph) Visible(e Endpoint) bool {
	if e.IsGroup {
		group, ok := g.groups[e.ID]
		return ok && group.Grouped && group.Show
	}
	node, ok := g.nodes[e.ID]
	if !ok {
		return false
	}
	group := g.groups[node.GroupID]
	return !group.Grouped && group.Show
}

// Data returns the visible vertices, groups in discovery order, and the
// links whose both ends are visible.
func (g *Graph) Data() Data {
	var data Data
	for _, id := range g.groupOrder {
		group := g.groups[id]
		if !group.Show {
			continue
		}
		if group.Grouped {
			data.Vertices = append(data.Vertices, Vertex{
				ID:          group.ID,
				Name:        group.Name,
				Color:       group.Color,
				IsGroup:     true,
				Size:        len(group.NodeIDs),
				Highlighted: group.Highlighted,
			})
			continue
		}
		for _, nid := range group.NodeIDs {
			node := g.nodes[nid]
			data.Vertices = append(data.Vertices, Vertex{
				ID:          node.ID,
				Name:        node.Name,
				Color:       node.Color,
				IsMain:      node.IsMain,
				Size:        1,
				Highlighted: node.Highlighted,
			})
		}
	}
	for _, l := range g.links {
		if g.Visible(l.Source) && g.Visible(l.Target) {
			data.Links = append(data.Links, *l)
		}
	}
	return data
}

// --- Toggles ---

// SetGroupVisibility shows or hides a group with all its members.
func (g *Graph) SetGroupVisibility(id string, show bool) bool {
	group, ok := g.groups[id]
	if ok {
		group.Show = show
	}
	return ok
}

// SetGrouping collapses or expands a group.
func (g *Graph) SetGrouping(id string, grouped bool) bool {
	group, ok := g.groups[id]
	if ok {
		group.Grouped = grouped
	}
	return ok
}

// HighlightConnections clears every highlight and, when on, highlights the
// endpoint plus its links and their other ends.
func (g *Graph) HighlightConnections(e Endpoint, on bool) {
	for _, node := range g.nodes {
		node.Highlighted = false
	}
	for _, group := range g.groups {
		group.Highlighted = false
	}
	for _, l := range g.links {
		l.Highlighted = false
	}
	if !on {
		return
	}
	g.setHighlighted(e)
	for _, l := range g.links {
		if l.Source == e || l.Target == e {
			l.Highlighted = true
			g.setHighlighted(l.Source)
			g.setHighlighted(l.Target)
		}
	}
}

func (g *Graph) setHighlighted(e Endpoint) {
	if e.IsGroup {
		if group, ok := g.groups[e.ID]; ok {
			group.Highlighted = true
		}
		return
	}
	if node, ok := g.nodes[e.ID]; ok {
		node.Highlighted = true
	}
}
