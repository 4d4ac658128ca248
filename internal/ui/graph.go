package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gravitrone/kgeditor/internal/app"
	"github.com/gravitrone/kgeditor/internal/graph"
	"github.com/gravitrone/kgeditor/internal/ui/components"
	"github.com/gravitrone/kgeditor/internal/views"
)

type graphFetchedMsg struct {
	id  string
	err error
}

// GraphModel shows the neighbor graph of the routed instance as a list of
// type groups and the links between visible vertices.
type GraphModel struct {
	ctx    context.Context
	ctrl   *app.Controller
	width  int
	id     string
	cursor int
}

// NewGraphModel builds the graph screen over ctrl's explorer.
func NewGraphModel(ctx context.Context, ctrl *app.Controller) GraphModel {
	return GraphModel{ctx: ctx, ctrl: ctrl}
}

// Show points the model at id and fetches its neighbors unless they are
// loaded or loading already.
func (m GraphModel) Show(id string) (GraphModel, tea.Cmd) {
	st := m.ctrl.Graph.State()
	if id == m.id && (st.IsFetching || (st.IsFetched && st.MainID == id) || st.FetchError != nil) {
		return m, nil
	}
	m.id = id
	m.cursor = 0
	return m, m.fetchCmd()
}

func (m GraphModel) fetchCmd() tea.Cmd {
	ctx, explorer, id := m.ctx, m.ctrl.Graph, m.id
	return func() tea.Msg {
		return graphFetchedMsg{id: id, err: explorer.Fetch(ctx, id)}
	}
}

func (m GraphModel) Update(msg tea.Msg) (GraphModel, tea.Cmd) {
	switch msg := msg.(type) {
	case graphFetchedMsg:
		if msg.id == m.id {
			m.cursor = min(m.cursor, max(len(m.ctrl.Graph.GroupsList())-1, 0))
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m GraphModel) handleKey(msg tea.KeyMsg) (GraphModel, tea.Cmd) {
	explorer := m.ctrl.Graph
	groups := explorer.GroupsList()

	switch {
	case isKey(msg, "R"):
		return m, m.fetchCmd()
	case isBack(msg):
		ctx, ctrl, id := m.ctx, m.ctrl, m.id
		return m, func() tea.Msg {
			return actionDoneMsg{err: ctrl.SetMode(ctx, id, views.ModeView)}
		}
	case isUp(msg):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case isDown(msg):
		if m.cursor < len(groups)-1 {
			m.cursor++
		}
		return m, nil
	}

	if m.cursor < 0 || m.cursor >= len(groups) {
		return m, nil
	}
	g := groups[m.cursor]
	switch {
	case isSpace(msg):
		explorer.SetGroupVisibility(g.ID, !g.Show)
	case isKey(msg, "c"):
		explorer.SetGrouping(g.ID, !g.Grouped)
	case isEnter(msg):
		target := graph.Endpoint{ID: g.ID, IsGroup: true}
		current, on := explorer.Highlighted()
		explorer.HighlightConnections(target, !on || current != target)
	}
	return m, nil
}

func (m GraphModel) View() string {
	st := m.ctrl.Graph.State()
	switch {
	case st.FetchError != nil:
		return components.ErrorBox("Graph", st.FetchError.Error()+"\n\nR: retry", m.width)
	case st.IsFetching || !st.IsFetched || st.MainID != m.id:
		return components.TitledBox("Graph", MutedStyle.Render("Loading neighbors..."), m.width)
	}

	groups := m.ctrl.Graph.GroupsList()
	if len(groups) == 0 {
		return components.TitledBox("Graph", MutedStyle.Render("No neighbors."), m.width)
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderGroups(groups), "", m.renderLinks())
}

func (m GraphModel) renderGroups(groups []graph.Group) string {
	tableWidth := components.BoxContentWidth(m.width)
	if tableWidth <= 0 {
		tableWidth = 72
	}
	cols := []components.TableColumn{
		{Header: "Shown", Width: 7},
		{Header: "Type", Width: max(tableWidth/3, 14)},
		{Header: "Nodes", Width: 7, Align: lipgloss.Right},
		{Header: "Grouped", Width: 8},
	}
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		shown := "[ ]"
		if g.Show {
			shown = "[x]"
		}
		grouped := ""
		if g.Grouped {
			grouped = "yes"
		}
		name := components.SanitizeOneLine(g.Name)
		if g.Highlighted {
			name = "* " + name
		}
		rows = append(rows, []string{shown, name, fmt.Sprintf("%d", len(g.NodeIDs)), grouped})
	}
	grid := components.TableGridWithActiveRow(cols, rows, tableWidth, m.cursor)
	return components.TitledBox("Types", grid, m.width)
}

func (m GraphModel) renderLinks() string {
	data := m.ctrl.Graph.Data()
	names := make(map[string]graph.Vertex, len(data.Vertices))
	for _, v := range data.Vertices {
		names[v.ID] = v
	}
	label := func(e graph.Endpoint) string {
		v, ok := names[e.ID]
		if !ok {
			return e.ID
		}
		name := components.SanitizeOneLine(v.Name)
		if v.IsGroup {
			name = fmt.Sprintf("[%s ×%d]", name, v.Size)
		}
		if v.IsMain {
			name = SelectedStyle.Render(name)
		}
		return name
	}

	if len(data.Links) == 0 {
		return components.TitledBox("Links", MutedStyle.Render("No visible links."), m.width)
	}
	lines := make([]string, 0, len(data.Links))
	for _, l := range data.Links {
		line := label(l.Source) + MutedStyle.Render(" → ") + label(l.Target)
		if l.Highlighted {
			line = AccentStyle.Render("● ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	title := fmt.Sprintf("Links (%d vertices)", len(data.Vertices))
	return components.TitledBox(title, strings.Join(lines, "\n"), m.width)
}

// Hints lists the graph keys.
func (m GraphModel) Hints() []string {
	return []string{
		components.Hint("↑/↓", "Types"),
		components.Hint("space", "Show/Hide"),
		components.Hint("c", "Group"),
		components.Hint("enter", "Highlight"),
		components.Hint("R", "Reload"),
		components.Hint("esc", "Back"),
	}
}
