package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gravitrone/kgeditor/internal/api"
	"github.com/gravitrone/kgeditor/internal/app"
	"github.com/gravitrone/kgeditor/internal/ui/components"
)

// WorkspacesModel picks the workspace to work in.
type WorkspacesModel struct {
	ctx       context.Context
	ctrl      *app.Controller
	width     int
	filter    textinput.Model
	filtering bool
	list      *components.List
	items     []api.Workspace
}

// NewWorkspacesModel builds the picker over ctrl's session.
func NewWorkspacesModel(ctx context.Context, ctrl *app.Controller) WorkspacesModel {
	ti := textinput.New()
	ti.Placeholder = "filter by id"
	ti.Prompt = "/ "
	ti.CharLimit = 64
	return WorkspacesModel{
		ctx:    ctx,
		ctrl:   ctrl,
		filter: ti,
		list:   components.NewList(12),
	}
}

// Refresh reloads the workspaces matching the filter.
func (m *WorkspacesModel) Refresh() {
	m.items = m.ctrl.Session.FilteredWorkspaces(strings.TrimSpace(m.filter.Value()))
	names := make([]string, len(m.items))
	for i, w := range m.items {
		names[i] = w.DisplayName()
	}
	m.list.Refresh(names)
}

// Capturing reports whether the filter input is focused.
func (m WorkspacesModel) Capturing() bool {
	return m.filtering
}

// Selected returns the workspace under the cursor.
func (m WorkspacesModel) Selected() (api.Workspace, bool) {
	i := m.list.Selected()
	if i < 0 || i >= len(m.items) {
		return api.Workspace{}, false
	}
	return m.items[i], true
}

func (m WorkspacesModel) Update(msg tea.KeyMsg) (WorkspacesModel, tea.Cmd) {
	if m.filtering {
		switch {
		case isEnter(msg), isKey(msg, "down"):
			m.filtering = false
			m.filter.Blur()
			return m, nil
		case isBack(msg):
			m.filtering = false
			m.filter.Blur()
			m.filter.SetValue("")
			m.Refresh()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.Refresh()
		return m, cmd
	}

	switch {
	case isKey(msg, "/", "f"):
		m.filtering = true
		return m, m.filter.Focus()
	case isUp(msg):
		m.list.Up()
	case isDown(msg):
		m.list.Down()
	case isEnter(msg):
		w, ok := m.Selected()
		if !ok {
			return m, nil
		}
		ctx, ctrl := m.ctx, m.ctrl
		return m, func() tea.Msg {
			changed, err := ctrl.SetWorkspace(ctx, w.ID)
			return workspaceSetMsg{changed: changed, err: err}
		}
	}
	return m, nil
}

func (m WorkspacesModel) View() string {
	var b strings.Builder
	greeting := "Choose a workspace"
	if name := m.ctrl.Session.FirstName(); name != "" {
		greeting = "Welcome " + name + ", choose a workspace"
	}
	b.WriteString(MutedStyle.Render(components.SanitizeOneLine(greeting)))
	b.WriteString("\n\n")

	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
	}

	if len(m.items) == 0 {
		if len(m.ctrl.Session.Workspaces()) == 0 {
			b.WriteString(WarningStyle.Render("Your account is not a member of any workspace."))
		} else {
			b.WriteString(MutedStyle.Render("No workspace matches the filter."))
		}
		return components.TitledBox("Workspaces", b.String(), m.width)
	}

	current, _ := m.ctrl.Workspace()
	rows := make([]string, 0, len(m.list.Visible()))
	for i, name := range m.list.Visible() {
		abs := m.list.RelToAbs(i)
		w := m.items[abs]
		line := components.SanitizeOneLine(name)
		if w.Name != "" && w.Name != w.ID {
			line += MutedStyle.Render("  " + components.SanitizeOneLine(w.ID))
		}
		if w.ID == current.ID {
			line += " " + SuccessStyle.Render("(current)")
		}
		if m.list.IsSelected(abs) {
			line = SelectedStyle.Render("› ") + line
		} else {
			line = "  " + line
		}
		rows = append(rows, line)
	}
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, rows...))
	return components.TitledBox("Workspaces", b.String(), m.width)
}

// Hints lists the picker keys.
func (m WorkspacesModel) Hints() []string {
	if m.filtering {
		return []string{
			components.Hint("enter", "Apply"),
			components.Hint("esc", "Clear"),
		}
	}
	return []string{
		components.Hint("↑/↓", "Scroll"),
		components.Hint("enter", "Select"),
		components.Hint("/", "Filter"),
		components.Hint("esc", "Back"),
		components.Hint("q", "Quit"),
	}
}
