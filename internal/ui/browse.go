package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gravitrone/kgeditor/internal/api"
	"github.com/gravitrone/kgeditor/internal/app"
	"github.com/gravitrone/kgeditor/internal/store"
	"github.com/gravitrone/kgeditor/internal/ui/components"
	"github.com/gravitrone/kgeditor/internal/views"
)

type browseStep int

const (
	browseList browseStep = iota
	browseOpenID
	browseCreateType
	browseCreateName
)

// BrowseModel lists recently used instances and starts new ones.
type BrowseModel struct {
	ctx   context.Context
	ctrl  *app.Controller
	width int
	step  browseStep

	list   *components.List
	recent []string

	input     textinput.Model
	types     []api.StructureOfType
	typeList  *components.List
	typesErr  error
	chosenTyp string
}

// NewBrowseModel builds the browser over ctrl.
func NewBrowseModel(ctx context.Context, ctrl *app.Controller) BrowseModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 256
	return BrowseModel{
		ctx:      ctx,
		ctrl:     ctrl,
		list:     components.NewList(10),
		typeList: components.NewList(10),
		input:    ti,
	}
}

// Refresh reloads the recent instances and queues the labels never
// requested before. Failed labels wait for an explicit reload.
func (m *BrowseModel) Refresh() {
	m.recent = m.ctrl.RecentInstanceIDs()
	for _, id := range m.recent {
		inst, ok := m.ctrl.Store.Get(id)
		if !ok || (inst.Status == store.StatusNotFetched && inst.LabelStatus == store.StatusNotFetched) {
			m.ctrl.Store.FetchLabel(id, false)
		}
	}
	m.list.Refresh(m.recent)
}

// Capturing reports whether a prompt owns the keyboard.
func (m BrowseModel) Capturing() bool {
	return m.step != browseList
}

func (m BrowseModel) Update(msg tea.KeyMsg) (BrowseModel, tea.Cmd) {
	switch m.step {
	case browseOpenID, browseCreateName:
		return m.updateInput(msg)
	case browseCreateType:
		return m.updateTypes(msg)
	}

	switch {
	case isUp(msg):
		m.list.Up()
	case isDown(msg):
		m.list.Down()
	case isEnter(msg):
		if id, ok := m.selected(); ok {
			return m, m.openCmd(id)
		}
	case isKey(msg, "o"):
		m.step = browseOpenID
		m.input.Placeholder = "instance id"
		m.input.SetValue("")
		return m, m.input.Focus()
	case isKey(msg, "n"):
		if !m.ctrl.WorkspacePermissions().CanCreate {
			return m, func() tea.Msg {
				return errMsg{err: fmt.Errorf("you are not allowed to create instances in %s", m.ctrl.WorkspaceName())}
			}
		}
		m.types, m.typesErr = m.ctrl.Types()
		names := make([]string, len(m.types))
		for i, t := range m.types {
			names[i] = cmpOr(t.Label, t.Name)
		}
		m.typeList.SetItems(names)
		m.step = browseCreateType
	case isKey(msg, "R"):
		for _, id := range m.recent {
			m.ctrl.Store.FetchLabel(id, true)
		}
	case isKey(msg, "x"):
		ctx, ctrl := m.ctx, m.ctrl
		return m, func() tea.Msg {
			return actionDoneMsg{toast: "Closed all instances", err: ctrl.CloseAllInstances(ctx)}
		}
	}
	return m, nil
}

func (m BrowseModel) updateTypes(msg tea.KeyMsg) (BrowseModel, tea.Cmd) {
	switch {
	case isBack(msg):
		m.step = browseList
	case isUp(msg):
		m.typeList.Up()
	case isDown(msg):
		m.typeList.Down()
	case isEnter(msg):
		i := m.typeList.Selected()
		if i < 0 || i >= len(m.types) {
			return m, nil
		}
		m.chosenTyp = m.types[i].Name
		m.step = browseCreateName
		m.input.Placeholder = "name"
		m.input.SetValue("")
		return m, m.input.Focus()
	}
	return m, nil
}

func (m BrowseModel) updateInput(msg tea.KeyMsg) (BrowseModel, tea.Cmd) {
	switch {
	case isBack(msg):
		m.step = browseList
		m.input.Blur()
		return m, nil
	case isEnter(msg):
		value := strings.TrimSpace(m.input.Value())
		step := m.step
		m.step = browseList
		m.input.Blur()
		if step == browseOpenID {
			if value == "" {
				return m, nil
			}
			return m, m.openCmd(value)
		}
		return m, m.createCmd(m.chosenTyp, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m BrowseModel) selected() (string, bool) {
	i := m.list.Selected()
	if i < 0 || i >= len(m.recent) {
		return "", false
	}
	return m.recent[i], true
}

func (m BrowseModel) openCmd(id string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		inst, _ := ctrl.Store.Get(id)
		return actionDoneMsg{err: ctrl.OpenInstance(ctx, id, instanceName(inst, "", ""), inst.PrimaryType(), views.ModeView)}
	}
}

func (m BrowseModel) createCmd(typeName, name string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		id := ctrl.CreateInstance()
		_, err := ctrl.StartNewInstance(ctx, id, typeName, name)
		return actionDoneMsg{err: err}
	}
}

func (m BrowseModel) View() string {
	switch m.step {
	case browseOpenID:
		return components.InputDialog("Open instance", m.input.View())
	case browseCreateName:
		return components.InputDialog("New "+m.chosenTyp, m.input.View())
	case browseCreateType:
		return m.renderTypes()
	}
	return m.renderRecent()
}

func (m BrowseModel) renderRecent() string {
	if len(m.recent) == 0 {
		body := MutedStyle.Render("No recent instances.\n\no: open an instance by id | n: create one")
		return components.TitledBox("Recent instances", body, m.width)
	}

	tableWidth := components.BoxContentWidth(m.width)
	if tableWidth <= 0 {
		tableWidth = 72
	}
	cols := []components.TableColumn{
		{Header: "Name", Width: max(tableWidth/3, 12)},
		{Header: "Type", Width: max(tableWidth/5, 10)},
		{Header: "ID", Width: 12},
	}
	visible := m.list.Visible()
	rows := make([][]string, 0, len(visible))
	active := -1
	for i, id := range visible {
		abs := m.list.RelToAbs(i)
		inst, _ := m.ctrl.Store.Get(id)
		name := instanceName(inst, "", id)
		switch {
		case inst.LabelStatus == store.StatusFetching || inst.Status == store.StatusFetching:
			name = "loading..."
		case inst.LabelErr != nil && inst.Label == nil && inst.Data == nil:
			name = "unavailable"
		}
		typ := inst.PrimaryType()
		rows = append(rows, []string{name, cmpOr(typ.Label, typ.Name), id})
		if m.list.IsSelected(abs) {
			active = i
		}
	}
	grid := components.TableGridWithActiveRow(cols, rows, tableWidth, active)
	footer := MutedStyle.Render(fmt.Sprintf("%d of %d", m.list.Selected()+1, len(m.recent)))
	return components.TitledBox("Recent instances", lipgloss.JoinVertical(lipgloss.Left, grid, "", footer), m.width)
}

func (m BrowseModel) renderTypes() string {
	if m.typesErr != nil {
		return components.ErrorBox("Types", m.typesErr.Error(), m.width)
	}
	if len(m.types) == 0 {
		return components.TitledBox("New instance", MutedStyle.Render("This workspace defines no types."), m.width)
	}
	lines := make([]string, 0, len(m.typeList.Visible()))
	for i, label := range m.typeList.Visible() {
		abs := m.typeList.RelToAbs(i)
		badge := typeBadge(label, m.types[abs].Color)
		if m.typeList.IsSelected(abs) {
			lines = append(lines, SelectedStyle.Render("› ")+badge)
		} else {
			lines = append(lines, "  "+badge)
		}
	}
	return components.TitledBox("New instance", strings.Join(lines, "\n"), m.width)
}

// Hints lists the browser keys.
func (m BrowseModel) Hints() []string {
	switch m.step {
	case browseOpenID, browseCreateName:
		return []string{
			components.Hint("enter", "Submit"),
			components.Hint("esc", "Cancel"),
		}
	case browseCreateType:
		return []string{
			components.Hint("↑/↓", "Scroll"),
			components.Hint("enter", "Select"),
			components.Hint("esc", "Back"),
		}
	}
	return []string{
		components.Hint("↑/↓", "Scroll"),
		components.Hint("enter", "Open"),
		components.Hint("o", "Open ID"),
		components.Hint("n", "New"),
		components.Hint("R", "Reload"),
		components.Hint("x", "Close All"),
	}
}
