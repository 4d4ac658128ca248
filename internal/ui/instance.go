package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gravitrone/kgeditor/internal/api"
	"github.com/gravitrone/kgeditor/internal/app"
	"github.com/gravitrone/kgeditor/internal/store"
	"github.com/gravitrone/kgeditor/internal/ui/components"
	"github.com/gravitrone/kgeditor/internal/views"
)

// InstanceModel shows the routed instance in view, edit, create or raw mode.
type InstanceModel struct {
	ctx   context.Context
	ctrl  *app.Controller
	width int

	id     string
	mode   views.Mode
	cursor int

	editing       bool
	editKey       string
	input         textinput.Model
	inputErr      string
	confirmDelete bool
}

// NewInstanceModel builds the instance screen over ctrl.
func NewInstanceModel(ctx context.Context, ctrl *app.Controller) InstanceModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 4096
	return InstanceModel{ctx: ctx, ctrl: ctrl, input: ti}
}

// Show points the model at id. Moving to another instance resets the
// cursor and any pending prompt.
func (m InstanceModel) Show(id string, mode views.Mode) InstanceModel {
	if id != m.id {
		m.cursor = 0
		m.editing = false
		m.confirmDelete = false
		m.inputErr = ""
		m.input.Blur()
	}
	m.id = id
	m.mode = mode
	if mode.IsReadOnly() && m.editing {
		m.editing = false
		m.input.Blur()
	}
	return m
}

func (m InstanceModel) instance() (store.Instance, bool) {
	return m.ctrl.Store.Get(m.id)
}

func (m InstanceModel) fieldKeys() []string {
	inst, ok := m.instance()
	if !ok || inst.Data == nil {
		return nil
	}
	return inst.Data.FieldKeys()
}

func (m InstanceModel) currentField() (string, api.Field, bool) {
	inst, ok := m.instance()
	if !ok || inst.Data == nil {
		return "", api.Field{}, false
	}
	keys := inst.Data.FieldKeys()
	if m.cursor < 0 || m.cursor >= len(keys) {
		return "", api.Field{}, false
	}
	key := keys[m.cursor]
	return key, inst.Data.Fields[key], true
}

// Capturing reports whether a prompt or an input owns the keyboard.
func (m InstanceModel) Capturing() bool {
	if m.editing || m.confirmDelete {
		return true
	}
	inst, _ := m.instance()
	if inst.CancelChangesPending {
		return true
	}
	ds := m.ctrl.DeleteState()
	return ds.InstanceID == m.id && (ds.Deleting || ds.Err != nil)
}

func (m InstanceModel) Update(msg tea.KeyMsg) (InstanceModel, tea.Cmd) {
	inst, _ := m.instance()

	if ds := m.ctrl.DeleteState(); ds.InstanceID == m.id && ds.Err != nil {
		switch {
		case isKey(msg, "R"):
			return m, m.deleteCmd(true)
		case isBack(msg):
			m.ctrl.CancelDeleteInstance()
		}
		return m, nil
	}
	if m.confirmDelete {
		switch {
		case isKey(msg, "y"):
			m.confirmDelete = false
			return m, m.deleteCmd(false)
		case isKey(msg, "n"), isBack(msg):
			m.confirmDelete = false
		}
		return m, nil
	}
	if inst.CancelChangesPending {
		switch {
		case isKey(msg, "y"):
			m.ctrl.Store.CancelChanges(m.id)
		case isKey(msg, "n"), isBack(msg):
			m.ctrl.Store.AbortCancelChanges(m.id)
		}
		return m, nil
	}
	if m.editing {
		return m.updateInput(msg)
	}
	if inst.SaveErr != nil && isBack(msg) {
		m.ctrl.Store.ClearSaveError(m.id)
		return m, nil
	}

	keys := m.fieldKeys()
	switch {
	case isUp(msg):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case isDown(msg):
		if m.cursor < len(keys)-1 {
			m.cursor++
		}
		return m, nil
	case isKey(msg, "R"):
		m.ctrl.Store.Fetch(m.id, true)
		return m, nil
	case isKey(msg, "x"):
		ctx, ctrl, id := m.ctx, m.ctrl, m.id
		return m, func() tea.Msg {
			return actionDoneMsg{err: ctrl.CloseInstance(ctx, id)}
		}
	case isKey(msg, "p"):
		if child, ok := m.firstLinked(); ok {
			c, _ := m.ctrl.Store.Get(child)
			m.ctrl.Store.TogglePreview(child, instanceName(c, "", child))
		}
		return m, nil
	case isKey(msg, "d"):
		if m.permissions().CanDelete && !inst.IsNew {
			m.confirmDelete = true
		}
		return m, nil
	case isKey(msg, "D"):
		if inst.Data == nil || inst.IsNew {
			return m, nil
		}
		ctx, ctrl, id := m.ctx, m.ctrl, m.id
		return m, func() tea.Msg {
			_, err := ctrl.DuplicateInstance(ctx, id)
			return actionDoneMsg{toast: "Instance duplicated", err: err}
		}
	}

	if mode, ok := modeForKey(msg); ok && m.mode != views.ModeCreate {
		if mode == views.ModeEdit && !m.permissions().CanWrite {
			return m, func() tea.Msg {
				return errMsg{err: errors.New("you are not allowed to edit this instance")}
			}
		}
		ctx, ctrl, id := m.ctx, m.ctrl, m.id
		return m, func() tea.Msg {
			return actionDoneMsg{err: ctrl.SetMode(ctx, id, mode)}
		}
	}

	if m.mode.IsReadOnly() {
		if isEnter(msg) {
			if child, ok := m.firstLinked(); ok {
				return m, m.openCmd(child)
			}
		}
		return m, nil
	}

	switch {
	case isSave(msg):
		return m, m.saveCmd()
	case isBack(msg):
		if inst.Changed {
			m.ctrl.Store.RequestCancelChanges(m.id)
			return m, nil
		}
		if m.mode == views.ModeCreate {
			ctx, ctrl, id := m.ctx, m.ctrl, m.id
			return m, func() tea.Msg {
				return actionDoneMsg{err: ctrl.CloseInstance(ctx, id)}
			}
		}
		ctx, ctrl, id := m.ctx, m.ctrl, m.id
		return m, func() tea.Msg {
			return actionDoneMsg{err: ctrl.SetMode(ctx, id, views.ModeView)}
		}
	case isSpace(msg):
		key, field, ok := m.currentField()
		if ok && !field.ReadOnly {
			if b, isBool := inst.Values[key].(bool); isBool {
				return m, m.setValueCmd(key, !b)
			}
		}
	case isEnter(msg):
		key, field, ok := m.currentField()
		if !ok || field.ReadOnly {
			return m, nil
		}
		m.editing = true
		m.editKey = key
		m.inputErr = ""
		m.input.Placeholder = cmpOr(field.Label, key)
		m.input.SetValue(inputText(field, inst.Values[key]))
		m.input.CursorEnd()
		return m, m.input.Focus()
	}
	return m, nil
}

func (m InstanceModel) updateInput(msg tea.KeyMsg) (InstanceModel, tea.Cmd) {
	switch {
	case isBack(msg):
		m.editing = false
		m.inputErr = ""
		m.input.Blur()
		return m, nil
	case isEnter(msg):
		inst, ok := m.instance()
		if !ok || inst.Data == nil {
			m.editing = false
			return m, nil
		}
		field := inst.Data.Fields[m.editKey]
		value, err := parseFieldInput(field, inst.Values[m.editKey], m.input.Value())
		if err != nil {
			m.inputErr = err.Error()
			return m, nil
		}
		m.editing = false
		m.input.Blur()
		return m, m.setValueCmd(m.editKey, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m InstanceModel) setValueCmd(key string, value any) tea.Cmd {
	ctrl, id := m.ctrl, m.id
	return func() tea.Msg {
		if err := ctrl.Store.SetFieldValue(id, key, value); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m InstanceModel) saveCmd() tea.Cmd {
	ctx, ctrl, id := m.ctx, m.ctrl, m.id
	return func() tea.Msg {
		if _, err := ctrl.SaveInstance(ctx, id); err != nil {
			// Save failures are kept on the record and shown in place.
			if inst, ok := ctrl.Store.Get(id); ok && inst.SaveErr != nil {
				return nil
			}
			return errMsg{err: err}
		}
		ctrl.ReplaceResolvedPath(ctrl.Router.Location())
		return actionDoneMsg{toast: "Instance saved"}
	}
}

func (m InstanceModel) deleteCmd(retry bool) tea.Cmd {
	ctx, ctrl, id := m.ctx, m.ctrl, m.id
	return func() tea.Msg {
		var err error
		if retry {
			err = ctrl.RetryDeleteInstance(ctx)
		} else {
			err = ctrl.DeleteInstance(ctx, id)
		}
		if err != nil {
			// Kept in the delete state and shown in place.
			return nil
		}
		return actionDoneMsg{toast: "Instance deleted"}
	}
}

func (m InstanceModel) openCmd(id string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		inst, _ := ctrl.Store.Get(id)
		return actionDoneMsg{err: ctrl.OpenInstance(ctx, id, instanceName(inst, "", id), inst.PrimaryType(), views.ModeView)}
	}
}

func (m InstanceModel) firstLinked() (string, bool) {
	key, field, ok := m.currentField()
	if !ok || !field.IsLink {
		return "", false
	}
	inst, _ := m.instance()
	ids := store.RefIDs(inst.Values[key])
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

func (m InstanceModel) permissions() api.Permissions {
	inst, ok := m.instance()
	if !ok || inst.Data == nil {
		return api.Permissions{}
	}
	return inst.Data.Permissions
}

// --- Rendering ---

func (m InstanceModel) View() string {
	inst, ok := m.instance()
	if !ok {
		return components.TitledBox("Instance", MutedStyle.Render("Loading..."), m.width)
	}

	if ds := m.ctrl.DeleteState(); ds.InstanceID == m.id {
		switch {
		case ds.Deleting:
			return components.TitledBox("Delete", MutedStyle.Render("Deleting instance..."), m.width)
		case ds.Err != nil:
			return components.ErrorBox("Delete failed", ds.Err.Error()+"\n\nR: retry | esc: cancel", m.width)
		}
	}
	if m.confirmDelete {
		return components.Indent(components.ConfirmDialog("Delete", fmt.Sprintf("Delete %s? This cannot be undone.", instanceName(inst, "", m.id))), 1)
	}
	if inst.CancelChangesPending {
		return components.Indent(components.ConfirmDialog("Discard changes", "Discard the unsaved changes of this instance?"), 1)
	}

	switch {
	case inst.Err != nil && inst.Data == nil:
		msg := inst.Err.Error()
		if inst.Err.Retryable() {
			msg += "\n\nR: retry"
		}
		return components.ErrorBox("Instance unavailable", msg, m.width)
	case inst.Data == nil:
		return components.TitledBox(instanceName(inst, "", m.id), MutedStyle.Render("Loading..."), m.width)
	}

	sections := []string{m.renderHeader(inst)}
	if m.mode == views.ModeRaw {
		sections = append(sections, m.renderRaw(inst))
	} else {
		sections = append(sections, m.renderFields(inst))
	}
	if m.editing {
		input := m.input.View()
		if m.inputErr != "" {
			input += "\n" + ErrorStyle.Render(components.SanitizeOneLine(m.inputErr))
		}
		sections = append(sections, components.InputDialog("Edit "+m.input.Placeholder, input))
	}
	if inst.SaveErr != nil {
		sections = append(sections, components.ErrorBox("Save failed", inst.SaveErr.Error()+"\n\nesc: dismiss", m.width))
	}
	if p, ok := m.ctrl.Store.Preview(); ok {
		sections = append(sections, m.renderPreview(p))
	}
	return strings.Join(sections, "\n\n")
}

func (m InstanceModel) renderHeader(inst store.Instance) string {
	var badges []string
	for _, t := range inst.Data.Types {
		badges = append(badges, typeBadge(cmpOr(t.Label, t.Name), t.Color))
	}
	status := ""
	switch {
	case inst.Saving:
		status = WarningStyle.Render("saving...")
	case inst.IsNew:
		status = AccentStyle.Render("new")
	case inst.Changed:
		status = WarningStyle.Render("unsaved")
	case inst.IsFetching():
		status = MutedStyle.Render("refreshing...")
	}
	rows := []components.TableRow{
		{Label: "ID", Value: inst.ID},
		{Label: "Workspace", Value: inst.Workspace()},
		{Label: "Mode", Value: string(m.mode)},
	}
	head := SelectedStyle.Render(components.SanitizeOneLine(instanceName(inst, "", m.id)))
	if len(badges) > 0 {
		head += "  " + strings.Join(badges, " ")
	}
	if status != "" {
		head += "  " + status
	}
	return head + "\n" + components.Table("", rows, m.width)
}

func (m InstanceModel) renderFields(inst store.Instance) string {
	keys := inst.Data.FieldKeys()
	if len(keys) == 0 {
		return components.TitledBox("Fields", MutedStyle.Render("No fields."), m.width)
	}
	editable := !m.mode.IsReadOnly()
	lines := make([]string, 0, len(keys))
	for i, key := range keys {
		field := inst.Data.Fields[key]
		label := cmpOr(field.Label, key)
		if field.Required && editable {
			label += "*"
		}
		value := m.formatField(field, inst.Values[key])
		if value == "" {
			value = MutedStyle.Render("-")
		}
		line := MetaKeyStyle.Render(components.SanitizeOneLine(label)) + MutedStyle.Render(": ") + MetaValueStyle.Render(value)
		if field.ReadOnly && editable {
			line += MutedStyle.Render(" (read-only)")
		}
		if i == m.cursor {
			line = SelectedStyle.Render("› ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return components.TitledBox("Fields", strings.Join(lines, "\n"), m.width)
}

// formatField renders a value on one line. Links show the names of the
// referenced instances once their labels are in.
func (m InstanceModel) formatField(field api.Field, value any) string {
	if !field.IsLink {
		return components.SanitizeOneLine(components.FormatValue(value))
	}
	ids := store.RefIDs(value)
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		child, _ := m.ctrl.Store.Get(id)
		names = append(names, components.SanitizeOneLine(instanceName(child, "", id)))
	}
	return strings.Join(names, ", ")
}

func (m InstanceModel) renderRaw(inst store.Instance) string {
	raw, err := json.MarshalIndent(inst.Values, "", "  ")
	if err != nil {
		return components.ErrorBox("Raw", err.Error(), m.width)
	}
	out := components.TitledBox("Raw", components.SanitizeText(string(raw)), m.width)
	if meta := components.NestedTable("Metadata", inst.Data.Metadata, m.width); meta != "" {
		out += "\n\n" + meta
	}
	return out
}

func (m InstanceModel) renderPreview(p store.Preview) string {
	inst, ok := m.ctrl.Store.Get(p.ID)
	if !ok || inst.Data == nil {
		if ok && inst.Err != nil {
			return components.ErrorBox("Preview", inst.Err.Error(), m.width)
		}
		m.ctrl.Store.Fetch(p.ID, false)
		return components.TitledBox("Preview", MutedStyle.Render("Loading "+components.SanitizeOneLine(p.Name)+"..."), m.width)
	}
	lines := []string{SelectedStyle.Render("Preview: " + components.SanitizeOneLine(instanceName(inst, p.Name, p.ID)))}
	for _, key := range inst.Data.PromotedFields {
		field, ok := inst.Data.Fields[key]
		if !ok {
			continue
		}
		lines = append(lines, components.InfoRow(cmpOr(field.Label, key), m.formatField(field, inst.Values[key])))
	}
	if len(lines) == 1 {
		lines = append(lines, components.InfoRow("ID", inst.ID))
	}
	return components.ActiveBox(strings.Join(lines, "\n"), m.width)
}

// Hints lists the instance keys for the current mode.
func (m InstanceModel) Hints() []string {
	inst, _ := m.instance()
	ds := m.ctrl.DeleteState()
	switch {
	case ds.InstanceID == m.id && ds.Err != nil:
		return []string{components.Hint("R", "Retry"), components.Hint("esc", "Cancel")}
	case m.confirmDelete, inst.CancelChangesPending:
		return []string{components.Hint("y", "Confirm"), components.Hint("n", "Cancel")}
	case m.editing:
		return []string{components.Hint("enter", "Apply"), components.Hint("esc", "Cancel")}
	}

	hints := []string{components.Hint("↑/↓", "Fields")}
	if m.mode.IsReadOnly() {
		hints = append(hints,
			components.Hint("enter", "Open Link"),
			components.Hint("p", "Preview"),
			components.Hint("e", "Edit"),
			components.Hint("g", "Graph"),
			components.Hint("r", "Raw"),
			components.Hint("D", "Duplicate"),
			components.Hint("d", "Delete"),
		)
	} else {
		hints = append(hints,
			components.Hint("enter", "Edit Field"),
			components.Hint("space", "Toggle"),
			components.Hint("ctrl+s", "Save"),
			components.Hint("esc", "Done"),
		)
	}
	return append(hints, components.Hint("R", "Reload"), components.Hint("x", "Close"))
}

// --- Values ---

// instanceName picks the loaded name of inst, then fallback, then id.
func instanceName(inst store.Instance, fallback, id string) string {
	switch {
	case inst.Data != nil && inst.Data.Name != "":
		return inst.Data.Name
	case inst.Label != nil && inst.Label.Name != "":
		return inst.Label.Name
	}
	return cmpOr(fallback, id, inst.ID)
}

// inputText is the editable text of a value.
func inputText(field api.Field, value any) string {
	if field.IsLink {
		return strings.Join(store.RefIDs(value), ", ")
	}
	if list, ok := value.([]any); ok {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, components.FormatValue(item))
		}
		return strings.Join(parts, ", ")
	}
	return components.FormatValue(value)
}

// parseFieldInput converts edited text back to the shape of the previous
// value: numbers stay numbers, lists are comma separated and links become
// {"@id": …} references.
func parseFieldInput(field api.Field, previous any, text string) (any, error) {
	text = strings.TrimSpace(text)
	if field.IsLink {
		var refs []any
		for _, id := range splitList(text) {
			refs = append(refs, map[string]any{"@id": id})
		}
		if _, single := previous.(map[string]any); single {
			if len(refs) > 1 {
				return nil, errors.New("this field links a single instance")
			}
			if len(refs) == 1 {
				return refs[0], nil
			}
			return nil, nil
		}
		return refs, nil
	}

	switch previous.(type) {
	case float64:
		if text == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", text)
		}
		return f, nil
	case bool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("%q is not true or false", text)
		}
		return b, nil
	case []any:
		var items []any
		for _, item := range splitList(text) {
			items = append(items, item)
		}
		return items, nil
	case map[string]any:
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil, fmt.Errorf("invalid JSON object: %w", err)
		}
		return obj, nil
	}
	if text == "" {
		return nil, nil
	}
	return text, nil
}

func splitList(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
