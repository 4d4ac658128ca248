package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gravitrone/kgeditor/internal/app"
	"github.com/gravitrone/kgeditor/internal/nav"
	"github.com/gravitrone/kgeditor/internal/store"
	"github.com/gravitrone/kgeditor/internal/ui/components"
	"github.com/gravitrone/kgeditor/internal/views"
)

// --- Messages ---

type errMsg struct{ err error }
type clearToastMsg struct{}
type initDoneMsg struct{ err error }
type progressMsg struct{ text string }
type routeMsg struct{ path string }
type storeEventMsg struct{ event store.Event }

type confirmRequestMsg struct {
	message string
	reply   chan bool
}

// actionDoneMsg reports a controller call run in the background.
type actionDoneMsg struct {
	toast string
	err   error
}

type workspaceSetMsg struct {
	changed bool
	err     error
}

type loggedOutMsg struct {
	done bool
	err  error
}

type appToast struct {
	level string
	text  string
}

// --- App Model ---

// App is the root TUI model. The route of the controller's router picks the
// screen: the browser, an open instance, or the graph of one.
type App struct {
	ctx    context.Context
	ctrl   *app.Controller
	width  int
	height int

	initDone    bool
	picking     bool
	helpOpen    bool
	quitConfirm bool
	prompt      *confirmRequestMsg
	toast       *appToast
	err         string

	workspaces WorkspacesModel
	browse     BrowseModel
	instance   InstanceModel
	graph      GraphModel
}

// NewApp builds the root model over ctrl.
func NewApp(ctx context.Context, ctrl *app.Controller) App {
	return App{
		ctx:        ctx,
		ctrl:       ctrl,
		workspaces: NewWorkspacesModel(ctx, ctrl),
		browse:     NewBrowseModel(ctx, ctrl),
		instance:   NewInstanceModel(ctx, ctrl),
		graph:      NewGraphModel(ctx, ctrl),
	}
}

func (a App) Init() tea.Cmd {
	return a.initCmd()
}

func (a App) initCmd() tea.Cmd {
	ctx, ctrl := a.ctx, a.ctrl
	return func() tea.Msg {
		return initDoneMsg{err: ctrl.Initialize(ctx)}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.workspaces.width = msg.Width
		a.browse.width = msg.Width
		a.instance.width = msg.Width
		a.graph.width = msg.Width
		return a, nil
	case errMsg:
		a.err = msg.err.Error()
		return a, nil
	case clearToastMsg:
		a.toast = nil
		return a, nil
	case progressMsg:
		// Rendered from the controller; the message only redraws.
		return a, nil
	case initDoneMsg:
		a.initDone = true
		if msg.err != nil {
			return a, nil
		}
		a.workspaces.Refresh()
		a.browse.Refresh()
		return a, a.openRouteCmd()
	case confirmRequestMsg:
		a.prompt = &msg
		return a, nil
	case routeMsg, storeEventMsg:
		a.browse.Refresh()
		return a.syncRoute()
	case workspaceSetMsg:
		a.picking = false
		a.workspaces.Refresh()
		a.browse.Refresh()
		if msg.err != nil {
			a.err = fmt.Sprintf("set workspace: %v", msg.err)
			return a, nil
		}
		if msg.changed {
			return a, a.setToast("success", "Workspace: "+a.ctrl.WorkspaceName())
		}
		return a, nil
	case loggedOutMsg:
		if msg.err != nil {
			a.err = fmt.Sprintf("logout: %v", msg.err)
		}
		return a, nil
	case actionDoneMsg:
		if msg.err != nil {
			a.err = msg.err.Error()
			return a, nil
		}
		if msg.toast != "" {
			return a, a.setToast("success", msg.toast)
		}
		return a, nil
	case graphFetchedMsg:
		var cmd tea.Cmd
		a.graph, cmd = a.graph.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.prompt != nil {
		switch {
		case isKey(msg, "y"):
			a.prompt.reply <- true
			a.prompt = nil
		case isKey(msg, "n"), isBack(msg):
			a.prompt.reply <- false
			a.prompt = nil
		}
		return a, nil
	}
	if a.quitConfirm {
		switch {
		case isKey(msg, "y"):
			return a, a.quitCmd()
		case isKey(msg, "n"), isBack(msg):
			a.quitConfirm = false
		}
		return a, nil
	}
	if a.helpOpen {
		if isBack(msg) || isKey(msg, "?") {
			a.helpOpen = false
		}
		return a, nil
	}
	if a.err != "" {
		a.err = ""
	}
	if isKey(msg, "ctrl+c") {
		return a.requestQuit()
	}

	switch a.screen() {
	case screenLoading:
		return a, nil
	case screenInitError:
		switch {
		case isKey(msg, "r"):
			a.initDone = false
			return a, a.initCmd()
		case isQuit(msg):
			return a, tea.Quit
		}
		return a, nil
	case screenInitialInstanceError:
		switch {
		case isBack(msg), isEnter(msg):
			ctx, ctrl := a.ctx, a.ctrl
			return a, func() tea.Msg {
				return workspaceSetMsg{err: ctrl.CancelInitialInstance(ctx)}
			}
		case isQuit(msg):
			return a, tea.Quit
		}
		return a, nil
	case screenLoggedOut:
		if isQuit(msg) || isEnter(msg) {
			return a, tea.Quit
		}
		return a, nil
	case screenWorkspaces:
		if isBack(msg) && a.picking {
			a.picking = false
			return a, nil
		}
		if !a.workspaces.Capturing() && isQuit(msg) {
			return a.requestQuit()
		}
		var cmd tea.Cmd
		a.workspaces, cmd = a.workspaces.Update(msg)
		return a, cmd
	}

	if !a.capturing() {
		switch {
		case isKey(msg, "?"):
			a.helpOpen = true
			return a, nil
		case isQuit(msg):
			return a.requestQuit()
		case isKey(msg, "w"):
			a.picking = true
			a.workspaces.Refresh()
			return a, nil
		case isKey(msg, "t"):
			if err := a.ctrl.ToggleTheme(); err != nil {
				a.err = fmt.Sprintf("save theme: %v", err)
			}
			ApplyTheme(a.ctrl.Theme())
			return a, nil
		case isKey(msg, "L"):
			return a, a.logoutCmd()
		case isKey(msg, "b"):
			a.ctrl.Router.Push(nav.Browse)
			return a.syncRoute()
		case isNextView(msg):
			a.ctrl.FocusNext()
			return a.syncRoute()
		case isPrevView(msg):
			a.ctrl.FocusPrevious()
			return a.syncRoute()
		}
	}

	var cmd tea.Cmd
	switch a.screen() {
	case screenInstance:
		a.instance, cmd = a.instance.Update(msg)
	case screenGraph:
		a.graph, cmd = a.graph.Update(msg)
	default:
		a.browse, cmd = a.browse.Update(msg)
	}
	return a, cmd
}

// capturing reports whether the active screen owns every key.
func (a App) capturing() bool {
	switch a.screen() {
	case screenInstance:
		return a.instance.Capturing()
	case screenBrowse:
		return a.browse.Capturing()
	}
	return false
}

func (a App) requestQuit() (tea.Model, tea.Cmd) {
	if a.ctrl.Store.HasUnsavedChanges() {
		a.quitConfirm = true
		return a, nil
	}
	return a, a.quitCmd()
}

func (a App) quitCmd() tea.Cmd {
	ctx, ctrl := a.ctx, a.ctrl
	return tea.Sequence(func() tea.Msg {
		if err := ctrl.Views.Sync(ctx); err != nil {
			return errMsg{err: fmt.Errorf("store views: %w", err)}
		}
		return nil
	}, tea.Quit)
}

func (a App) logoutCmd() tea.Cmd {
	ctx, ctrl := a.ctx, a.ctrl
	return func() tea.Msg {
		done, err := ctrl.Logout(ctx)
		return loggedOutMsg{done: done, err: err}
	}
}

// openRouteCmd registers a view for the instance named by the start-up
// route. The record itself was cached during initialization.
func (a App) openRouteCmd() tea.Cmd {
	mode, id, ok := nav.MatchInstance(a.ctrl.Router.Location())
	if !ok || mode == views.ModeCreate || a.ctrl.Views.Has(id) {
		return nil
	}
	if _, ok := a.ctrl.Workspace(); !ok {
		return nil
	}
	ctx, ctrl := a.ctx, a.ctrl
	return func() tea.Msg {
		inst, _ := ctrl.Store.Get(id)
		return actionDoneMsg{err: ctrl.OpenInstance(ctx, id, inst.Name(), inst.PrimaryType(), mode)}
	}
}

// syncRoute points the instance and graph screens at the routed instance.
func (a App) syncRoute() (tea.Model, tea.Cmd) {
	mode, id, ok := nav.MatchInstance(a.ctrl.Router.Location())
	if !ok {
		return a, nil
	}
	if mode == views.ModeGraph {
		var cmd tea.Cmd
		a.graph, cmd = a.graph.Show(id)
		return a, cmd
	}
	a.instance = a.instance.Show(id, mode)
	return a, nil
}

// --- Screens ---

type screen int

const (
	screenLoading screen = iota
	screenInitError
	screenInitialInstanceError
	screenLoggedOut
	screenWorkspaces
	screenBrowse
	screenInstance
	screenGraph
)

func (a App) screen() screen {
	loc := a.ctrl.Router.Location()
	switch {
	case loc == nav.Logout:
		return screenLoggedOut
	case !a.initDone:
		return screenLoading
	case a.ctrl.InitializationError() != nil:
		return screenInitError
	case !a.ctrl.IsInitialized() && (a.ctrl.InitialInstanceError() != nil || a.ctrl.InitialInstanceWorkspaceError() != nil):
		return screenInitialInstanceError
	}
	if _, ok := a.ctrl.Workspace(); !ok || a.picking {
		return screenWorkspaces
	}
	if mode, _, ok := nav.MatchInstance(loc); ok {
		if mode == views.ModeGraph {
			return screenGraph
		}
		return screenInstance
	}
	return screenBrowse
}

func (a App) View() string {
	workspace := ""
	if _, ok := a.ctrl.Workspace(); ok {
		workspace = a.ctrl.WorkspaceName()
	}
	banner := centerBlockUniform(RenderBanner(workspace), a.width)

	var content string
	switch a.screen() {
	case screenLoading:
		content = components.TitledBox("Starting", MutedStyle.Render(cmpOr(a.ctrl.InitializingMessage(), app.MsgInitializing)), a.width)
	case screenInitError:
		content = a.renderInitError()
	case screenInitialInstanceError:
		content = a.renderInitialInstanceError()
	case screenLoggedOut:
		content = components.TitledBox("Logged out", "You are logged out. Run `kgeditor login` to sign in again.", a.width)
	case screenWorkspaces:
		content = a.workspaces.View()
	case screenInstance:
		content = a.instance.View()
	case screenGraph:
		content = a.graph.View()
	default:
		content = a.browse.View()
	}

	if a.prompt != nil {
		content = components.Indent(components.ConfirmDialog("Confirm", a.prompt.message), 1)
	} else if a.quitConfirm {
		content = a.renderQuitConfirm()
	} else if a.helpOpen {
		content = a.renderHelp()
	}
	content = centerBlockUniform(content, a.width)

	tabs := ""
	if s := a.screen(); s == screenBrowse || s == screenInstance || s == screenGraph {
		tabs = centerBlockUniform(a.renderTabs(), a.width)
	}
	hints := components.StatusBar(a.statusHints(), a.width)

	feedback := ""
	if a.err != "" {
		feedback = "\n\n" + centerBlockUniform(components.ErrorBox("Error", a.err, a.width), a.width)
	} else if a.toast != nil {
		feedback = "\n\n" + centerBlockUniform(a.renderToast(), a.width)
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n\n\n%s%s", banner, tabs, content, hints, feedback)
}

// renderTabs lists the open views. Unsaved ones are marked with a dot.
func (a App) renderTabs() string {
	open := a.ctrl.Views.Views()
	browse := TabInactiveStyle.Render("Browse")
	_, current, onInstance := nav.MatchInstance(a.ctrl.Router.Location())
	if !onInstance {
		browse = TabActiveStyle.Render("Browse")
	}
	segments := []string{browse}
	for _, v := range open {
		inst, _ := a.ctrl.Store.Get(v.InstanceID)
		label := components.ClampTextWidth(instanceName(inst, v.Name, v.InstanceID), 20)
		style := TabInactiveStyle
		if inst.Changed {
			label += " •"
			style = TabDirtyStyle
		}
		if onInstance && v.InstanceID == current {
			style = TabActiveStyle
		}
		segments = append(segments, style.Render(label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, segments...)
}

func (a App) renderInitError() string {
	err := a.ctrl.InitializationError()
	title := "Initialization failed"
	if errors.Is(err, app.ErrUnauthorized) {
		title = "Not authorized"
	}
	return components.ErrorBox(title, err.Error()+"\n\nr: retry | q: quit", a.width)
}

func (a App) renderInitialInstanceError() string {
	err := a.ctrl.InitialInstanceWorkspaceError()
	if err == nil {
		err = a.ctrl.InitialInstanceError()
	}
	return components.ErrorBox("Instance unavailable", err.Error()+"\n\nenter: continue without it | q: quit", a.width)
}

func (a App) renderHelp() string {
	hints := a.screenHints()
	lines := make([]string, 0, len(hints)+2)
	lines = append(lines, MutedStyle.Render("esc to close"), "")
	for _, hint := range hints {
		lines = append(lines, "  "+hint)
	}
	return components.Indent(components.TitledBox("Help", strings.Join(lines, "\n"), a.width), 1)
}

func (a App) renderQuitConfirm() string {
	body := "You have unsaved changes. Quit anyway?"
	return components.Indent(components.ConfirmDialog("Quit", body), 1)
}

func (a App) statusHints() []string {
	switch {
	case a.prompt != nil, a.quitConfirm:
		return []string{
			components.Hint("y", "Confirm"),
			components.Hint("n", "Cancel"),
		}
	case a.helpOpen:
		return []string{components.Hint("esc", "Back")}
	}
	return a.screenHints()
}

func (a App) screenHints() []string {
	global := []string{
		components.Hint("tab", "Next"),
		components.Hint("b", "Browse"),
		components.Hint("w", "Workspace"),
		components.Hint("t", "Theme"),
		components.Hint("?", "Help"),
		components.Hint("q", "Quit"),
	}
	switch a.screen() {
	case screenLoading:
		return []string{components.Hint("ctrl+c", "Quit")}
	case screenInitError:
		return []string{components.Hint("r", "Retry"), components.Hint("q", "Quit")}
	case screenInitialInstanceError:
		return []string{components.Hint("enter", "Continue"), components.Hint("q", "Quit")}
	case screenLoggedOut:
		return []string{components.Hint("q", "Quit")}
	case screenWorkspaces:
		return a.workspaces.Hints()
	case screenInstance:
		return append(a.instance.Hints(), global...)
	case screenGraph:
		return append(a.graph.Hints(), global...)
	}
	return append(a.browse.Hints(), append(global, components.Hint("L", "Logout"))...)
}

// --- Toasts ---

func (a *App) setToast(level, text string) tea.Cmd {
	a.toast = &appToast{
		level: level,
		text:  components.SanitizeOneLine(text),
	}
	return tea.Tick(2500*time.Millisecond, func(time.Time) tea.Msg {
		return clearToastMsg{}
	})
}

func (a App) renderToast() string {
	if a.toast == nil {
		return ""
	}
	title := "Info"
	switch a.toast.level {
	case "success":
		title = "Success"
	case "warning":
		title = "Warning"
	case "error":
		return components.ErrorBox("Error", a.toast.text, a.width)
	}
	return components.TitledBox(title, a.toast.text, a.width)
}

// --- Layout ---

func centerBlockUniform(s string, width int) string {
	if width <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	maxWidth := 0
	for _, line := range lines {
		if w := lipgloss.Width(line); w > maxWidth {
			maxWidth = w
		}
	}
	if maxWidth <= 0 || maxWidth >= width {
		return s
	}
	pad := (width - maxWidth) / 2
	if pad <= 0 {
		return s
	}
	prefix := strings.Repeat(" ", pad)
	for i := range lines {
		if lines[i] != "" {
			lines[i] = prefix + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

// cmpOr returns the first non-blank value.
func cmpOr(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
