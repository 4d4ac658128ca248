package ui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitrone/kgeditor/internal/api"
	"github.com/gravitrone/kgeditor/internal/app"
	"github.com/gravitrone/kgeditor/internal/config"
	"github.com/gravitrone/kgeditor/internal/nav"
	"github.com/gravitrone/kgeditor/internal/state"
	"github.com/gravitrone/kgeditor/internal/views"
)

var (
	datasetType = api.StructureOfType{
		Name:       "Dataset",
		Label:      "Dataset",
		LabelField: "name",
		Fields: map[string]api.Field{
			"name":  {Type: "InputText", Label: "Name"},
			"links": {Type: "DynamicDropdown", Label: "Links", IsLink: true},
		},
	}
	personType = api.InstanceType{Name: "Person", Label: "Person"}
)

// fakeClient is an in-memory knowledge-graph service.
type fakeClient struct {
	mu         sync.Mutex
	instances  map[string]*api.Instance
	workspaces []api.Workspace
	profileErr error
	neighbors  map[string][]api.Neighbor
}

func newFakeClient(workspaces ...string) *fakeClient {
	f := &fakeClient{instances: map[string]*api.Instance{}, neighbors: map[string][]api.Neighbor{}}
	for _, w := range workspaces {
		f.workspaces = append(f.workspaces, api.Workspace{ID: w, Name: w, Permissions: api.Permissions{CanCreate: true}})
	}
	return f
}

func (f *fakeClient) add(id, name, workspace string, links ...string) {
	refs := make([]any, 0, len(links))
	for _, l := range links {
		refs = append(refs, map[string]any{"@id": l})
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instances[id] = &api.Instance{
		ID:         id,
		Name:       name,
		Workspace:  workspace,
		Types:      []api.InstanceType{datasetType.InstanceType()},
		LabelField: "name",
		Fields: map[string]api.Field{
			"name":  {Type: "InputText", Label: "Name", Value: name},
			"links": {Type: "DynamicDropdown", Label: "Links", IsLink: true, Value: refs},
		},
		Permissions: api.Permissions{CanRead: true, CanWrite: true, CanDelete: true},
	}
}

func (f *fakeClient) GetInstancesList(_ context.Context, _ string, ids []string) (map[string]api.Result[api.Instance], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]api.Result[api.Instance]{}
	for _, id := range ids {
		if inst, ok := f.instances[id]; ok {
			cp := *inst
			out[id] = api.Result[api.Instance]{Data: &cp}
		} else {
			out[id] = api.Result[api.Instance]{Error: &api.ItemError{Code: 404}}
		}
	}
	return out, nil
}

func (f *fakeClient) GetInstancesLabel(_ context.Context, _ string, ids []string) (map[string]api.Result[api.InstanceLabel], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]api.Result[api.InstanceLabel]{}
	for _, id := range ids {
		if inst, ok := f.instances[id]; ok {
			out[id] = api.Result[api.InstanceLabel]{Data: &api.InstanceLabel{ID: id, Name: inst.Name, Types: inst.Types}}
		}
	}
	return out, nil
}

func (f *fakeClient) GetInstance(_ context.Context, id string) (*api.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst, ok := f.instances[id]; ok {
		cp := *inst
		return &cp, nil
	}
	return nil, &api.Error{StatusCode: 404}
}

func (f *fakeClient) CreateInstance(_ context.Context, space, id string, payload map[string]any) (*api.Instance, error) {
	name, _ := payload["name"].(string)
	f.add(id, name, space)
	return f.GetInstance(context.Background(), id)
}

func (f *fakeClient) PatchInstance(ctx context.Context, id string, payload map[string]any) (*api.Instance, error) {
	f.mu.Lock()
	if inst, ok := f.instances[id]; ok {
		if name, ok := payload["name"].(string); ok {
			inst.Name = name
			field := inst.Fields["name"]
			field.Value = name
			inst.Fields["name"] = field
		}
	}
	f.mu.Unlock()
	return f.GetInstance(ctx, id)
}

func (f *fakeClient) DeleteInstance(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.instances, id)
	return nil
}

func (f *fakeClient) GetInstanceNeighbors(_ context.Context, id string) (*api.Neighbor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[id]
	if !ok {
		return nil, &api.Error{StatusCode: 404}
	}
	return &api.Neighbor{ID: id, Name: inst.Name, Types: inst.Types, Outbound: f.neighbors[id]}, nil
}

func (f *fakeClient) GetWorkspaceTypes(context.Context, string) ([]api.StructureOfType, error) {
	return []api.StructureOfType{datasetType}, nil
}

func (f *fakeClient) GetSettings(context.Context) (*api.Settings, error) {
	return &api.Settings{Commit: "c0ffee"}, nil
}

func (f *fakeClient) GetUserProfile(context.Context) (*api.UserProfile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &api.UserProfile{Username: "jdoe", GivenName: "Jane", Workspaces: append([]api.Workspace(nil), f.workspaces...)}, nil
}

// --- Harness ---

func newController(t *testing.T, client *fakeClient) *app.Controller {
	t.Helper()
	db, err := state.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Token = "tok"
	cfg.Queue.Delay = 5 * time.Millisecond

	ctrl, err := app.New(app.Deps{
		Client:     client,
		Config:     cfg,
		SaveConfig: func(*config.Config) error { return nil },
		State:      db,
		Router:     nav.NewRouter(nav.Home),
		Confirm:    func(string) bool { return true },
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	t.Cleanup(func() { ApplyTheme("default") })
	return ctrl
}

// startedApp returns an initialized app sized like a terminal.
func startedApp(t *testing.T, ctrl *app.Controller) App {
	t.Helper()
	a := NewApp(context.Background(), ctrl)
	a = update(a, tea.WindowSizeMsg{Width: 120, Height: 40})
	a = update(a, initDoneMsg{err: ctrl.Initialize(context.Background())})
	ctrl.Store.Wait()
	return a
}

func update(a App, msg tea.Msg) App {
	m, _ := a.Update(msg)
	return m.(App)
}

// run delivers msg and then the message of the returned command, one level
// deep. Timers are never started.
func run(t *testing.T, a App, msg tea.Msg) App {
	t.Helper()
	m, cmd := a.Update(msg)
	a = m.(App)
	if cmd == nil {
		return a
	}
	if next := cmd(); next != nil {
		a = update(a, next)
	}
	a.ctrl.Store.Wait()
	return update(a, routeMsg{})
}

func key(t tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: t}
}

// --- Screens ---

func TestAppStartsOnLoadingScreen(t *testing.T) {
	ctrl := newController(t, newFakeClient("ws1"))
	a := NewApp(context.Background(), ctrl)

	assert.Equal(t, screenLoading, a.screen())
	assert.Contains(t, a.View(), app.MsgInitializing)
}

func TestAppInitPicksSingleWorkspace(t *testing.T) {
	ctrl := newController(t, newFakeClient("ws1"))
	a := startedApp(t, ctrl)

	assert.Equal(t, screenBrowse, a.screen())
	view := a.View()
	assert.Contains(t, view, "Recent instances")
	assert.Contains(t, view, "ws1")
}

func TestAppWorkspacePickerSelects(t *testing.T) {
	ctrl := newController(t, newFakeClient("ws1", "ws2"))
	a := startedApp(t, ctrl)
	require.Equal(t, screenWorkspaces, a.screen())
	assert.Contains(t, a.View(), "Welcome Jane")

	a = update(a, key(tea.KeyDown))
	want, ok := a.workspaces.Selected()
	require.True(t, ok)

	a = run(t, a, key(tea.KeyEnter))
	assert.Equal(t, screenBrowse, a.screen())
	assert.Equal(t, want.ID, ctrl.WorkspaceName())
}

func TestAppWorkspaceFilterNarrowsList(t *testing.T) {
	ctrl := newController(t, newFakeClient("alpha", "beta"))
	a := startedApp(t, ctrl)

	a = update(a, runes("/"))
	require.True(t, a.workspaces.Capturing())
	a = update(a, runes("bet"))

	require.Len(t, a.workspaces.items, 1)
	assert.Equal(t, "beta", a.workspaces.items[0].ID)

	a = update(a, key(tea.KeyEsc))
	assert.False(t, a.workspaces.Capturing())
	assert.Len(t, a.workspaces.items, 2)
}

func TestAppInitErrorOffersRetry(t *testing.T) {
	client := newFakeClient("ws1")
	client.profileErr = errors.New("boom")
	ctrl := newController(t, client)
	a := startedApp(t, ctrl)

	require.Equal(t, screenInitError, a.screen())
	assert.Contains(t, a.View(), "Initialization failed")

	m, cmd := a.Update(runes("r"))
	a = m.(App)
	assert.NotNil(t, cmd)
	assert.Equal(t, screenLoading, a.screen())
}

func TestAppInitialInstanceErrorContinues(t *testing.T) {
	client := newFakeClient("ws1")
	ctrl := newController(t, client)
	ctrl.Router.Replace(nav.InstancePath(views.ModeView, "missing"))
	a := startedApp(t, ctrl)

	require.Equal(t, screenInitialInstanceError, a.screen())
	assert.Contains(t, a.View(), "missing")

	a = run(t, a, key(tea.KeyEnter))
	assert.Equal(t, screenBrowse, a.screen())
}

// --- Browse ---

func TestBrowseOpenByID(t *testing.T) {
	client := newFakeClient("ws1")
	client.add("i1", "Alpha", "ws1")
	ctrl := newController(t, client)
	a := startedApp(t, ctrl)

	a = update(a, runes("o"))
	require.True(t, a.browse.Capturing())
	a = update(a, runes("i1"))
	a = run(t, a, key(tea.KeyEnter))

	require.Equal(t, screenInstance, a.screen())
	assert.Contains(t, a.View(), "Alpha")
	assert.Equal(t, []string{"i1"}, ctrl.Views.IDs())
}

func TestBrowseCreateInstance(t *testing.T) {
	client := newFakeClient("ws1")
	ctrl := newController(t, client)
	a := startedApp(t, ctrl)

	a = update(a, runes("n"))
	require.Equal(t, browseCreateType, a.browse.step)
	a = update(a, key(tea.KeyEnter))
	require.Equal(t, browseCreateName, a.browse.step)
	a = update(a, runes("Fresh"))
	a = run(t, a, key(tea.KeyEnter))

	mode, id, ok := nav.MatchInstance(ctrl.Router.Location())
	require.True(t, ok)
	assert.Equal(t, views.ModeCreate, mode)
	inst, ok := ctrl.Store.Get(id)
	require.True(t, ok)
	assert.True(t, inst.IsNew)
	assert.Equal(t, "Fresh", inst.Name())
}

// --- Instance ---

func openInstance(t *testing.T, a App, id string, mode views.Mode) App {
	t.Helper()
	require.NoError(t, a.ctrl.OpenInstance(context.Background(), id, "", api.InstanceType{}, mode))
	a.ctrl.Store.Wait()
	return update(a, routeMsg{})
}

func TestInstanceEditAndSave(t *testing.T) {
	client := newFakeClient("ws1")
	client.add("i1", "Alpha", "ws1")
	ctrl := newController(t, client)
	a := openInstance(t, startedApp(t, ctrl), "i1", views.ModeEdit)
	require.Equal(t, screenInstance, a.screen())

	// Fields are sorted: links, name.
	a = update(a, key(tea.KeyDown))
	a = update(a, key(tea.KeyEnter))
	require.True(t, a.instance.editing)
	assert.Equal(t, "Alpha", a.instance.input.Value())

	a.instance.input.SetValue("Beta")
	a = run(t, a, key(tea.KeyEnter))
	inst, _ := ctrl.Store.Get("i1")
	require.True(t, inst.Changed)
	assert.Equal(t, "Beta", inst.Values["name"])
	assert.Contains(t, a.renderTabs(), "•")

	a = run(t, a, key(tea.KeyCtrlS))
	inst, _ = ctrl.Store.Get("i1")
	assert.False(t, inst.Changed)
	require.NotNil(t, a.toast)
	assert.Equal(t, "Instance saved", a.toast.text)
}

func TestInstanceEscAsksBeforeDiscarding(t *testing.T) {
	client := newFakeClient("ws1")
	client.add("i1", "Alpha", "ws1")
	ctrl := newController(t, client)
	a := openInstance(t, startedApp(t, ctrl), "i1", views.ModeEdit)

	require.NoError(t, ctrl.Store.SetFieldValue("i1", "name", "Changed"))
	a = update(a, key(tea.KeyEsc))
	require.True(t, a.instance.Capturing())
	assert.Contains(t, a.View(), "Discard changes")

	a = update(a, runes("y"))
	inst, _ := ctrl.Store.Get("i1")
	assert.False(t, inst.Changed)
	assert.Equal(t, "Alpha", inst.Values["name"])
}

func TestInstanceReadOnlyModeIgnoresEdits(t *testing.T) {
	client := newFakeClient("ws1")
	client.add("i1", "Alpha", "ws1")
	ctrl := newController(t, client)
	a := openInstance(t, startedApp(t, ctrl), "i1", views.ModeView)

	a = update(a, key(tea.KeyDown))
	a = update(a, key(tea.KeyEnter))
	assert.False(t, a.instance.editing)

	a = run(t, a, runes("e"))
	mode, _, _ := nav.MatchInstance(ctrl.Router.Location())
	assert.Equal(t, views.ModeEdit, mode)
	assert.Equal(t, views.ModeEdit, a.instance.mode)
}

func TestInstanceEnterOpensLinkedInstance(t *testing.T) {
	client := newFakeClient("ws1")
	client.add("i1", "Alpha", "ws1", "i2")
	client.add("i2", "Beta", "ws1")
	ctrl := newController(t, client)
	a := openInstance(t, startedApp(t, ctrl), "i1", views.ModeView)
	ctrl.Store.Wait()

	assert.Contains(t, a.View(), "Beta")
	a = run(t, a, key(tea.KeyEnter))
	assert.True(t, nav.IsInstance(ctrl.Router.Location(), "i2"))
	assert.ElementsMatch(t, []string{"i1", "i2"}, ctrl.Views.IDs())
}

func TestInstancePreviewShowsLinkedInstance(t *testing.T) {
	client := newFakeClient("ws1")
	client.add("i1", "Alpha", "ws1", "i2")
	client.add("i2", "Beta", "ws1")
	client.instances["i2"].PromotedFields = []string{"name"}
	ctrl := newController(t, client)
	a := openInstance(t, startedApp(t, ctrl), "i1", views.ModeView)
	ctrl.Store.Wait()

	a = update(a, runes("p"))
	_ = a.View()
	ctrl.Store.Wait()

	out := a.View()
	assert.Contains(t, out, "Preview: Beta")
	assert.Contains(t, out, "Name: Beta")

	a = update(a, runes("p"))
	assert.NotContains(t, a.View(), "Preview: Beta")
}

func TestQuitAsksWithUnsavedChanges(t *testing.T) {
	client := newFakeClient("ws1")
	client.add("i1", "Alpha", "ws1")
	ctrl := newController(t, client)
	a := openInstance(t, startedApp(t, ctrl), "i1", views.ModeEdit)
	require.NoError(t, ctrl.Store.SetFieldValue("i1", "name", "Changed"))

	a = update(a, runes("q"))
	assert.True(t, a.quitConfirm)
	assert.Contains(t, a.View(), "unsaved changes")

	a = update(a, runes("n"))
	assert.False(t, a.quitConfirm)
}

// --- Graph ---

func TestGraphListsGroupsAndLinks(t *testing.T) {
	client := newFakeClient("ws1")
	client.add("i1", "Alpha", "ws1")
	client.neighbors["i1"] = []api.Neighbor{{ID: "p1", Name: "Bob", Types: []api.InstanceType{personType}}}
	ctrl := newController(t, client)
	a := openInstance(t, startedApp(t, ctrl), "i1", views.ModeView)

	a = run(t, a, runes("g"))
	require.Equal(t, screenGraph, a.screen())
	a = run(t, a, routeMsg{})

	view := a.View()
	assert.Contains(t, view, "Dataset")
	assert.Contains(t, view, "Person")
	assert.Contains(t, view, "Bob")

	a = update(a, key(tea.KeySpace))
	groups := ctrl.Graph.GroupsList()
	require.Len(t, groups, 2)
	assert.False(t, groups[0].Show)

	a = update(a, runes("c"))
	assert.True(t, ctrl.Graph.GroupsList()[0].Grouped)
}

// --- Globals ---

func TestConfirmPromptRepliesToController(t *testing.T) {
	ctrl := newController(t, newFakeClient("ws1"))
	a := startedApp(t, ctrl)

	reply := make(chan bool, 1)
	a = update(a, confirmRequestMsg{message: "Close all views?", reply: reply})
	assert.Contains(t, a.View(), "Close all views?")

	a = update(a, runes("y"))
	assert.Nil(t, a.prompt)
	assert.True(t, <-reply)
}

func TestThemeToggle(t *testing.T) {
	ctrl := newController(t, newFakeClient("ws1"))
	a := startedApp(t, ctrl)

	update(a, runes("t"))
	assert.Equal(t, "bright", ctrl.Theme())
	assert.Equal(t, "bright", CurrentTheme())
}

func TestBridgeConfirmWithoutProgramDeclines(t *testing.T) {
	assert.False(t, NewBridge().Confirm("anything"))
}
