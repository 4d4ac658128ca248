// Package app wires the stores together and carries the editor's use cases:
// start-up, workspace selection and the lifecycle of open instances.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/gravitrone/kgeditor/internal/api"
	"github.com/gravitrone/kgeditor/internal/auth"
	"github.com/gravitrone/kgeditor/internal/config"
	"github.com/gravitrone/kgeditor/internal/graph"
	"github.com/gravitrone/kgeditor/internal/history"
	"github.com/gravitrone/kgeditor/internal/logging"
	"github.com/gravitrone/kgeditor/internal/nav"
	"github.com/gravitrone/kgeditor/internal/store"
	"github.com/gravitrone/kgeditor/internal/views"
)

// Progress messages shown while initializing.
const (
	MsgInitializing     = "Initializing the application..."
	MsgAuthenticating   = "User authenticating..."
	MsgRetrievingUser   = "Retrieving user profile..."
	MsgSettingWorkspace = "Setting workspace..."
)

// Confirmation prompts.
const (
	ConfirmWorkspaceChange = "You are about to change workspace. All opened instances will be closed. Continue?"
	ConfirmLogout          = "You have unsaved changes pending. Are you sure you want to logout?"
)

// ErrUnauthorized is returned by Initialize when the service refuses the
// user profile.
var ErrUnauthorized = errors.New("user is not authorized to use the editor")

// Client is everything the controller calls on the service. *api.Client
// satisfies it.
type Client interface {
	store.Source
	auth.Source
	graph.NeighborSource
	DeleteInstance(ctx context.Context, id string) error
	GetWorkspaceTypes(ctx context.Context, workspace string) ([]api.StructureOfType, error)
}

// Confirm asks the user a yes/no question.
type Confirm func(message string) bool

// Deps are the collaborators of a Controller. Client and Config are
// required; the rest have defaults.
type Deps struct {
	Client     Client
	Config     *config.Config
	SaveConfig func(*config.Config) error
	State      views.Persister
	Router     *nav.Router
	Confirm    Confirm
	Logger     *slog.Logger
	Metrics    *store.Metrics
	NewID      func() string
}

// Controller is the application state. Its stores are exported for
// read access by the UI.
type Controller struct {
	Store   *store.Store
	Views   *views.Registry
	History *history.History
	Session *auth.Session
	Graph   *graph.Explorer
	Router  *nav.Router

	client     Client
	cfg        *config.Config
	saveConfig func(*config.Config) error
	confirm    Confirm
	newID      func() string
	logger     *slog.Logger

	mu                  sync.Mutex
	initializing        string
	initErr             error
	initialInstanceErr  error
	initialWorkspaceErr error
	initialized         bool
	workspace           *api.Workspace
	types               []api.StructureOfType
	typesErr            error
	instanceToDelete    string
	deleting            bool
	deleteErr           error
	creating            bool
	creationErr         error
	pathsToResolve      map[string]string
	progress            []func(string)
	unsubscribe         func()
}

// New builds a controller and its stores.
func New(d Deps) (*Controller, error) {
	if d.Client == nil {
		return nil, errors.New("client is required")
	}
	if d.Config == nil {
		return nil, errors.New("config is required")
	}
	if d.SaveConfig == nil {
		d.SaveConfig = func(c *config.Config) error { return c.Save() }
	}
	if d.Router == nil {
		d.Router = nav.NewRouter(nav.Home)
	}
	if d.Confirm == nil {
		d.Confirm = func(string) bool { return true }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	logger := logging.OrDiscard(d.Logger)

	st := store.New(d.Client, store.Options{
		Stage:     d.Config.Stage,
		Threshold: d.Config.Queue.Threshold,
		Delay:     d.Config.Queue.Delay,
		Logger:    logger,
		Metrics:   d.Metrics,
	})
	c := &Controller{
		Store:          st,
		Views:          views.New(st, d.State, logger),
		History:        history.New(d.State, logger),
		Session:        auth.New(d.Client, d.Config.Token, logger),
		Graph:          graph.NewExplorer(d.Client, logger),
		Router:         d.Router,
		client:         d.Client,
		cfg:            d.Config,
		saveConfig:     d.SaveConfig,
		confirm:        d.Confirm,
		newID:          d.NewID,
		logger:         logger.With("component", "app"),
		pathsToResolve: make(map[string]string),
	}
	c.unsubscribe = st.Subscribe(c.onStoreEvent)
	return c, nil
}

// Close stops the store queues.
func (c *Controller) Close() {
	c.unsubscribe()
	c.Store.Close()
}

// onStoreEvent records a view in history once an open instance is loaded.
func (c *Controller) onStoreEvent(ev store.Event) {
	if ev.Kind != store.EventFetched {
		return
	}
	for _, id := range ev.IDs {
		if c.Views.Has(id) {
			if err := c.History.Update(context.Background(), id, config.EventViewed); err != nil {
				c.logger.Warn("record history", "id", id, "error", err)
			}
		}
	}
}

// --- Initialization ---

// OnProgress registers fn to receive initialization messages. An empty
// message means initialization stopped.
func (c *Controller) OnProgress(fn func(string)) {
	c.mu.Lock()
	c.progress = append(c.progress, fn)
	c.mu.Unlock()
}

func (c *Controller) setProgress(msg string) {
	c.mu.Lock()
	c.initializing = msg
	fns := append([]func(string){}, c.progress...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

// Initialize authenticates, loads the user profile and picks the workspace.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.initErr = nil
	c.initialInstanceErr = nil
	c.initialWorkspaceErr = nil
	c.mu.Unlock()
	c.setProgress(MsgInitializing)

	if !c.Session.IsAuthenticated() {
		c.setProgress(MsgAuthenticating)
		if err := c.Session.Authenticate(ctx); err != nil {
			return c.failInit(err)
		}
	}
	if _, ok := c.Session.User(); !ok {
		c.setProgress(MsgRetrievingUser)
		if err := c.Session.RetrieveUserProfile(ctx); err != nil {
			return c.failInit(err)
		}
		if !c.Session.IsAuthorized() {
			return c.failInit(ErrUnauthorized)
		}
	}

	_, err := c.initializeWorkspace(ctx)
	c.mu.Lock()
	c.initialized = c.workspace != nil || (c.initialInstanceErr == nil && c.initialWorkspaceErr == nil)
	c.mu.Unlock()
	c.setProgress("")
	if err != nil {
		c.logger.Warn("workspace initialization", "error", err)
	}
	return nil
}

func (c *Controller) failInit(err error) error {
	c.mu.Lock()
	c.initErr = err
	c.mu.Unlock()
	c.setProgress("")
	return err
}

func (c *Controller) initializeWorkspace(ctx context.Context) (*api.Workspace, error) {
	c.setProgress(MsgSettingWorkspace)

	mode, id, ok := nav.MatchInstance(c.Router.Location())
	if !ok || mode == views.ModeCreate {
		_, err := c.SetWorkspace(ctx, c.cfg.Workspace)
		return c.currentWorkspace(), err
	}

	workspace := c.initialInstanceWorkspace(ctx, id)
	if workspace == "" {
		return nil, nil
	}
	_, err := c.SetWorkspace(ctx, workspace)
	if cur := c.currentWorkspace(); cur == nil || cur.ID != workspace {
		c.mu.Lock()
		c.initialWorkspaceErr = fmt.Errorf("could not load instance %q because you're not granted access to workspace %q", id, workspace)
		c.mu.Unlock()
	}
	return c.currentWorkspace(), err
}

// initialInstanceWorkspace loads the instance named by the start-up route
// and returns its workspace.
func (c *Controller) initialInstanceWorkspace(ctx context.Context, id string) string {
	c.setProgress(fmt.Sprintf("Retrieving instance %q...", id))

	data, err := c.client.GetInstance(ctx, id)
	var ierr error
	switch {
	case api.IsNotFound(err) || (err == nil && data == nil):
		ierr = fmt.Errorf("instance %q can not be found: it either could have been removed or it is not accessible by your user account", id)
	case err != nil:
		ierr = fmt.Errorf("error while retrieving instance %q: %w", id, err)
	case data.Workspace == "":
		c.Store.Seed(data)
		ierr = fmt.Errorf("instance %q does not have a workspace", id)
	default:
		c.Store.Seed(data)
		return data.Workspace
	}
	c.mu.Lock()
	c.initialInstanceErr = ierr
	c.mu.Unlock()
	return ""
}

// CancelInitialInstance gives up on the start-up instance and falls back to
// the configured workspace.
func (c *Controller) CancelInitialInstance(ctx context.Context) error {
	c.Router.Replace(nav.Browse)
	c.mu.Lock()
	c.initErr = nil
	c.initialInstanceErr = nil
	c.initialWorkspaceErr = nil
	c.initializing = ""
	c.mu.Unlock()

	_, err := c.SetWorkspace(ctx, c.cfg.Workspace)
	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	return err
}

// InitializingMessage returns the current progress message.
func (c *Controller) InitializingMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initializing
}

// InitializationError returns why Initialize failed.
func (c *Controller) InitializationError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initErr
}

// InitialInstanceError returns why the start-up instance could not be loaded.
func (c *Controller) InitialInstanceError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialInstanceErr
}

// InitialInstanceWorkspaceError returns why the workspace of the start-up
// instance could not be opened.
func (c *Controller) InitialInstanceWorkspaceError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialWorkspaceErr
}

// IsInitialized reports whether the editor is ready.
func (c *Controller) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// --- Workspace ---

// SetWorkspace switches to workspace id. A user with a single workspace
// gets it when id is unknown. With open views the user must confirm, and
// the views are closed. It reports false when the user declined.
func (c *Controller) SetWorkspace(ctx context.Context, id string) (bool, error) {
	var next *api.Workspace
	if id != "" && c.Session.HasWorkspace(id) {
		w := c.Session.WorkspaceInfo(id)
		next = &w
	}
	if next == nil {
		if all := c.Session.Workspaces(); len(all) == 1 {
			next = &all[0]
		}
	}

	cur := c.currentWorkspace()
	if sameWorkspace(cur, next) {
		return true, nil
	}
	if c.Views.Len() > 0 {
		if !c.confirm(ConfirmWorkspaceChange) {
			return false, nil
		}
		c.clearViews()
	}

	c.mu.Lock()
	c.workspace = next
	c.types = nil
	c.typesErr = nil
	c.mu.Unlock()

	if next == nil {
		c.cfg.Workspace = ""
		return true, c.persistConfig()
	}

	c.cfg.Workspace = next.ID
	errs := []error{c.persistConfig()}
	restored, err := c.Views.Restore(ctx, next.ID)
	errs = append(errs, err)
	for _, v := range restored {
		c.Store.FetchLabel(v.InstanceID, false)
	}
	errs = append(errs, c.History.Load(ctx, next.ID))
	c.loadTypes(ctx, next.ID)
	c.logger.Info("workspace selected", "workspace", next.ID, "restored_views", len(restored))
	return true, errors.Join(errs...)
}

func sameWorkspace(a, b *api.Workspace) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

func (c *Controller) loadTypes(ctx context.Context, workspace string) {
	types, err := c.client.GetWorkspaceTypes(ctx, workspace)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.workspace == nil || c.workspace.ID != workspace {
		return
	}
	if err != nil {
		c.typesErr = fmt.Errorf("load types of %s: %w", workspace, err)
		c.logger.Warn("load workspace types", "workspace", workspace, "error", err)
		return
	}
	c.types = types
}

func (c *Controller) currentWorkspace() *api.Workspace {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workspace
}

// Workspace returns the current workspace.
func (c *Controller) Workspace() (api.Workspace, bool) {
	w := c.currentWorkspace()
	if w == nil {
		return api.Workspace{}, false
	}
	return *w, true
}

// WorkspaceName returns the name of the current workspace, or "".
func (c *Controller) WorkspaceName() string {
	if w := c.currentWorkspace(); w != nil {
		return w.DisplayName()
	}
	return ""
}

// WorkspacePermissions returns the permissions on the current workspace.
func (c *Controller) WorkspacePermissions() api.Permissions {
	if w := c.currentWorkspace(); w != nil {
		return w.Permissions
	}
	return api.Permissions{}
}

// Types returns the instance types of the current workspace.
func (c *Controller) Types() ([]api.StructureOfType, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.StructureOfType(nil), c.types...), c.typesErr
}

// Type returns the workspace type called name.
func (c *Controller) Type(name string) (api.StructureOfType, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.types {
		if t.Name == name {
			return t, true
		}
	}
	return api.StructureOfType{}, false
}

// Flush clears the cache and every pending instance operation.
func (c *Controller) Flush() {
	c.Store.Flush()
	c.mu.Lock()
	c.creating = false
	c.creationErr = nil
	c.instanceToDelete = ""
	c.deleting = false
	c.deleteErr = nil
	clear(c.pathsToResolve)
	c.mu.Unlock()
}

func (c *Controller) persistConfig() error {
	if err := c.saveConfig(c.cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}
