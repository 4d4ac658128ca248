// Package auth tracks the signed-in user: whether the service accepted the
// token, the user profile and the workspaces the user can open.
package auth

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/gravitrone/kgeditor/internal/api"
	"github.com/gravitrone/kgeditor/internal/logging"
)

// ErrNoToken is returned when no token is configured.
var ErrNoToken = errors.New("not logged in (run `kgeditor login`)")

// Source is the part of the API the session needs. *api.Client satisfies it.
type Source interface {
	GetSettings(ctx context.Context) (*api.Settings, error)
	GetUserProfile(ctx context.Context) (*api.UserProfile, error)
}

// Session is the authentication state. Safe for concurrent use.
type Session struct {
	source Source
	token  string
	logger *slog.Logger

	mu            sync.Mutex
	authenticated bool
	authErr       error
	commit        string
	user          *api.UserProfile
	authorized    bool
	profileErr    error
	loggedOut     bool
}

// New creates a session for token.
func New(source Source, token string, logger *slog.Logger) *Session {
	return &Session{
		source: source,
		token:  token,
		logger: logging.OrDiscard(logger).With("component", "auth"),
	}
}

// Authenticate checks that a token is set and the service answers. It is a
// no-op once authenticated.
func (s *Session) Authenticate(ctx context.Context) error {
	s.mu.Lock()
	if s.authenticated {
		s.mu.Unlock()
		return nil
	}
	s.authErr = nil
	s.loggedOut = false
	s.mu.Unlock()

	var err error
	var settings *api.Settings
	if s.token == "" {
		err = ErrNoToken
	} else {
		settings, err = s.source.GetSettings(ctx)
		if err != nil {
			err = fmt.Errorf("the service is temporarily unavailable, retry in a moment: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.authErr = err
		s.logger.Warn("authentication failed", "error", err)
		return err
	}
	s.authenticated = true
	s.commit = settings.Commit
	s.logger.Debug("authenticated", "commit", settings.Commit)
	return nil
}

// RetrieveUserProfile loads the user once authenticated. A forbidden answer
// leaves the user unauthorized without an error.
func (s *Session) RetrieveUserProfile(ctx context.Context) error {
	s.mu.Lock()
	if !s.authenticated || s.user != nil {
		s.mu.Unlock()
		return nil
	}
	s.profileErr = nil
	s.mu.Unlock()

	user, err := s.source.GetUserProfile(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case api.IsForbidden(err):
		s.authorized = false
		s.logger.Info("user not authorized")
		return nil
	case err != nil:
		s.authorized = false
		s.profileErr = fmt.Errorf("retrieve user profile: %w", err)
		return s.profileErr
	}
	if user == nil {
		user = &api.UserProfile{}
	}
	slices.SortStableFunc(user.Workspaces, func(a, b api.Workspace) int {
		return cmp.Compare(a.DisplayName(), b.DisplayName())
	})
	s.user = user
	s.authorized = true
	return nil
}

// IsAuthenticated reports whether the service accepted the token.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// IsAuthorized reports whether the profile could be read.
func (s *Session) IsAuthorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorized
}

// IsFullyAuthenticated reports whether the user is authenticated and known.
func (s *Session) IsFullyAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated && s.user != nil
}

// AuthError returns the last authentication error.
func (s *Session) AuthError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authErr
}

// ProfileError returns the last profile error.
func (s *Session) ProfileError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileErr
}

// Commit returns the server build reported by the settings endpoint.
func (s *Session) Commit() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit
}

// User returns the profile, if loaded.
func (s *Session) User() (api.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return api.UserProfile{}, false
	}
	return *s.user, true
}

// Workspaces returns the workspaces of the user sorted by name.
func (s *Session) Workspaces() []api.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	return slices.Clone(s.user.Workspaces)
}

// HasWorkspace reports whether the user can open workspace id.
func (s *Session) HasWorkspace(id string) bool {
	_, ok := s.lookup(id)
	return ok
}

// WorkspaceInfo returns the workspace id, or a bare entry named after it
// when the user has no such workspace.
func (s *Session) WorkspaceInfo(id string) api.Workspace {
	if w, ok := s.lookup(id); ok {
		return w
	}
	return api.Workspace{ID: id, Name: id}
}

func (s *Session) lookup(id string) (api.Workspace, bool) {
	for _, w := range s.Workspaces() {
		if w.ID == id {
			return w, true
		}
	}
	return api.Workspace{}, false
}

// FilteredWorkspaces returns the workspaces whose id contains term,
// ignoring case.
func (s *Session) FilteredWorkspaces(term string) []api.Workspace {
	all := s.Workspaces()
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return all
	}
	return slices.DeleteFunc(all, func(w api.Workspace) bool {
		return !strings.Contains(strings.ToLower(w.ID), term)
	})
}

// FirstName returns the given name, else the first word of the full name,
// else the username.
func (s *Session) FirstName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return ""
	}
	if s.user.GivenName != "" {
		return s.user.GivenName
	}
	if s.user.Name != "" {
		first, _, _ := strings.Cut(s.user.Name, " ")
		return first
	}
	return s.user.Username
}

// Logout forgets the user.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
	s.authorized = false
	s.user = nil
	s.loggedOut = true
}

// LoggedOut reports whether Logout was called since the last Authenticate.
func (s *Session) LoggedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedOut
}
