package app

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/gravitrone/kgeditor/internal/config"
	"github.com/gravitrone/kgeditor/internal/nav"
)

// Themes lists the available UI themes.
var Themes = []string{"default", "bright"}

// Theme returns the configured theme.
func (c *Controller) Theme() string {
	return c.cfg.Theme
}

// SetTheme selects theme, falling back to the default for unknown names.
func (c *Controller) SetTheme(theme string) error {
	if !slices.Contains(Themes, theme) {
		theme = config.DefaultTheme
	}
	c.cfg.Theme = theme
	return c.persistConfig()
}

// ToggleTheme switches between the default and the bright theme.
func (c *Controller) ToggleTheme() error {
	if c.cfg.Theme == "bright" {
		return c.SetTheme("default")
	}
	return c.SetTheme("bright")
}

// HistorySettings returns the history size and enabled event types.
func (c *Controller) HistorySettings() config.HistoryConfig {
	out := c.cfg.History
	out.EventTypes = maps.Clone(c.cfg.History.EventTypes)
	return out
}

// SetHistorySize sets how many recent instances are listed. Values outside
// 1..100 fall back to the default.
func (c *Controller) SetHistorySize(size int) error {
	if size <= 0 || size > 100 {
		size = config.DefaultHistorySize
	}
	c.cfg.History.Size = size
	return c.persistConfig()
}

// SetHistoryEventType enables or disables listing one event type.
func (c *Controller) SetHistoryEventType(event string, on bool) error {
	if _, ok := config.DefaultEventTypes()[event]; !ok {
		return fmt.Errorf("unknown history event type %q", event)
	}
	if c.cfg.History.EventTypes == nil {
		c.cfg.History.EventTypes = config.DefaultEventTypes()
	}
	c.cfg.History.EventTypes[event] = on
	return c.persistConfig()
}

// Logout signs the user out. With unsaved changes the user must confirm;
// it reports false when the user declined.
func (c *Controller) Logout(ctx context.Context) (bool, error) {
	if c.Store.HasUnsavedChanges() && !c.confirm(ConfirmLogout) {
		return false, nil
	}

	if err := c.Views.Sync(ctx); err != nil {
		c.logger.Warn("store views", "error", err)
	}
	c.Session.Logout()
	c.Views.Clear()
	c.Flush()
	c.Graph.Reset()

	c.mu.Lock()
	c.workspace = nil
	c.initialized = false
	c.mu.Unlock()

	c.cfg.Token = ""
	c.Router.Replace(nav.Logout)
	c.logger.Info("logged out")
	return true, c.persistConfig()
}
