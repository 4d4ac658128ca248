// Package nav is the in-memory location history of the terminal editor.
// Screens are addressed by paths like the routes of a web app.
package nav

import (
	"slices"
	"strings"
	"sync"

	"github.com/gravitrone/kgeditor/internal/views"
)

// Fixed routes.
const (
	Home   = "/"
	Browse = "/browse"
	Help   = "/help"
	Logout = "/logout"
)

const instancePrefix = "/instance/"

// InstancePath returns the route showing id in mode.
func InstancePath(mode views.Mode, id string) string {
	return instancePrefix + string(mode) + "/" + id
}

// MatchInstance extracts mode and id from an instance route. Ids may contain
// slashes.
func MatchInstance(path string) (views.Mode, string, bool) {
	rest, ok := strings.CutPrefix(path, instancePrefix)
	if !ok {
		return "", "", false
	}
	mode, id, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		return "", "", false
	}
	m, valid := views.ParseMode(mode)
	if !valid {
		return "", "", false
	}
	return m, id, true
}

// IsInstance reports whether path shows instance id, in any mode.
func IsInstance(path, id string) bool {
	_, got, ok := MatchInstance(path)
	return ok && got == id
}

// IsBrowseLike reports whether path is the home, browse or a help route.
func IsBrowseLike(path string) bool {
	return path == Home || path == Browse || path == Help || strings.HasPrefix(path, Help+"/")
}

// Router is a stack of visited locations. Safe for concurrent use.
type Router struct {
	mu      sync.Mutex
	history []string
	onMove  []func(string)
}

// NewRouter starts at initial, or Home when empty.
func NewRouter(initial string) *Router {
	if initial == "" {
		initial = Home
	}
	return &Router{history: []string{initial}}
}

// OnChange registers fn to be called with every new location.
func (r *Router) OnChange(fn func(string)) {
	r.mu.Lock()
	r.onMove = append(r.onMove, fn)
	r.mu.Unlock()
}

// Location returns the current path.
func (r *Router) Location() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history[len(r.history)-1]
}

// Push moves to path, keeping the current location for Back. Pushing the
// current location is a no-op.
func (r *Router) Push(path string) {
	r.mu.Lock()
	if r.history[len(r.history)-1] == path {
		r.mu.Unlock()
		return
	}
	r.history = append(r.history, path)
	r.mu.Unlock()
	r.notify(path)
}

// Replace swaps the current location for path.
func (r *Router) Replace(path string) {
	r.mu.Lock()
	r.history[len(r.history)-1] = path
	r.mu.Unlock()
	r.notify(path)
}

// Back returns to the previous location. It reports false at the first one.
func (r *Router) Back() bool {
	r.mu.Lock()
	if len(r.history) < 2 {
		r.mu.Unlock()
		return false
	}
	r.history = r.history[:len(r.history)-1]
	path := r.history[len(r.history)-1]
	r.mu.Unlock()
	r.notify(path)
	return true
}

// History returns every visited location, oldest first.
func (r *Router) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.history)
}

func (r *Router) notify(path string) {
	r.mu.Lock()
	fns := slices.Clone(r.onMove)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(path)
	}
}
