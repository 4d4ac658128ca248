package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gravitrone/kgeditor/internal/api"
	"github.com/gravitrone/kgeditor/internal/logging"
)

// NeighborSource loads the neighbor tree of an instance. *api.Client
// satisfies it.
type NeighborSource interface {
	GetInstanceNeighbors(ctx context.Context, id string) (*api.Neighbor, error)
}

// State is the fetch state of an Explorer.
type State struct {
	MainID     string
	IsFetching bool
	IsFetched  bool
	FetchError error
}

// Explorer holds the neighbor graph of one instance at a time.
type Explorer struct {
	source NeighborSource
	logger *slog.Logger
	sf     singleflight.Group

	mu          sync.Mutex
	state       State
	graph       *Graph
	highlighted *Endpoint
	fetchSeq    uint64
}

// NewExplorer creates an explorer loading through source.
func NewExplorer(source NeighborSource, logger *slog.Logger) *Explorer {
	return &Explorer{
		source: source,
		logger: logging.OrDiscard(logger).With("component", "graph"),
	}
}

// Fetch loads the neighbors of id and rebuilds the graph. Concurrent fetches
// of one id share a request; a fetch overtaken by a later one, or by Reset,
// leaves the state alone.
func (e *Explorer) Fetch(ctx context.Context, id string) error {
	e.mu.Lock()
	e.fetchSeq++
	seq := e.fetchSeq
	e.state.FetchError = nil
	e.state.IsFetched = false
	e.state.IsFetching = true
	e.mu.Unlock()

	v, err, _ := e.sf.Do(id, func() (any, error) {
		return e.source.GetInstanceNeighbors(ctx, id)
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq != e.fetchSeq {
		return err
	}
	e.state.IsFetching = false
	if err != nil {
		e.state.FetchError = fmt.Errorf("fetch neighbors of %s: %w", id, err)
		e.logger.Warn("neighbor fetch failed", "id", id, "error", err)
		return e.state.FetchError
	}
	root := v.(*api.Neighbor)
	if root == nil {
		e.state.FetchError = fmt.Errorf("fetch neighbors of %s: empty response", id)
		return e.state.FetchError
	}
	e.state.MainID = id
	e.state.IsFetched = true
	e.graph = Build(*root)
	e.highlighted = nil
	return nil
}

// Reset drops the graph.
func (e *Explorer) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fetchSeq++
	e.state = State{}
	e.graph = nil
	e.highlighted = nil
}

// State returns the fetch state.
func (e *Explorer) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Data returns the visible graph, empty before a successful fetch.
func (e *Explorer) Data() Data {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graph == nil {
		return Data{}
	}
	return e.graph.Data()
}

// GroupsList returns the groups sorted by name.
func (e *Explorer) GroupsList() []Group {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graph == nil {
		return nil
	}
	return e.graph.Groups()
}

// SetGroupVisibility shows or hides a group.
func (e *Explorer) SetGroupVisibility(groupID string, show bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph != nil && e.graph.SetGroupVisibility(groupID, show)
}

// SetGrouping collapses or expands a group.
func (e *Explorer) SetGrouping(groupID string, grouped bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph != nil && e.graph.SetGrouping(groupID, grouped)
}

// HighlightConnections highlights (or clears) the links of a node or group.
func (e *Explorer) HighlightConnections(target Endpoint, on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graph == nil {
		return
	}
	e.graph.HighlightConnections(target, on)
	if on {
		e.highlighted = &target
	} else {
		e.highlighted = nil
	}
}

// Highlighted returns the highlighted endpoint, if any.
func (e *Explorer) Highlighted() (Endpoint, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.highlighted == nil {
		return Endpoint{}, false
	}
	return *e.highlighted, true
}
