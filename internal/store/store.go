// Package store caches knowledge-graph instances on the client. Full records
// and labels are fetched through two batching queues; readers observe changes
// by subscribing to events.
package store

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gravitrone/kgeditor/internal/api"
	"github.com/gravitrone/kgeditor/internal/logging"
)

const (
	DefaultThreshold = 1000
	DefaultDelay     = 250 * time.Millisecond
)

var (
	ErrNotCached      = errors.New("instance not cached")
	ErrNotLoaded      = errors.New("instance data not loaded")
	ErrSaveInProgress = errors.New("save already in progress")
	ErrUnknownField   = errors.New("unknown field")
)

// Source is the transport the store reads and writes through. *api.Client
// satisfies it.
type Source interface {
	GetInstancesList(ctx context.Context, stage string, ids []string) (map[string]api.Result[api.Instance], error)
	GetInstancesLabel(ctx context.Context, stage string, ids []string) (map[string]api.Result[api.InstanceLabel], error)
	GetInstance(ctx context.Context, id string) (*api.Instance, error)
	CreateInstance(ctx context.Context, space, id string, payload map[string]any) (*api.Instance, error)
	PatchInstance(ctx context.Context, id string, payload map[string]any) (*api.Instance, error)
}

// Options tunes a Store. Zero values pick the defaults.
type Options struct {
	Stage          string
	Threshold      int
	Delay          time.Duration
	RequestTimeout time.Duration
	Logger         *slog.Logger
	Metrics        *Metrics
}

// EventKind tells subscribers what changed.
type EventKind int

const (
	// EventUpdated: status, values or flags of IDs changed.
	EventUpdated EventKind = iota + 1
	// EventFetched: full records for IDs arrived.
	EventFetched
	// EventRemoved: IDs left the cache.
	EventRemoved
	// EventRekeyed: OldID was saved and is now IDs[0].
	EventRekeyed
	// EventSaved: IDs were saved.
	EventSaved
	// EventFlushed: the whole cache was cleared.
	EventFlushed
)

// Event is a change notification.
type Event struct {
	Kind  EventKind
	IDs   []string
	OldID string
}

// Preview is the instance shown in the side preview.
type Preview struct {
	ID   string
	Name string
}

// Store is the entity cache. All methods are safe for concurrent use;
// subscribers are called without the store lock held.
type Store struct {
	source  Source
	stage   string
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	instances    map[string]*Instance
	linked       map[string][]string
	availability map[string]*Availability
	preview      *Preview
	seq          uint64
	gen          uint64

	subMu   sync.RWMutex
	subs    map[int]func(Event)
	nextSub int

	full   *fetchQueue
	labels *fetchQueue
	sf     singleflight.Group
}

// New creates a store fetching through source.
func New(source Source, opts Options) *Store {
	if opts.Stage == "" {
		opts.Stage = api.DefaultStage
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		source:       source,
		stage:        opts.Stage,
		timeout:      opts.RequestTimeout,
		logger:       logging.OrDiscard(opts.Logger).With("component", "store"),
		metrics:      opts.Metrics,
		ctx:          ctx,
		cancel:       cancel,
		instances:    make(map[string]*Instance),
		linked:       make(map[string][]string),
		availability: make(map[string]*Availability),
		subs:         make(map[int]func(Event)),
	}
	s.full = newFetchQueue(opts.Threshold, opts.Delay, s.fetchBatch)
	s.labels = newFetchQueue(opts.Threshold, opts.Delay, s.fetchLabelBatch)
	return s
}

// Close stops both queues and cancels in-flight requests.
func (s *Store) Close() {
	s.full.close()
	s.labels.close()
	s.cancel()
}

// Stage returns the stage requested by bulk reads.
func (s *Store) Stage() string {
	return s.stage
}

// Wait blocks until both queues are idle.
func (s *Store) Wait() {
	s.full.wait()
	s.labels.wait()
}

// --- Subscriptions ---

// Subscribe registers fn for every change. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(events ...Event) {
	s.subMu.RLock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, ev := range events {
		if ev.Kind != EventFlushed && len(ev.IDs) == 0 {
			continue
		}
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// --- Cache ---

// GetOrCreate returns the cached record for id, creating an empty placeholder
// when absent.
func (s *Store) GetOrCreate(id string) Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(id).clone()
}

func (s *Store) getOrCreateLocked(id string) *Instance {
	if inst, ok := s.instances[id]; ok {
		return inst
	}
	s.seq++
	inst := &Instance{ID: id, seq: s.seq}
	s.instances[id] = inst
	s.invalidateLinked()
	return inst
}

// Get returns a copy of the cached record for id.
func (s *Store) Get(id string) (Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return Instance{}, false
	}
	return inst.clone(), true
}

// Has reports whether id is cached.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.instances[id]
	return ok
}

// IDs returns every cached id, sorted.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Remove deletes the given ids unconditionally.
func (s *Store) Remove(ids ...string) {
	s.mu.Lock()
	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.instances[id]; ok {
			delete(s.instances, id)
			removed = append(removed, id)
		}
	}
	if s.preview != nil && slices.Contains(removed, s.preview.ID) {
		s.preview = nil
	}
	if len(removed) > 0 {
		s.invalidateLinked()
	}
	s.mu.Unlock()

	s.emit(Event{Kind: EventRemoved, IDs: removed})
}

// Flush clears the cache and the id availability checks.
func (s *Store) Flush() {
	s.mu.Lock()
	s.instances = make(map[string]*Instance)
	s.availability = make(map[string]*Availability)
	s.preview = nil
	s.invalidateLinked()
	s.mu.Unlock()

	s.emit(Event{Kind: EventFlushed})
}

// --- Linked ids ---

// LinkedIDs returns id plus every cached instance reachable from it through
// ChildrenIDs. Cycles are cut by the visited set. Results are memoized until
// the cache membership or any children list changes.
func (s *Store) LinkedIDs(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.linkedLocked(id))
}

func (s *Store) linkedLocked(id string) []string {
	if ids, ok := s.linked[id]; ok {
		return ids
	}

	visited := map[string]bool{id: true}
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		inst, ok := s.instances[cur]
		if !ok {
			continue
		}
		for _, child := range inst.ChildrenIDs {
			if visited[child] {
				continue
			}
			if _, cached := s.instances[child]; !cached {
				continue
			}
			visited[child] = true
			stack = append(stack, child)
		}
	}

	ids := make([]string, 0, len(visited))
	for v := range visited {
		ids = append(ids, v)
	}
	slices.Sort(ids)
	s.linked[id] = ids
	return ids
}

func (s *Store) invalidateLinked() {
	clear(s.linked)
}

func (s *Store) nextGen() uint64 {
	s.gen++
	return s.gen
}

// --- Fetching ---

// Fetch queues a full-record fetch. It is skipped while a fetch or a save is
// running, and for fetched records unless force is set.
func (s *Store) Fetch(id string, force bool) {
	s.mu.Lock()
	inst := s.getOrCreateLocked(id)
	skip := inst.IsNew || inst.Saving || inst.Status == StatusFetching || (inst.Status == StatusFetched && !force)
	s.mu.Unlock()

	if !skip {
		s.full.enqueue(id)
	}
}

// FetchLabel queues a label fetch unless the record or its label is already
// loaded or loading.
func (s *Store) FetchLabel(id string, force bool) {
	s.mu.Lock()
	inst := s.getOrCreateLocked(id)
	skip := inst.Status == StatusFetching || inst.LabelStatus == StatusFetching ||
		(!force && (inst.Status == StatusFetched || inst.LabelStatus == StatusFetched))
	s.mu.Unlock()

	if !skip {
		s.labels.enqueue(id)
	}
}

func (s *Store) requestContext() (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(s.ctx, s.timeout)
	}
	return context.WithCancel(s.ctx)
}

// fetchBatch is the dispatch of the full-record queue.
func (s *Store) fetchBatch(ids []string) {
	s.mu.Lock()
	gen := s.nextGen()
	marked := make([]string, 0, len(ids))
	for _, id := range ids {
		inst, ok := s.instances[id]
		// A save started after the enqueue owns the record until it returns.
		if !ok || inst.Saving {
			continue
		}
		inst.Status = StatusFetching
		inst.Err = nil
		inst.SaveErr = nil
		inst.CancelChangesPending = false
		inst.generation = gen
		marked = append(marked, id)
	}
	s.mu.Unlock()
	if len(marked) == 0 {
		return
	}
	s.emit(Event{Kind: EventUpdated, IDs: marked})
	ids = marked

	ctx, cancel := s.requestContext()
	results, err := s.source.GetInstancesList(ctx, s.stage, ids)
	cancel()
	s.metrics.observeBatch(queueInstances, len(ids), err)
	if err != nil {
		s.logger.Warn("instance batch failed", "ids", len(ids), "error", err)
	}

	s.mu.Lock()
	var updated, fetched, children []string
	for _, id := range ids {
		inst, ok := s.instances[id]
		if !ok {
			continue
		}
		if inst.generation > gen {
			s.discardStale(queueInstances, id, gen, inst.generation)
			continue
		}
		updated = append(updated, id)

		if err != nil {
			s.failLocked(inst, requestError(err))
			continue
		}
		res, ok := results[id]
		switch {
		case !ok || (res.Data == nil && res.Error == nil):
			s.failLocked(inst, missingError())
		case res.Error != nil:
			s.failLocked(inst, itemError(res.Error))
		default:
			if res.Data.ID == "" {
				res.Data.ID = id
			}
			inst.initialize(res.Data)
			inst.generation = gen
			fetched = append(fetched, id)
			children = append(children, s.adoptChildrenLocked(inst)...)
			s.metrics.observeResult(queueInstances, "fetched")
		}
	}
	s.invalidateLinked()
	s.mu.Unlock()

	for _, child := range children {
		s.FetchLabel(child, false)
	}
	s.emit(Event{Kind: EventUpdated, IDs: updated}, Event{Kind: EventFetched, IDs: fetched})
}

func (s *Store) failLocked(inst *Instance, ferr *FetchError) {
	inst.Status = StatusErrored
	inst.Err = ferr
	s.metrics.observeResult(queueInstances, ferr.Kind.String())
}

// fetchLabelBatch is the dispatch of the label queue.
func (s *Store) fetchLabelBatch(ids []string) {
	s.mu.Lock()
	gen := s.nextGen()
	marked := make([]string, 0, len(ids))
	for _, id := range ids {
		inst, ok := s.instances[id]
		if !ok {
			continue
		}
		inst.LabelStatus = StatusFetching
		inst.LabelErr = nil
		inst.labelGeneration = gen
		marked = append(marked, id)
	}
	s.mu.Unlock()
	s.emit(Event{Kind: EventUpdated, IDs: marked})

	ctx, cancel := s.requestContext()
	results, err := s.source.GetInstancesLabel(ctx, s.stage, ids)
	cancel()
	s.metrics.observeBatch(queueLabels, len(ids), err)
	if err != nil {
		s.logger.Warn("label batch failed", "ids", len(ids), "error", err)
	}

	s.mu.Lock()
	var updated []string
	for _, id := range ids {
		inst, ok := s.instances[id]
		if !ok {
			continue
		}
		if inst.labelGeneration > gen {
			s.discardStale(queueLabels, id, gen, inst.labelGeneration)
			continue
		}
		updated = append(updated, id)

		var ferr *FetchError
		res, ok := results[id]
		switch {
		case err != nil:
			ferr = requestError(err)
		case !ok || (res.Data == nil && res.Error == nil):
			ferr = missingError()
		case res.Error != nil:
			ferr = itemError(res.Error)
		}
		if ferr != nil {
			inst.LabelStatus = StatusErrored
			inst.LabelErr = ferr
			s.metrics.observeResult(queueLabels, ferr.Kind.String())
			continue
		}
		inst.Label = res.Data
		inst.LabelStatus = StatusFetched
		inst.labelGeneration = gen
		s.metrics.observeResult(queueLabels, "fetched")
	}
	s.mu.Unlock()

	s.emit(Event{Kind: EventUpdated, IDs: updated})
}

func (s *Store) discardStale(queue, id string, batch, record uint64) {
	s.logger.Warn("discarded stale fetch result",
		"queue", queue, "id", id, "batch_generation", batch, "record_generation", record)
	s.metrics.observeStale(queue)
}

// adoptChildrenLocked creates placeholders for children not yet cached and
// returns their ids so the caller can queue label fetches.
func (s *Store) adoptChildrenLocked(inst *Instance) []string {
	var created []string
	for _, child := range inst.ChildrenIDs {
		if _, ok := s.instances[child]; ok {
			continue
		}
		s.getOrCreateLocked(child)
		created = append(created, child)
	}
	return created
}

// --- Preview ---

// TogglePreview shows id in the preview, or hides it when it is already shown
// or id is empty.
func (s *Store) TogglePreview(id, name string) {
	s.mu.Lock()
	if id == "" || (s.preview != nil && s.preview.ID == id) {
		s.preview = nil
	} else {
		s.preview = &Preview{ID: id, Name: name}
	}
	s.mu.Unlock()
	s.emit(Event{Kind: EventUpdated, IDs: []string{id}})
}

// Preview returns the previewed instance, if any.
func (s *Store) Preview() (Preview, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preview == nil {
		return Preview{}, false
	}
	return *s.preview, true
}
