package store

import (
	"sync"
	"time"
)

// queueState is the scheduler state of a fetchQueue.
type queueState int

const (
	stateIdle queueState = iota
	stateWaiting
	stateInFlight
)

func (s queueState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateWaiting:
		return "waiting"
	case stateInFlight:
		return "in_flight"
	default:
		return "unknown"
	}
}

// fetchQueue coalesces ids into batches. Pending ids are dispatched once the
// delay elapses without a new enqueue, or at once when the threshold is
// reached. Only one batch is in flight at a time; the scheduler re-evaluates
// when it resolves.
type fetchQueue struct {
	mu        sync.Mutex
	threshold int
	delay     time.Duration
	dispatch  func(ids []string)

	pending []string
	// queued holds pending and in-flight ids.
	queued   map[string]struct{}
	state    queueState
	timer    *time.Timer
	timerSeq uint64
	closed   bool
	idle     *sync.Cond
}

func newFetchQueue(threshold int, delay time.Duration, dispatch func(ids []string)) *fetchQueue {
	if threshold < 1 {
		threshold = 1
	}
	q := &fetchQueue{
		threshold: threshold,
		delay:     delay,
		dispatch:  dispatch,
		queued:    make(map[string]struct{}),
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// enqueue adds id unless it is already pending or in flight. It reports
// whether the id was added.
func (q *fetchQueue) enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, ok := q.queued[id]; ok {
		return false
	}
	q.queued[id] = struct{}{}
	q.pending = append(q.pending, id)
	q.evaluate()
	return true
}

// evaluate runs the scheduler. Caller holds q.mu.
func (q *fetchQueue) evaluate() {
	if q.state == stateInFlight {
		return
	}
	switch {
	case len(q.pending) == 0:
		q.stopTimer()
		q.state = stateIdle
		q.idle.Broadcast()
	case len(q.pending) >= q.threshold:
		q.stopTimer()
		q.fire()
	default:
		q.armTimer()
	}
}

func (q *fetchQueue) armTimer() {
	q.stopTimer()
	q.state = stateWaiting
	seq := q.timerSeq
	q.timer = time.AfterFunc(q.delay, func() { q.onTimer(seq) })
}

// stopTimer cancels the pending delay. A callback already running sees a
// stale sequence number and returns.
func (q *fetchQueue) stopTimer() {
	q.timerSeq++
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

func (q *fetchQueue) onTimer(seq uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if seq != q.timerSeq || q.state != stateWaiting || q.closed {
		return
	}
	q.timer = nil
	q.fire()
}

// fire dispatches up to threshold pending ids. Caller holds q.mu.
func (q *fetchQueue) fire() {
	n := min(len(q.pending), q.threshold)
	batch := make([]string, n)
	copy(batch, q.pending[:n])
	q.pending = append(q.pending[:0:0], q.pending[n:]...)
	q.state = stateInFlight

	go func() {
		q.dispatch(batch)
		q.complete(batch)
	}()
}

func (q *fetchQueue) complete(batch []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range batch {
		delete(q.queued, id)
	}
	q.state = stateIdle
	if q.closed {
		q.idle.Broadcast()
		return
	}
	q.evaluate()
}

// snapshot returns the scheduler state and the number of pending ids.
func (q *fetchQueue) snapshot() (queueState, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state, len(q.pending)
}

// wait blocks until nothing is pending or in flight.
func (q *fetchQueue) wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.state != stateIdle || (len(q.pending) > 0 && !q.closed) {
		q.idle.Wait()
	}
}

// close drops pending ids and stops the timer. An in-flight batch completes.
func (q *fetchQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.stopTimer()
	for _, id := range q.pending {
		delete(q.queued, id)
	}
	q.pending = nil
	if q.state != stateInFlight {
		q.state = stateIdle
	}
	q.idle.Broadcast()
}
