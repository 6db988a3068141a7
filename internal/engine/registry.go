package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/flow"
)

// State codes stored in flowEntry.state. Numeric so transitions can use CAS;
// the Returning->Idle edge races with the flow's next Borrow setting
// Requesting, and exactly one side must win.
const (
	stIdle int32 = iota
	stRequesting
	stGranted
	stReturning
	stCompleted
	stFailed
)

func stateOf(code int32) flow.State {
	switch code {
	case stIdle:
		return flow.StateIdle
	case stRequesting:
		return flow.StateRequesting
	case stGranted:
		return flow.StateGranted
	case stReturning:
		return flow.StateReturning
	case stCompleted:
		return flow.StateCompleted
	case stFailed:
		return flow.StateFailed
	default:
		return flow.StateIdle
	}
}

// flowEntry is the host's record of one running flow: its handoff channel,
// lifecycle state, cancellation handle, and per-flow counters.
type flowEntry struct {
	id      flow.ID
	name    string
	channel *handoffChannel
	state   atomic.Int32
	cancel  context.CancelFunc
	// done is closed by the worker when the flow body has finished and its
	// outcome is recorded.
	done      chan struct{}
	startTime time.Time
	grants    atomic.Int64
	holdNanos atomic.Int64
}

func newFlowEntry(id flow.ID, name string, cancel context.CancelFunc) *flowEntry {
	return &flowEntry{
		id:        id,
		name:      name,
		channel:   newHandoffChannel(),
		cancel:    cancel,
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
}

func (e *flowEntry) currentState() flow.State {
	return stateOf(e.state.Load())
}

func (e *flowEntry) setState(code int32) {
	e.state.Store(code)
}

func (e *flowEntry) casState(from, to int32) bool {
	return e.state.CompareAndSwap(from, to)
}

func (e *flowEntry) finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// flowRegistry holds active flow entries in start order. The servicing pass
// iterates insertion order, which is what gives the handoff protocol its
// FIFO fairness between flows that requested in the same cycle.
type flowRegistry struct {
	mu      sync.RWMutex
	order   []*flowEntry
	entries map[flow.ID]*flowEntry
}

func newFlowRegistry() *flowRegistry {
	return &flowRegistry{
		entries: make(map[flow.ID]*flowEntry),
	}
}

func (r *flowRegistry) add(entry *flowEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, entry)
	r.entries[entry.id] = entry
}

func (r *flowRegistry) get(id flow.ID) (*flowEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	return entry, ok
}

func (r *flowRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// snapshot returns the entries in insertion order. The servicing pass works
// off the snapshot so flows started mid-pass join the next cycle.
func (r *flowRegistry) snapshot() []*flowEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*flowEntry, len(r.order))
	copy(out, r.order)
	return out
}

// all returns every registered entry, for shutdown cancellation.
func (r *flowRegistry) all() []*flowEntry {
	return r.snapshot()
}

// remove drops a finished entry. Start order of the remaining entries is
// preserved.
func (r *flowRegistry) remove(id flow.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return
	}
	delete(r.entries, id)
	for i, entry := range r.order {
		if entry.id == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
