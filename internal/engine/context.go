package engine

import (
	"context"
	"sync"
	"time"

	"github.com/flowgate-labs/flowgate/internal/retry"
	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/events"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/flow"
	gatelog "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/log"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/state"
)

// flowContext is the capability object handed to a flow body. All store
// access funnels through Borrow; the conveniences are built on top of it.
type flowContext struct {
	id    flow.ID
	name  string
	log   gatelog.Logger
	host  *Host
	entry *flowEntry

	mu      sync.Mutex
	current *storeGuard
}

var _ flow.Context = (*flowContext)(nil)

func newFlowContext(host *Host, entry *flowEntry, log gatelog.Logger) *flowContext {
	return &flowContext{
		id:    entry.id,
		name:  entry.name,
		log:   log,
		host:  host,
		entry: entry,
	}
}

func (fc *flowContext) ID() flow.ID  { return fc.id }
func (fc *flowContext) Name() string { return fc.name }

func (fc *flowContext) Logger() gatelog.Logger { return fc.log }

// Borrow requests exclusive store access and suspends until the host grants
// it inside a servicing pass. See flow.Context for the full contract.
func (fc *flowContext) Borrow(ctx context.Context) (flow.Guard, error) {
	if fc.host.isClosed() {
		return nil, gateerrors.NewHostClosedError()
	}

	fc.mu.Lock()
	if fc.current != nil {
		fc.mu.Unlock()
		return nil, gateerrors.NewProtocolViolationError(string(fc.id), "borrow attempted while a live guard is still held")
	}
	fc.mu.Unlock()

	// State flips to Requesting before the request is published; the host
	// may take the request and set Granted the instant it is visible.
	fc.entry.setState(stRequesting)
	if err := fc.entry.channel.signalRequest(string(fc.id)); err != nil {
		fc.entry.casState(stRequesting, stIdle)
		return nil, err
	}
	fc.host.emitFlowEvent(events.AccessRequested, fc.entry, 0)
	requestedAt := time.Now()

	token, retractedReq, err := fc.entry.channel.awaitGrant(ctx, fc.host.closedCh())
	if err != nil {
		if retractedReq {
			fc.entry.casState(stRequesting, stIdle)
			fc.host.emitFlowEvent(events.AccessRetracted, fc.entry, 0)
			fc.log.Debugf("Retracted pending access request: %v", err)
		} else {
			// The host had committed; the grant was consumed and handed
			// straight back inside awaitGrant.
			fc.log.Debugf("Grant consumed and immediately returned on cancellation: %v", err)
		}
		return nil, err
	}

	fc.host.observeGrantWait(time.Since(requestedAt))

	guard := newStoreGuard(token, func(tok *accessToken) {
		fc.mu.Lock()
		fc.current = nil
		fc.mu.Unlock()
		fc.entry.casState(stGranted, stReturning)
		fc.entry.channel.clearInFlight()
		fc.entry.channel.signalReturn(tok)
	})

	fc.mu.Lock()
	fc.current = guard
	fc.mu.Unlock()
	return guard, nil
}

// With borrows the store, runs fn against it, and releases the guard when fn
// returns. The deferred release also fires if fn panics, so a panicking flow
// body never strands the host loop.
func (fc *flowContext) With(ctx context.Context, fn func(st state.Store) error) error {
	guard, err := fc.Borrow(ctx)
	if err != nil {
		return err
	}
	defer guard.Release()
	return fn(guard.Store())
}

// Get performs a single borrow cycle to read one key.
func (fc *flowContext) Get(ctx context.Context, key string) (interface{}, bool, error) {
	var value interface{}
	var exists bool
	err := fc.With(ctx, func(st state.Store) error {
		value, exists = st.Get(key)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, exists, nil
}

// Set performs a single borrow cycle to write one key.
func (fc *flowContext) Set(ctx context.Context, key string, value interface{}) error {
	return fc.With(ctx, func(st state.Store) error {
		return st.Set(key, value)
	})
}

// Delete performs a single borrow cycle to remove one key.
func (fc *flowContext) Delete(ctx context.Context, key string) error {
	return fc.With(ctx, func(st state.Store) error {
		return st.Delete(key)
	})
}

// Await repeatedly borrows the store until cond yields a value. Each probe
// costs one full handoff cycle, so the condition is evaluated at most once
// per serviced host update cycle.
func (fc *flowContext) Await(ctx context.Context, cond func(st state.StateReader) (interface{}, bool)) (interface{}, error) {
	for {
		guard, err := fc.Borrow(ctx)
		if err != nil {
			return nil, err
		}
		value, ok := cond(guard.Store())
		guard.Release()
		if ok {
			return value, nil
		}
	}
}

// Retry runs op under the given policy using the host's retry helper. It
// never touches the store; it is for the flow's own flaky sub-operations.
func (fc *flowContext) Retry(ctx context.Context, policy flow.RetryPolicy, op func(ctx context.Context) error) error {
	opName := fc.name
	if opName == "" {
		opName = string(fc.id)
	}
	return fc.host.retryHelper().Do(ctx, retry.Config{
		Attempts:      policy.Attempts,
		Delay:         policy.Delay,
		MaxDelay:      policy.MaxDelay,
		BackoffFactor: policy.BackoffFactor,
		Jitter:        policy.Jitter,
		OnError:       true,
		OpName:        opName,
	}, retry.Operation(op))
}

// releaseHeldGuard releases any guard the body left live. The worker calls
// it after the body exits, normally or by panic, so the host loop is never
// stranded waiting on a return that will not come.
func (fc *flowContext) releaseHeldGuard() {
	fc.mu.Lock()
	guard := fc.current
	fc.mu.Unlock()
	if guard != nil {
		fc.log.Warnf("Flow body exited while holding a store guard; releasing it")
		guard.Release()
	}
}
