// Package flow defines the public surface seen by flow bodies: the context
// capability object, the access guard, and the state machine vocabulary.
//
// A Flow is a long-running unit of work executing on its own dedicated
// thread. It periodically needs exclusive access to the shared store owned by
// the host's main loop; it obtains that access through Context.Borrow (or one
// of the conveniences built on it) and gives it back by releasing the Guard.
// Between a release and the next borrow the flow runs purely against its own
// local state, without touching the host at all.
package flow

import (
	"context"
	"time"

	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/log"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/state"
)

// ID is the opaque unique identifier of a flow, assigned when the flow is
// started and stable for its lifetime.
type ID string

// State is the lifecycle state of a flow, driven only by the handoff
// protocol and by terminal completion or failure of the worker.
type State string

const (
	// StateIdle: the flow is running local work and holds no request or grant.
	StateIdle State = "Idle"
	// StateRequesting: the flow has signalled a request and awaits a grant.
	StateRequesting State = "Requesting"
	// StateGranted: the flow holds the token; the host loop is blocked on its return.
	StateGranted State = "Granted"
	// StateReturning: the guard was released and the return is being drained.
	StateReturning State = "Returning"
	// StateCompleted: the flow body finished normally. Terminal.
	StateCompleted State = "Completed"
	// StateFailed: the flow body returned an error or panicked. Terminal.
	StateFailed State = "Failed"
)

// Terminal reports whether the state is one of the two terminal states.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Body is a flow body: a long-running unit of work given a Context as its
// only way to reach the shared store. Returning nil completes the flow;
// returning an error (or panicking) fails it. Any guard still held when the
// body exits is released before the outcome is recorded.
type Body func(ctx context.Context, fc Context) error

// Factory builds a flow body from scenario parameters. Factories registered
// in a Catalog let scenario files start flows by type name.
type Factory func(params map[string]interface{}) (Body, error)

// Catalog is a registry of named flow factories. Implementations must be
// safe for concurrent use.
type Catalog interface {
	// Register associates a flow type name with its factory. It returns an
	// error if the name is empty, the factory is nil, or the name is taken.
	Register(name string, factory Factory) error

	// Get retrieves the factory for a flow type name, or a
	// FlowTypeNotFound-style error if it is not registered.
	Get(name string) (Factory, error)

	// List returns the names of all registered flow types, in no particular order.
	List() []string
}

// Guard is a scoped handle representing one grant of exclusive store access.
// While a flow holds a live Guard, the host's update cycle is blocked, so
// borrowed scopes should stay short.
//
// A Guard is not safe for use after Release: Store panics with a
// StaleGuardError once the return has been sent. The panic is captured at
// the worker boundary and fails the flow, which is the intended fail-fast
// behavior for this class of programming error.
type Guard interface {
	// Store returns the shared store. It panics with a
	// *errors.StaleGuardError if the guard has been released.
	Store() state.Store

	// Generation returns the token generation this guard was granted under.
	Generation() uint64

	// Release sends the return and reclaims the host loop. It is safe to
	// call more than once; only the first call sends the return.
	Release()
}

// RetryPolicy configures Context.Retry for a flow's own flaky
// sub-operations (network reads, external services). The flow itself is
// never retried on failure.
type RetryPolicy struct {
	Attempts      int
	Delay         time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64
}

// Context is the capability object handed to a flow body. It is the body's
// only way to reach the shared store, and it holds no access of its own
// between borrows.
type Context interface {
	// ID returns the flow's unique identifier.
	ID() ID
	// Name returns the flow's human-readable name (may be empty).
	Name() string
	// Logger returns a logger scoped to this flow.
	Logger() log.Logger

	// Borrow requests exclusive access to the shared store and suspends
	// until the host grants it inside its next serviced update cycle. The
	// returned Guard must be released promptly; the host loop is stalled for
	// exactly as long as it is held.
	//
	// A second Borrow while a cycle is already in flight returns a
	// ProtocolViolationError. If ctx is cancelled while waiting, the pending
	// request is retracted (or, if the host already committed, the grant is
	// taken and immediately returned) and the context error is returned.
	Borrow(ctx context.Context) (Guard, error)

	// With borrows the store, runs fn against it, and releases the guard
	// when fn returns, even if fn panics.
	With(ctx context.Context, fn func(st state.Store) error) error

	// Get performs a single borrow cycle to read one key.
	Get(ctx context.Context, key string) (interface{}, bool, error)
	// Set performs a single borrow cycle to write one key.
	Set(ctx context.Context, key string, value interface{}) error
	// Delete performs a single borrow cycle to remove one key.
	Delete(ctx context.Context, key string) error

	// Await repeatedly borrows the store, one request/grant/return cycle per
	// serviced host update cycle, until cond yields a value. The condition
	// sees a read-only view and must not retain references into it.
	Await(ctx context.Context, cond func(st state.StateReader) (interface{}, bool)) (interface{}, error)

	// Retry runs op with the given policy. It is meant for the flow's own
	// I/O-bound sub-operations and never touches the store or other threads.
	Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error
}
