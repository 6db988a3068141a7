package engine

import (
	"context"
	"sync/atomic"

	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
)

// handoffChannel carries one request/grant/return cycle between a single
// flow and the host loop. Each leg is a buffered channel of capacity one,
// so neither side ever blocks sending its half of a committed cycle.
//
// The inFlight latch enforces the single-outstanding-cycle rule: a flow
// cannot signal a second request until its previous cycle's guard has been
// released. The latch is set by signalRequest and cleared on the flow side
// at release time (or at retraction), which permits the common pattern of
// releasing a guard and immediately requesting again; the fresh request
// simply waits in the buffer for the next servicing pass.
type handoffChannel struct {
	request  chan struct{}
	grant    chan *accessToken
	ret      chan *accessToken
	inFlight atomic.Bool
}

func newHandoffChannel() *handoffChannel {
	return &handoffChannel{
		request: make(chan struct{}, 1),
		grant:   make(chan *accessToken, 1),
		ret:     make(chan *accessToken, 1),
	}
}

// signalRequest publishes an access request. It fails with a
// ProtocolViolationError if a cycle is already in flight for this flow.
func (c *handoffChannel) signalRequest(flowID string) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return gateerrors.NewProtocolViolationError(flowID, "access requested while a previous handoff cycle is still in flight")
	}
	c.request <- struct{}{}
	return nil
}

// tryTakeRequest consumes a pending request if one exists. The host's
// servicing pass calls it to commit to a grant; a cancelled flow calls it on
// its own channel to retract. Channel receive semantics guarantee exactly
// one of the two wins.
func (c *handoffChannel) tryTakeRequest() bool {
	select {
	case <-c.request:
		return true
	default:
		return false
	}
}

// grantAccess delivers the token to the waiting flow. Only called after
// tryTakeRequest succeeded, so the buffer slot is always free.
func (c *handoffChannel) grantAccess(token *accessToken) {
	c.grant <- token
}

// awaitGrant suspends the flow until the host grants access, the flow's
// context is cancelled, or the host closes.
//
// On cancellation or close the flow first tries to retract its own pending
// request. If the retraction wins, no grant will ever arrive: the latch is
// cleared and retracted is true. If the host already committed, the grant is
// consumed and immediately returned so the host loop, which is blocked on
// awaitReturn, is never stalled by a vanishing flow.
func (c *handoffChannel) awaitGrant(ctx context.Context, closed <-chan struct{}) (token *accessToken, retracted bool, err error) {
	select {
	case token = <-c.grant:
		return token, false, nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-closed:
		err = gateerrors.NewHostClosedError()
	}

	if c.tryTakeRequest() {
		c.inFlight.Store(false)
		return nil, true, err
	}

	// The host committed first; the grant is inbound. Take it and give it
	// straight back.
	token = <-c.grant
	c.inFlight.Store(false)
	c.ret <- token
	return nil, false, err
}

// signalReturn hands the token back to the host. Called from the guard's
// release path after the latch has been cleared.
func (c *handoffChannel) signalReturn(token *accessToken) {
	c.ret <- token
}

// clearInFlight releases the latch so the flow may request again. Called on
// the flow side before the return is sent, which allows release-then-borrow
// without a window where the fresh request is misreported as a violation.
func (c *handoffChannel) clearInFlight() {
	c.inFlight.Store(false)
}

// drainStaleReturn consumes a token left buffered in ret by a servicing
// pass that aborted before its awaitReturn completed. The host calls it
// before granting so a resumed pass never mistakes the old cycle's return
// for the new one.
func (c *handoffChannel) drainStaleReturn() (*accessToken, bool) {
	select {
	case token := <-c.ret:
		return token, true
	default:
		return nil, false
	}
}

// awaitReturn blocks the host loop until the flow returns the token. A
// context error here means the host was torn down while a flow still held
// the store; the cycle is left unfinished and the caller reports it.
func (c *handoffChannel) awaitReturn(ctx context.Context) (*accessToken, error) {
	select {
	case token := <-c.ret:
		return token, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
