package engine

import (
	"sync/atomic"

	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/flow"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/state"
)

// accessToken is the capability that travels host -> flow -> host during one
// handoff cycle. Each grant mints a fresh token with a strictly increasing
// generation, so a holder from an earlier cycle can never be confused with
// the current one.
type accessToken struct {
	generation uint64
	store      state.Store
}

// storeGuard is the flow-side wrapper around a granted token. It implements
// flow.Guard: store access while live, an idempotent Release, and a
// fail-fast panic on use after release.
type storeGuard struct {
	token    *accessToken
	released atomic.Bool
	// onRelease sends the token back to the host and performs the
	// bookkeeping for the owning flow. Invoked exactly once.
	onRelease func(*accessToken)
}

var _ flow.Guard = (*storeGuard)(nil)

func newStoreGuard(token *accessToken, onRelease func(*accessToken)) *storeGuard {
	return &storeGuard{token: token, onRelease: onRelease}
}

// Store returns the shared store. Panics with a *StaleGuardError if the
// guard has been released; the worker boundary converts the panic into a
// flow failure.
func (g *storeGuard) Store() state.Store {
	if g.released.Load() {
		panic(gateerrors.NewStaleGuardError(g.token.generation))
	}
	return g.token.store
}

// Generation returns the token generation this guard was granted under.
func (g *storeGuard) Generation() uint64 {
	return g.token.generation
}

// Release sends the return and reclaims the host loop. Only the first call
// has any effect.
func (g *storeGuard) Release() {
	if g.released.CompareAndSwap(false, true) {
		g.onRelease(g.token)
	}
}
