package engine

import (
	"testing"

	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	interstate "github.com/flowgate-labs/flowgate/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardStoreWhileLive(t *testing.T) {
	store := interstate.NewMemoryStore()
	token := &accessToken{generation: 3, store: store}
	guard := newStoreGuard(token, func(*accessToken) {})

	assert.Equal(t, uint64(3), guard.Generation())
	assert.NotNil(t, guard.Store())
}

func TestGuardStorePanicsAfterRelease(t *testing.T) {
	token := &accessToken{generation: 9, store: interstate.NewMemoryStore()}
	guard := newStoreGuard(token, func(*accessToken) {})
	guard.Release()

	defer func() {
		r := recover()
		require.NotNil(t, r, "expected Store() on a released guard to panic")
		err, ok := r.(error)
		require.True(t, ok)
		require.True(t, gateerrors.IsStaleGuard(err))
		var stale *gateerrors.StaleGuardError
		require.ErrorAs(t, err, &stale)
		assert.Equal(t, uint64(9), stale.Generation)
	}()
	guard.Store()
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	releases := 0
	token := &accessToken{generation: 1, store: interstate.NewMemoryStore()}
	guard := newStoreGuard(token, func(*accessToken) { releases++ })

	guard.Release()
	guard.Release()
	guard.Release()

	assert.Equal(t, 1, releases, "only the first Release may send the return")
}
