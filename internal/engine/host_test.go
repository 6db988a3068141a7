package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	interevents "github.com/flowgate-labs/flowgate/internal/events"
	"github.com/flowgate-labs/flowgate/internal/logger"
	interstate "github.com/flowgate-labs/flowgate/internal/state"
	v1 "github.com/flowgate-labs/flowgate/pkg/flowgate/v1"
	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/flow"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/state"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHost(t *testing.T, opts ...v1.HostOption) *Host {
	t.Helper()
	h, err := NewHost(logger.NewDefaultLogger("error"), opts...)
	require.NoError(t, err)
	return h
}

// drive runs servicing passes until every flow is terminal and reaped, or
// the timeout expires.
func drive(t *testing.T, h *Host, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for h.ActiveFlows() > 0 {
		require.True(t, time.Now().Before(deadline), "flows did not finish before the deadline")
		_, err := h.ServiceAccess(context.Background())
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
}

// waitForPendingRequests gives freshly started workers time to signal their
// first access request before the test runs a servicing pass.
func waitForPendingRequests() {
	time.Sleep(200 * time.Millisecond)
}

func TestFlowWritesToStore(t *testing.T) {
	store := interstate.NewMemoryStore()
	h := newTestHost(t, v1.WithStateStore(store))

	id, err := h.StartFlow(context.Background(), "writer", func(ctx context.Context, fc flow.Context) error {
		return fc.Set(ctx, "answer", 42)
	})
	require.NoError(t, err)

	drive(t, h, 5*time.Second)

	value, ok := store.Get("answer")
	require.True(t, ok)
	assert.Equal(t, 42, value)

	status, err := h.FlowStatus(id)
	require.NoError(t, err)
	assert.Equal(t, flow.StateCompleted, status)

	result, ok := h.Result(id)
	require.True(t, ok)
	assert.Equal(t, string(flow.StateCompleted), result.Status)
	assert.Equal(t, 1, result.Grants)
	assert.GreaterOrEqual(t, result.HoldDuration, time.Duration(0))
}

func TestServicingFollowsStartOrder(t *testing.T) {
	store := interstate.NewMemoryStore()
	h := newTestHost(t, v1.WithStateStore(store))

	appendName := func(name string) flow.Body {
		return func(ctx context.Context, fc flow.Context) error {
			return fc.With(ctx, func(st state.Store) error {
				current, _ := st.Get("order")
				list, _ := current.([]interface{})
				return st.Set("order", append(list, name))
			})
		}
	}

	for _, name := range []string{"f1", "f2", "f3"} {
		_, err := h.StartFlow(context.Background(), name, appendName(name))
		require.NoError(t, err)
	}
	waitForPendingRequests()

	serviced, err := h.ServiceAccess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, serviced, "a single uncapped pass services every pending request")

	value, ok := store.Get("order")
	require.True(t, ok)
	assert.Equal(t, []interface{}{"f1", "f2", "f3"}, value)

	drive(t, h, 5*time.Second)
}

func TestServiceCapBoundsPerCycleGrants(t *testing.T) {
	h := newTestHost(t, v1.WithServiceCap(1))

	oneWrite := func(key string) flow.Body {
		return func(ctx context.Context, fc flow.Context) error {
			return fc.Set(ctx, key, true)
		}
	}
	for i := 0; i < 3; i++ {
		_, err := h.StartFlow(context.Background(), fmt.Sprintf("capped-%d", i), oneWrite(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
	}
	waitForPendingRequests()

	for pass := 0; pass < 3; pass++ {
		serviced, err := h.ServiceAccess(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, serviced, "pass %d must grant exactly one flow", pass)
	}

	drive(t, h, 5*time.Second)
	assert.Equal(t, 3, h.Report().CompletedFlows)
}

func TestBorrowedScopesNeverOverlap(t *testing.T) {
	h := newTestHost(t)

	var concurrent atomic.Int32
	var overlapped atomic.Bool

	body := func(ctx context.Context, fc flow.Context) error {
		for i := 0; i < 5; i++ {
			err := fc.With(ctx, func(st state.Store) error {
				if concurrent.Add(1) > 1 {
					overlapped.Store(true)
				}
				time.Sleep(100 * time.Microsecond)
				concurrent.Add(-1)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}

	for i := 0; i < 4; i++ {
		_, err := h.StartFlow(context.Background(), fmt.Sprintf("contender-%d", i), body)
		require.NoError(t, err)
	}

	drive(t, h, 10*time.Second)
	assert.False(t, overlapped.Load(), "two borrowed scopes were live at once")
}

func TestPanicWhileHoldingGuardFailsFlowOnly(t *testing.T) {
	h := newTestHost(t)

	bomberID, err := h.StartFlow(context.Background(), "bomber", func(ctx context.Context, fc flow.Context) error {
		guard, err := fc.Borrow(ctx)
		if err != nil {
			return err
		}
		_ = guard.Store()
		panic("boom")
	})
	require.NoError(t, err)

	steadyID, err := h.StartFlow(context.Background(), "steady", func(ctx context.Context, fc flow.Context) error {
		return fc.Set(ctx, "steady", "done")
	})
	require.NoError(t, err)

	drive(t, h, 5*time.Second)

	bomberResult, ok := h.Result(bomberID)
	require.True(t, ok)
	assert.Equal(t, string(flow.StateFailed), bomberResult.Status)
	assert.Contains(t, bomberResult.Error, "panicked")

	steadyResult, ok := h.Result(steadyID)
	require.True(t, ok)
	assert.Equal(t, string(flow.StateCompleted), steadyResult.Status)
}

func TestStaleGuardUseFailsFlow(t *testing.T) {
	h := newTestHost(t)

	id, err := h.StartFlow(context.Background(), "stale", func(ctx context.Context, fc flow.Context) error {
		guard, err := fc.Borrow(ctx)
		if err != nil {
			return err
		}
		guard.Release()
		_ = guard.Store()
		return nil
	})
	require.NoError(t, err)

	drive(t, h, 5*time.Second)

	result, ok := h.Result(id)
	require.True(t, ok)
	assert.Equal(t, string(flow.StateFailed), result.Status)
	assert.Contains(t, result.Error, "stale guard")
}

func TestSecondBorrowWhileHoldingIsViolation(t *testing.T) {
	h := newTestHost(t)

	id, err := h.StartFlow(context.Background(), "greedy", func(ctx context.Context, fc flow.Context) error {
		guard, err := fc.Borrow(ctx)
		if err != nil {
			return err
		}
		defer guard.Release()
		_, err = fc.Borrow(ctx)
		return err
	})
	require.NoError(t, err)

	drive(t, h, 5*time.Second)

	result, ok := h.Result(id)
	require.True(t, ok)
	assert.Equal(t, string(flow.StateFailed), result.Status)
	assert.Contains(t, result.Error, "protocol violation")
}

func TestDoubleReleaseThenFreshCycle(t *testing.T) {
	h := newTestHost(t)

	id, err := h.StartFlow(context.Background(), "releaser", func(ctx context.Context, fc flow.Context) error {
		guard, err := fc.Borrow(ctx)
		if err != nil {
			return err
		}
		guard.Release()
		guard.Release()
		return fc.Set(ctx, "after", true)
	})
	require.NoError(t, err)

	drive(t, h, 5*time.Second)

	result, ok := h.Result(id)
	require.True(t, ok)
	assert.Equal(t, string(flow.StateCompleted), result.Status)
	assert.Equal(t, 2, result.Grants)
}

func TestCancelledBorrowIsRetracted(t *testing.T) {
	h := newTestHost(t)

	ctx, cancel := context.WithCancel(context.Background())
	borrowErr := make(chan error, 1)

	_, err := h.StartFlow(ctx, "waiter", func(c context.Context, fc flow.Context) error {
		_, err := fc.Borrow(c)
		borrowErr <- err
		return nil
	})
	require.NoError(t, err)

	// No servicing pass runs, so the request stays pending until the
	// cancellation retracts it.
	waitForPendingRequests()
	cancel()

	select {
	case err := <-borrowErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("borrow did not observe cancellation")
	}

	drive(t, h, 5*time.Second)
	assert.Equal(t, 1, h.Report().CompletedFlows)
}

func TestAwaitSeesProducerUpdate(t *testing.T) {
	store := interstate.NewMemoryStore()
	h := newTestHost(t, v1.WithStateStore(store))

	_, err := h.StartFlow(context.Background(), "producer", func(ctx context.Context, fc flow.Context) error {
		for i := 0; i < 3; i++ {
			if err := fc.Set(ctx, fmt.Sprintf("in.%d", i), i); err != nil {
				return err
			}
		}
		return fc.Set(ctx, "in.done", 3)
	})
	require.NoError(t, err)

	_, err = h.StartFlow(context.Background(), "consumer", func(ctx context.Context, fc flow.Context) error {
		count, err := fc.Await(ctx, func(st state.StateReader) (interface{}, bool) {
			return st.Get("in.done")
		})
		if err != nil {
			return err
		}
		return fc.Set(ctx, "out", count)
	})
	require.NoError(t, err)

	drive(t, h, 10*time.Second)

	value, ok := store.Get("out")
	require.True(t, ok)
	assert.Equal(t, 3, value)
	assert.Equal(t, 2, h.Report().CompletedFlows)
}

func TestClosedHostRejectsWork(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Close(context.Background()))

	_, err := h.StartFlow(context.Background(), "late", func(ctx context.Context, fc flow.Context) error {
		return nil
	})
	var hostClosed *gateerrors.HostClosedError
	require.ErrorAs(t, err, &hostClosed)

	_, err = h.ServiceAccess(context.Background())
	require.ErrorAs(t, err, &hostClosed)
}

func TestCloseCancelsPendingBorrow(t *testing.T) {
	h := newTestHost(t)

	borrowErr := make(chan error, 1)
	_, err := h.StartFlow(context.Background(), "stranded", func(ctx context.Context, fc flow.Context) error {
		_, err := fc.Borrow(ctx)
		borrowErr <- err
		return err
	})
	require.NoError(t, err)
	waitForPendingRequests()

	require.NoError(t, h.Close(context.Background()))

	select {
	case err := <-borrowErr:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pending borrow did not observe host close")
	}
}

func TestFlowErrorReportsRecordedFailure(t *testing.T) {
	h := newTestHost(t)

	okID, err := h.StartFlow(context.Background(), "fine", func(ctx context.Context, fc flow.Context) error {
		return fc.Set(ctx, "fine", true)
	})
	require.NoError(t, err)
	badID, err := h.StartFlow(context.Background(), "broken", func(ctx context.Context, fc flow.Context) error {
		return fmt.Errorf("deliberate failure")
	})
	require.NoError(t, err)

	drive(t, h, 5*time.Second)

	require.NoError(t, h.FlowError(okID))

	var failure *gateerrors.FlowFailureError
	require.ErrorAs(t, h.FlowError(badID), &failure)
	assert.Equal(t, "broken", failure.FlowName)
	assert.Contains(t, failure.Error(), "deliberate failure")

	var notFound *gateerrors.FlowNotFoundError
	require.ErrorAs(t, h.FlowError(flow.ID("ghost")), &notFound)
}

func TestWithEventBufferSize(t *testing.T) {
	h := newTestHost(t, v1.WithEventBufferSize(8))

	bus, ok := h.eventBus.(*interevents.ChannelEventBus)
	require.True(t, ok, "the option must install a channel-backed bus")
	assert.Equal(t, 8, cap(bus.GetChannel()))

	_, err := NewHost(logger.NewDefaultLogger("error"), v1.WithEventBufferSize(0))
	require.Error(t, err)
}

func TestServicePassBlocksOnlyWhileStoreIsHeld(t *testing.T) {
	h := newTestHost(t)

	_, err := h.StartFlow(context.Background(), "slow-body", func(ctx context.Context, fc flow.Context) error {
		time.Sleep(300 * time.Millisecond)
		if err := fc.With(ctx, func(st state.Store) error {
			time.Sleep(10 * time.Millisecond)
			return st.Set("touched", true)
		}); err != nil {
			return err
		}
		time.Sleep(300 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	// Poll until a pass actually services the borrow, timing each pass;
	// only the granting pass blocks, and only for the borrowed scope.
	deadline := time.Now().Add(5 * time.Second)
	var elapsed time.Duration
	for serviced := 0; serviced == 0; {
		require.True(t, time.Now().Before(deadline), "the borrow was never serviced")
		start := time.Now()
		var err error
		serviced, err = h.ServiceAccess(context.Background())
		elapsed = time.Since(start)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	assert.Less(t, elapsed, 200*time.Millisecond,
		"the pass blocks from grant to return, not for the body's runtime")

	drive(t, h, 5*time.Second)
}

func TestStatusIsIdleBetweenBorrows(t *testing.T) {
	h := newTestHost(t)

	proceed := make(chan struct{})
	id, err := h.StartFlow(context.Background(), "pauser", func(ctx context.Context, fc flow.Context) error {
		if err := fc.Set(ctx, "first", true); err != nil {
			return err
		}
		<-proceed
		return nil
	})
	require.NoError(t, err)
	waitForPendingRequests()

	serviced, err := h.ServiceAccess(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, serviced)

	// The cycle is fully drained and the body is parked between borrows, so
	// the state machine must come back to rest rather than sticking at
	// Requesting or Granted.
	require.Eventually(t, func() bool {
		status, err := h.FlowStatus(id)
		return err == nil && status == flow.StateIdle
	}, 2*time.Second, 10*time.Millisecond)

	close(proceed)
	drive(t, h, 5*time.Second)
}

func TestAbortedPassDoesNotPoisonNextCycle(t *testing.T) {
	h := newTestHost(t)

	hold := make(chan struct{})
	id, err := h.StartFlow(context.Background(), "holder", func(ctx context.Context, fc flow.Context) error {
		guard, err := fc.Borrow(ctx)
		if err != nil {
			return err
		}
		<-hold
		guard.Release()
		return fc.Set(ctx, "second", true)
	})
	require.NoError(t, err)
	waitForPendingRequests()

	passCtx, cancelPass := context.WithCancel(context.Background())
	passErr := make(chan error, 1)
	go func() {
		_, err := h.ServiceAccess(passCtx)
		passErr <- err
	}()
	time.Sleep(100 * time.Millisecond)
	cancelPass()
	require.ErrorIs(t, <-passErr, context.Canceled)

	// The flow releases into the aborted cycle's buffer, then starts a
	// fresh cycle; servicing must discard the stale return instead of
	// mistaking it for the new cycle's.
	close(hold)
	drive(t, h, 5*time.Second)

	result, ok := h.Result(id)
	require.True(t, ok)
	assert.Equal(t, string(flow.StateCompleted), result.Status)
	assert.Equal(t, float64(0), testutil.ToFloat64(h.protocolViolationsTotal))
}

func TestReportAggregatesOutcomes(t *testing.T) {
	h := newTestHost(t)

	_, err := h.StartFlow(context.Background(), "ok", func(ctx context.Context, fc flow.Context) error {
		return fc.Set(ctx, "ok", true)
	})
	require.NoError(t, err)
	_, err = h.StartFlow(context.Background(), "bad", func(ctx context.Context, fc flow.Context) error {
		return fmt.Errorf("deliberate failure")
	})
	require.NoError(t, err)

	drive(t, h, 5*time.Second)

	report := h.Report()
	assert.Equal(t, 2, report.TotalFlows)
	assert.Equal(t, 0, report.ActiveFlows)
	assert.Equal(t, 1, report.CompletedFlows)
	assert.Equal(t, 1, report.FailedFlows)
}
