package engine

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	v1 "github.com/flowgate-labs/flowgate/pkg/flowgate/v1"
	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/events"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/flow"
)

// runFlowWorker launches the dedicated worker for one flow. The goroutine is
// pinned to an OS thread for the life of the body, matching the contract
// that a flow runs on its own thread rather than sharing the host loop's.
//
// The worker boundary is where failure isolation happens: a returned error
// or a panic (including the stale-guard panic) is captured here, any guard
// still held is released so the host loop is never stranded, and the
// outcome is recorded without affecting other flows.
func (h *Host) runFlowWorker(ctx context.Context, entry *flowEntry, fc *flowContext, body flow.Body) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		var bodyErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					if err, ok := r.(error); ok && gateerrors.IsStaleGuard(err) {
						bodyErr = err
						fc.log.Errorf("Flow used a guard after releasing it: %v", err)
					} else {
						bodyErr = fmt.Errorf("flow panicked: %v", r)
						fc.log.Errorf("Flow panicked: %v\n%s", r, debug.Stack())
					}
				}
			}()
			bodyErr = body(ctx, fc)
		}()

		fc.releaseHeldGuard()
		h.finishFlow(entry, bodyErr)
		close(entry.done)
	}()
}

// finishFlow records the terminal outcome of a flow: final state, result
// entry, metrics, and lifecycle event. The entry itself is reaped from the
// registry by the next servicing pass.
func (h *Host) finishFlow(entry *flowEntry, bodyErr error) {
	endTime := time.Now()
	result := &v1.FlowResult{
		Name:         entry.name,
		StartTime:    entry.startTime,
		EndTime:      endTime,
		Duration:     endTime.Sub(entry.startTime),
		Grants:       int(entry.grants.Load()),
		HoldDuration: time.Duration(entry.holdNanos.Load()),
	}

	var failure error
	if bodyErr != nil {
		entry.setState(stFailed)
		failure = gateerrors.NewFlowFailureError(string(entry.id), entry.name, bodyErr)
		result.Status = string(flow.StateFailed)
		result.Error = failure.Error()
		h.log.Errorf("Flow '%s' failed: %v", entry.name, failure)
		h.emitFlowEvent(events.FlowFailed, entry, 0)
	} else {
		entry.setState(stCompleted)
		result.Status = string(flow.StateCompleted)
		h.log.Infof("Flow '%s' completed (grants=%d, held=%v)", entry.name, result.Grants, result.HoldDuration.Truncate(time.Microsecond))
		h.emitFlowEvent(events.FlowCompleted, entry, 0)
	}

	h.resultsMu.Lock()
	h.results[entry.id] = result
	if failure != nil {
		h.flowErrors[entry.id] = failure
	}
	h.resultsMu.Unlock()

	h.flowRunsTotal.WithLabelValues(entry.name, result.Status).Inc()
	h.activeFlowsGauge.Dec()
}
