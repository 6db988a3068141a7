package v1

import (
	"context"
	"time"

	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/events"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/flow"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/metrics"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/state"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/tracing"
)

// HostV1 defines the public interface of the flowgate host: the component
// that owns the shared store between update cycles and hands exclusive
// access back and forth to flows.
type HostV1 interface {
	// StartFlow spawns a dedicated worker thread for body, registers it, and
	// returns its ID. The ctx becomes the flow's base context.
	StartFlow(ctx context.Context, name string, body flow.Body) (flow.ID, error)

	// ServiceAccess runs the handoff step. It must be invoked exactly once
	// per update cycle, from an execution slot that already guarantees no
	// other access to the store for the slot's duration. It services pending
	// requests in flow start order, blocking on each serviced flow's return
	// before moving to the next, up to the configured per-cycle cap. It
	// returns the number of grants serviced.
	ServiceAccess(ctx context.Context) (int, error)

	// ActiveFlows returns the number of flows currently registered
	// (terminal entries are removed during ServiceAccess).
	ActiveFlows() int

	// FlowStatus returns the current state of a flow, consulting finished
	// results when the flow is no longer registered. Returns a
	// FlowNotFoundError for unknown IDs.
	FlowStatus(id flow.ID) (flow.State, error)

	// FlowError returns the failure recorded for a flow: the
	// *errors.FlowFailureError wrapping the body's error or panic, nil for a
	// flow that completed or is still running, and a FlowNotFoundError for
	// unknown IDs.
	FlowError(id flow.ID) error

	// Result returns the recorded outcome of a finished flow.
	Result(id flow.ID) (*FlowResult, bool)

	// Report summarizes all flows the host has seen so far.
	Report() *Report

	// Close shuts the host down: no further grants are issued and pending
	// borrows fail with a HostClosedError. Close must not run concurrently
	// with ServiceAccess; both belong to the host loop's thread.
	Close(ctx context.Context) error

	// MetricsRegistryProvider returns the underlying metrics provider.
	MetricsRegistryProvider() metrics.RegistryProvider
	// TracerProvider returns the underlying tracing provider.
	TracerProvider() tracing.TracerProvider

	// Setter methods for configuring host components programmatically.
	SetStateStore(store state.Store) error
	SetEventBus(bus events.Bus) error
	SetMetricsRegistryProvider(provider metrics.RegistryProvider) error
	SetTracerProvider(provider tracing.TracerProvider) error
	SetServiceCap(cap int) error
	SetEventBufferSize(size int) error
}

// HostOption is a function type used to configure the host at creation.
type HostOption func(HostV1) error

// FlowResult holds the final outcome of a single flow.
type FlowResult struct {
	Name         string        `json:"name,omitempty"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`
	Grants       int           `json:"grants"`
	HoldDuration time.Duration `json:"hold_duration"`
}

// Report provides a summary of every flow the host has run.
type Report struct {
	TotalFlows     int                     `json:"total_flows"`
	ActiveFlows    int                     `json:"active_flows"`
	CompletedFlows int                     `json:"completed_flows"`
	FailedFlows    int                     `json:"failed_flows"`
	FlowResults    map[flow.ID]*FlowResult `json:"flow_results"`
}

// WithStateStore is a host option to provide a custom shared store.
func WithStateStore(store state.Store) HostOption {
	return func(h HostV1) error {
		if store == nil {
			return gateerrors.NewConfigError("state store cannot be nil", nil)
		}
		return h.SetStateStore(store)
	}
}

// WithEventBus is a host option to provide a custom event bus.
func WithEventBus(bus events.Bus) HostOption {
	return func(h HostV1) error {
		if bus == nil {
			return gateerrors.NewConfigError("event bus cannot be nil", nil)
		}
		return h.SetEventBus(bus)
	}
}

// WithMetricsRegistryProvider is a host option to provide a custom metrics provider.
func WithMetricsRegistryProvider(provider metrics.RegistryProvider) HostOption {
	return func(h HostV1) error {
		if provider == nil {
			return gateerrors.NewConfigError("metrics registry provider cannot be nil", nil)
		}
		return h.SetMetricsRegistryProvider(provider)
	}
}

// WithTracerProvider is a host option to provide a custom tracing provider.
func WithTracerProvider(provider tracing.TracerProvider) HostOption {
	return func(h HostV1) error {
		if provider == nil {
			return gateerrors.NewConfigError("tracer provider cannot be nil", nil)
		}
		return h.SetTracerProvider(provider)
	}
}

// WithEventBufferSize configures the host with a channel-backed event bus
// whose buffer holds size events. Later options replacing the bus (or a
// later WithEventBus) take precedence.
func WithEventBufferSize(size int) HostOption {
	return func(h HostV1) error {
		if size <= 0 {
			return gateerrors.NewConfigError("event buffer size must be positive", nil)
		}
		return h.SetEventBufferSize(size)
	}
}

// WithServiceCap is a host option bounding how many flows are serviced in a
// single update cycle. Zero means service every pending request each cycle;
// a positive cap bounds the worst-case per-cycle stall when many flows
// request access simultaneously.
func WithServiceCap(cap int) HostOption {
	return func(h HostV1) error {
		if cap < 0 {
			return gateerrors.NewConfigError("service cap cannot be negative", nil)
		}
		return h.SetServiceCap(cap)
	}
}
