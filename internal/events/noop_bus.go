package events

import "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/events"

// NoOpEventBus discards every event. It is the fallback when no event
// handling is configured, so emitting components never have to nil-check
// the bus.
type NoOpEventBus struct{}

// NewNoOpEventBus creates a new instance of the NoOpEventBus.
func NewNoOpEventBus() events.Bus {
	return &NoOpEventBus{}
}

// Emit does nothing.
func (n *NoOpEventBus) Emit(event events.Event) {}

var _ events.Bus = (*NoOpEventBus)(nil)
