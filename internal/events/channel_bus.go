package events

import (
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/events"
	gatelog "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/log"
)

// ChannelEventBus implements the public events.Bus interface using a buffered
// Go channel. Emission is non-blocking: Emit is called from inside the host's
// exclusive execution slot and from worker threads, and must never stall the
// handoff protocol waiting on a slow consumer.
type ChannelEventBus struct {
	channel chan events.Event
	log     gatelog.Logger
}

var _ events.Bus = (*ChannelEventBus)(nil)

// NewChannelEventBus creates a bus with the specified buffer size. A
// non-positive bufferSize falls back to a default of 100. Panics if the
// logger is nil.
func NewChannelEventBus(bufferSize int, log gatelog.Logger) *ChannelEventBus {
	const defaultBufferSize = 100
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if log == nil {
		panic("ChannelEventBus requires a non-nil logger")
	}

	bus := &ChannelEventBus{
		channel: make(chan events.Event, bufferSize),
		log:     log.With("component", "ChannelEventBus"),
	}
	bus.log.Debugf("ChannelEventBus initialized with buffer size %d", bufferSize)
	return bus
}

// Emit sends an event onto the internal buffered channel. If the buffer is
// full the event is dropped and a warning logged.
func (c *ChannelEventBus) Emit(event events.Event) {
	select {
	case c.channel <- event:
	default:
		c.log.Warnf("Event channel buffer full, dropping event type '%s'", event.Type)
	}
}

// GetChannel returns the underlying event channel for in-process consumers
// such as MetricsEventListener. Not part of the public events.Bus interface.
func (c *ChannelEventBus) GetChannel() <-chan events.Event {
	return c.channel
}

// Close closes the underlying channel, signalling consumers that no more
// events will be sent.
func (c *ChannelEventBus) Close() {
	c.log.Debugf("Closing ChannelEventBus channel.")
	close(c.channel)
}
