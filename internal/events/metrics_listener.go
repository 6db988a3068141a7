package events

import (
	"context"

	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/events"
	gatelog "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/log"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsEventListener subscribes to a ChannelEventBus and mirrors the event
// stream into a Prometheus counter vector labelled by event type. It gives
// operators a protocol-level view (requests, grants, returns, retractions)
// without instrumenting the hot path twice.
type MetricsEventListener struct {
	bus          *ChannelEventBus
	log          gatelog.Logger
	eventCounter *prometheus.CounterVec
}

// NewMetricsEventListener creates a new listener. Panics if any dependency
// is nil.
func NewMetricsEventListener(bus *ChannelEventBus, eventCounter *prometheus.CounterVec, log gatelog.Logger) *MetricsEventListener {
	if bus == nil || eventCounter == nil || log == nil {
		panic("MetricsEventListener requires a non-nil ChannelEventBus, CounterVec, and Logger")
	}
	return &MetricsEventListener{
		bus:          bus,
		log:          log.With("component", "MetricsEventListener"),
		eventCounter: eventCounter,
	}
}

// Start begins consuming events on the calling goroutine until the bus
// channel is closed or the context is cancelled. Callers normally run it in
// its own goroutine.
func (l *MetricsEventListener) Start(ctx context.Context) {
	l.log.Debugf("Starting metrics event listener...")
	for {
		select {
		case event, ok := <-l.bus.GetChannel():
			if !ok {
				l.log.Debugf("Event bus channel closed, stopping listener.")
				return
			}
			l.handleEvent(event)
		case <-ctx.Done():
			l.log.Debugf("Context cancelled, stopping metrics event listener.")
			return
		}
	}
}

func (l *MetricsEventListener) handleEvent(event events.Event) {
	l.eventCounter.WithLabelValues(string(event.Type)).Inc()
}
