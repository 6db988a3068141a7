package events

import "time"

// EventType represents the type of a flowgate host event.
type EventType string

// Standard flowgate event types. The Access* events trace the handoff
// protocol itself; the Flow* events trace worker lifecycle.
const (
	FlowStarted       EventType = "FlowStarted"       // worker thread spawned and registered
	AccessRequested   EventType = "AccessRequested"   // flow signalled a request
	AccessGranted     EventType = "AccessGranted"     // host granted the token
	AccessReturned    EventType = "AccessReturned"    // guard released, store reclaimed
	AccessRetracted   EventType = "AccessRetracted"   // flow withdrew a pending request on cancellation
	FlowCompleted     EventType = "FlowCompleted"     // flow body finished normally
	FlowFailed        EventType = "FlowFailed"        // flow body returned an error or panicked
	ProtocolViolation EventType = "ProtocolViolation" // flow code broke the handoff contract
)

// Event represents a significant occurrence within the flowgate host.
type Event struct {
	// Type categorizes the event.
	Type EventType `json:"type"`
	// Timestamp marks when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// FlowID identifies the flow context, if applicable.
	FlowID string `json:"flow_id,omitempty"`
	// FlowName is the human-readable flow name, if one was given.
	FlowName string `json:"flow_name,omitempty"`
	// Generation carries the token generation for Access* events.
	Generation uint64 `json:"generation,omitempty"`
	// Payload contains event-specific data.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Bus defines the interface for publishing host events. Implementations
// should be non-blocking or handle blocking carefully; Emit is called from
// inside the host's exclusive execution slot and from worker threads.
type Bus interface {
	Emit(event Event)
}
