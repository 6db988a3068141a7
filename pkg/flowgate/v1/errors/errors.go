package errors

import (
	"errors"
	"fmt"
)

// ConfigError represents an error encountered while loading or applying
// scenario configuration or host options.
type ConfigError struct {
	Message string
	Cause   error
}

func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{Message: message, Cause: cause}
}
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}
func (e *ConfigError) Unwrap() error { return e.Cause }

// ValidationError indicates that some input (scenario structure, schema
// version, flow parameters) failed validation checks.
type ValidationError struct {
	Message string
	Cause   error
}

func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
func (e *ValidationError) Unwrap() error { return e.Cause }

// ProtocolViolationError signals a logic error in flow code that would break
// the handoff contract if tolerated, for example issuing a second access
// request before the first cycle's return has completed. These are never
// absorbed silently; masking one would compromise the exclusivity invariant.
type ProtocolViolationError struct {
	FlowID string
	Reason string
}

func NewProtocolViolationError(flowID, reason string) *ProtocolViolationError {
	return &ProtocolViolationError{FlowID: flowID, Reason: reason}
}
func (e *ProtocolViolationError) Error() string {
	if e.FlowID == "" {
		return fmt.Sprintf("handoff protocol violation: %s", e.Reason)
	}
	return fmt.Sprintf("handoff protocol violation (flow %s): %s", e.FlowID, e.Reason)
}

// IsProtocolViolation checks if an error is a ProtocolViolationError using errors.As.
func IsProtocolViolation(err error) bool {
	var pve *ProtocolViolationError
	return errors.As(err, &pve)
}

// StaleGuardError indicates that a guard was used to reach the store after
// its return had already been sent. The guard is the only path to the store,
// so this is always a programming error in the flow body; the engine fails
// fast rather than letting a stale holder alias the current grant.
type StaleGuardError struct {
	Generation uint64
}

func NewStaleGuardError(generation uint64) *StaleGuardError {
	return &StaleGuardError{Generation: generation}
}
func (e *StaleGuardError) Error() string {
	return fmt.Sprintf("stale guard: access for generation %d was already returned", e.Generation)
}

// IsStaleGuard checks if an error is a StaleGuardError using errors.As.
func IsStaleGuard(err error) bool {
	var sge *StaleGuardError
	return errors.As(err, &sge)
}

// FlowFailureError represents the terminal failure of a flow body, either an
// error it returned or a panic captured at the worker boundary. The failure
// is local to the owning flow; it never corrupts other flows or the host.
type FlowFailureError struct {
	FlowID   string
	FlowName string
	Cause    error
}

func NewFlowFailureError(flowID, flowName string, cause error) *FlowFailureError {
	return &FlowFailureError{FlowID: flowID, FlowName: flowName, Cause: cause}
}
func (e *FlowFailureError) Error() string {
	name := e.FlowName
	if name == "" {
		name = e.FlowID
	}
	return fmt.Sprintf("flow '%s' failed: %v", name, e.Cause)
}
func (e *FlowFailureError) Unwrap() error { return e.Cause }

// FlowNotFoundError indicates that a flow ID is neither active in the
// registry nor present in the host's result history.
type FlowNotFoundError struct {
	FlowID string
}

func NewFlowNotFoundError(flowID string) *FlowNotFoundError {
	return &FlowNotFoundError{FlowID: flowID}
}
func (e *FlowNotFoundError) Error() string {
	return fmt.Sprintf("flow not found: %s", e.FlowID)
}

// FlowTypeNotFoundError indicates that a scenario referenced a flow type
// name with no registered factory in the catalog.
type FlowTypeNotFoundError struct {
	TypeName string
}

func NewFlowTypeNotFoundError(typeName string) *FlowTypeNotFoundError {
	return &FlowTypeNotFoundError{TypeName: typeName}
}
func (e *FlowTypeNotFoundError) Error() string {
	return fmt.Sprintf("flow type not found in catalog: %s", e.TypeName)
}

// HostClosedError indicates an operation was attempted against a host that
// has already been closed; pending borrows observe it instead of blocking
// forever on a grant that will never come.
type HostClosedError struct{}

func NewHostClosedError() *HostClosedError { return &HostClosedError{} }
func (e *HostClosedError) Error() string   { return "host is closed" }
