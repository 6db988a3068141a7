package config

import (
	"time"
)

// Scenario represents the top-level structure of a flowgate scenario YAML
// file. A scenario names the flows to start and configures the host loop
// that services their store access requests.
type Scenario struct {
	Name          string                 `yaml:"name"`
	SchemaVersion string                 `yaml:"schemaVersion"`
	// CycleInterval is the period of the host update loop, as a Go duration
	// string. Each tick runs one handoff servicing pass.
	CycleInterval string `yaml:"cycle_interval,omitempty"`
	// MaxCycles bounds how many update cycles the host runs before giving
	// up on unfinished flows. Zero means run until every flow is terminal.
	MaxCycles int `yaml:"max_cycles,omitempty"`
	// ServiceCap bounds how many flows are granted access per cycle.
	// Zero means service every pending request each cycle.
	ServiceCap *int                   `yaml:"service_cap,omitempty"`
	Vars       map[string]interface{} `yaml:"vars,omitempty"`
	Flows      []FlowSpec             `yaml:"flows"`

	// FilePath stores the source file path for logging and error context.
	// It is not parsed from the YAML.
	FilePath string `yaml:"-"`
}

// FlowSpec declares a single flow to start: its registered type name, an
// optional instance name, and the parameters handed to the type's factory.
type FlowSpec struct {
	Name   string                 `yaml:"name,omitempty"`
	Type   string                 `yaml:"type"`
	Params map[string]interface{} `yaml:"params,omitempty"`

	// InternalID is assigned during loading and used for internal
	// referencing. It prefers the user-defined name.
	InternalID string `yaml:"-"`
}

// GetCycleInterval returns the configured host loop period or the default
// (50 milliseconds).
func (s *Scenario) GetCycleInterval() time.Duration {
	if s.CycleInterval == "" {
		return 50 * time.Millisecond
	}
	duration, err := time.ParseDuration(s.CycleInterval)
	if err != nil || duration <= 0 {
		return 50 * time.Millisecond
	}
	return duration
}

// GetServiceCap returns the configured per-cycle service cap, or 0 meaning
// every pending request is serviced each cycle.
func (s *Scenario) GetServiceCap() int {
	if s.ServiceCap != nil && *s.ServiceCap >= 0 {
		return *s.ServiceCap
	}
	return 0
}

// GetMaxCycles returns the configured cycle bound, or 0 meaning unbounded.
func (s *Scenario) GetMaxCycles() int {
	if s.MaxCycles > 0 {
		return s.MaxCycles
	}
	return 0
}
