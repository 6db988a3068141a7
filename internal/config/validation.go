package config

import (
	"fmt"
	"regexp"
	"time"

	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
)

// Flow instance names allow readable identifiers.
var flowNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateScenarioStructure performs logical validation of the parsed
// Scenario struct: cross-field consistency and rules that JSON Schema alone
// cannot express. It returns every validation error found.
func ValidateScenarioStructure(s *Scenario) []error {
	var errs []error

	if len(s.Flows) == 0 {
		errs = append(errs, gateerrors.NewValidationError("scenario must contain at least one flow in 'flows' list", nil))
	}

	if s.CycleInterval != "" {
		duration, err := time.ParseDuration(s.CycleInterval)
		if err != nil {
			errs = append(errs, gateerrors.NewValidationError(fmt.Sprintf("invalid format for 'cycle_interval': %v", err), nil))
		} else if duration <= 0 {
			errs = append(errs, gateerrors.NewValidationError("'cycle_interval' must be positive", nil))
		}
	}
	if s.MaxCycles < 0 {
		errs = append(errs, gateerrors.NewValidationError("'max_cycles' cannot be negative", nil))
	}
	if s.ServiceCap != nil && *s.ServiceCap < 0 {
		errs = append(errs, gateerrors.NewValidationError("'service_cap' cannot be negative", nil))
	}

	flowNames := make(map[string]bool)
	for i := range s.Flows {
		spec := &s.Flows[i]
		displayName := fmt.Sprintf("flow %d", i)
		if spec.Name != "" {
			displayName = fmt.Sprintf("flow %d ('%s')", i, spec.Name)
		}

		if spec.Name != "" {
			if !flowNameRegex.MatchString(spec.Name) {
				errs = append(errs, gateerrors.NewValidationError(fmt.Sprintf("%s: name contains invalid characters (allowed: alphanumeric, underscore, hyphen)", displayName), nil))
			}
			if _, exists := flowNames[spec.Name]; exists {
				errs = append(errs, gateerrors.NewValidationError(fmt.Sprintf("%s: duplicate flow name found", displayName), nil))
			}
			flowNames[spec.Name] = true
		}

		if spec.Type == "" {
			errs = append(errs, gateerrors.NewValidationError(fmt.Sprintf("%s: 'type' is required", displayName), nil))
		}
	}

	return errs
}
