package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// SupportedSchemaVersionConstraint defines the SemVer major version loaded
// scenarios must satisfy. A v1 host only accepts v1 scenarios.
const SupportedSchemaVersionConstraint = "v1"

// LoadScenario unmarshals the given YAML bytes into a Scenario, validates it
// against the embedded JSON schema, checks schema version compatibility,
// performs logical validation, and assigns internal flow IDs.
func LoadScenario(scenarioYAML []byte, filePathHint string) (*Scenario, error) {
	if len(scenarioYAML) == 0 {
		return nil, gateerrors.NewConfigError("scenario content cannot be empty", nil)
	}

	if err := ValidateWithSchema(scenarioYAML); err != nil {
		return nil, gateerrors.NewConfigError(fmt.Sprintf("scenario '%s' failed schema validation", filePathHint), err)
	}

	var scenario Scenario
	if err := yamlUnmarshalStrict(scenarioYAML, &scenario); err != nil {
		return nil, gateerrors.NewConfigError(fmt.Sprintf("failed to parse scenario YAML '%s'", filePathHint), err)
	}
	scenario.FilePath = filePathHint

	if scenario.SchemaVersion == "" {
		return nil, gateerrors.NewValidationError(fmt.Sprintf("scenario '%s' is missing required 'schemaVersion' field", filePathHint), nil)
	}
	scenarioSemVer := scenario.SchemaVersion
	if !strings.HasPrefix(scenarioSemVer, "v") {
		scenarioSemVer = "v" + scenarioSemVer
	}
	if !semver.IsValid(scenarioSemVer) {
		return nil, gateerrors.NewValidationError(fmt.Sprintf("scenario '%s' has invalid 'schemaVersion' format: '%s'", filePathHint, scenario.SchemaVersion), nil)
	}
	if semver.Major(scenarioSemVer) != SupportedSchemaVersionConstraint {
		return nil, gateerrors.NewValidationError(
			fmt.Sprintf("scenario '%s' schemaVersion '%s' is not compatible with host requirement '%s'",
				filePathHint, scenario.SchemaVersion, SupportedSchemaVersionConstraint),
			nil,
		)
	}

	validationErrs := ValidateScenarioStructure(&scenario)
	if len(validationErrs) > 0 {
		var errorMessages []string
		for _, vErr := range validationErrs {
			errorMessages = append(errorMessages, vErr.Error())
		}
		combinedMessage := fmt.Sprintf("scenario '%s' has %d validation error(s):\n- %s",
			filePathHint, len(errorMessages), strings.Join(errorMessages, "\n- "))
		return nil, gateerrors.NewValidationError(combinedMessage, validationErrs[0])
	}

	assignInternalFlowIDs(&scenario)

	return &scenario, nil
}

// LoadScenarioFromFile is a convenience function to read a scenario from disk.
func LoadScenarioFromFile(filePath string) (*Scenario, error) {
	if filePath == "" {
		return nil, gateerrors.NewConfigError("scenario file path cannot be empty", nil)
	}
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, gateerrors.NewConfigError(fmt.Sprintf("failed to get absolute path for '%s'", filePath), err)
	}
	yamlFile, err := os.ReadFile(absPath)
	if err != nil {
		return nil, gateerrors.NewConfigError(fmt.Sprintf("failed to read scenario file '%s'", absPath), err)
	}
	return LoadScenario(yamlFile, absPath)
}

// assignInternalFlowIDs assigns a unique InternalID to each flow spec. It
// prefers the user-defined name and generates a stable index-based ID when
// the name is absent.
func assignInternalFlowIDs(scenario *Scenario) {
	for i := range scenario.Flows {
		spec := &scenario.Flows[i]
		if spec.Name != "" {
			spec.InternalID = spec.Name
		} else {
			spec.InternalID = fmt.Sprintf("__flow_idx_%d", i)
		}
	}
}

// yamlUnmarshalStrict disallows unknown fields so typos in scenario files
// surface as errors instead of being silently ignored.
func yamlUnmarshalStrict(in []byte, out interface{}) error {
	decoder := yaml.NewDecoder(strings.NewReader(string(in)))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("YAML parsing error: %w", err)
	}
	return nil
}
