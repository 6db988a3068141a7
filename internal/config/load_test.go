package config

import (
	"testing"
	"time"

	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
schemaVersion: "1.0.0"
name: pipeline
cycle_interval: 25ms
service_cap: 2
vars:
  region: eu-west-1
flows:
  - name: producer
    type: seed
    params:
      key: series
      count: 5
  - type: crunch
    params:
      input: series
      output: total
`

func TestLoadScenarioValid(t *testing.T) {
	scenario, err := LoadScenario([]byte(validScenario), "test.yaml")
	require.NoError(t, err)

	assert.Equal(t, "pipeline", scenario.Name)
	assert.Equal(t, 25*time.Millisecond, scenario.GetCycleInterval())
	assert.Equal(t, 2, scenario.GetServiceCap())
	assert.Equal(t, 0, scenario.GetMaxCycles())
	assert.Equal(t, "eu-west-1", scenario.Vars["region"])

	require.Len(t, scenario.Flows, 2)
	assert.Equal(t, "producer", scenario.Flows[0].InternalID)
	assert.Equal(t, "__flow_idx_1", scenario.Flows[1].InternalID)
}

func TestLoadScenarioDefaults(t *testing.T) {
	scenario, err := LoadScenario([]byte(`
schemaVersion: "1.0.0"
flows:
  - type: seed
    params:
      key: k
`), "defaults.yaml")
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, scenario.GetCycleInterval())
	assert.Equal(t, 0, scenario.GetServiceCap())
}

func TestLoadScenarioEmpty(t *testing.T) {
	_, err := LoadScenario(nil, "empty.yaml")
	require.Error(t, err)
	var configErr *gateerrors.ConfigError
	assert.ErrorAs(t, err, &configErr)
}

func TestLoadScenarioUnknownField(t *testing.T) {
	_, err := LoadScenario([]byte(`
schemaVersion: "1.0.0"
typo_field: true
flows:
  - type: seed
`), "typo.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation")
}

func TestLoadScenarioMissingSchemaVersion(t *testing.T) {
	_, err := LoadScenario([]byte(`
name: no-version
flows:
  - type: seed
`), "noversion.yaml")
	require.Error(t, err)
}

func TestLoadScenarioIncompatibleMajorVersion(t *testing.T) {
	_, err := LoadScenario([]byte(`
schemaVersion: "2.0.0"
flows:
  - type: seed
`), "v2.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not compatible")
}

func TestLoadScenarioDuplicateFlowNames(t *testing.T) {
	_, err := LoadScenario([]byte(`
schemaVersion: "1.0.0"
flows:
  - name: twin
    type: seed
  - name: twin
    type: watch
`), "dupes.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate flow name")
}

func TestLoadScenarioMissingFlowType(t *testing.T) {
	_, err := LoadScenario([]byte(`
schemaVersion: "1.0.0"
flows:
  - name: untyped
`), "untyped.yaml")
	require.Error(t, err)
}

func TestLoadScenarioBadCycleInterval(t *testing.T) {
	_, err := LoadScenario([]byte(`
schemaVersion: "1.0.0"
cycle_interval: soon
flows:
  - type: seed
`), "badinterval.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle_interval")
}
