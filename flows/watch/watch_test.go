package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidParams(t *testing.T) {
	body, err := New(map[string]interface{}{"key": "total"})
	require.NoError(t, err)
	assert.NotNil(t, body)
}

func TestNewWithEquals(t *testing.T) {
	body, err := New(map[string]interface{}{"key": "phase", "equals": "ready"})
	require.NoError(t, err)
	assert.NotNil(t, body)
}

func TestNewMissingKey(t *testing.T) {
	_, err := New(map[string]interface{}{"equals": "ready"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key")
}

func TestNewRejectsUnknownParam(t *testing.T) {
	_, err := New(map[string]interface{}{"key": "total", "interval": "1s"})
	require.Error(t, err)
}

func TestNewRejectsWrongEqualsType(t *testing.T) {
	_, err := New(map[string]interface{}{"key": "total", "equals": 5})
	require.Error(t, err)
}
