package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidParams(t *testing.T) {
	body, err := New(map[string]interface{}{"key": "series", "count": 3})
	require.NoError(t, err)
	assert.NotNil(t, body)
}

func TestNewDefaultCount(t *testing.T) {
	body, err := New(map[string]interface{}{"key": "series"})
	require.NoError(t, err)
	assert.NotNil(t, body)
}

func TestNewMissingKey(t *testing.T) {
	_, err := New(map[string]interface{}{"count": 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key")
}

func TestNewNonPositiveCount(t *testing.T) {
	_, err := New(map[string]interface{}{"key": "series", "count": 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count")
}

func TestNewRejectsUnknownParam(t *testing.T) {
	_, err := New(map[string]interface{}{"key": "series", "speed": "fast"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "speed")
}

func TestNewRejectsWrongKeyType(t *testing.T) {
	_, err := New(map[string]interface{}{"key": 42})
	require.Error(t, err)
}
