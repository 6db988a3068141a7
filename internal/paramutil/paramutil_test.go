package paramutil

import (
	"testing"

	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRequiredString(t *testing.T) {
	params := map[string]interface{}{"name": "value", "number": 7}

	got, err := GetRequiredString(params, "name")
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	_, err = GetRequiredString(params, "absent")
	require.Error(t, err)
	var validationErr *gateerrors.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = GetRequiredString(params, "number")
	assert.Error(t, err)
}

func TestGetOptionalInt(t *testing.T) {
	params := map[string]interface{}{
		"plain": 3,
		"wide":  int64(9),
		"whole": float64(4),
		"frac":  4.5,
	}

	got, ok, err := GetOptionalInt(params, "plain")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got)

	got, ok, err = GetOptionalInt(params, "wide")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 9, got)

	got, ok, err = GetOptionalInt(params, "whole")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, got)

	_, _, err = GetOptionalInt(params, "frac")
	assert.Error(t, err)

	_, ok, err = GetOptionalInt(params, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOptionalStringSlice(t *testing.T) {
	params := map[string]interface{}{
		"good": []interface{}{"a", "b"},
		"bad":  []interface{}{"a", 2},
	}

	got, ok, err := GetOptionalStringSlice(params, "good")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	_, _, err = GetOptionalStringSlice(params, "bad")
	assert.Error(t, err)
}

func TestCheckRequiredAndAllowed(t *testing.T) {
	params := map[string]interface{}{"key": 1, "extra": 2}

	assert.NoError(t, CheckRequired(params, []string{"key"}))
	assert.Error(t, CheckRequired(params, []string{"key", "missing"}))

	assert.NoError(t, CheckAllowed(params, nil))
	assert.NoError(t, CheckAllowed(params, []string{"key", "extra"}))
	err := CheckAllowed(params, []string{"key"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extra")
}
