package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepCopyNestedStructures(t *testing.T) {
	original := map[string]interface{}{
		"scalar": 1,
		"list":   []interface{}{"a", map[string]interface{}{"k": "v"}},
		"nested": map[string]interface{}{"inner": []interface{}{1, 2, 3}},
	}

	copied := DeepCopy(original).(map[string]interface{})
	copied["nested"].(map[string]interface{})["inner"] = "mutated"
	copied["list"].([]interface{})[1].(map[string]interface{})["k"] = "mutated"

	assert.Equal(t, []interface{}{1, 2, 3}, original["nested"].(map[string]interface{})["inner"])
	assert.Equal(t, "v", original["list"].([]interface{})[1].(map[string]interface{})["k"])
}

func TestDeepCopyNil(t *testing.T) {
	assert.Nil(t, DeepCopy(nil))
}

func TestDeepCopyCyclicMap(t *testing.T) {
	cyclic := map[string]interface{}{"name": "root"}
	cyclic["self"] = cyclic

	copied := DeepCopy(cyclic).(map[string]interface{})
	require.Equal(t, "root", copied["name"])

	inner, ok := copied["self"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "root", inner["name"])

	// The cycle must point at the copy, not the original.
	inner["name"] = "mutated"
	assert.Equal(t, "root", cyclic["name"])
}

func TestDeepCopyPointer(t *testing.T) {
	type payload struct {
		Value string
	}
	original := &payload{Value: "before"}

	copied := DeepCopy(original).(*payload)
	copied.Value = "after"

	assert.Equal(t, "before", original.Value)
}
