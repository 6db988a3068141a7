package state

import (
	"testing"

	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	s := NewMemoryStore()

	require.NoError(t, s.Set("key", "value"))
	value, ok := s.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", value)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestSetRejectsEmptyKey(t *testing.T) {
	s := NewMemoryStore()
	assert.Error(t, s.Set("", 1))
}

func TestGetReturnsDeepCopy(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Set("nested", map[string]interface{}{"inner": []interface{}{1, 2}}))

	value, ok := s.Get("nested")
	require.True(t, ok)
	copied := value.(map[string]interface{})
	copied["inner"] = "mutated"

	again, ok := s.Get("nested")
	require.True(t, ok)
	assert.Equal(t, []interface{}{1, 2}, again.(map[string]interface{})["inner"],
		"mutating a read must not affect the stored value")
}

func TestGetAllReturnsIndependentSnapshot(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Set("a", map[string]interface{}{"n": 1}))

	snapshot := s.GetAll()
	snapshot["a"].(map[string]interface{})["n"] = 99

	value, _ := s.Get("a")
	assert.Equal(t, 1, value.(map[string]interface{})["n"])
}

func TestDeleteMissingKey(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Set("present", 1))

	require.NoError(t, s.Delete("present"))
	_, ok := s.Get("present")
	assert.False(t, ok)

	err := s.Delete("absent")
	require.Error(t, err)
	assert.ErrorIs(t, err, state.ErrKeyNotFound)
}

func TestLoadReplacesContents(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Set("old", true))

	seed := map[string]interface{}{"fresh": "data"}
	require.NoError(t, s.Load(seed))

	_, ok := s.Get("old")
	assert.False(t, ok)
	value, ok := s.Get("fresh")
	require.True(t, ok)
	assert.Equal(t, "data", value)

	// The store must not alias the caller's map.
	seed["fresh"] = "mutated"
	value, _ = s.Get("fresh")
	assert.Equal(t, "data", value)
}
