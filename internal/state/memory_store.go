package state

import (
	"fmt"
	"sync"

	"github.com/flowgate-labs/flowgate/internal/util"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/state"
)

// MemoryStore is the default in-memory implementation of the shared store.
//
// Exclusivity comes from the handoff protocol, not from this mutex: at any
// instant the store has exactly one mutable owner (the host loop outside
// ServiceAccess, or the single flow holding a live guard). The mutex exists
// so that host-side observation (reporting, diagnostics) stays race-free
// even when the host reads while a flow owns the token.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

var _ state.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]interface{}),
	}
}

// Get retrieves a deep copy of the value for the given key. Handing out
// copies keeps data a flow carries past its return from aliasing live store
// contents.
func (s *MemoryStore) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.data[key]
	if !exists {
		return nil, false
	}
	return util.DeepCopy(value), true
}

// GetAll returns a deep copy of the entire store contents.
func (s *MemoryStore) GetAll() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]interface{}, len(s.data))
	for key, value := range s.data {
		snapshot[key] = util.DeepCopy(value)
	}
	return snapshot
}

// Set stores the value for the given key, overwriting any existing value.
func (s *MemoryStore) Set(key string, value interface{}) error {
	if key == "" {
		return fmt.Errorf("store key cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}

// Delete removes the key and its value. Returns state.ErrKeyNotFound if the
// key does not exist.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		return fmt.Errorf("delete %q: %w", key, state.ErrKeyNotFound)
	}
	delete(s.data, key)
	return nil
}

// Load replaces the entire store contents with the provided map. The host
// uses it to seed initial scenario vars before any flow starts.
func (s *MemoryStore) Load(data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]interface{}, len(data))
	for key, value := range data {
		s.data[key] = util.DeepCopy(value)
	}
	return nil
}

// Close releases resources. The in-memory store drops its contents so stale
// references cannot revive it after host shutdown.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]interface{})
	return nil
}
