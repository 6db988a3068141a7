package state

import (
	"errors"
)

// ErrKeyNotFound indicates that a requested key does not exist in the store.
var ErrKeyNotFound = errors.New("key not found in store")

// StateReader is the read-only view of the shared store. Await conditions and
// host-side reporting receive this interface rather than the full Store.
//
// The handoff protocol guarantees the store has exactly one mutable owner at
// any instant, so readers obtained through a guard never race with writers.
// Implementations return deep copies of complex values, which keeps any data
// a flow carries past its return from aliasing live store contents.
type StateReader interface {
	// Get retrieves the value associated with the given key. It returns the
	// value and true if the key exists, otherwise nil and false.
	Get(key string) (interface{}, bool)

	// GetAll returns a copy of the entire store contents. Callers should be
	// mindful of the potential size of the store.
	GetAll() map[string]interface{}
}

// Store is the full mutable surface of the shared store that is handed back
// and forth between the host loop and flows. A flow may only reach it through
// a live guard; the host may only touch it outside ServiceAccess grants.
type Store interface {
	StateReader

	// Set stores the value associated with the given key, overwriting any
	// existing value.
	Set(key string, value interface{}) error

	// Delete removes the key and its value. Returns ErrKeyNotFound if the
	// key does not exist.
	Delete(key string) error

	// Load replaces the entire store contents with the provided map. Used to
	// seed initial scenario vars before any flow starts.
	Load(data map[string]interface{}) error

	// Close releases any resources held by the store.
	Close() error
}
