// Package flowreg provides the default flow catalog: a thread-safe map from
// flow type names to factories, with a global instance populated by flow
// packages at init time.
package flowreg

import (
	"fmt"
	"sync"

	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/flow"
)

// StaticCatalog implements the flow.Catalog interface using a compile-time
// map. It is the default catalog used when no other is provided.
type StaticCatalog struct {
	factories map[string]flow.Factory
	mu        sync.RWMutex
}

// NewStaticCatalog creates a new, empty catalog.
func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		factories: make(map[string]flow.Factory),
	}
}

// Register associates a flow type name with its factory, rejecting empty
// names, nil factories, and duplicates.
func (c *StaticCatalog) Register(name string, factory flow.Factory) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name == "" {
		return gateerrors.NewConfigError("flow registration error: name cannot be empty", nil)
	}
	if factory == nil {
		return gateerrors.NewConfigError(fmt.Sprintf("flow registration error for '%s': factory cannot be nil", name), nil)
	}
	if _, exists := c.factories[name]; exists {
		return gateerrors.NewConfigError(fmt.Sprintf("flow registration error: duplicate flow type name '%s'", name), nil)
	}

	c.factories[name] = factory
	return nil
}

// Get retrieves the factory for a flow type name, or a FlowTypeNotFoundError
// if it is not registered.
func (c *StaticCatalog) Get(name string) (flow.Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	factory, exists := c.factories[name]
	if !exists {
		return nil, gateerrors.NewFlowTypeNotFoundError(name)
	}
	return factory, nil
}

// List returns the names of all registered flow types, in no particular order.
func (c *StaticCatalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	return names
}

var (
	globalCatalog = NewStaticCatalog()

	_ flow.Catalog = (*StaticCatalog)(nil)
)

// Register adds a flow type to the default global catalog. Flow packages
// call it from their init() functions; it panics on error because a
// registration failure at init time is a programming mistake.
func Register(name string, factory flow.Factory) {
	if err := globalCatalog.Register(name, factory); err != nil {
		panic(fmt.Errorf("failed to register flow type '%s' globally: %w", name, err))
	}
}

// DefaultCatalog exposes the global catalog containing compile-time
// registered flow types.
var DefaultCatalog flow.Catalog = globalCatalog
