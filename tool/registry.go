package tool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentforge/core"
)

// FactoryParams is the stored configuration handed to a Factory.
type FactoryParams struct {
	ID            string
	Configuration map[string]any
}

// Factory builds a local tool from stored configuration. The product is
// either a Tool or an Exporter.
type Factory func(p FactoryParams) (any, error)

// Key returns the registry key for a module path and class name.
func Key(modulePath, className string) string { return modulePath + "." + className }

// Registry maps "<module_path>.<class_name>" keys to tool factories. It is
// populated at process start and read concurrently afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// NewDefaultRegistry returns a registry with the built-in tools.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(Key("builtin", "StateManager"), func(FactoryParams) (any, error) { return NewStateManagerTool(), nil })
	r.MustRegister(Key("builtin", "ExitLoop"), func(FactoryParams) (any, error) { return NewExitLoopTool(), nil })
	return r
}

// Register adds a factory. Registering a key twice is an error.
func (r *Registry) Register(key string, f Factory) error {
	if key == "" || f == nil {
		return errors.New("tool registry: empty key or nil factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("tool registry: %q already registered", key)
	}
	r.factories[key] = f

	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(key string, f Factory) {
	if err := r.Register(key, f); err != nil {
		panic(err)
	}
}

// Keys lists registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Instantiate runs the factory for key and unwraps Exporter products.
// Unknown keys yield core.ErrToolNotRegistered.
func (r *Registry) Instantiate(key string, p FactoryParams) (Tool, error) {
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrToolNotRegistered, key)
	}

	product, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", key, err)
	}

	switch v := product.(type) {
	case Tool:
		return v, nil
	case Exporter:
		t, err := v.Export()
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", key, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: %s produced %T", core.ErrInvalidTool, key, product)
	}
}
