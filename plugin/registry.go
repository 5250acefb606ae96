package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wmo-im/wis2node/errors"
)

// Registry is the static plugin capability table: identifier to factory
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under an identifier. Duplicate registration is a
// programming error and rejected.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return errors.WrapInvalid(
			fmt.Errorf("name and factory are required"),
			"Registry", "Register", "register plugin")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("plugin %q already registered", name),
			"Registry", "Register", "register plugin")
	}
	r.factories[name] = factory
	return nil
}

// New instantiates the named plugin with the given dependencies
func (r *Registry) New(name string, deps Deps) (Plugin, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(errors.ErrUnknownPlugin,
			"Registry", "New", "resolve plugin "+name)
	}
	return factory(deps), nil
}

// Names returns the registered plugin identifiers, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a registry with all built-in plugins registered
func Builtin() *Registry {
	r := NewRegistry()
	// registration of built-ins cannot collide
	_ = r.Register("passthrough", NewPassthrough)
	_ = r.Register("metadata2geojson", NewMetadata)
	return r
}
