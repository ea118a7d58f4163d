package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a provider from loosely typed configuration.
type Factory func(config map[string]any) (Provider, error)

// Registry maps provider names to factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// RegisterFactory registers a factory under name, replacing any previous one.
func (r *Registry) RegisterFactory(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create builds the named provider.
func (r *Registry) Create(name string, config map[string]any) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("provider '%s' not found", name)
	}
	return factory(config)
}

// Has checks if a provider is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Global registry
var globalRegistry = NewRegistry()

// RegisterFactory registers a factory in the global registry.
func RegisterFactory(name string, factory Factory) {
	globalRegistry.RegisterFactory(name, factory)
}

// Create builds a provider from the global registry.
func Create(name string, config map[string]any) (Provider, error) {
	return globalRegistry.Create(name, config)
}

// Has checks if a provider exists in the global registry
func Has(name string) bool {
	return globalRegistry.Has(name)
}

// List returns all registered provider names from the global registry
func List() []string {
	return globalRegistry.List()
}

func stringOpt(config map[string]any, key string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}
