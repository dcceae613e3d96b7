package strategy

import (
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// Factory creates a fresh strategy value. Each instance gets its own value
// so per-instance state never leaks between instances.
type Factory func() Strategy

// Registry maps strategy names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a strategy factory under the given name. Registering the
// same name twice is an error.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.New(errors.ErrCodeInvalidParameter, "strategy name must not be empty")
	}
	if factory == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "strategy factory must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return errors.Newf(errors.ErrCodeDuplicateRegistration, "strategy %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates a new strategy value for the given name.
func (r *Registry) Create(name string) (Strategy, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()
	if !exists {
		return nil, errors.Newf(errors.ErrCodeUnknownStrategy, "strategy %q not registered", name)
	}
	return factory(), nil
}

// Names returns the registered strategy names in sorted order.
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
