package indicator

import (
	"sync"

	"github.com/tessera-lab/tessera/pkg/errors"
)

// Registry maps transform names to factories. Names are resolved when a run
// configuration is parsed; unknown names fail fast as configuration errors
// instead of surfacing mid-run.
type Registry interface {
	Register(name string, factory Factory) error
	Resolve(name string) (Factory, error)
	List() []string
}

type registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty transform registry.
func NewRegistry() Registry {
	return &registry{
		factories: make(map[string]Factory),
		mu:        sync.RWMutex{},
	}
}

// DefaultRegistry returns a registry with the built-in transforms.
func DefaultRegistry() Registry {
	r := NewRegistry()
	_ = r.Register("sma", NewSMA)
	_ = r.Register("rsi", NewRSI)
	_ = r.Register("macd", NewMACD)

	return r
}

// Register adds a transform factory to the registry.
func (r *registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.Newf(errors.ErrCodeTransformExists, "transform %q already registered", name)
	}

	r.factories[name] = factory

	return nil
}

// Resolve retrieves a transform factory by name.
func (r *registry) Resolve(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[name]
	if !exists {
		return nil, errors.Newf(errors.ErrCodeUnknownTransform, "unknown transform %q", name)
	}

	return factory, nil
}

// List returns the names of all registered transforms.
func (r *registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	return names
}
