package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kingrea/lattice-isolate/resolver"
)

// Factory constructs the value behind a host artifact.
type Factory func() (any, error)

// Registry is the host's own resolver: a chain of factory registries that
// consults its parent before itself, the way the host environment normally
// resolves names. Each registry runs a factory at most once per name, even
// under concurrent first calls, and hands out the same instance afterwards.
// Failed builds are retried on the next call.
type Registry struct {
	label  string
	parent *Registry

	mu        sync.RWMutex
	factories map[string]Factory
	instances map[string]*resolver.Artifact

	sf singleflight.Group
}

// NewRegistry returns an empty registry delegating to parent, which may be nil.
func NewRegistry(label string, parent *Registry) *Registry {
	return &Registry{
		label:     label,
		parent:    parent,
		factories: map[string]Factory{},
		instances: map[string]*resolver.Artifact{},
	}
}

// Register installs a factory. Returns an error if the name already exists.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("host: name is required")
	}
	if factory == nil {
		return fmt.Errorf("host: factory is required for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("host: %s already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// RegisterValue installs a factory returning v.
func (r *Registry) RegisterValue(name string, v any) error {
	return r.Register(name, func() (any, error) { return v, nil })
}

// Resolve returns the artifact for name, parent first. Unknown names yield
// resolver.NotFoundError.
func (r *Registry) Resolve(name string) (*resolver.Artifact, error) {
	if r.parent != nil {
		art, err := r.parent.Resolve(name)
		if err == nil {
			return art, nil
		}
		if !errors.Is(err, resolver.ErrNotFound) {
			return nil, err
		}
	}
	return r.resolveOwn(name)
}

func (r *Registry) resolveOwn(name string) (*resolver.Artifact, error) {
	r.mu.RLock()
	art, built := r.instances[name]
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if built {
		return art, nil
	}
	if !ok {
		return nil, resolver.NotFoundError{Name: name}
	}

	v, err, _ := r.sf.Do(name, func() (any, error) {
		r.mu.RLock()
		existing, ok := r.instances[name]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		value, err := factory()
		if err != nil {
			return nil, fmt.Errorf("host: build %s: %w", name, err)
		}
		art := &resolver.Artifact{
			Name:     name,
			Origin:   resolver.OriginAmbient,
			Location: r.label,
			Value:    value,
		}
		r.mu.Lock()
		r.instances[name] = art
		r.mu.Unlock()
		return art, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*resolver.Artifact), nil
}

// Names returns a sorted list of names resolvable through the chain.
func (r *Registry) Names() []string {
	seen := map[string]struct{}{}
	for reg := r; reg != nil; reg = reg.parent {
		reg.mu.RLock()
		for name := range reg.factories {
			seen[name] = struct{}{}
		}
		reg.mu.RUnlock()
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
