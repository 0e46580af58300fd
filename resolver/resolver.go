package resolver

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger routes resolution events to l.
func WithLogger(l Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithAmbientCaching also stores ambient results in the resolver's cache.
// By default they are forwarded as-is, leaving canonicalization to the
// ambient resolver.
func WithAmbientCaching() Option {
	return func(r *Resolver) {
		r.cacheAmbient = true
	}
}

// Resolver looks names up in its local sources first and falls back to the
// ambient resolver only when no local source holds the name.
type Resolver struct {
	local        *SourceSet
	ambient      Ambient
	logger       Logger
	cacheAmbient bool

	mu    sync.RWMutex
	cache map[string]*Artifact

	sf singleflight.Group

	cacheHits   atomic.Uint64
	localHits   atomic.Uint64
	ambientHits atomic.Uint64
	misses      atomic.Uint64
}

// New returns a Resolver over local and ambient. Both are required and are
// never modified.
func New(local *SourceSet, ambient Ambient, opts ...Option) (*Resolver, error) {
	if local == nil {
		return nil, fmt.Errorf("resolver: local source set is nil")
	}
	if ambient == nil {
		return nil, fmt.Errorf("resolver: ambient resolver is nil")
	}
	r := &Resolver{
		local:   local,
		ambient: ambient,
		cache:   make(map[string]*Artifact),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the artifact for name.
//
// A locally resolved artifact is cached and returned for every later call.
// Local absence falls through to the ambient resolver, whose error is
// returned unchanged when it cannot resolve name either. Any other local
// failure is returned without consulting the ambient resolver.
func (r *Resolver) Resolve(name string) (*Artifact, error) {
	if name == "" {
		return nil, fmt.Errorf("resolver: name is required")
	}
	if art, ok := r.Resolved(name); ok {
		r.cacheHits.Add(1)
		r.logf("cache hit %s", name)
		return art, nil
	}

	v, err, _ := r.sf.Do(name, func() (any, error) {
		if art, ok := r.Resolved(name); ok {
			r.cacheHits.Add(1)
			r.logf("cache hit %s", name)
			return art, nil
		}

		art, err := r.local.Find(name)
		switch {
		case err == nil:
			r.store(name, art)
			r.localHits.Add(1)
			r.logf("local hit %s from %s", name, art.Location)
			return art, nil
		case !errors.Is(err, ErrNotPresent):
			r.logf("local failure %s: %v", name, err)
			return nil, err
		}

		art, err = r.ambient.Resolve(name)
		if err != nil {
			r.misses.Add(1)
			r.logf("miss %s: %v", name, err)
			return nil, err
		}
		if art == nil {
			r.misses.Add(1)
			r.logf("miss %s: ambient returned no artifact", name)
			return nil, NotFoundError{Name: name}
		}
		if r.cacheAmbient {
			r.store(name, art)
		}
		r.ambientHits.Add(1)
		r.logf("ambient hit %s", name)
		return art, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

// Resolved returns a cached artifact without triggering resolution.
func (r *Resolver) Resolved(name string) (*Artifact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	art, ok := r.cache[name]
	return art, ok
}

// Local returns the source set the resolver consults before the ambient resolver.
func (r *Resolver) Local() *SourceSet {
	return r.local
}

// Stats returns a snapshot of the resolution counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		CacheHits:   r.cacheHits.Load(),
		LocalHits:   r.localHits.Load(),
		AmbientHits: r.ambientHits.Load(),
		Misses:      r.misses.Load(),
	}
}

// store inserts art unless name already has an entry; entries are write-once.
func (r *Resolver) store(name string, art *Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cache[name]; exists {
		return
	}
	r.cache[name] = art
}

func (r *Resolver) logf(format string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Printf("resolver: "+format, args...)
}

// ResolveAs is a typed wrapper around Resolve that converts Artifact.Value.
func ResolveAs[T any](r *Resolver, name string) (T, error) {
	var zero T
	art, err := r.Resolve(name)
	if err != nil {
		return zero, err
	}
	typed, ok := art.Value.(T)
	if !ok {
		return zero, TypeMismatchError{
			Name:     name,
			Expected: reflect.TypeOf((*T)(nil)).Elem().String(),
			Actual:   fmt.Sprintf("%T", art.Value),
		}
	}
	return typed, nil
}
