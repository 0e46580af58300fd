package plugins

import (
	"fmt"

	"github.com/kingrea/lattice-isolate/internal/config"
	"github.com/kingrea/lattice-isolate/resolver"
)

// Lister is implemented by sources that can enumerate their artifacts.
type Lister interface {
	Names() ([]string, error)
}

// BuildSourceSet turns the configured sources into an ordered
// resolver.SourceSet, preserving configuration order.
func BuildSourceSet(cfg *config.Config) (*resolver.SourceSet, error) {
	if cfg == nil {
		return resolver.NewSourceSet(), nil
	}
	refs := cfg.Sources()
	sources := make([]resolver.Source, 0, len(refs))
	for _, ref := range refs {
		src, err := newSource(ref)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return resolver.NewSourceSet(sources...), nil
}

func newSource(ref config.SourceRef) (resolver.Source, error) {
	switch ref.Kind {
	case config.SourceKindYAML:
		return NewDefinitionSource(ref.Name, ref.Path), nil
	case config.SourceKindGo:
		return NewGoSource(ref.Name, ref.Path), nil
	default:
		return nil, fmt.Errorf("plugin: source %s: unsupported kind %q", ref.Name, ref.Kind)
	}
}

// NewResolver wires the configured local sources in front of ambient.
func NewResolver(cfg *config.Config, ambient resolver.Ambient, opts ...resolver.Option) (*resolver.Resolver, error) {
	set, err := BuildSourceSet(cfg)
	if err != nil {
		return nil, err
	}
	if cfg != nil && cfg.CacheAmbient() {
		opts = append(opts, resolver.WithAmbientCaching())
	}
	return resolver.New(set, ambient, opts...)
}

// LocalNames lists the artifacts each source in set can supply, keyed by
// the source's position. Sources that cannot enumerate are skipped.
func LocalNames(set *resolver.SourceSet) (map[int][]string, error) {
	out := make(map[int][]string)
	for i, src := range set.Sources() {
		lister, ok := src.(Lister)
		if !ok {
			continue
		}
		names, err := lister.Names()
		if err != nil {
			return nil, err
		}
		out[i] = names
	}
	return out, nil
}
