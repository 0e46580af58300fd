package resolver

import (
	"errors"
	"fmt"
)

// SourceSet is an ordered, immutable collection of local sources. Earlier
// sources shadow later ones.
type SourceSet struct {
	sources []Source
}

// NewSourceSet returns a set probing sources in the given order. Nil entries
// are skipped.
func NewSourceSet(sources ...Source) *SourceSet {
	set := &SourceSet{sources: make([]Source, 0, len(sources))}
	for _, src := range sources {
		if src == nil {
			continue
		}
		set.sources = append(set.sources, src)
	}
	return set
}

// Find returns the first definition of name across the set.
func (s *SourceSet) Find(name string) (*Artifact, error) {
	if s == nil {
		return nil, ErrNotPresent
	}
	for i, src := range s.sources {
		art, err := src.Find(name)
		if err != nil {
			if errors.Is(err, ErrNotPresent) {
				continue
			}
			return nil, fmt.Errorf("resolver: local source %d: %w", i, err)
		}
		if art == nil {
			continue
		}
		return art, nil
	}
	return nil, ErrNotPresent
}

// Len returns the number of sources.
func (s *SourceSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.sources)
}

// Sources returns a copy of the ordered sources.
func (s *SourceSet) Sources() []Source {
	if s == nil {
		return nil
	}
	out := make([]Source, len(s.sources))
	copy(out, s.sources)
	return out
}
