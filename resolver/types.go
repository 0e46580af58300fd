package resolver

// Origin records which side of the resolver produced an artifact.
type Origin string

const (
	OriginLocal   Origin = "local"
	OriginAmbient Origin = "ambient"
)

// Artifact is the loaded definition behind a name. Callers compare artifacts
// by pointer; a Resolver never hands out two distinct pointers for one
// locally resolved name.
type Artifact struct {
	Name     string
	Origin   Origin
	Location string
	Value    any
}

// Source is one location holding candidate artifact definitions.
//
// Find returns an error matching ErrNotPresent when the location does not
// hold name. Any other error means the artifact is there but unusable.
type Source interface {
	Find(name string) (*Artifact, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(name string) (*Artifact, error)

func (f SourceFunc) Find(name string) (*Artifact, error) {
	return f(name)
}

// Ambient is the host's own resolution mechanism, used only as a fallback.
type Ambient interface {
	Resolve(name string) (*Artifact, error)
}

// AmbientFunc adapts a function to Ambient.
type AmbientFunc func(name string) (*Artifact, error)

func (f AmbientFunc) Resolve(name string) (*Artifact, error) {
	return f(name)
}

// Logger receives one line per resolution event.
type Logger interface {
	Printf(format string, args ...any)
}

// Stats counts resolution outcomes since the Resolver was created.
type Stats struct {
	CacheHits   uint64
	LocalHits   uint64
	AmbientHits uint64
	Misses      uint64
}
