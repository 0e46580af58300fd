package resolver_test

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/lattice-isolate/resolver"
)

type countingSource struct {
	location string
	defs     map[string]any
	calls    atomic.Int64
	delay    time.Duration
}

func (s *countingSource) Find(name string) (*resolver.Artifact, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	v, ok := s.defs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", s.location, resolver.ErrNotPresent)
	}
	return &resolver.Artifact{Name: name, Origin: resolver.OriginLocal, Location: s.location, Value: v}, nil
}

type mapAmbient struct {
	mu    sync.Mutex
	defs  map[string]any
	made  map[string]*resolver.Artifact
	calls atomic.Int64
}

func newMapAmbient(defs map[string]any) *mapAmbient {
	return &mapAmbient{defs: defs, made: map[string]*resolver.Artifact{}}
}

func (a *mapAmbient) Resolve(name string) (*resolver.Artifact, error) {
	a.calls.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	if art, ok := a.made[name]; ok {
		return art, nil
	}
	v, ok := a.defs[name]
	if !ok {
		return nil, resolver.NotFoundError{Name: name}
	}
	art := &resolver.Artifact{Name: name, Origin: resolver.OriginAmbient, Location: "host", Value: v}
	a.made[name] = art
	return art, nil
}

func newFixture(t *testing.T, opts ...resolver.Option) (*resolver.Resolver, *countingSource, *mapAmbient) {
	t.Helper()
	local := &countingSource{location: "local", defs: map[string]any{"foo.Bar": "ArtifactA"}}
	ambient := newMapAmbient(map[string]any{"foo.Bar": "ArtifactB", "baz.Qux": "ArtifactC"})
	r, err := resolver.New(resolver.NewSourceSet(local), ambient, opts...)
	require.NoError(t, err)
	return r, local, ambient
}

func TestResolveOverridePriority(t *testing.T) {
	r, _, ambient := newFixture(t)

	art, err := r.Resolve("foo.Bar")
	require.NoError(t, err)
	assert.Equal(t, "ArtifactA", art.Value)
	assert.Equal(t, resolver.OriginLocal, art.Origin)
	assert.Zero(t, ambient.calls.Load(), "ambient must not be consulted when local holds the name")
}

func TestResolveFallback(t *testing.T) {
	r, _, _ := newFixture(t)

	art, err := r.Resolve("baz.Qux")
	require.NoError(t, err)
	assert.Equal(t, "ArtifactC", art.Value)
	assert.Equal(t, resolver.OriginAmbient, art.Origin)
}

func TestResolveTotalMiss(t *testing.T) {
	r, _, _ := newFixture(t)

	_, err := r.Resolve("missing.Name")
	require.Error(t, err)
	assert.True(t, errors.Is(err, resolver.ErrNotFound))

	var nf resolver.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing.Name", nf.Name)
}

func TestResolveAmbientErrorIsVerbatim(t *testing.T) {
	sentinel := errors.New("host exploded")
	r, err := resolver.New(resolver.NewSourceSet(), resolver.AmbientFunc(func(string) (*resolver.Artifact, error) {
		return nil, sentinel
	}))
	require.NoError(t, err)

	_, err = r.Resolve("any.Name")
	assert.Same(t, sentinel, err)
}

func TestResolveIdempotent(t *testing.T) {
	r, local, _ := newFixture(t)

	first, err := r.Resolve("foo.Bar")
	require.NoError(t, err)
	second, err := r.Resolve("foo.Bar")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, local.calls.Load())
	assert.Equal(t, resolver.Stats{CacheHits: 1, LocalHits: 1}, r.Stats())
}

func TestResolveAmbientNotCachedByDefault(t *testing.T) {
	r, local, ambient := newFixture(t)

	first, err := r.Resolve("baz.Qux")
	require.NoError(t, err)
	second, err := r.Resolve("baz.Qux")
	require.NoError(t, err)

	assert.Same(t, first, second, "ambient canonicalizes its own results")
	assert.EqualValues(t, 2, local.calls.Load())
	assert.EqualValues(t, 2, ambient.calls.Load())
	_, cached := r.Resolved("baz.Qux")
	assert.False(t, cached)
}

func TestResolveWithAmbientCaching(t *testing.T) {
	r, local, ambient := newFixture(t, resolver.WithAmbientCaching())

	first, err := r.Resolve("baz.Qux")
	require.NoError(t, err)
	second, err := r.Resolve("baz.Qux")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, local.calls.Load())
	assert.EqualValues(t, 1, ambient.calls.Load())
}

func TestResolveFailureIsNotSticky(t *testing.T) {
	local := &countingSource{location: "local", defs: map[string]any{}}
	r, err := resolver.New(resolver.NewSourceSet(local), newMapAmbient(nil))
	require.NoError(t, err)

	_, err = r.Resolve("late.Arrival")
	require.ErrorIs(t, err, resolver.ErrNotFound)

	local.defs["late.Arrival"] = "here now"
	art, err := r.Resolve("late.Arrival")
	require.NoError(t, err)
	assert.Equal(t, "here now", art.Value)
	assert.Equal(t, uint64(1), r.Stats().Misses)
}

func TestResolveInvalidLocalDoesNotFallBack(t *testing.T) {
	broken := errors.New("truncated definition")
	local := resolver.SourceFunc(func(name string) (*resolver.Artifact, error) {
		return nil, resolver.InvalidArtifactError{Name: name, Location: "broken", Err: broken}
	})
	ambient := newMapAmbient(map[string]any{"foo.Bar": "ArtifactB"})
	r, err := resolver.New(resolver.NewSourceSet(local), ambient)
	require.NoError(t, err)

	_, err = r.Resolve("foo.Bar")
	require.Error(t, err)
	assert.ErrorIs(t, err, broken)
	var invalid resolver.InvalidArtifactError
	assert.True(t, errors.As(err, &invalid))
	assert.Zero(t, ambient.calls.Load())
}

func TestResolveConcurrentSingleLookup(t *testing.T) {
	local := &countingSource{
		location: "local",
		defs:     map[string]any{"foo.Bar": "ArtifactA"},
		delay:    20 * time.Millisecond,
	}
	r, err := resolver.New(resolver.NewSourceSet(local), newMapAmbient(nil))
	require.NoError(t, err)

	const workers = 32
	results := make([]*resolver.Artifact, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			art, err := r.Resolve("foo.Bar")
			assert.NoError(t, err)
			results[i] = art
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, local.calls.Load())
	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestResolveNonInterference(t *testing.T) {
	r, _, _ := newFixture(t)

	before, err := r.Resolve("baz.Qux")
	require.NoError(t, err)
	_, err = r.Resolve("foo.Bar")
	require.NoError(t, err)
	after, err := r.Resolve("baz.Qux")
	require.NoError(t, err)

	assert.Same(t, before, after)
	assert.Equal(t, resolver.OriginAmbient, after.Origin)
}

func TestSourceSetOrder(t *testing.T) {
	first := &countingSource{location: "first", defs: map[string]any{"a.X": 1}}
	second := &countingSource{location: "second", defs: map[string]any{"a.X": 2, "a.Y": 3}}
	set := resolver.NewSourceSet(first, nil, second)
	require.Equal(t, 2, set.Len())

	art, err := set.Find("a.X")
	require.NoError(t, err)
	assert.Equal(t, "first", art.Location)

	art, err = set.Find("a.Y")
	require.NoError(t, err)
	assert.Equal(t, "second", art.Location)

	_, err = set.Find("a.Z")
	assert.True(t, resolver.IsNotPresent(err))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := resolver.New(nil, newMapAmbient(nil))
	assert.Error(t, err)
	_, err = resolver.New(resolver.NewSourceSet(), nil)
	assert.Error(t, err)
}

func TestResolveEmptyName(t *testing.T) {
	r, _, _ := newFixture(t)
	_, err := r.Resolve("")
	assert.Error(t, err)
}

func TestResolveAs(t *testing.T) {
	r, _, _ := newFixture(t)

	v, err := resolver.ResolveAs[string](r, "foo.Bar")
	require.NoError(t, err)
	assert.Equal(t, "ArtifactA", v)

	_, err = resolver.ResolveAs[int](r, "foo.Bar")
	var mismatch resolver.TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "int", mismatch.Expected)
	assert.Equal(t, "string", mismatch.Actual)
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func TestResolveLogsTransitions(t *testing.T) {
	logger := &recordingLogger{}
	r, _, _ := newFixture(t, resolver.WithLogger(logger))

	_, _ = r.Resolve("foo.Bar")
	_, _ = r.Resolve("foo.Bar")
	_, _ = r.Resolve("baz.Qux")
	_, _ = r.Resolve("missing.Name")

	require.Len(t, logger.lines, 4)
	assert.Equal(t, "resolver: local hit foo.Bar from local", logger.lines[0])
	assert.Equal(t, "resolver: cache hit foo.Bar", logger.lines[1])
	assert.Equal(t, "resolver: ambient hit baz.Qux", logger.lines[2])
	assert.Contains(t, logger.lines[3], "resolver: miss missing.Name")
}

func TestResolveConcurrentAmbientIsCanonical(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []resolver.Option
	}{
		{name: "forwarded"},
		{name: "cached", opts: []resolver.Option{resolver.WithAmbientCaching()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			local := &countingSource{location: "local", defs: map[string]any{}, delay: 10 * time.Millisecond}
			ambient := newMapAmbient(map[string]any{"baz.Qux": "ArtifactC"})
			r, err := resolver.New(resolver.NewSourceSet(local), ambient, tc.opts...)
			require.NoError(t, err)

			const workers = 32
			results := make([]*resolver.Artifact, workers)
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					art, err := r.Resolve("baz.Qux")
					assert.NoError(t, err)
					results[i] = art
				}(i)
			}
			close(start)
			wg.Wait()

			require.NotNil(t, results[0])
			assert.Equal(t, resolver.OriginAmbient, results[0].Origin)
			for i := 1; i < workers; i++ {
				assert.Same(t, results[0], results[i])
			}
		})
	}
}

func TestResolveConcurrentFailureRetries(t *testing.T) {
	local := &countingSource{location: "local", defs: map[string]any{}, delay: 10 * time.Millisecond}
	ambient := newMapAmbient(map[string]any{})
	r, err := resolver.New(resolver.NewSourceSet(local), ambient)
	require.NoError(t, err)

	const workers = 16
	errs := make([]error, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = r.Resolve("late.Arrival")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		assert.ErrorIs(t, errs[i], resolver.ErrNotFound)
	}
	_, cached := r.Resolved("late.Arrival")
	assert.False(t, cached)

	ambient.mu.Lock()
	ambient.defs["late.Arrival"] = "now known"
	ambient.mu.Unlock()

	callsBefore := ambient.calls.Load()
	art, err := r.Resolve("late.Arrival")
	require.NoError(t, err)
	assert.Equal(t, "now known", art.Value)
	assert.Greater(t, ambient.calls.Load(), callsBefore)
}
