package resolution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomforge/themekit/pkg/inheritance"
	"github.com/roomforge/themekit/pkg/registry"
	"github.com/roomforge/themekit/pkg/theme"
)

// countingRegistry counts GetTheme calls and can run a hook before each.
type countingRegistry struct {
	registry.Registry
	calls  atomic.Int32
	before func(id string)
}

func (r *countingRegistry) GetTheme(ctx context.Context, id string) (*theme.Record, error) {
	r.calls.Add(1)
	if r.before != nil {
		r.before(id)
	}
	return r.Registry.GetTheme(ctx, id)
}

func record(id, parent string, vars map[string]any) *theme.Record {
	cfg := theme.NewConfig()
	for k, v := range vars {
		cfg.Variables[k] = v
	}
	return &theme.Record{ID: id, ParentID: parent, Config: cfg}
}

// fixture builds root <- mid <- leaf, all defining variables.color.
func fixture(t *testing.T) (*countingRegistry, *inheritance.Graph) {
	t.Helper()

	mem := registry.NewMemory(
		record("root", "", map[string]any{"color": "root", "only_root": true}),
		record("mid", "root", map[string]any{"color": "mid"}),
		record("leaf", "mid", map[string]any{"color": "leaf"}),
	)

	g := inheritance.New(inheritance.DefaultMaxDepth)
	_, err := g.RegisterEdge("mid", "root")
	require.NoError(t, err)
	_, err = g.RegisterEdge("leaf", "mid")
	require.NoError(t, err)

	return &countingRegistry{Registry: mem}, g
}

func TestResolve_MostDerivedWins(t *testing.T) {
	t.Parallel()

	reg, g := fixture(t)
	r := NewResolver(reg, g)

	cfg, chain, err := r.Resolve(t.Context(), "leaf")
	require.NoError(t, err)

	assert.Equal(t, []string{"leaf", "mid", "root"}, chain)
	assert.Equal(t, "leaf", cfg.Variables["color"])
	assert.Equal(t, true, cfg.Variables["only_root"])
	assert.Equal(t, int32(3), reg.calls.Load())
}

func TestResolve_DarkCompactScenario(t *testing.T) {
	t.Parallel()

	mem := registry.NewMemory(
		record("dark", "", map[string]any{"primary": "#111"}),
		record("dark-compact", "dark", map[string]any{"accent": "#f00"}),
	)
	g := inheritance.New(inheritance.DefaultMaxDepth)
	_, err := g.RegisterEdge("dark-compact", "dark")
	require.NoError(t, err)

	cfg, _, err := NewResolver(mem, g).Resolve(t.Context(), "dark-compact")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"primary": "#111", "accent": "#f00"}, cfg.Variables)
}

func TestResolve_ComponentsMergedPerID(t *testing.T) {
	t.Parallel()

	parent := record("parent", "", nil)
	parent.Config.Components["timer"] = map[string]any{"visible": true, "color": "red"}
	child := record("child", "parent", nil)
	child.Config.Components["timer"] = map[string]any{"color": "blue"}

	g := inheritance.New(inheritance.DefaultMaxDepth)
	_, err := g.RegisterEdge("child", "parent")
	require.NoError(t, err)

	cfg, _, err := NewResolver(registry.NewMemory(parent, child), g).Resolve(t.Context(), "child")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"visible": true, "color": "blue"}, cfg.Components["timer"])
}

func TestResolve_WithoutInheritance(t *testing.T) {
	t.Parallel()

	reg, g := fixture(t)
	cfg, chain, err := NewResolver(reg, g, WithoutInheritance()).Resolve(t.Context(), "leaf")
	require.NoError(t, err)

	assert.Equal(t, []string{"leaf"}, chain)
	assert.NotContains(t, cfg.Variables, "only_root")
}

func TestResolve_MissingAncestor(t *testing.T) {
	t.Parallel()

	mem := registry.NewMemory(record("child", "gone", nil))
	g := inheritance.New(inheritance.DefaultMaxDepth)
	_, err := g.RegisterEdge("child", "gone")
	require.NoError(t, err)

	_, _, err = NewResolver(mem, g).Resolve(t.Context(), "child")
	var notFound *ThemeNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "gone", notFound.ThemeID)
	assert.Equal(t, "child", notFound.Requested)
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestResolve_UnknownThemeUsesOwnRecord(t *testing.T) {
	t.Parallel()

	mem := registry.NewMemory(record("loose", "", map[string]any{"a": 1}))
	cfg, chain, err := NewResolver(mem, inheritance.New(inheritance.DefaultMaxDepth)).Resolve(t.Context(), "loose")
	require.NoError(t, err)
	assert.Equal(t, []string{"loose"}, chain)
	assert.Equal(t, 1, cfg.Variables["a"])
}

func TestCache_SecondGetWithinTTLIsServedFromCache(t *testing.T) {
	t.Parallel()

	reg, g := fixture(t)
	c := NewCache(NewResolver(reg, g), g)

	first, cached, err := c.Get(t.Context(), "leaf")
	require.NoError(t, err)
	assert.False(t, cached)

	second, cached, err := c.Get(t.Context(), "leaf")
	require.NoError(t, err)
	assert.True(t, cached)

	assert.Equal(t, first.Resolved, second.Resolved)
	assert.Equal(t, int32(3), reg.calls.Load(), "registry I/O happens once")
	assert.Equal(t, 1, c.Len())
}

func TestCache_ReturnsCopies(t *testing.T) {
	t.Parallel()

	reg, g := fixture(t)
	c := NewCache(NewResolver(reg, g), g)

	entry, _, err := c.Get(t.Context(), "leaf")
	require.NoError(t, err)
	entry.Resolved.Variables["color"] = "tampered"
	entry.Chain[0] = "tampered"

	again, cached, err := c.Get(t.Context(), "leaf")
	require.NoError(t, err)
	require.True(t, cached)
	assert.Equal(t, "leaf", again.Resolved.Variables["color"])
	assert.Equal(t, "leaf", again.Chain[0])
}

func TestCache_ExpiredEntryIsRecomputed(t *testing.T) {
	t.Parallel()

	reg, g := fixture(t)
	var now atomic.Pointer[time.Time]
	start := time.Now()
	now.Store(&start)

	c := NewCache(NewResolver(reg, g), g,
		WithTimeout(time.Minute),
		WithClock(func() time.Time { return *now.Load() }),
	)

	_, _, err := c.Get(t.Context(), "root")
	require.NoError(t, err)

	later := start.Add(59 * time.Second)
	now.Store(&later)
	_, cached, err := c.Get(t.Context(), "root")
	require.NoError(t, err)
	assert.True(t, cached)

	expired := start.Add(time.Minute)
	now.Store(&expired)
	_, cached, err = c.Get(t.Context(), "root")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), reg.calls.Load())
}

func TestCache_GenerationChangeInvalidates(t *testing.T) {
	t.Parallel()

	reg, g := fixture(t)
	c := NewCache(NewResolver(reg, g), g)

	before, _, err := c.Get(t.Context(), "leaf")
	require.NoError(t, err)

	// Re-parenting mid onto a new root changes leaf's chain without any
	// explicit cache eviction.
	mem := reg.Registry.(*registry.Memory)
	require.NoError(t, mem.PutTheme(t.Context(), record("base", "", map[string]any{"from_base": true})))
	_, err = g.RegisterEdge("root", "base")
	require.NoError(t, err)

	after, cached, err := c.Get(t.Context(), "leaf")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Greater(t, after.Generation, before.Generation)
	assert.Equal(t, []string{"leaf", "mid", "root", "base"}, after.Chain)
	assert.Equal(t, true, after.Resolved.Variables["from_base"])
}

func TestCache_InvalidateAndInvalidateAll(t *testing.T) {
	t.Parallel()

	reg, g := fixture(t)
	c := NewCache(NewResolver(reg, g), g)

	for _, id := range []string{"root", "mid", "leaf"} {
		_, _, err := c.Get(t.Context(), id)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Len())

	c.Invalidate("mid", "leaf")
	assert.Equal(t, 1, c.Len())
	_, ok := c.Peek("root")
	assert.True(t, ok)
	_, ok = c.Peek("leaf")
	assert.False(t, ok)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

func TestCache_ConcurrentColdLookupsCollapse(t *testing.T) {
	t.Parallel()

	reg, g := fixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	reg.before = func(string) {
		once.Do(func() { close(started) })
		<-release
	}

	c := NewCache(NewResolver(reg, g), g)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*Entry, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Go(func() {
			results[i], _, errs[i] = c.Get(context.Background(), "leaf")
		})
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "leaf", results[i].Resolved.Variables["color"])
	}
	assert.Equal(t, int32(3), reg.calls.Load(), "one resolution for all callers")
}

func TestCache_InFlightChangeIsRetried(t *testing.T) {
	t.Parallel()

	reg, g := fixture(t)
	mem := reg.Registry.(*registry.Memory)

	var bumped atomic.Bool
	reg.before = func(id string) {
		// While the first resolution is fetching the root, the root's
		// configuration changes.
		if id == "root" && bumped.CompareAndSwap(false, true) {
			require.NoError(t, mem.UpdateThemeConfig(context.Background(), "root", &theme.Config{
				Variables: map[string]any{"color": "root", "only_root": "updated"},
			}))
			g.Touch("root")
		}
	}

	c := NewCache(NewResolver(reg, g), g)
	entry, _, err := c.Get(t.Context(), "leaf")
	require.NoError(t, err)

	assert.Equal(t, "updated", entry.Resolved.Variables["only_root"])
	assert.Equal(t, g.Generation("leaf"), entry.Generation)
	assert.Equal(t, int32(6), reg.calls.Load(), "the stale attempt is discarded and recomputed")

	_, cached, err := c.Get(t.Context(), "leaf")
	require.NoError(t, err)
	assert.True(t, cached)
}

func TestCache_Disabled(t *testing.T) {
	t.Parallel()

	reg, g := fixture(t)
	c := NewCache(NewResolver(reg, g), g, WithCaching(false))

	for range 2 {
		_, cached, err := c.Get(t.Context(), "root")
		require.NoError(t, err)
		assert.False(t, cached)
	}
	assert.Equal(t, int32(2), reg.calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	mem := registry.NewMemory()
	reg := &countingRegistry{Registry: mem}
	g := inheritance.New(inheritance.DefaultMaxDepth)
	c := NewCache(NewResolver(reg, g), g)

	_, _, err := c.Get(t.Context(), "ghost")
	var notFound *ThemeNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, 0, c.Len())

	require.NoError(t, mem.PutTheme(t.Context(), record("ghost", "", nil)))
	_, _, err = c.Get(t.Context(), "ghost")
	require.NoError(t, err)
}

func TestCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	t.Parallel()

	reg, g := fixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	reg.before = func(string) {
		once.Do(func() { close(started) })
		<-release
	}

	c := NewCache(NewResolver(reg, g), g)

	first, cancel := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.Get(first, "leaf")
		firstErr <- err
	}()
	<-started

	secondDone := make(chan struct{})
	var (
		entry *Entry
		err   error
	)
	go func() {
		defer close(secondDone)
		entry, _, err = c.Get(t.Context(), "leaf")
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	<-secondDone
	require.NoError(t, err)
	assert.Equal(t, "leaf", entry.Resolved.Variables["color"])
	assert.Equal(t, int32(3), reg.calls.Load(), "the cancelled caller's resolution is shared")

	_, cached, err := c.Get(t.Context(), "leaf")
	require.NoError(t, err)
	assert.True(t, cached)
}
