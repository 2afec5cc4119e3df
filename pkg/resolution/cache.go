package resolution

import (
	"context"
	"log/slog"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/roomforge/themekit/pkg/theme"
)

// DefaultTimeout is how long a resolved configuration is served from cache.
const DefaultTimeout = 5 * time.Minute

// maxAttempts bounds how often a resolution is recomputed because the
// theme's generation moved while it was in flight.
const maxAttempts = 3

// Generations reports the current generation of a theme. It changes
// whenever the theme's chain or an ancestor's configuration changes.
type Generations interface {
	Generation(id string) uint64
}

// Entry is a memoized resolution.
type Entry struct {
	ThemeID    string
	Resolved   *theme.Config
	Chain      []string
	Generation uint64
	Timestamp  time.Time
}

// Cache memoizes Resolver output per theme. An entry is served only while
// it is younger than the timeout and stamped with the theme's current
// generation; anything else is recomputed.
type Cache struct {
	resolver    *Resolver
	generations Generations
	timeout     time.Duration
	enabled     bool
	now         func() time.Time

	entries *gocache.Cache
	flight  singleflight.Group
}

type CacheOption func(*Cache)

// WithTimeout sets the entry lifetime.
func WithTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.timeout = d
	}
}

// WithCaching turns storage of entries on or off. Lookups still collapse
// concurrent resolutions when storage is off.
func WithCaching(enabled bool) CacheOption {
	return func(c *Cache) {
		c.enabled = enabled
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

func NewCache(resolver *Resolver, generations Generations, opts ...CacheOption) *Cache {
	c := &Cache{
		resolver:    resolver,
		generations: generations,
		timeout:     DefaultTimeout,
		enabled:     true,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	c.entries = gocache.New(c.timeout, 2*c.timeout)
	return c
}

// Get returns the resolved configuration of id, and whether it came from
// the cache. The returned entry is a private copy.
func (c *Cache) Get(ctx context.Context, id string) (*Entry, bool, error) {
	if entry, ok := c.lookup(id); ok {
		return entry.clone(), true, nil
	}

	// The shared resolution outlives the caller that started it; each
	// caller still stops waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(id, func() (any, error) {
		// A concurrent caller may have filled the entry while we queued.
		if entry, ok := c.lookup(id); ok {
			return entry, nil
		}
		return c.compute(shared, id)
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*Entry).clone(), false, nil
	}
}

func (c *Cache) compute(ctx context.Context, id string) (*Entry, error) {
	for attempt := 1; ; attempt++ {
		generation := c.generations.Generation(id)

		resolved, chain, err := c.resolver.Resolve(ctx, id)
		if err != nil {
			return nil, err
		}

		entry := &Entry{
			ThemeID:    id,
			Resolved:   resolved,
			Chain:      chain,
			Generation: generation,
			Timestamp:  c.now(),
		}

		if c.generations.Generation(id) == generation {
			if c.enabled {
				c.entries.Set(id, entry, c.timeout)
			}
			return entry, nil
		}

		if attempt == maxAttempts {
			// Serve the last result without caching it; it reflects a state
			// that existed during this call.
			slog.Warn("Theme kept changing during resolution", "theme", id, "attempts", attempt)
			return entry, nil
		}
		slog.Debug("Theme changed during resolution, retrying", "theme", id, "attempt", attempt)
	}
}

func (c *Cache) lookup(id string) (*Entry, bool) {
	if !c.enabled {
		return nil, false
	}
	v, ok := c.entries.Get(id)
	if !ok {
		return nil, false
	}
	entry := v.(*Entry)
	if c.now().Sub(entry.Timestamp) >= c.timeout || entry.Generation != c.generations.Generation(id) {
		c.entries.Delete(id)
		return nil, false
	}
	return entry, true
}

// Peek returns the entry of id if one is currently valid, without
// resolving anything.
func (c *Cache) Peek(id string) (*Entry, bool) {
	entry, ok := c.lookup(id)
	if !ok {
		return nil, false
	}
	return entry.clone(), true
}

// Invalidate evicts the entries of the given themes.
func (c *Cache) Invalidate(ids ...string) {
	for _, id := range ids {
		c.entries.Delete(id)
	}
}

// InvalidateAll evicts every entry.
func (c *Cache) InvalidateAll() {
	c.entries.Flush()
}

// Len returns the number of stored entries, including ones that expired
// but were not yet evicted.
func (c *Cache) Len() int {
	return c.entries.ItemCount()
}

// Timeout returns the entry lifetime.
func (c *Cache) Timeout() time.Duration {
	return c.timeout
}

func (e *Entry) clone() *Entry {
	out := *e
	out.Resolved = e.Resolved.Clone()
	out.Chain = slices.Clone(e.Chain)
	return &out
}
