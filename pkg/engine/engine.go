// Package engine composes the inheritance graph, resolver, resolution cache,
// override engine and event channel into one explicitly constructed service.
//
// Structural edits (edges, theme creation and deletion, configuration
// writes) are serialized by the engine. Resolutions run concurrently and are
// validated against the generation of the theme they resolve.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roomforge/themekit/pkg/events"
	"github.com/roomforge/themekit/pkg/inheritance"
	"github.com/roomforge/themekit/pkg/overrides"
	"github.com/roomforge/themekit/pkg/registry"
	"github.com/roomforge/themekit/pkg/resolution"
	"github.com/roomforge/themekit/pkg/theme"
)

// ErrInheritanceDisabled is returned by edge edits when inheritance is off.
var ErrInheritanceDisabled = errors.New("inheritance disabled")

// ErrReadOnly is returned by record edits on a registry that is not a
// registry.Store.
var ErrReadOnly = errors.New("registry is read-only")

// Statistics summarizes the hierarchy and the cache.
type Statistics struct {
	TotalThemes  int                 `json:"total_themes"`
	MaxDepth     int                 `json:"max_depth"`
	AverageDepth float64             `json:"average_depth"`
	CacheSize    int                 `json:"cache_size"`
	CacheTimeout time.Duration       `json:"-"`
	CacheTTLMS   int64               `json:"cache_timeout_ms"`
	Chains       map[string][]string `json:"chains"`
}

type Engine struct {
	registry registry.Registry
	opts     options

	graph     *inheritance.Graph
	resolver  *resolution.Resolver
	cache     *resolution.Cache
	overrides *overrides.Engine
	events    *events.Channel

	// mu serializes structural edits.
	mu sync.Mutex
	// pending holds the events raised under mu, delivered by unlock.
	pending []events.Event
}

type options struct {
	inheritance bool
	overrides   bool
	caching     bool
	timeout     time.Duration
	maxDepth    int
	priority    []string
	tracer      trace.Tracer
	now         func() time.Time
}

type Opt func(*options)

func WithInheritance(enabled bool) Opt {
	return func(o *options) {
		o.inheritance = enabled
	}
}

func WithOverrides(enabled bool) Opt {
	return func(o *options) {
		o.overrides = enabled
	}
}

func WithCaching(enabled bool) Opt {
	return func(o *options) {
		o.caching = enabled
	}
}

// WithCacheTimeout sets how long resolved configurations are served from
// cache. Non-positive values keep the default.
func WithCacheTimeout(d time.Duration) Opt {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithMaxDepth(depth int) Opt {
	return func(o *options) {
		o.maxDepth = depth
	}
}

// WithOverridePriority sets override bucket labels, highest priority first.
func WithOverridePriority(labels []string) Opt {
	return func(o *options) {
		if len(labels) > 0 {
			o.priority = slices.Clone(labels)
		}
	}
}

func WithTracer(tracer trace.Tracer) Opt {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithClock replaces time.Now in the cache, for tests.
func WithClock(now func() time.Time) Opt {
	return func(o *options) {
		o.now = now
	}
}

// New builds an engine over reg. It is empty until Init seeds it.
func New(reg registry.Registry, opts ...Opt) *Engine {
	o := options{
		inheritance: true,
		overrides:   true,
		caching:     true,
		timeout:     resolution.DefaultTimeout,
		maxDepth:    inheritance.DefaultMaxDepth,
		priority:    slices.Clone(overrides.DefaultPriority),
		tracer:      noop.NewTracerProvider().Tracer(""),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		registry: reg,
		opts:     o,
		graph:    inheritance.New(o.maxDepth),
		events:   events.NewChannel(),
	}

	resolverOpts := []resolution.ResolverOption{resolution.WithTracer(o.tracer)}
	if !o.inheritance {
		resolverOpts = append(resolverOpts, resolution.WithoutInheritance())
	}
	e.resolver = resolution.NewResolver(reg, e.graph, resolverOpts...)
	e.cache = resolution.NewCache(e.resolver, e.graph,
		resolution.WithTimeout(o.timeout),
		resolution.WithCaching(o.caching),
		resolution.WithClock(o.now),
	)
	e.overrides = overrides.New(reg, e.cache, e.graph, lockedPublisher{e},
		overrides.WithEnabled(o.overrides),
		overrides.WithPriority(o.priority),
		overrides.WithTracer(o.tracer),
	)
	return e
}

// Init seeds the graph from the registry. Edges that would break the
// hierarchy invariants are logged and skipped.
func (e *Engine) Init(ctx context.Context) error {
	records, err := e.registry.ListThemes(ctx)
	if err != nil {
		return fmt.Errorf("listing themes: %w", err)
	}

	e.mu.Lock()
	defer e.unlock()

	for _, rec := range records {
		e.graph.AddNode(rec.ID)
	}
	if !e.opts.inheritance {
		slog.Debug("Theme engine initialized without inheritance", "themes", len(records))
		return nil
	}

	known := make(map[string]bool, len(records))
	for _, rec := range records {
		known[rec.ID] = true
	}
	for _, rec := range records {
		if rec.ParentID == "" {
			continue
		}
		if !known[rec.ParentID] {
			slog.Warn("Skipping inheritance from unknown theme", "theme", rec.ID, "parent", rec.ParentID)
			continue
		}
		if _, err := e.graph.RegisterEdge(rec.ID, rec.ParentID); err != nil {
			slog.Warn("Skipping invalid inheritance", "theme", rec.ID, "parent", rec.ParentID, "error", err)
		}
	}

	slog.Debug("Theme engine initialized", "themes", e.graph.Len())
	return nil
}

// Close drops every subscriber and cached resolution.
func (e *Engine) Close() {
	e.events.Close()
	e.cache.InvalidateAll()
}

// Events returns the channel the engine publishes on. Events of structural
// edits are delivered once the edit has released the engine, so handlers may
// call back into it. Events of concurrent edits may interleave.
func (e *Engine) Events() *events.Channel {
	return e.events
}

// RegisterInheritance makes parent the parent of child. Both themes must
// exist. When the registry is a Store the new parent is persisted before the
// edge is installed.
func (e *Engine) RegisterInheritance(ctx context.Context, child, parent string) error {
	if !e.opts.inheritance {
		return ErrInheritanceDisabled
	}

	e.mu.Lock()
	defer e.unlock()

	rec, err := e.getTheme(ctx, child)
	if err != nil {
		return err
	}
	if _, err := e.getTheme(ctx, parent); err != nil {
		return err
	}
	if err := e.graph.CheckEdge(child, parent); err != nil {
		return err
	}

	if store, ok := e.registry.(registry.Store); ok && rec.ParentID != parent {
		rec.ParentID = parent
		if err := store.PutTheme(ctx, rec); err != nil {
			return fmt.Errorf("persisting parent of %q: %w", child, err)
		}
	}

	affected, err := e.graph.RegisterEdge(child, parent)
	if err != nil {
		return err
	}
	if affected == nil {
		return nil
	}
	e.cache.Invalidate(affected...)

	slog.Debug("Inheritance registered", "child", child, "parent", parent, "affected", len(affected))
	e.publishLocked(events.InheritanceRegistered{Child: child, Parent: parent, Affected: affected})
	return nil
}

// RemoveInheritance detaches child from its parent. Removing a missing edge
// is a no-op.
func (e *Engine) RemoveInheritance(ctx context.Context, child string) error {
	if !e.opts.inheritance {
		return ErrInheritanceDisabled
	}

	e.mu.Lock()
	defer e.unlock()

	if _, ok := e.graph.Parent(child); !ok {
		return nil
	}

	if store, ok := e.registry.(registry.Store); ok {
		rec, err := e.getTheme(ctx, child)
		if err != nil {
			return err
		}
		rec.ParentID = ""
		if err := store.PutTheme(ctx, rec); err != nil {
			return fmt.Errorf("persisting parent of %q: %w", child, err)
		}
	}

	affected, parent, _ := e.graph.RemoveEdge(child)
	e.cache.Invalidate(affected...)

	slog.Debug("Inheritance removed", "child", child, "parent", parent, "affected", len(affected))
	e.publishLocked(events.InheritanceRemoved{Child: child, Parent: parent, Affected: affected})
	return nil
}

// ResolveInheritance returns the effective configuration of id. The result
// is a private copy.
func (e *Engine) ResolveInheritance(ctx context.Context, id string) (*theme.Config, error) {
	entry, err := e.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return entry.Resolved, nil
}

// Resolve is ResolveInheritance returning the whole cache entry.
func (e *Engine) Resolve(ctx context.Context, id string) (*resolution.Entry, error) {
	entry, cached, err := e.cache.Get(ctx, id)
	if err != nil {
		slog.Debug("Theme resolution failed", "theme", id, "error", err)
		e.events.Publish(events.InheritanceResolveFailed{ThemeID: id, Err: err})
		return nil, err
	}

	e.events.Publish(events.InheritanceResolved{
		ThemeID: id,
		Chain:   slices.Clone(entry.Chain),
		Config:  entry.Resolved.Clone(),
		Cached:  cached,
	})
	return entry, nil
}

// ApplyOverrides merges buckets onto the resolved configuration of id and
// stores the result as id's configuration.
func (e *Engine) ApplyOverrides(ctx context.Context, id string, buckets overrides.Buckets) (overrides.Result, error) {
	e.mu.Lock()
	defer e.unlock()

	return e.overrides.Apply(ctx, id, buckets)
}

// GetInheritanceChain returns [id, parent, ..., root].
func (e *Engine) GetInheritanceChain(id string) []string {
	return e.resolver.Chain(id)
}

// GetDescendants returns every theme inheriting from id, sorted.
func (e *Engine) GetDescendants(id string) []string {
	if !e.opts.inheritance {
		return nil
	}
	return e.graph.Descendants(id)
}

func (e *Engine) GetStatistics() Statistics {
	chains := e.graph.Chains()
	if !e.opts.inheritance {
		for id := range chains {
			chains[id] = []string{id}
		}
	}

	stats := Statistics{
		TotalThemes:  len(chains),
		CacheSize:    e.cache.Len(),
		CacheTimeout: e.cache.Timeout(),
		CacheTTLMS:   e.cache.Timeout().Milliseconds(),
		Chains:       chains,
	}
	total := 0
	for _, id := range slices.Sorted(maps.Keys(chains)) {
		depth := len(chains[id]) - 1
		total += depth
		stats.MaxDepth = max(stats.MaxDepth, depth)
	}
	if stats.TotalThemes > 0 {
		stats.AverageDepth = float64(total) / float64(stats.TotalThemes)
	}
	return stats
}

// ListThemes returns every theme record of the registry.
func (e *Engine) ListThemes(ctx context.Context) ([]*theme.Record, error) {
	return e.registry.ListThemes(ctx)
}

// GetTheme returns the stored record of id.
func (e *Engine) GetTheme(ctx context.Context, id string) (*theme.Record, error) {
	return e.getTheme(ctx, id)
}

// RegisterTheme creates or replaces a theme record. A declared parent is
// validated like RegisterInheritance before anything is written.
func (e *Engine) RegisterTheme(ctx context.Context, rec *theme.Record) error {
	store, ok := e.registry.(registry.Store)
	if !ok {
		return ErrReadOnly
	}
	if err := registry.ValidateID(rec.ID); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.unlock()

	if e.opts.inheritance && rec.ParentID != "" {
		if _, err := e.getTheme(ctx, rec.ParentID); err != nil {
			return err
		}
		if err := e.graph.CheckEdge(rec.ID, rec.ParentID); err != nil {
			return err
		}
	}

	if err := store.PutTheme(ctx, rec); err != nil {
		return fmt.Errorf("storing theme %q: %w", rec.ID, err)
	}

	e.installLocked(rec)
	return nil
}

// DeleteTheme removes id from the registry and the hierarchy. Its children
// become roots.
func (e *Engine) DeleteTheme(ctx context.Context, id string) error {
	store, ok := e.registry.(registry.Store)
	if !ok {
		return ErrReadOnly
	}

	e.mu.Lock()
	defer e.unlock()

	children := e.graph.Children(id)
	detached := make([]*theme.Record, 0, len(children))
	for _, kid := range children {
		rec, err := e.getTheme(ctx, kid)
		if err != nil {
			return err
		}
		rec.ParentID = ""
		detached = append(detached, rec)
	}

	// Nothing is written before the record itself is gone.
	if err := store.DeleteTheme(ctx, id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return &resolution.ThemeNotFoundError{ThemeID: id, Err: err}
		}
		return fmt.Errorf("deleting theme %q: %w", id, err)
	}

	parent, hadParent := e.graph.Parent(id)
	affected := e.graph.RemoveNode(id)
	e.cache.Invalidate(affected...)
	if hadParent {
		e.publishLocked(events.InheritanceRemoved{Child: id, Parent: parent, Affected: affected})
	}
	for _, kid := range children {
		e.publishLocked(events.InheritanceRemoved{Child: kid, Parent: id, Affected: e.graph.Subtree(kid)})
	}

	// A child left pointing at the deleted theme is skipped as an unknown
	// parent on the next Init, which matches the graph.
	var errs []error
	for _, rec := range detached {
		if err := store.PutTheme(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("detaching %q from %q: %w", rec.ID, id, err))
		}
	}
	return errors.Join(errs...)
}

// UpdateThemeConfig replaces the own configuration of id and invalidates
// the resolutions of id and its descendants.
func (e *Engine) UpdateThemeConfig(ctx context.Context, id string, cfg *theme.Config) error {
	e.mu.Lock()
	defer e.unlock()

	if err := e.registry.UpdateThemeConfig(ctx, id, cfg); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return &resolution.ThemeNotFoundError{ThemeID: id, Err: err}
		}
		return fmt.Errorf("updating theme %q: %w", id, err)
	}

	e.cache.Invalidate(e.touchLocked(id)...)
	return nil
}

// Reload re-reads id from the registry after it was changed behind the
// engine's back, and reconciles the hierarchy with it.
func (e *Engine) Reload(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.unlock()

	rec, err := e.registry.GetTheme(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		if !e.graph.Has(id) {
			return nil
		}
		parent, hadParent := e.graph.Parent(id)
		affected := e.graph.RemoveNode(id)
		e.cache.Invalidate(affected...)
		slog.Debug("Theme removed externally", "theme", id, "affected", len(affected))
		if hadParent {
			e.publishLocked(events.InheritanceRemoved{Child: id, Parent: parent, Affected: affected})
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("reloading theme %q: %w", id, err)
	}

	if e.opts.inheritance && rec.ParentID != "" {
		if err := e.graph.CheckEdge(rec.ID, rec.ParentID); err != nil {
			slog.Warn("Ignoring invalid inheritance of reloaded theme", "theme", id, "parent", rec.ParentID, "error", err)
			rec.ParentID = ""
		}
	}
	e.installLocked(rec)
	return nil
}

// installLocked reconciles the graph with rec, which has already been
// validated and stored.
func (e *Engine) installLocked(rec *theme.Record) {
	e.graph.AddNode(rec.ID)

	current, hasParent := e.graph.Parent(rec.ID)
	switch {
	case !e.opts.inheritance || (rec.ParentID == "" && !hasParent) || (hasParent && current == rec.ParentID):
		e.cache.Invalidate(e.touchLocked(rec.ID)...)

	case rec.ParentID == "":
		affected, parent, _ := e.graph.RemoveEdge(rec.ID)
		e.cache.Invalidate(affected...)
		e.publishLocked(events.InheritanceRemoved{Child: rec.ID, Parent: parent, Affected: affected})

	default:
		affected, err := e.graph.RegisterEdge(rec.ID, rec.ParentID)
		if err != nil {
			slog.Warn("Ignoring invalid inheritance", "theme", rec.ID, "parent", rec.ParentID, "error", err)
			e.cache.Invalidate(e.touchLocked(rec.ID)...)
			return
		}
		e.cache.Invalidate(affected...)
		e.publishLocked(events.InheritanceRegistered{Child: rec.ID, Parent: rec.ParentID, Affected: affected})
	}
}

// publishLocked queues ev until the edit holding e.mu finishes.
func (e *Engine) publishLocked(ev events.Event) {
	e.pending = append(e.pending, ev)
}

// unlock releases e.mu and then delivers the events queued while it was
// held, in order.
func (e *Engine) unlock() {
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, ev := range pending {
		e.events.Publish(ev)
	}
}

// lockedPublisher routes the override engine's events through the queue;
// Apply only runs under e.mu.
type lockedPublisher struct {
	e *Engine
}

func (p lockedPublisher) Publish(ev events.Event) {
	p.e.publishLocked(ev)
}

func (e *Engine) touchLocked(id string) []string {
	affected := e.graph.Touch(id)
	if len(affected) == 0 {
		return []string{id}
	}
	return affected
}

func (e *Engine) getTheme(ctx context.Context, id string) (*theme.Record, error) {
	rec, err := e.registry.GetTheme(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, &resolution.ThemeNotFoundError{ThemeID: id, Err: err}
		}
		return nil, fmt.Errorf("fetching theme %q: %w", id, err)
	}
	return rec, nil
}
