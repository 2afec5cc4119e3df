// Package overrides layers labelled partial configurations on top of a
// theme's resolved configuration and writes the result back to the registry.
package overrides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roomforge/themekit/pkg/events"
	"github.com/roomforge/themekit/pkg/registry"
	"github.com/roomforge/themekit/pkg/resolution"
	"github.com/roomforge/themekit/pkg/theme"
)

// ErrOverridesDisabled is reported in Result when overrides are turned off.
var ErrOverridesDisabled = errors.New("overrides disabled")

const disabledMessage = "Overrides disabled"

// DefaultPriority lists bucket labels, highest priority first.
var DefaultPriority = []string{"child", "parent", "grandparent"}

// MergeError reports merged overrides that no longer fit the configuration
// layout.
type MergeError struct {
	ThemeID string
	Path    string
	Err     error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merging overrides into %q at %q: %v", e.ThemeID, e.Path, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// Buckets maps a priority label to a partial configuration, shaped like
// theme.Config.ToMap output.
type Buckets map[string]map[string]any

// Result describes the outcome of Apply.
type Result struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Config  *theme.Config `json:"config,omitempty"`
	// Applied lists the buckets that were merged, in application order.
	Applied []string `json:"applied,omitempty"`
	// Ignored lists the buckets whose label has no priority.
	Ignored []string `json:"ignored,omitempty"`
}

// Base provides resolved configurations.
type Base interface {
	Get(ctx context.Context, id string) (*resolution.Entry, bool, error)
	Invalidate(ids ...string)
}

// Hierarchy marks a theme's configuration as changed and returns the themes
// whose resolution depends on it.
type Hierarchy interface {
	Touch(id string) []string
}

// Publisher receives the outcome of every Apply. *events.Channel is one.
type Publisher interface {
	Publish(ev events.Event)
}

// Engine applies overrides. It does not serialize calls; the caller owns
// ordering against other structural edits.
type Engine struct {
	registry  registry.Registry
	base      Base
	hierarchy Hierarchy
	events    Publisher
	priority  []string
	enabled   bool
	tracer    trace.Tracer
}

type Opt func(*Engine)

// WithPriority sets the bucket labels, highest priority first.
func WithPriority(labels []string) Opt {
	return func(e *Engine) {
		e.priority = slices.Clone(labels)
	}
}

func WithEnabled(enabled bool) Opt {
	return func(e *Engine) {
		e.enabled = enabled
	}
}

func WithTracer(tracer trace.Tracer) Opt {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func New(reg registry.Registry, base Base, hierarchy Hierarchy, pub Publisher, opts ...Opt) *Engine {
	e := &Engine{
		registry:  reg,
		base:      base,
		hierarchy: hierarchy,
		events:    pub,
		priority:  slices.Clone(DefaultPriority),
		enabled:   true,
		tracer:    noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enabled reports whether Apply does anything.
func (e *Engine) Enabled() bool {
	return e.enabled
}

// Priority returns the bucket labels, highest priority first.
func (e *Engine) Priority() []string {
	return slices.Clone(e.priority)
}

// Apply merges buckets onto the resolved configuration of id, lowest
// priority first, and stores the result as id's own configuration.
//
// When overrides are disabled it returns an unsuccessful Result and a nil
// error. On any other failure nothing is written, the failure is published
// and returned both in Result and as the error.
func (e *Engine) Apply(ctx context.Context, id string, buckets Buckets) (Result, error) {
	if !e.enabled {
		return Result{Success: false, Message: disabledMessage}, nil
	}

	ctx, span := e.tracer.Start(ctx, "theme.overrides.apply", trace.WithAttributes(
		attribute.String("theme.id", id),
		attribute.StringSlice("theme.override.buckets", slices.Sorted(maps.Keys(buckets))),
	))
	defer span.End()

	res, err := e.apply(ctx, id, buckets)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "applying overrides failed")
		slog.Error("Failed to apply overrides", "theme", id, "error", err)
		e.events.Publish(events.OverrideApplyFailed{ThemeID: id, Err: err})
		return Result{Success: false, Message: err.Error(), Ignored: res.Ignored}, err
	}

	span.SetStatus(codes.Ok, "overrides applied")
	e.events.Publish(events.OverrideApplied{ThemeID: id, Buckets: slices.Clone(res.Applied), Config: res.Config.Clone()})
	return res, nil
}

func (e *Engine) apply(ctx context.Context, id string, buckets Buckets) (Result, error) {
	var res Result

	for _, label := range slices.Sorted(maps.Keys(buckets)) {
		if !slices.Contains(e.priority, label) {
			res.Ignored = append(res.Ignored, label)
		}
	}
	if len(res.Ignored) > 0 {
		slog.Warn("Ignoring override buckets without a priority", "theme", id, "buckets", res.Ignored, "priority", e.priority)
	}

	base, _, err := e.base.Get(ctx, id)
	if err != nil {
		return res, err
	}

	merged := base.Resolved.ToMap()
	for _, label := range slices.Backward(e.priority) {
		bucket, ok := buckets[label]
		if !ok {
			continue
		}
		merged = DeepMerge(merged, bucket)
		res.Applied = append(res.Applied, label)
	}

	cfg, err := theme.FromMap(merged)
	if err != nil {
		path := ""
		if shapeErr, ok := errors.AsType[*theme.ShapeError](err); ok {
			path = shapeErr.Path
		}
		return res, &MergeError{ThemeID: id, Path: path, Err: err}
	}

	if err := e.registry.UpdateThemeConfig(ctx, id, cfg); err != nil {
		return res, fmt.Errorf("writing overrides of %q: %w", id, err)
	}

	affected := e.hierarchy.Touch(id)
	if len(affected) == 0 {
		affected = []string{id}
	}
	e.base.Invalidate(affected...)
	slog.Debug("Overrides applied", "theme", id, "buckets", res.Applied, "invalidated", len(affected))

	res.Success = true
	res.Config = cfg
	return res, nil
}
