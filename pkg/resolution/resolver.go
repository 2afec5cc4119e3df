// Package resolution computes the effective configuration of a theme from
// its ancestor chain and memoizes the result.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roomforge/themekit/pkg/registry"
	"github.com/roomforge/themekit/pkg/theme"
)

// ThemeNotFoundError is returned when a theme of the chain is missing from
// the registry.
type ThemeNotFoundError struct {
	ThemeID string
	// Requested is the theme whose resolution hit the miss.
	Requested string
	Err       error
}

func (e *ThemeNotFoundError) Error() string {
	if e.Requested != "" && e.Requested != e.ThemeID {
		return fmt.Sprintf("resolving %q: theme %q not found", e.Requested, e.ThemeID)
	}
	return fmt.Sprintf("theme %q not found", e.ThemeID)
}

func (e *ThemeNotFoundError) Unwrap() error {
	return e.Err
}

// ChainSource provides hierarchy chains, [self, parent, ..., root].
type ChainSource interface {
	Chain(id string) []string
}

// Resolver merges the configurations of a chain, root first, so the most
// derived theme wins every key collision.
type Resolver struct {
	registry    registry.Registry
	chains      ChainSource
	inheritance bool
	tracer      trace.Tracer
}

type ResolverOption func(*Resolver)

// WithoutInheritance makes every theme resolve to its own configuration.
func WithoutInheritance() ResolverOption {
	return func(r *Resolver) {
		r.inheritance = false
	}
}

func WithTracer(tracer trace.Tracer) ResolverOption {
	return func(r *Resolver) {
		r.tracer = tracer
	}
}

func NewResolver(reg registry.Registry, chains ChainSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry:    reg,
		chains:      chains,
		inheritance: true,
		tracer:      noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Chain returns the chain used to resolve id.
func (r *Resolver) Chain(id string) []string {
	if !r.inheritance {
		return []string{id}
	}
	chain := r.chains.Chain(id)
	if len(chain) == 0 {
		return []string{id}
	}
	return chain
}

// Resolve fetches every theme of the chain from the registry, root first,
// and merges them into a fresh configuration. It returns the configuration
// and the chain it was computed from.
func (r *Resolver) Resolve(ctx context.Context, id string) (*theme.Config, []string, error) {
	chain := r.Chain(id)

	ctx, span := r.tracer.Start(ctx, "theme.resolve", trace.WithAttributes(
		attribute.String("theme.id", id),
		attribute.StringSlice("theme.chain", chain),
	))
	defer span.End()

	acc := theme.NewConfig()
	for _, ancestor := range slices.Backward(chain) {
		rec, err := r.registry.GetTheme(ctx, ancestor)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				err = &ThemeNotFoundError{ThemeID: ancestor, Requested: id, Err: err}
			} else {
				err = fmt.Errorf("fetching theme %q: %w", ancestor, err)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "theme resolution failed")
			return nil, nil, err
		}
		acc.Merge(rec.Config)
	}

	span.SetStatus(codes.Ok, "theme resolved")
	return acc, chain, nil
}
