package root

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/roomforge/themekit/pkg/engine"
	"github.com/roomforge/themekit/pkg/registry"
	"github.com/roomforge/themekit/pkg/userconfig"
)

// app is an engine over the registry selected by the flags and the user
// configuration.
type app struct {
	config *userconfig.Config
	engine *engine.Engine
	// dir is set when the registry is a themes directory.
	dir     *registry.Dir
	closers []func() error
}

func (a *app) Close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			slog.Error("Failed to close registry", "error", err)
		}
	}
}

func (f *rootFlags) loadConfig() (*userconfig.Config, error) {
	path, err := expandTilde(cmp.Or(strings.TrimSpace(f.configPath), userconfig.Path()))
	if err != nil {
		return nil, err
	}

	cfg, err := userconfig.LoadFrom(path)
	if err != nil {
		return nil, err
	}

	// Flags take precedence over the file.
	if f.cacheTimeout.set {
		cfg.CacheTimeoutMS = f.cacheTimeout.d.Milliseconds()
	}
	if f.registry.themesDir != "" {
		cfg.ThemesDir = f.registry.themesDir
	}
	if f.registry.database != "" {
		cfg.Database = f.registry.database
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads the configuration, opens the registry it selects (a SQLite
// database, else a themes directory, else the built-in themes) and seeds an
// engine from it.
func (f *rootFlags) openApp(ctx context.Context) (*app, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{config: cfg}

	var reg registry.Registry
	switch {
	case cfg.Database != "":
		path, err := expandTilde(cfg.Database)
		if err != nil {
			return nil, err
		}
		db, err := registry.NewSQLite(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("opening theme database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		reg = db
		slog.Debug("Using SQLite theme registry", "path", path)
	case cfg.ThemesDir != "":
		path, err := expandTilde(cfg.ThemesDir)
		if err != nil {
			return nil, err
		}
		dir, err := registry.NewDir(path)
		if err != nil {
			return nil, err
		}
		a.dir = dir
		reg = dir
		slog.Debug("Using themes directory", "path", path)
	default:
		builtin, err := registry.Builtin()
		if err != nil {
			return nil, err
		}
		reg = builtin
		slog.Debug("Using built-in themes")
	}

	a.engine = engine.New(reg,
		engine.WithInheritance(cfg.EnableInheritance),
		engine.WithOverrides(cfg.EnableOverrides),
		engine.WithCaching(cfg.EnableCaching),
		engine.WithCacheTimeout(cfg.CacheTimeout()),
		engine.WithMaxDepth(cfg.MaxInheritanceDepth),
		engine.WithOverridePriority(cfg.OverridePriority),
		engine.WithTracer(otel.Tracer(AppName)),
	)
	a.closers = append([]func() error{func() error {
		a.engine.Close()
		return nil
	}}, a.closers...)

	if err := a.engine.Init(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("loading themes: %w", err)
	}
	return a, nil
}
