package root

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/roomforge/themekit/pkg/paths"
	"github.com/roomforge/themekit/pkg/registry"
	"github.com/roomforge/themekit/pkg/userconfig"
)

func newConfigCmd(root *rootFlags) *cobra.Command {
	var (
		initFile  bool
		useSQLite bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration themekit runs with, after applying flags.

With --init, write a configuration file pointing at a user theme registry
(~/.themekit/themes, or ~/.themekit/themes.db with --sqlite, unless --themes-dir
or --db is given) and copy the built-in themes into it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if initFile {
				return root.initConfig(cmd, useSQLite)
			}

			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&initFile, "init", false, "Write the configuration file and seed the user theme registry")
	cmd.Flags().BoolVar(&useSQLite, "sqlite", false, "With --init, use a SQLite database as the registry")

	return cmd
}

func (f *rootFlags) initConfig(cmd *cobra.Command, useSQLite bool) error {
	ctx := cmd.Context()

	path, err := expandTilde(cmp.Or(strings.TrimSpace(f.configPath), userconfig.Path()))
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file %s already exists", path)
	}

	cfg := userconfig.Default()
	var store registry.Store
	switch {
	case f.registry.database != "" || (useSQLite && f.registry.themesDir == ""):
		cfg.Database = cmp.Or(f.registry.database, paths.GetDatabasePath())
		dbPath, err := expandTilde(cfg.Database)
		if err != nil {
			return err
		}
		db, err := registry.NewSQLite(ctx, dbPath)
		if err != nil {
			return RuntimeError{Err: err}
		}
		defer db.Close()
		store = db
	default:
		cfg.ThemesDir = cmp.Or(f.registry.themesDir, paths.GetThemesDir())
		dirPath, err := expandTilde(cfg.ThemesDir)
		if err != nil {
			return err
		}
		dir, err := registry.NewDir(dirPath)
		if err != nil {
			return RuntimeError{Err: err}
		}
		store = dir
	}

	seeded, err := seedBuiltins(ctx, store)
	if err != nil {
		return RuntimeError{Err: err}
	}
	if err := cfg.SaveTo(path); err != nil {
		return RuntimeError{Err: err}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	fmt.Fprintf(cmd.OutOrStdout(), "Copied %d built-in themes\n", seeded)
	return nil
}

// seedBuiltins copies the built-in themes the store does not hold yet.
func seedBuiltins(ctx context.Context, store registry.Store) (int, error) {
	builtin, err := registry.Builtin()
	if err != nil {
		return 0, err
	}
	records, err := builtin.ListThemes(ctx)
	if err != nil {
		return 0, err
	}

	seeded := 0
	for _, rec := range records {
		_, err := store.GetTheme(ctx, rec.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, registry.ErrNotFound) {
			return seeded, err
		}
		if err := store.PutTheme(ctx, rec); err != nil {
			return seeded, fmt.Errorf("copying theme %q: %w", rec.ID, err)
		}
		seeded++
	}
	return seeded, nil
}
