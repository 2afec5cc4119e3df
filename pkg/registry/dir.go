package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/roomforge/themekit/pkg/theme"
)

// themeGlob matches theme files anywhere below a Dir registry root.
const themeGlob = "**/*.{yaml,yml}"

// Dir stores one YAML file per theme below a directory. The theme id is the
// file name without extension; files may be grouped in sub-directories.
type Dir struct {
	root string

	// mu serializes read-modify-write cycles on files.
	mu sync.Mutex
}

var _ Store = (*Dir)(nil)

// NewDir opens (creating if needed) a directory registry.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating themes directory: %w", err)
	}
	return &Dir{root: filepath.Clean(root)}, nil
}

// Root returns the directory holding the theme files.
func (d *Dir) Root() string {
	return d.root
}

// index maps theme ids to file paths. Duplicated ids are an error.
func (d *Dir) index() (map[string]string, error) {
	matches, err := doublestar.Glob(os.DirFS(d.root), themeGlob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("listing themes in %s: %w", d.root, err)
	}
	slices.Sort(matches)

	files := make(map[string]string, len(matches))
	for _, rel := range matches {
		id := themeIDFromFile(rel)
		path := filepath.Join(d.root, filepath.FromSlash(rel))
		if previous, dup := files[id]; dup {
			return nil, fmt.Errorf("theme %q defined twice: %s and %s", id, previous, path)
		}
		files[id] = path
	}
	return files, nil
}

// pathFor returns the file of an existing theme.
func (d *Dir) pathFor(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}

	// Fast path: top-level files.
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(d.root, id+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	files, err := d.index()
	if err != nil {
		return "", err
	}
	path, ok := files[id]
	if !ok {
		return "", notFound(id)
	}
	return path, nil
}

func (d *Dir) readFile(path, id string) (*theme.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("reading theme file: %w", err)
	}

	rec, err := decodeRecord(data, id)
	if err != nil {
		return nil, fmt.Errorf("parsing theme %q: %w", id, err)
	}
	if rec.ID != id {
		return nil, fmt.Errorf("theme file %s declares id %q", path, rec.ID)
	}
	return rec, nil
}

func (d *Dir) GetTheme(_ context.Context, id string) (*theme.Record, error) {
	path, err := d.pathFor(id)
	if err != nil {
		return nil, err
	}
	return d.readFile(path, id)
}

// ListThemes parses every theme file concurrently. Files that fail to parse
// are logged and skipped so one broken file does not hide the others.
func (d *Dir) ListThemes(ctx context.Context) ([]*theme.Record, error) {
	files, err := d.index()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	records := make([]*theme.Record, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := d.readFile(files[id], id)
			if err != nil {
				slog.Warn("Skipping invalid theme file", "theme", id, "path", files[id], "error", err)
				return nil
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return slices.DeleteFunc(records, func(r *theme.Record) bool { return r == nil }), nil
}

func (d *Dir) UpdateThemeConfig(_ context.Context, id string, cfg *theme.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	path, err := d.pathFor(id)
	if err != nil {
		return err
	}
	rec, err := d.readFile(path, id)
	if err != nil {
		return err
	}
	rec.Config = cfg.Clone()
	return writeRecord(path, rec)
}

func (d *Dir) PutTheme(_ context.Context, rec *theme.Record) error {
	if err := ValidateID(rec.ID); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	path, err := d.pathFor(rec.ID)
	if errors.Is(err, ErrNotFound) {
		path = filepath.Join(d.root, rec.ID+".yaml")
	} else if err != nil {
		return err
	}
	return writeRecord(path, normalize(rec))
}

func (d *Dir) DeleteTheme(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	path, err := d.pathFor(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(id)
		}
		return fmt.Errorf("removing theme file: %w", err)
	}
	return nil
}

func writeRecord(path string, rec *theme.Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding theme %q: %w", rec.ID, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating theme directory: %w", err)
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}
