// Package registry defines the theme registry the engine reads theme
// records from and writes merged configurations back to, along with its
// implementations: in-memory, embedded built-ins, a directory of YAML files
// and SQLite.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roomforge/themekit/pkg/theme"
)

// ErrNotFound is returned (possibly wrapped) when a theme does not exist.
var ErrNotFound = errors.New("theme not found")

// ErrInvalidID is wrapped by ValidateID failures.
var ErrInvalidID = errors.New("invalid theme id")

// Registry is the authoritative store of theme records.
type Registry interface {
	GetTheme(ctx context.Context, id string) (*theme.Record, error)
	ListThemes(ctx context.Context) ([]*theme.Record, error)
	UpdateThemeConfig(ctx context.Context, id string, cfg *theme.Config) error
}

// Store is a Registry that can also create, replace and delete records.
type Store interface {
	Registry
	PutTheme(ctx context.Context, rec *theme.Record) error
	DeleteTheme(ctx context.Context, id string) error
}

// ValidateID rejects ids that are empty or could escape a themes directory.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidID)
	}
	if strings.Contains(id, "/") || strings.Contains(id, "\\") || strings.Contains(id, "..") {
		return fmt.Errorf("%w %q: must not contain path separators or traversal", ErrInvalidID, id)
	}
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, id)
}
