package root

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roomforge/themekit/pkg/paths"
)

const (
	envThemesDir = "THEMEKIT_THEMES_DIR"
	envDatabase  = "THEMEKIT_DB"
)

type registryFlags struct {
	themesDir string
	database  string
}

// addRegistryFlags registers the flags selecting the theme registry. Their
// defaults come from the environment.
func addRegistryFlags(cmd *cobra.Command, f *registryFlags) {
	cmd.PersistentFlags().StringVar(&f.themesDir, "themes-dir", os.Getenv(envThemesDir), "Directory of YAML theme files to use as the registry (env: "+envThemesDir+")")
	cmd.PersistentFlags().StringVar(&f.database, "db", os.Getenv(envDatabase), "SQLite theme database to use as the registry; takes precedence over --themes-dir (env: "+envDatabase+")")
}

var _ pflag.Value = (*msDuration)(nil)

// msDuration is a duration flag that accepts either a number of
// milliseconds or a Go duration string.
type msDuration struct {
	d   time.Duration
	set bool
}

func (m *msDuration) String() string {
	if !m.set {
		return ""
	}
	return strconv.FormatInt(m.d.Milliseconds(), 10)
}

func (m *msDuration) Set(s string) error {
	s = strings.TrimSpace(s)
	var d time.Duration
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		d = time.Duration(ms) * time.Millisecond
	} else {
		d, err = time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: expected milliseconds or a duration such as 30s", s)
		}
	}
	if d <= 0 {
		return errors.New("duration must be positive")
	}
	m.d = d
	m.set = true
	return nil
}

func (m *msDuration) Type() string {
	return "ms"
}

// expandTilde expands the tilde in a path to the user's home directory
func expandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	homeDir := paths.GetHomeDir()
	if homeDir == "" {
		return "", errors.New("failed to get user home directory")
	}

	return filepath.Join(homeDir, strings.TrimPrefix(path, "~/")), nil
}
