// Package userconfig provides user-level configuration for themekit.
// This configuration is stored in ~/.config/themekit/config.yaml and holds
// the engine options and the default theme registry.
package userconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"

	"github.com/roomforge/themekit/pkg/paths"
)

// CurrentVersion is the current version of the user config format
const CurrentVersion = "v1"

const (
	DefaultCacheTimeoutMS      = 300000
	DefaultMaxInheritanceDepth = 5
)

// DefaultOverridePriority lists override bucket labels, highest priority first.
var DefaultOverridePriority = []string{"child", "parent", "grandparent"}

// Config represents the user-level themekit configuration
type Config struct {
	// Version is the config format version
	Version string `yaml:"version,omitempty"`

	EnableInheritance bool `yaml:"enable_inheritance"`
	EnableOverrides   bool `yaml:"enable_overrides"`
	EnableCaching     bool `yaml:"enable_caching"`
	// CacheTimeoutMS is how long a resolved configuration is served from
	// cache, in milliseconds
	CacheTimeoutMS      int64 `yaml:"cache_timeout_ms"`
	MaxInheritanceDepth int   `yaml:"max_inheritance_depth"`
	// OverridePriority lists override bucket labels, highest priority first
	OverridePriority []string `yaml:"override_priority,omitempty"`

	// ThemesDir is a directory of YAML theme files used as the registry
	ThemesDir string `yaml:"themes_dir,omitempty"`
	// Database is a SQLite theme store used as the registry. It takes
	// precedence over ThemesDir.
	Database string `yaml:"database,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		EnableInheritance:   true,
		EnableOverrides:     true,
		EnableCaching:       true,
		CacheTimeoutMS:      DefaultCacheTimeoutMS,
		MaxInheritanceDepth: DefaultMaxInheritanceDepth,
		OverridePriority:    append([]string(nil), DefaultOverridePriority...),
	}
}

// Path returns the path to the config file
func Path() string {
	return filepath.Join(paths.GetConfigDir(), "config.yaml")
}

// Load loads the user configuration from the config file.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads and validates the config file at path. Keys missing from
// the file keep their defaults; a missing file yields Default().
func LoadFrom(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if len(config.OverridePriority) == 0 {
		config.OverridePriority = append([]string(nil), DefaultOverridePriority...)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return config, nil
}

// Save saves the configuration to the config file
func (c *Config) Save() error {
	return c.SaveTo(Path())
}

func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Ensure version is always set to current version when saving
	c.Version = CurrentVersion

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return atomic.WriteFile(path, bytes.NewReader(data))
}

// CacheTimeout returns CacheTimeoutMS as a duration.
func (c *Config) CacheTimeout() time.Duration {
	return time.Duration(c.CacheTimeoutMS) * time.Millisecond
}

// validLabelRegex matches valid override bucket labels: alphanumeric
// characters, hyphens, and underscores. Must start with an alphanumeric character.
var validLabelRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Validate checks value ranges and the override priority labels.
func (c *Config) Validate() error {
	if c.CacheTimeoutMS <= 0 {
		return fmt.Errorf("cache_timeout_ms must be positive, got %d", c.CacheTimeoutMS)
	}
	if c.MaxInheritanceDepth < 1 {
		return fmt.Errorf("max_inheritance_depth must be at least 1, got %d", c.MaxInheritanceDepth)
	}
	seen := make(map[string]bool, len(c.OverridePriority))
	for _, label := range c.OverridePriority {
		if label == "" {
			return errors.New("override_priority labels cannot be empty")
		}
		if !validLabelRegex.MatchString(label) {
			return fmt.Errorf("invalid override_priority label %q: must start with a letter or digit and contain only letters, digits, hyphens, and underscores", label)
		}
		if seen[label] {
			return fmt.Errorf("override_priority label %q is listed twice", label)
		}
		seen[label] = true
	}
	return nil
}
