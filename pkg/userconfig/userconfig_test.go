package userconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	config, err := LoadFrom(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
	assert.Equal(t, 5*time.Minute, config.CacheTimeout())
}

func TestConfig_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`enable_overrides: false
cache_timeout_ms: 1500
`), 0o644))

	config, err := LoadFrom(configFile)
	require.NoError(t, err)
	assert.False(t, config.EnableOverrides)
	assert.True(t, config.EnableInheritance)
	assert.True(t, config.EnableCaching)
	assert.Equal(t, 1500*time.Millisecond, config.CacheTimeout())
	assert.Equal(t, DefaultMaxInheritanceDepth, config.MaxInheritanceDepth)
	assert.Equal(t, []string{"child", "parent", "grandparent"}, config.OverridePriority)
}

func TestConfig_SaveAndLoad(t *testing.T) {
	t.Parallel()

	configFile := filepath.Join(t.TempDir(), "nested", "config.yaml")

	config := Default()
	config.MaxInheritanceDepth = 3
	config.OverridePriority = []string{"admin", "user"}
	config.Database = "/var/lib/themekit/themes.db"
	require.NoError(t, config.SaveTo(configFile))
	assert.Equal(t, CurrentVersion, config.Version)

	loaded, err := LoadFrom(configFile)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}

func TestConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"zero timeout", "cache_timeout_ms: 0\n", "cache_timeout_ms must be positive"},
		{"zero depth", "max_inheritance_depth: 0\n", "max_inheritance_depth must be at least 1"},
		{"bad label", "override_priority: [\"in valid\"]\n", "invalid override_priority label"},
		{"duplicate label", "override_priority: [a, b, a]\n", "listed twice"},
		{"not yaml", "enable_caching: [\n", "failed to parse config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			configFile := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(configFile, []byte(tt.content), 0o644))

			_, err := LoadFrom(configFile)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
