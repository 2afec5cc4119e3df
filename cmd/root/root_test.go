package root

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomforge/themekit/pkg/engine"
)

const (
	defaultTheme = `id: default
name: Default
config:
  variables:
    primary: blue
    spacing: 4
`
	darkTheme = `id: dark
name: Dark
parent: default
config:
  variables:
    primary: black
`
	compactTheme = `id: compact
name: Compact
parent: dark
config:
  layout:
    density: compact
`
)

func themesDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range map[string]string{
		"default.yaml": defaultTheme,
		"dark.yaml":    darkTheme,
		"compact.yaml": compactTheme,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

// execute runs the CLI with a configuration file that does not exist, so
// every option has its default.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", filepath.Join(t.TempDir(), "config.yaml")}, args...)
	err := Execute(t.Context(), strings.NewReader(""), &stdout, &stderr, args...)
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)

	assert.Contains(t, stdout, "themekit version dev")
}

func TestChain(t *testing.T) {
	dir := themesDir(t)

	stdout, _, err := execute(t, "--themes-dir", dir, "chain", "compact")
	require.NoError(t, err)

	assert.Equal(t, "compact → dark → default\n", stdout)
}

func TestChain_UnknownTheme(t *testing.T) {
	dir := themesDir(t)

	_, stderr, err := execute(t, "--themes-dir", dir, "chain", "ghost")
	require.Error(t, err)

	_, ok := errors.AsType[RuntimeError](err)
	assert.True(t, ok, "engine errors are runtime errors")
	assert.Equal(t, "error: theme \"ghost\" not found\n", stderr, "the error is printed once")
}

func TestResolve(t *testing.T) {
	dir := themesDir(t)

	stdout, _, err := execute(t, "--themes-dir", dir, "resolve", "compact", "-O", "json")
	require.NoError(t, err)

	var resolved map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &resolved))
	assert.Equal(t, "black", resolved["variables"]["primary"])
	assert.InDelta(t, 4, resolved["variables"]["spacing"], 0)
	assert.Equal(t, "compact", resolved["layout"]["density"])
}

func TestResolve_YAML(t *testing.T) {
	dir := themesDir(t)

	stdout, _, err := execute(t, "--themes-dir", dir, "resolve", "dark")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stdout, "# dark → default\n"), stdout)
	assert.Contains(t, stdout, "primary: black")
}

func TestResolve_InvalidFormat(t *testing.T) {
	_, stderr, err := execute(t, "resolve", "dark", "-O", "toml")
	require.Error(t, err)

	assert.Contains(t, stderr, "unsupported output format")
}

func TestDescendants(t *testing.T) {
	dir := themesDir(t)

	stdout, _, err := execute(t, "--themes-dir", dir, "descendants", "default")
	require.NoError(t, err)

	assert.Equal(t, "compact\ndark\n", stdout)
}

func TestInheritAndUninherit(t *testing.T) {
	dir := themesDir(t)

	stdout, _, err := execute(t, "--themes-dir", dir, "inherit", "compact", "default")
	require.NoError(t, err)
	assert.Equal(t, "compact → default\n", stdout)

	// The new parent was persisted to the theme file.
	stdout, _, err = execute(t, "--themes-dir", dir, "chain", "compact")
	require.NoError(t, err)
	assert.Equal(t, "compact → default\n", stdout)

	stdout, _, err = execute(t, "--themes-dir", dir, "uninherit", "compact")
	require.NoError(t, err)
	assert.Equal(t, "compact\n", stdout)

	stdout, _, err = execute(t, "--themes-dir", dir, "descendants", "default")
	require.NoError(t, err)
	assert.Equal(t, "dark\n", stdout)
}

func TestInherit_Cycle(t *testing.T) {
	dir := themesDir(t)

	_, stderr, err := execute(t, "--themes-dir", dir, "inherit", "default", "compact")
	require.Error(t, err)

	assert.Contains(t, stderr, "would create a cycle")

	stdout, _, err := execute(t, "--themes-dir", dir, "chain", "default")
	require.NoError(t, err)
	assert.Equal(t, "default\n", stdout)
}

func TestOverride(t *testing.T) {
	dir := themesDir(t)

	buckets := filepath.Join(t.TempDir(), "buckets.yaml")
	require.NoError(t, os.WriteFile(buckets, []byte(`
parent:
  variables:
    primary: green
    spacing: 8
child:
  variables:
    primary: red
sibling:
  variables:
    primary: purple
`), 0o644))

	stdout, _, err := execute(t, "--themes-dir", dir, "override", "compact", "-f", buckets)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Applied: parent, child\n")
	assert.Contains(t, stdout, "Ignored: sibling\n")

	stdout, _, err = execute(t, "--themes-dir", dir, "resolve", "compact", "-O", "json")
	require.NoError(t, err)

	var resolved map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &resolved))
	assert.Equal(t, "red", resolved["variables"]["primary"])
	assert.InDelta(t, 8, resolved["variables"]["spacing"], 0)
	assert.Equal(t, "compact", resolved["layout"]["density"])
}

func TestOverride_Stdin(t *testing.T) {
	dir := themesDir(t)

	var stdout, stderr bytes.Buffer
	err := Execute(t.Context(), strings.NewReader(`{"child": {"layout": {"density": "cozy"}}}`), &stdout, &stderr,
		"--config", filepath.Join(t.TempDir(), "config.yaml"), "--themes-dir", dir, "override", "compact", "-f", "-")
	require.NoError(t, err, stderr.String())

	assert.Contains(t, stdout.String(), "density: cozy")
}

func TestOverride_RequiresFile(t *testing.T) {
	_, stderr, err := execute(t, "override", "dark")
	require.Error(t, err)

	assert.Contains(t, stderr, `required flag(s) "file" not set`)
}

func TestStats(t *testing.T) {
	dir := themesDir(t)

	stdout, _, err := execute(t, "--themes-dir", dir, "--cache-timeout", "45s", "stats", "--json")
	require.NoError(t, err)

	var stats engine.Statistics
	require.NoError(t, json.Unmarshal([]byte(stdout), &stats))
	assert.Equal(t, 3, stats.TotalThemes)
	assert.Equal(t, 2, stats.MaxDepth)
	assert.InDelta(t, 1.0, stats.AverageDepth, 0.001)
	assert.Equal(t, int64(45000), stats.CacheTTLMS)
	assert.Equal(t, []string{"compact", "dark", "default"}, stats.Chains["compact"])
}

func TestList_Builtin(t *testing.T) {
	t.Setenv(envThemesDir, "")
	t.Setenv(envDatabase, "")

	stdout, _, err := execute(t, "list")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stdout, "ID"), stdout)
	assert.Contains(t, stdout, "dark-compact")
}

func TestSQLiteRegistry(t *testing.T) {
	db := filepath.Join(t.TempDir(), "themes.db")

	// An empty database has no themes.
	stdout, _, err := execute(t, "--db", db, "list")
	require.NoError(t, err)
	assert.Equal(t, "ID  PARENT  NAME  KEYS\n", stdout)

	_, stderr, err := execute(t, "--db", db, "resolve", "dark")
	require.Error(t, err)
	assert.Contains(t, stderr, "not found")
}

func TestConfig(t *testing.T) {
	stdout, _, err := execute(t, "--cache-timeout", "1500", "config")
	require.NoError(t, err)

	assert.Contains(t, stdout, "cache_timeout_ms: 1500")
	assert.Contains(t, stdout, "max_inheritance_depth: 5")
}

func TestConfigInit(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv(envThemesDir, "")
	t.Setenv(envDatabase, "")
	path := filepath.Join(home, "cfg", "config.yaml")

	var stdout, stderr bytes.Buffer
	err := Execute(t.Context(), nil, &stdout, &stderr, "--config", path, "config", "--init")
	require.NoError(t, err, stderr.String())
	assert.Contains(t, stdout.String(), "Copied 4 built-in themes")
	assert.FileExists(t, path)
	assert.FileExists(t, filepath.Join(home, ".themekit", "themes", "dark-compact.yaml"))

	// The written configuration selects the seeded directory.
	stdout.Reset()
	err = Execute(t.Context(), nil, &stdout, &stderr, "--config", path, "chain", "dark-compact")
	require.NoError(t, err, stderr.String())
	assert.Equal(t, "dark-compact → dark → default\n", stdout.String())

	err = Execute(t.Context(), nil, &stdout, &stderr, "--config", path, "config", "--init")
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "already exists")
}

func TestConfigInit_SQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	db := filepath.Join(dir, "themes.db")

	var stdout, stderr bytes.Buffer
	err := Execute(t.Context(), nil, &stdout, &stderr, "--config", path, "--db", db, "config", "--init")
	require.NoError(t, err, stderr.String())
	assert.Contains(t, stdout.String(), "Copied 4 built-in themes")

	stdout.Reset()
	err = Execute(t.Context(), nil, &stdout, &stderr, "--config", path, "descendants", "dark")
	require.NoError(t, err, stderr.String())
	assert.Equal(t, "dark-compact\n", stdout.String())
}

func TestInvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_inheritance_depth: 0\n"), 0o644))

	var stdout, stderr bytes.Buffer
	err := Execute(t.Context(), nil, &stdout, &stderr, "--config", path, "list")
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "max_inheritance_depth must be at least 1")
}

func TestUnknownCommand(t *testing.T) {
	_, stderr, err := execute(t, "frobnicate")
	require.Error(t, err)

	assert.Contains(t, stderr, `unknown command "frobnicate"`)
}
