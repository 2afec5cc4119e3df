package cli

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/roomforge/themekit/pkg/engine"
	"github.com/roomforge/themekit/pkg/overrides"
	"github.com/roomforge/themekit/pkg/theme"
)

func sampleConfig() *theme.Config {
	cfg := theme.NewConfig()
	cfg.Variables["primary"] = "blue"
	cfg.Variables["spacing"] = 4
	cfg.Layout["sidebar"] = "left"
	return cfg
}

func TestPrintConfig_YAML(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf).PrintConfig(sampleConfig(), FormatYAML)
	assert.NilError(t, err)

	assert.Equal(t, `variables:
  primary: blue
  spacing: 4
layout:
  sidebar: left
`, buf.String())
}

func TestPrintConfig_JSON(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf).PrintConfig(sampleConfig(), FormatJSON)
	assert.NilError(t, err)

	assert.Equal(t, `{
  "variables": {
    "primary": "blue",
    "spacing": 4
  },
  "layout": {
    "sidebar": "left"
  }
}
`, buf.String())
}

func TestPrintConfig_Empty(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf).PrintConfig(theme.NewConfig(), FormatJSON)
	assert.NilError(t, err)

	assert.Equal(t, "{}\n", buf.String())
}

func TestPrintResolved(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf).PrintResolved([]string{"dark-compact", "dark"}, sampleConfig(), FormatYAML)
	assert.NilError(t, err)

	assert.Check(t, is.Contains(buf.String(), "# dark-compact → dark\nvariables:\n"))
}

func TestPrintChain(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintChain([]string{"dark-compact", "dark", "default"})

	assert.Equal(t, "dark-compact → dark → default\n", buf.String())
}

func TestPrintDescendants_None(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintDescendants("light", nil)

	assert.Equal(t, "light has no descendants\n", buf.String())
}

func TestPrintThemes(t *testing.T) {
	def := &theme.Record{ID: "default", Name: "Default", Config: theme.NewConfig()}
	def.Config.Variables["primary"] = "blue"
	dark := &theme.Record{ID: "dark", Name: "Dark", ParentID: "default", Config: theme.NewConfig()}
	dark.Config.Variables["primary"] = "black"
	dark.Config.Components["button"] = map[string]any{"radius": 2}

	var buf bytes.Buffer
	NewPrinter(&buf).PrintThemes([]*theme.Record{def, dark})

	assert.Equal(t, `ID       PARENT   NAME     KEYS
default  -        Default  1
dark     default  Dark     2
`, buf.String())
}

func TestPrintStatistics(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintStatistics(engine.Statistics{
		TotalThemes:  4,
		MaxDepth:     2,
		AverageDepth: 1,
		CacheSize:    3,
		CacheTimeout: 5 * time.Minute,
	})

	assert.Equal(t, `Themes: 4
Max depth: 2
Average depth: 1.00
Cache: 3 entries, expire after 5 minutes
`, buf.String())
}

func TestPrintOverrideResult_Disabled(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf).PrintOverrideResult(overrides.Result{Message: "Overrides disabled"}, FormatYAML)
	assert.NilError(t, err)

	assert.Equal(t, "Overrides disabled\n", buf.String())
}

func TestPrintOverrideResult(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf).PrintOverrideResult(overrides.Result{
		Success: true,
		Config:  sampleConfig(),
		Applied: []string{"parent", "child"},
		Ignored: []string{"sibling"},
	}, FormatYAML)
	assert.NilError(t, err)

	assert.Check(t, is.Contains(buf.String(), "Applied: parent, child\nIgnored: sibling\nvariables:\n"))
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintError(errors.New("boom"))

	assert.Equal(t, "error: boom\n", buf.String())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	assert.NilError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("toml")
	assert.ErrorContains(t, err, "unsupported output format")
}
