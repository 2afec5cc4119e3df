package root

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomforge/themekit/pkg/paths"
)

func TestExpandTilde(t *testing.T) {
	t.Parallel()

	homeDir := paths.GetHomeDir()
	require.NotEmpty(t, homeDir, "Home directory should be available for tests")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "database in home", input: "~/themes.db", expected: filepath.Join(homeDir, "themes.db")},
		{name: "themes dir below data dir", input: "~/.themekit/themes", expected: filepath.Join(homeDir, ".themekit", "themes")},
		{name: "home itself", input: "~/", expected: homeDir},
		{name: "absolute path", input: "/etc/themekit/config.yaml", expected: "/etc/themekit/config.yaml"},
		{name: "relative path", input: "themes/dark.yaml", expected: "themes/dark.yaml"},
		{name: "tilde in the middle", input: "/srv/~/themes", expected: "/srv/~/themes"},
		{name: "other user", input: "~alice/themes", expected: "~alice/themes"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := expandTilde(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
