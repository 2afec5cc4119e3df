package registry

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/roomforge/themekit/pkg/theme"
)

//go:embed themes/*.yaml
var builtinThemes embed.FS

// DefaultThemeID is the root of the built-in theme set.
const DefaultThemeID = "default"

// Builtin returns a Memory registry seeded with the embedded themes. Each
// call returns an independent registry.
func Builtin() (*Memory, error) {
	entries, err := builtinThemes.ReadDir("themes")
	if err != nil {
		return nil, fmt.Errorf("reading embedded themes directory: %w", err)
	}

	var records []*theme.Record
	for _, entry := range entries {
		if entry.IsDir() || !isThemeFile(entry.Name()) {
			continue
		}

		data, err := builtinThemes.ReadFile(path.Join("themes", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading built-in theme %q: %w", entry.Name(), err)
		}
		rec, err := decodeRecord(data, themeIDFromFile(entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("parsing built-in theme %q: %w", entry.Name(), err)
		}
		records = append(records, rec)
	}

	return NewMemory(records...), nil
}

func isThemeFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func themeIDFromFile(name string) string {
	name = path.Base(name)
	return strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
}

// decodeRecord parses a YAML theme document, validates it against the
// record schema and returns it. A missing id defaults to fallbackID.
func decodeRecord(data []byte, fallbackID string) (*theme.Record, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if _, ok := doc["id"]; !ok {
		doc["id"] = fallbackID
	}
	return theme.RecordFromMap(doc)
}
