package theme

import (
	"fmt"
	"strings"
)

// ShapeError reports a value whose type does not fit the configuration
// layout. Path is the dotted key path of the offending value.
type ShapeError struct {
	Path   string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid value at %q: %s", e.Path, e.Reason)
}

// FromMap converts a generic nested map, as produced by JSON or YAML
// decoding or by a deep merge, into a Config. Missing and null sections are
// left empty.
func FromMap(m map[string]any) (*Config, error) {
	cfg := NewConfig()
	flat := cfg.flat()

	for key, raw := range m {
		if raw == nil {
			continue
		}

		if key == SectionComponents {
			components, ok := raw.(map[string]any)
			if !ok {
				return nil, &ShapeError{Path: key, Reason: fmt.Sprintf("expected an object, got %s", kindOf(raw))}
			}
			for id, settings := range components {
				if settings == nil {
					cfg.Components[id] = map[string]any{}
					continue
				}
				obj, ok := settings.(map[string]any)
				if !ok {
					return nil, &ShapeError{Path: joinPath(key, id), Reason: fmt.Sprintf("expected an object, got %s", kindOf(settings))}
				}
				cfg.Components[id] = cloneMap(obj)
			}
			continue
		}

		target, known := flat[key]
		if !known {
			return nil, &ShapeError{Path: key, Reason: "unknown section"}
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, &ShapeError{Path: key, Reason: fmt.Sprintf("expected an object, got %s", kindOf(raw))}
		}
		*target = cloneMap(obj)
	}

	return cfg, nil
}

func joinPath(parts ...string) string {
	return strings.Join(parts, ".")
}

func kindOf(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case nil:
		return "null"
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// RecordFromMap validates a decoded theme document against the record
// schema and converts it into a Record.
func RecordFromMap(doc map[string]any) (*Record, error) {
	if err := ValidateRecord(doc); err != nil {
		return nil, err
	}

	rec := &Record{}
	rec.ID, _ = doc["id"].(string)
	rec.Name, _ = doc["name"].(string)
	rec.ParentID, _ = doc["parent"].(string)

	cfgDoc, _ := doc["config"].(map[string]any)
	cfg, err := FromMap(cfgDoc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	rec.Config = cfg
	return rec, nil
}
