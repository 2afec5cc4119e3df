package theme

import (
	"maps"
	"slices"
)

// Section names of a theme configuration, in their canonical order.
const (
	SectionVariables     = "variables"
	SectionComponents    = "components"
	SectionAssets        = "assets"
	SectionFeatures      = "features"
	SectionLayout        = "layout"
	SectionTypography    = "typography"
	SectionAnimations    = "animations"
	SectionAccessibility = "accessibility"
	SectionPerformance   = "performance"
	SectionCompatibility = "compatibility"
	SectionDevelopment   = "development"
)

// Sections lists every top-level section of a Config.
var Sections = []string{
	SectionVariables,
	SectionComponents,
	SectionAssets,
	SectionFeatures,
	SectionLayout,
	SectionTypography,
	SectionAnimations,
	SectionAccessibility,
	SectionPerformance,
	SectionCompatibility,
	SectionDevelopment,
}

// Record is a theme as stored by a registry.
type Record struct {
	ID       string  `yaml:"id" json:"id"`
	Name     string  `yaml:"name,omitempty" json:"name,omitempty"`
	ParentID string  `yaml:"parent,omitempty" json:"parent,omitempty"`
	Config   *Config `yaml:"config,omitempty" json:"config,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Config = r.Config.Clone()
	return &c
}

// Config is the configuration carried by a theme. A resolved configuration
// has the same shape.
//
// Components maps a component id to that component's own settings. Every
// other section is a flat key/value map.
type Config struct {
	Variables     map[string]any            `yaml:"variables,omitempty" json:"variables,omitempty"`
	Components    map[string]map[string]any `yaml:"components,omitempty" json:"components,omitempty"`
	Assets        map[string]any            `yaml:"assets,omitempty" json:"assets,omitempty"`
	Features      map[string]any            `yaml:"features,omitempty" json:"features,omitempty"`
	Layout        map[string]any            `yaml:"layout,omitempty" json:"layout,omitempty"`
	Typography    map[string]any            `yaml:"typography,omitempty" json:"typography,omitempty"`
	Animations    map[string]any            `yaml:"animations,omitempty" json:"animations,omitempty"`
	Accessibility map[string]any            `yaml:"accessibility,omitempty" json:"accessibility,omitempty"`
	Performance   map[string]any            `yaml:"performance,omitempty" json:"performance,omitempty"`
	Compatibility map[string]any            `yaml:"compatibility,omitempty" json:"compatibility,omitempty"`
	Development   map[string]any            `yaml:"development,omitempty" json:"development,omitempty"`
}

// NewConfig returns a configuration with every section present and empty.
func NewConfig() *Config {
	return &Config{
		Variables:     map[string]any{},
		Components:    map[string]map[string]any{},
		Assets:        map[string]any{},
		Features:      map[string]any{},
		Layout:        map[string]any{},
		Typography:    map[string]any{},
		Animations:    map[string]any{},
		Accessibility: map[string]any{},
		Performance:   map[string]any{},
		Compatibility: map[string]any{},
		Development:   map[string]any{},
	}
}

// flat returns pointers to the flat sections, keyed by section name.
func (c *Config) flat() map[string]*map[string]any {
	return map[string]*map[string]any{
		SectionVariables:     &c.Variables,
		SectionAssets:        &c.Assets,
		SectionFeatures:      &c.Features,
		SectionLayout:        &c.Layout,
		SectionTypography:    &c.Typography,
		SectionAnimations:    &c.Animations,
		SectionAccessibility: &c.Accessibility,
		SectionPerformance:   &c.Performance,
		SectionCompatibility: &c.Compatibility,
		SectionDevelopment:   &c.Development,
	}
}

// Section returns the flat section with the given name, or nil for
// components and unknown names.
func (c *Config) Section(name string) map[string]any {
	if c == nil {
		return nil
	}
	if p, ok := c.flat()[name]; ok {
		return *p
	}
	return nil
}

// IsEmpty reports whether no section holds any key.
func (c *Config) IsEmpty() bool {
	if c == nil {
		return true
	}
	if len(c.Components) > 0 {
		return false
	}
	for _, p := range c.flat() {
		if len(*p) > 0 {
			return false
		}
	}
	return true
}

// Merge layers override onto c in place, section by section.
//
// Flat sections are a shallow key union where override wins. Components are
// merged per component id, one level deep: keys of the same component are
// united, nested values are replaced as a whole.
func (c *Config) Merge(override *Config) {
	if override == nil {
		return
	}

	dst := c.flat()
	for name, src := range override.flat() {
		if len(*src) == 0 {
			continue
		}
		target := dst[name]
		if *target == nil {
			*target = make(map[string]any, len(*src))
		}
		for k, v := range *src {
			(*target)[k] = cloneValue(v)
		}
	}

	if len(override.Components) > 0 && c.Components == nil {
		c.Components = make(map[string]map[string]any, len(override.Components))
	}
	for id, settings := range override.Components {
		merged := c.Components[id]
		if merged == nil {
			merged = make(map[string]any, len(settings))
			c.Components[id] = merged
		}
		for k, v := range settings {
			merged[k] = cloneValue(v)
		}
	}
}

// Clone returns a deep copy. Nested maps and slices are never shared with c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	out := &Config{}
	dst := out.flat()
	for name, src := range c.flat() {
		if *src != nil {
			*dst[name] = cloneMap(*src)
		}
	}
	if c.Components != nil {
		out.Components = make(map[string]map[string]any, len(c.Components))
		for id, settings := range c.Components {
			out.Components[id] = cloneMap(settings)
		}
	}
	return out
}

// ToMap returns the configuration as a generic nested map, every section
// present. The result shares nothing with c.
func (c *Config) ToMap() map[string]any {
	out := make(map[string]any, len(Sections))
	if c == nil {
		c = &Config{}
	}
	for name, src := range c.flat() {
		out[name] = cloneMap(*src)
	}
	components := make(map[string]any, len(c.Components))
	for id, settings := range c.Components {
		components[id] = cloneMap(settings)
	}
	out[SectionComponents] = components
	return out
}

// Keys returns the sorted keys of a flat section.
func (c *Config) Keys(section string) []string {
	return slices.Sorted(maps.Keys(c.Section(section)))
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// CloneValue deep-copies maps and slices found in v.
func CloneValue(v any) any {
	return cloneValue(v)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
