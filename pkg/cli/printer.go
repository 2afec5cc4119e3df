package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/goccy/go-yaml"
	"github.com/mattn/go-isatty"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/roomforge/themekit/pkg/engine"
	"github.com/roomforge/themekit/pkg/overrides"
	"github.com/roomforge/themekit/pkg/theme"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

// Format selects how configurations are rendered.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatYAML, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use yaml or json)", s)
	}
}

type Printer struct {
	out   io.Writer
	color bool
}

// NewPrinter returns a printer writing to out. Colors are only used when out
// is a terminal.
func NewPrinter(out io.Writer) *Printer {
	p := &Printer{out: out}
	if f, ok := out.(*os.File); ok {
		p.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return p
}

func (p *Printer) Println(a ...any) {
	fmt.Fprintln(p.out, a...)
}

func (p *Printer) Printf(format string, a ...any) {
	fmt.Fprintf(p.out, format, a...)
}

func (p *Printer) style(fn func(...any) string, s string) string {
	if !p.color {
		return s
	}
	return fn(s)
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) {
	p.Printf("%s %s\n", p.style(red, "error:"), err)
}

// PrintConfig renders a configuration with its sections in canonical order.
// Empty sections are left out.
func (p *Printer) PrintConfig(cfg *theme.Config, format Format) error {
	switch format {
	case FormatJSON:
		buf, err := json.MarshalIndent(orderedConfig(cfg), "", "  ")
		if err != nil {
			return err
		}
		p.Println(string(buf))
	default:
		buf, err := yaml.MarshalWithOptions(yamlConfig(cfg), yaml.Indent(2))
		if err != nil {
			return err
		}
		p.Printf("%s", buf)
	}
	return nil
}

// PrintResolved prints the inheritance chain of a theme followed by its
// resolved configuration.
func (p *Printer) PrintResolved(chain []string, cfg *theme.Config, format Format) error {
	if format == FormatYAML {
		p.Printf("# %s\n", FormatChain(chain))
	}
	return p.PrintConfig(cfg, format)
}

// PrintChain prints a chain, most-derived theme first.
func (p *Printer) PrintChain(chain []string) {
	if len(chain) == 0 {
		return
	}
	parts := make([]string, len(chain))
	parts[0] = p.style(bold, chain[0])
	copy(parts[1:], chain[1:])
	p.Println(strings.Join(parts, " → "))
}

func (p *Printer) PrintDescendants(id string, descendants []string) {
	if len(descendants) == 0 {
		p.Printf("%s has no descendants\n", p.style(bold, id))
		return
	}
	for _, d := range descendants {
		p.Println(d)
	}
}

// PrintThemes prints one line per theme with its parent and how many keys
// its own configuration sets.
func (p *Printer) PrintThemes(records []*theme.Record) {
	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPARENT\tNAME\tKEYS")
	for _, rec := range records {
		parent := rec.ParentID
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", rec.ID, parent, rec.Name, countKeys(rec.Config))
	}
	_ = tw.Flush()
}

func (p *Printer) PrintStatistics(stats engine.Statistics) {
	p.Printf("%s %d\n", p.style(bold, "Themes:"), stats.TotalThemes)
	p.Printf("%s %d\n", p.style(bold, "Max depth:"), stats.MaxDepth)
	p.Printf("%s %.2f\n", p.style(bold, "Average depth:"), stats.AverageDepth)
	p.Printf("%s %d entries, expire after %s\n", p.style(bold, "Cache:"), stats.CacheSize, units.HumanDuration(stats.CacheTimeout))
}

// PrintOverrideResult prints the outcome of applying override buckets.
func (p *Printer) PrintOverrideResult(res overrides.Result, format Format) error {
	if !res.Success {
		p.Println(res.Message)
		return nil
	}
	if len(res.Applied) > 0 {
		p.Printf("%s %s\n", p.style(bold, "Applied:"), strings.Join(res.Applied, ", "))
	}
	if len(res.Ignored) > 0 {
		p.Printf("%s %s\n", p.style(faint, "Ignored:"), strings.Join(res.Ignored, ", "))
	}
	return p.PrintConfig(res.Config, format)
}

func countKeys(cfg *theme.Config) int {
	if cfg == nil {
		return 0
	}
	n := 0
	for _, section := range theme.Sections {
		if section == theme.SectionComponents {
			for _, settings := range cfg.Components {
				n += len(settings)
			}
			continue
		}
		n += len(cfg.Section(section))
	}
	return n
}

// FormatChain joins a chain with arrows, most-derived theme first.
func FormatChain(chain []string) string {
	return strings.Join(chain, " → ")
}

func orderedConfig(cfg *theme.Config) *orderedmap.OrderedMap[string, any] {
	om := orderedmap.New[string, any]()
	if cfg == nil {
		return om
	}
	m := cfg.ToMap()
	for _, section := range theme.Sections {
		if v, ok := m[section].(map[string]any); ok && len(v) > 0 {
			om.Set(section, v)
		}
	}
	return om
}

func yamlConfig(cfg *theme.Config) yaml.MapSlice {
	om := orderedConfig(cfg)
	out := make(yaml.MapSlice, 0, om.Len())
	for section, v := range om.FromOldest() {
		out = append(out, yaml.MapItem{Key: section, Value: v})
	}
	return out
}
