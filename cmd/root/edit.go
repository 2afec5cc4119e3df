package root

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/roomforge/themekit/pkg/cli"
	"github.com/roomforge/themekit/pkg/overrides"
)

func newInheritCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "inherit <child> <parent>",
		Short:   "Make a theme inherit from another",
		GroupID: "edit",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, a *app, out *cli.Printer) error {
				if err := a.engine.RegisterInheritance(ctx, args[0], args[1]); err != nil {
					return err
				}
				out.PrintChain(a.engine.GetInheritanceChain(args[0]))
				return nil
			})
		},
	}
}

func newUninheritCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "uninherit <child>",
		Short:   "Detach a theme from its parent",
		GroupID: "edit",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, a *app, out *cli.Printer) error {
				if err := a.engine.RemoveInheritance(ctx, args[0]); err != nil {
					return err
				}
				out.PrintChain(a.engine.GetInheritanceChain(args[0]))
				return nil
			})
		},
	}
}

func newOverrideCmd(root *rootFlags) *cobra.Command {
	var (
		file   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "override <theme> -f <buckets-file>",
		Short: "Apply override buckets to a theme",
		Long: `Deep-merge labelled override buckets onto the resolved configuration of a theme
and store the result as the theme's own configuration.

The file maps bucket labels to partial configurations, in YAML or JSON:

  child:
    variables:
      primary: "#101010"
  parent:
    layout:
      density: compact

Buckets are applied by the configured priority, highest priority winning. Use -f - to read stdin.`,
		GroupID: "edit",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseFormat(output)
			if err != nil {
				return err
			}
			buckets, err := readBuckets(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return root.run(cmd, func(ctx context.Context, a *app, out *cli.Printer) error {
				res, err := a.engine.ApplyOverrides(ctx, args[0], buckets)
				if err != nil {
					return err
				}
				return out.PrintOverrideResult(res, format)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "File holding the override buckets")
	_ = cmd.MarkFlagRequired("file")
	addOutputFlag(cmd, &output)

	return cmd
}

func readBuckets(stdin io.Reader, path string) (overrides.Buckets, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading override buckets: %w", err)
	}

	var buckets overrides.Buckets
	if err := yaml.Unmarshal(data, &buckets); err != nil {
		return nil, fmt.Errorf("parsing override buckets: %w", err)
	}
	return buckets, nil
}
