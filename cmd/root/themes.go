package root

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roomforge/themekit/pkg/cli"
)

// run opens the app, runs fn and reports its error as a runtime error.
func (f *rootFlags) run(cmd *cobra.Command, fn func(ctx context.Context, a *app, out *cli.Printer) error) error {
	ctx := cmd.Context()

	a, err := f.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a, cli.NewPrinter(cmd.OutOrStdout())); err != nil {
		cli.NewPrinter(cmd.ErrOrStderr()).PrintError(err)
		return RuntimeError{Err: err}
	}
	return nil
}

func addOutputFlag(cmd *cobra.Command, output *string) {
	cmd.Flags().StringVarP(output, "output", "O", string(cli.FormatYAML), "Output format (yaml or json)")
}

func newListCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the themes of the registry",
		GroupID: "query",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.run(cmd, func(ctx context.Context, a *app, out *cli.Printer) error {
				records, err := a.engine.ListThemes(ctx)
				if err != nil {
					return err
				}
				out.PrintThemes(records)
				return nil
			})
		},
	}
}

func newResolveCmd(root *rootFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "resolve <theme>",
		Short:   "Print the resolved configuration of a theme",
		Long:    "Merge the configurations along the inheritance chain of a theme, most-derived theme winning, and print the result",
		GroupID: "query",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseFormat(output)
			if err != nil {
				return err
			}
			return root.run(cmd, func(ctx context.Context, a *app, out *cli.Printer) error {
				entry, err := a.engine.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				return out.PrintResolved(entry.Chain, entry.Resolved, format)
			})
		},
	}
	addOutputFlag(cmd, &output)

	return cmd
}

func newChainCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "chain <theme>",
		Short:   "Print the inheritance chain of a theme, most-derived first",
		GroupID: "query",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, a *app, out *cli.Printer) error {
				if _, err := a.engine.GetTheme(ctx, args[0]); err != nil {
					return err
				}
				out.PrintChain(a.engine.GetInheritanceChain(args[0]))
				return nil
			})
		},
	}
}

func newDescendantsCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "descendants <theme>",
		Short:   "List every theme inheriting from a theme",
		GroupID: "query",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, a *app, out *cli.Printer) error {
				if _, err := a.engine.GetTheme(ctx, args[0]); err != nil {
					return err
				}
				out.PrintDescendants(args[0], a.engine.GetDescendants(args[0]))
				return nil
			})
		},
	}
}

func newStatsCmd(root *rootFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "stats",
		Short:   "Print statistics about the theme hierarchy",
		GroupID: "query",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.run(cmd, func(_ context.Context, a *app, out *cli.Printer) error {
				stats := a.engine.GetStatistics()
				if !asJSON {
					out.PrintStatistics(stats)
					return nil
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print statistics as JSON, including every chain")

	return cmd
}
