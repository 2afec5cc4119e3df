package root

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roomforge/themekit/pkg/cli"
	"github.com/roomforge/themekit/pkg/registry"
	"github.com/roomforge/themekit/pkg/server"
)

type serveFlags struct {
	listenAddr string
	watch      bool
}

func newServeCmd(root *rootFlags) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the themekit HTTP API server",
		Long: `Start a server exposing the theme engine over HTTP, with a WebSocket stream of engine events on /api/events.

The listen address may be host:port, unix:///path/to.sock, npipe:///name (Windows) or fd://N.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.runServeCommand(cmd, root)
		},
	}

	cmd.Flags().StringVarP(&flags.listenAddr, "listen", "l", server.DefaultAddr, "Address to listen on")
	cmd.Flags().BoolVar(&flags.watch, "watch", true, "Reload themes changed on disk (themes directory registry only)")

	return cmd
}

func (f *serveFlags) runServeCommand(cmd *cobra.Command, root *rootFlags) error {
	ctx := cmd.Context()
	out := cli.NewPrinter(cmd.OutOrStdout())

	a, err := root.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.dir != nil && f.watch {
		watcher := registry.NewWatcher(a.dir, func(id string) {
			slog.Debug("Theme changed on disk", "theme", id)
			if err := a.engine.Reload(context.WithoutCancel(ctx), id); err != nil {
				slog.Warn("Failed to reload theme", "theme", id, "error", err)
			}
		})
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("watching %s: %w", a.dir.Root(), err)
		}
		defer watcher.Stop()
	}

	ln, err := server.Listen(ctx, f.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.listenAddr, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	out.Println("Listening on " + ln.Addr().String())
	slog.Debug("Starting server", "addr", ln.Addr().String())

	return server.New(a.engine).Serve(ctx, ln)
}
