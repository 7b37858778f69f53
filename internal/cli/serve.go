package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/codepocket/internal/server"
	"github.com/sakif/codepocket/internal/service"
	"github.com/sakif/codepocket/internal/watch"
)

// NewServeCommand runs the local HTTP API and, when configured, the inbox
// watcher.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API",
		Long: `Run the local HTTP API used by the browser extension. When inbox.dir is
set, capture files dropped there are ingested as well. Stops on SIGINT or
SIGTERM after in-flight requests finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(ctx(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(sigCtx, cmd, opts)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default 127.0.0.1:8787)")
	cmd.Flags().String("inbox", "", "directory to watch for captured snippets")
	opts.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	opts.v.BindPFlag("inbox.dir", cmd.Flags().Lookup("inbox"))
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *RootOptions) error {
	app, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	tokens, err := app.tokenService()
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:         app.Config.Addr,
		SecureCookie: app.Config.SecureCookie,
	}, server.Deps{
		Snippets: app.Service,
		Auth:     service.NewAuthService(app.Engine, tokens, app.Logger),
		Tokens:   tokens,
		Accounts: app.Engine,
		Sync:     app.Engine,
	}, app.Logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchErr := make(chan error, 1)
	if app.Config.InboxDir != "" {
		inbox := watch.New(app.Config.InboxDir, app.Service, 0, app.Logger)
		go func() {
			err := inbox.Run(ctx)
			if err != nil {
				app.Logger.Error("inbox watcher stopped", slog.String("error", err.Error()))
			}
			watchErr <- err
		}()
	} else {
		close(watchErr)
	}

	serveErr := srv.Start(ctx)
	cancel()
	if err, ok := <-watchErr; ok && err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

