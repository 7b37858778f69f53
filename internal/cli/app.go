package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/codepocket/internal/auth"
	"github.com/sakif/codepocket/internal/config"
	"github.com/sakif/codepocket/internal/credential"
	"github.com/sakif/codepocket/internal/gist"
	"github.com/sakif/codepocket/internal/kvstore"
	"github.com/sakif/codepocket/internal/logging"
	"github.com/sakif/codepocket/internal/repository"
	"github.com/sakif/codepocket/internal/repository/kvrepo"
	"github.com/sakif/codepocket/internal/repository/sqlite"
	"github.com/sakif/codepocket/internal/service"
	synceng "github.com/sakif/codepocket/internal/sync"
)

// App is the wired application. Every command opens one and closes it when
// done.
//
// DEPENDENCY CHAIN:
//
//	config → logger
//	sqlite.DB (or the JSON fallback file) → kvstore.Store + SnippetStore
//	kvstore.Store → credential.Store → gist.Client
//	credential.Store + kvstore.Store + gist.Client + SnippetStore → sync.Engine
//	SnippetStore + sync.Engine → service.SnippetService
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	KV       kvstore.Store
	Snippets repository.SnippetStore
	Creds    *credential.Store
	Gist     *gist.Client
	Engine   *synceng.Engine
	Service  *service.SnippetService

	db        *sqlite.DB
	logCloser io.Closer
}

func loadConfig(o *RootOptions) (*config.Config, error) {
	return config.Load(o.v, o.ConfigFile)
}

// open loads the config and wires the application.
func (o *RootOptions) open(cmd *cobra.Command) (*App, error) {
	cfg, err := loadConfig(o)
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("creating data dir %s: %w", cfg.DataDir, err)
	}

	app := &App{Config: cfg, Logger: logger, logCloser: logCloser}

	// The primary store is sqlite. If it cannot be opened or fails the
	// probe, everything lives in the JSON fallback file instead.
	var primary kvstore.Store
	var dbKV *sqlite.KV
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Warn("opening sqlite database",
			slog.String("path", cfg.DBPath),
			slog.String("error", err.Error()),
		)
	} else {
		app.db = db
		dbKV = db.KV()
		primary = dbKV
	}
	fallback := kvstore.NewFileStore(cfg.FallbackPath)
	app.KV = kvstore.Select(ctx(cmd), primary, fallback, logger)
	if dbKV != nil && app.KV == kvstore.Store(dbKV) {
		app.Snippets = app.db
	} else {
		app.Snippets = kvrepo.New(app.KV)
	}

	app.Creds = credential.New(app.KV)
	app.Gist = gist.New(app.Creds,
		gist.WithBaseURL(cfg.APIBaseURL),
		gist.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		gist.WithLogger(logger),
	)
	app.Engine = synceng.New(app.Creds, app.KV, app.Gist, app.Snippets,
		synceng.WithLogger(logger),
		synceng.WithRerunDelay(cfg.SyncDelay),
	)
	app.Service = service.NewSnippetService(app.Snippets, app.Engine, logger)
	return app, nil
}

// Close waits for background syncs and releases the stores.
func (a *App) Close() {
	a.Engine.Close()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Warn("closing database", slog.String("error", err.Error()))
		}
	}
	a.logCloser.Close()
}

// tokenService returns the session signer. Without a configured secret a
// random one is used, so sessions end with the process.
func (a *App) tokenService() (*auth.TokenService, error) {
	secret := a.Config.JWTSecret
	if secret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}
		secret = hex.EncodeToString(b)
		a.Logger.Warn("server.jwt_secret not set, sessions will not survive a restart")
	}
	return auth.NewTokenService(secret)
}

// ctx returns the command context, never nil.
func ctx(cmd *cobra.Command) context.Context {
	if c := cmd.Context(); c != nil {
		return c
	}
	return context.Background()
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx(cmd), d)
}
