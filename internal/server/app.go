// Package server wires the credential broker together: storage, key
// material, the identity pipeline, the tool registry and the HTTP surface,
// and runs it until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gsheetsmcp/internal/cryptox"
	"github.com/dmitrijs2005/gsheetsmcp/internal/logging"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/auth"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/config"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/gateway"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/httpapi"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/identity"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/reqctx"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/services"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/tools"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/vault"
)

type stateCloser interface {
	services.StateStore
	io.Closer
}

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	states stateCloser
	http   *httpapi.Server
}

// NewApp validates the configuration and builds every component. Missing
// key material is reported here and aborts startup.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	key, err := cryptox.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	cipher, err := cryptox.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}

	db, err := repomanager.OpenPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	v, err := vault.New(cipher, rm.Credentials(db), logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	states, err := newStateStore(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	resolver := identity.NewResolver(tokens, v, rm.Users(db), identity.GoogleClientFactory{}, logger,
		identity.WithFolderID(cfg.DriveFolderID),
		identity.WithRefreshTimeout(cfg.RefreshTimeout),
	)
	gw := gateway.New(resolver, reqctx.NewManager(logger), cfg.StaticToken, logger)

	login := services.NewLoginService(db, rm, v, tokens, states, services.LoginConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.BaseURL + "/auth/callback",
		StateTTL:     cfg.LoginStateTTL,
	}, logger)
	if !cfg.LoginEnabled() {
		logger.Warn(ctx, "google client not configured; /auth endpoints are disabled")
	}

	srv := httpapi.NewHTTPServer(httpapi.Options{
		Address:         cfg.HTTPAddr,
		BaseURL:         cfg.BaseURL,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, db, login, tools.New(logger), gw, logger)

	return &App{config: cfg, logger: logger, db: db, states: states, http: srv}, nil
}

func newStateStore(ctx context.Context, cfg *config.Config) (stateCloser, error) {
	if cfg.StateStore == config.StateStoreRedis {
		s, err := services.NewRedisStateStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("state store: %w", err)
		}
		return s, nil
	}
	return services.NewMemoryStateStore(), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server", "error", err)
		cancelFunc()
		return err
	}
	return nil
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// releases the database and state store.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	var runErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.states.Close(); err != nil {
		app.logger.Error(ctx, "state store close", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}

	app.logger.Info(ctx, "App stopped")
	return runErr
}
