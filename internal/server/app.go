// Package server initializes and runs the timeledger API server.
// It opens the database, applies migrations, wires the services and serves
// HTTP until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/timeledger/internal/logging"
	"github.com/dmitrijs2005/timeledger/internal/server/auth"
	"github.com/dmitrijs2005/timeledger/internal/server/config"
	"github.com/dmitrijs2005/timeledger/internal/server/guard"
	"github.com/dmitrijs2005/timeledger/internal/server/httpapi"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/timeledger/internal/server/services"
	"github.com/dmitrijs2005/timeledger/internal/server/storage"
)

// Seams for tests.
var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
	newObjectStore       = func(ctx context.Context, cfg storage.S3Config) (storage.ObjectStore, error) {
		return storage.NewS3Store(ctx, cfg)
	}
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.NewJSONLogger(os.Stdout, level)

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app, err := wire(ctx, c, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func wire(ctx context.Context, c *config.Config, db *sql.DB, logger logging.Logger) (*App, error) {
	m := newRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	tokens, err := auth.NewTokenService(c.SecretKey, c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	if err != nil {
		return nil, err
	}

	auditor := services.NewAuditor(db, m, logger)
	workspace := services.NewWorkspaceService(db, m, logger)

	authService, err := services.NewAuthService(
		db, m, tokens,
		auth.NewBcryptHasher(c.PasswordHashCost),
		guard.New(c.LockoutThreshold, c.LockoutDuration),
		auditor, workspace, logger,
	)
	if err != nil {
		return nil, err
	}

	var store storage.ObjectStore
	if c.ExportEnabled() {
		store, err = newObjectStore(ctx, storage.S3Config{
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("object store init error: %w", err)
		}
	} else {
		logger.Warn(ctx, "no export bucket configured, timesheet export disabled")
	}
	exports := services.NewExportService(db, m, store, c.ExportURLValidity, logger)

	srv := httpapi.NewServer(httpapi.Options{
		Address:            c.EndpointAddrHTTP,
		CORSAllowedOrigins: c.CORSAllowedOrigins,
		TrustProxy:         c.TrustProxy,
		ShutdownTimeout:    c.ShutdownTimeout,
	}, authService, workspace, exports, logger)

	return &App{config: c, logger: logger, db: db, server: srv}, nil
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

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err.Error())
	}
	app.logger.Info(context.Background(), "App stopped")
}
