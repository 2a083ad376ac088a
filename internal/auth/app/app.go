package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/passwordless/internal/auth/guard"
	httpapi "github.com/aussiebroadwan/passwordless/internal/auth/http"
	"github.com/aussiebroadwan/passwordless/internal/auth/notify"
	"github.com/aussiebroadwan/passwordless/internal/auth/revocation"
	"github.com/aussiebroadwan/passwordless/internal/auth/service"
	"github.com/aussiebroadwan/passwordless/internal/auth/store"
	"github.com/aussiebroadwan/passwordless/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/passwordless/pkg/cryptox"
	"github.com/aussiebroadwan/passwordless/pkg/jwtx"
	"github.com/aussiebroadwan/passwordless/pkg/slogx"
)

// BuildVersion is overridden at build time with
// -ldflags "-X github.com/aussiebroadwan/passwordless/internal/auth/app.BuildVersion=...".
var BuildVersion = "v0.1.0"

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db          store.Store
	pepper      cryptox.Pepper
	signer      jwtx.Signer
	verifier    jwtx.Verifier
	revocations revocation.Registry
	redis       *redis.Client

	// Guards
	limiter *guard.FixedWindow
	lockout *guard.Lockout

	// Services
	dispatcher          *notify.Dispatcher
	authService         *service.AuthService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}
	app.pepper = pepper

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.signer, app.verifier, err = InitSessionKeys(cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize session keys: %w", err)
	}

	if err := app.initRevocation(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initServices(); err != nil {
		app.closeBackends()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.dispatcher.Start()
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains HTTP, then the notification queue, then closes the backends.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.dispatcher.Stop(ctx); err != nil {
		app.logger.Warn("notification queue not fully drained", "error", err)
	}

	if err := app.closeBackends(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) closeBackends() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// initDatabase opens the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(sqlite.DSN(app.cfg.DatabaseFile))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "file", app.cfg.DatabaseFile)
	return nil
}

func (app *Application) initRevocation() error {
	switch app.cfg.RevocationBackend {
	case RevocationRedis:
		client, err := revocation.Connect(app.cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to configure redis: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to reach redis: %w", err)
		}

		app.redis = client
		app.revocations = revocation.NewRedis(client, nil)
	default:
		app.revocations = revocation.NewMemory(nil)
	}

	app.logger.Info("revocation registry ready", "backend", app.cfg.RevocationBackend)
	return nil
}

func (app *Application) initNotifier() (notify.Notifier, error) {
	switch app.cfg.Notifier {
	case NotifierSMTP:
		n, err := notify.NewSMTPNotifier(app.cfg.SMTP)
		if err != nil {
			return nil, fmt.Errorf("failed to configure smtp notifier: %w", err)
		}
		app.logger.Info("smtp notifier enabled", "host", app.cfg.SMTP.Host, "port", app.cfg.SMTP.Port)
		return n, nil
	default:
		if !app.cfg.IsDev() {
			app.logger.Warn("log notifier writes verification codes to the log; use smtp outside dev")
		}
		return notify.NewLogNotifier(app.logger), nil
	}
}

// initServices wires guards, services and background workers.
func (app *Application) initServices() error {
	notifier, err := app.initNotifier()
	if err != nil {
		return err
	}
	app.dispatcher = notify.NewDispatcher(notifier, app.logger, notify.DispatcherConfig{})

	app.limiter = guard.NewFixedWindow(guard.WithFixedWindowSweep(app.cfg.LockoutSweepInterval))
	app.lockout = guard.NewLockout(guard.LockoutConfig{
		MaxAttempts:   app.cfg.LockoutMaxAttempts,
		Window:        app.cfg.LockoutWindow,
		Duration:      app.cfg.LockoutDuration,
		SweepInterval: app.cfg.LockoutSweepInterval,
	}, nil)

	app.authService = &service.AuthService{
		Store: app.db,
		Codes: &service.CodeService{
			Store:        app.db,
			Pepper:       app.pepper,
			TTL:          app.cfg.CodeTTL,
			Cooldown:     app.cfg.CodeCooldown,
			Window:       app.cfg.CodeWindow,
			MaxPerWindow: app.cfg.CodeMaxPerWindow,
		},
		Tokens: &service.TokenService{
			Signer:   app.signer,
			Verifier: app.verifier,
			Registry: app.revocations,
			Issuer:   app.cfg.Issuer,
			TTL:      app.cfg.TokenTTL,
		},
		Limiter:        app.limiter,
		Lockout:        app.lockout,
		Notifications:  app.dispatcher,
		AdminEmails:    app.cfg.AdminEmails,
		RequestIPLimit: service.IPLimit{Max: app.cfg.RequestIPMax, Window: app.cfg.RequestIPWindow},
		VerifyIPLimit:  service.IPLimit{Max: app.cfg.VerifyIPMax, Window: app.cfg.VerifyIPWindow},
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.Guards["lockout"] = app.lockout
	app.housekeepingService.Guards["rate_limiter"] = app.limiter
	app.housekeepingService.Revocations = app.revocations
	app.housekeepingService.RevocationSweep = app.cfg.RevocationSweepInterval
	app.housekeepingService.CodeRetention = app.cfg.CodeRetention

	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.authService,
		app.db,
		app.signer,
		app.revocations,
		BuildVersion,
		app.logger,
	)
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
