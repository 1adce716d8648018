package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"

	"github.com/lodgebook/authcore/internal/auth/challenge"
	"github.com/lodgebook/authcore/internal/auth/guard"
	httpapi "github.com/lodgebook/authcore/internal/auth/http"
	"github.com/lodgebook/authcore/internal/auth/service"
	"github.com/lodgebook/authcore/internal/auth/store"
	"github.com/lodgebook/authcore/internal/auth/store/drivers/sqlite"
	"github.com/lodgebook/authcore/pkg/cryptox"
	"github.com/lodgebook/authcore/pkg/flowtoken"
	"github.com/lodgebook/authcore/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application encapsulates the login service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db          store.Store
	redisClient *redis.Client

	loginService        *service.LoginService
	sessionService      *service.SessionService
	enrollmentService   *service.EnrollmentService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authcore",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)
	if cfg.MasterKeyPath != "" {
		cryptox.SetMasterKeyPath(cfg.MasterKeyPath)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("authcore starting", "port", app.cfg.Port, "version", BuildVersion)

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

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authcore...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("authcore stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initGuard() (guard.Guard, error) {
	cfg := guard.Config{
		Threshold: app.cfg.AbuseThreshold,
		Window:    app.cfg.AbuseWindow,
	}

	switch app.cfg.GuardBackend {
	case "", "sqlite":
		return guard.NewStoreGuard(app.db.AbuseCounters(), cfg), nil
	case "redis":
		app.redisClient = redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})
		app.logger.Info("abuse guard using redis backend", "addr", app.cfg.RedisAddr)
		return guard.NewRedisGuard(app.redisClient, cfg), nil
	default:
		return nil, fmt.Errorf("unknown guard backend %q", app.cfg.GuardBackend)
	}
}

func (app *Application) initServices() error {
	abuseGuard, err := app.initGuard()
	if err != nil {
		return err
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: app.cfg.RPDisplayName,
		RPID:          app.cfg.RPID,
		RPOrigins:     app.cfg.RPOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize webauthn: %w", err)
	}

	flowSecret := []byte(app.cfg.FlowSecret)
	if len(flowSecret) == 0 {
		// Ephemeral secret: pending flows will not survive a restart.
		flowSecret = []byte(cryptox.MustGenerateToken(cryptox.TokenSize256))
		app.logger.Warn("AUTH_FLOW_SECRET not set, using ephemeral flow token secret")
	}
	flow := flowtoken.NewSigner(flowSecret, app.cfg.Issuer, app.cfg.FlowTokenTTL)

	challengeCache := challenge.NewCache(app.db.Challenges(), app.cfg.ChallengeTTL)

	app.sessionService = &service.SessionService{
		Store:   app.db,
		StayTTL: app.cfg.StayTTL,
	}

	app.loginService = &service.LoginService{
		Store:      app.db,
		Guard:      abuseGuard,
		Challenges: challengeCache,
		Sessions:   app.sessionService,
		Flow:       flow,
		WebAuthn:   wa,
	}

	app.enrollmentService = &service.EnrollmentService{
		Store:      app.db,
		WebAuthn:   wa,
		Challenges: challengeCache,
		Flow:       flow,
		Issuer:     app.cfg.Issuer,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		2*app.cfg.AbuseWindow,
	)

	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)
	router.LoginService = app.loginService
	router.SessionService = app.sessionService
	router.EnrollmentService = app.enrollmentService
	router.Cookie = httpapi.CookieConfig{
		Name:   app.cfg.CookieName,
		Secure: app.cfg.CookieSecure,
	}
	router.DefaultView = app.cfg.DefaultView
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: router,
	}
}
