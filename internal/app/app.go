package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"camwatch/internal/config"
	"camwatch/internal/database"
	"camwatch/internal/event"
	"camwatch/internal/handler"
	"camwatch/internal/media"
	"camwatch/internal/middleware"
	"camwatch/internal/repository"
	"camwatch/internal/router"
	"camwatch/internal/service"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var cleanup []func()

	store, storeCleanup, err := newCredentialStore(cfg)
	if err != nil {
		return nil, err
	}
	if storeCleanup != nil {
		cleanup = append(cleanup, storeCleanup)
	}

	if err := seedAdmins(cfg, store); err != nil {
		runAll(cleanup)
		return nil, fmt.Errorf("failed to seed admin accounts: %w", err)
	}

	source, err := newMediaSource(cfg)
	if err != nil {
		runAll(cleanup)
		return nil, fmt.Errorf("failed to initialize media source: %w", err)
	}
	cleanup = append(cleanup, func() { _ = source.Close() })

	bus := event.NewBus()

	authService, err := service.NewAuthService(store, cfg.JWTSecret, cfg.UserTokenTTL, cfg.AdminTokenTTL, bus)
	if err != nil {
		runAll(cleanup)
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	userService := service.NewUserService(store)
	signalService := service.NewSignalService(source, bus)
	statusService := service.NewStatusService(bus, signalService)
	cleanup = append(cleanup, statusService.Stop)

	authMiddleware := middleware.NewAuthMiddleware(authService)

	appRouter := router.New(cfg, authMiddleware, router.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		Admin:  handler.NewAdminHandler(userService),
		Signal: handler.NewSignalHandler(signalService, statusService),
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	slog.Info("configured", "media_backend", cfg.MediaBackend, "port", cfg.ServerPort)

	return &App{
		server:       server,
		cleanupFuncs: cleanup,
	}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close peer connections before the listener so in-flight
	// negotiations fail fast instead of hanging the shutdown.
	runAll(a.cleanupFuncs)

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func newCredentialStore(cfg *config.Config) (repository.CredentialStore, func(), error) {
	if cfg.DatabaseURL != "" {
		slog.Info("connecting to PostgreSQL")
		db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := db.EnsureSchema(context.Background()); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}

		return repository.NewPostgresStore(db.Pool), db.Close, nil
	}

	slog.Info("using file-backed user store", "path", cfg.UsersFile)
	store, err := repository.NewFileStore(cfg.UsersFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open users file: %w", err)
	}

	return store, nil, nil
}

func newMediaSource(cfg *config.Config) (media.Source, error) {
	if cfg.MediaBackend == config.BackendGo2RTC {
		return media.NewGo2RTCSource(cfg.Go2RTCURL, cfg.Go2RTCStream)
	}

	track, err := media.NewCameraTrack("camwatch")
	if err != nil {
		return nil, err
	}

	return media.NewEngine(cfg.STUNServers, track, cfg.MaxMediaSessions), nil
}

func seedAdmins(cfg *config.Config, store repository.CredentialStore) error {
	seeds := map[string]string{
		"Admin_G": cfg.AdminSeedPassG,
		"Admin_D": cfg.AdminSeedPassD,
	}

	var admins []repository.SeedAdmin
	for name, pass := range seeds {
		if pass == "" {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(pass), 12)
		if err != nil {
			return err
		}
		admins = append(admins, repository.SeedAdmin{Username: name, PasswordHash: string(hash)})
	}

	if len(admins) == 0 {
		slog.Warn("no admin seed passwords configured; admin panel will be unreachable on a fresh store")
		return nil
	}

	return store.Seed(context.Background(), admins)
}

func runAll(funcs []func()) {
	for _, f := range funcs {
		f()
	}
}
