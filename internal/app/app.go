package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/vpsinv/internal/auth"
	"github.com/MrSnakeDoc/vpsinv/internal/config"
	"github.com/MrSnakeDoc/vpsinv/internal/httpserver"
	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vpsinv/internal/index"
	"github.com/MrSnakeDoc/vpsinv/internal/inventory"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
	"github.com/MrSnakeDoc/vpsinv/internal/metrics"
	"github.com/MrSnakeDoc/vpsinv/internal/scheduler"
	"github.com/MrSnakeDoc/vpsinv/internal/store"
	"github.com/MrSnakeDoc/vpsinv/internal/version"
)

// Core holds the services shared by the HTTP server and the CLI commands.
type Core struct {
	Backend   *store.Backend
	Metrics   *metrics.Metrics
	Views     *index.MemoryIndex
	Inventory *inventory.Service
	Auth      *auth.Service
}

// OpenCore opens the configured store and builds the services on top of it.
// With the memory store, servers live in a MemoryRepository and only users
// and sessions go through the document store.
func OpenCore(ctx context.Context, cfg *config.Config, log logger.Logger) (*Core, error) {
	backend, err := store.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store, err)
	}

	var repo inventory.Repository = inventory.NewStoreRepository(backend.Docs)
	if cfg.Store == config.StoreMemory {
		repo = inventory.NewMemoryRepository()
	}

	m := metrics.New()
	views := index.NewMemoryIndex()
	tokens := auth.NewTokens([]byte(cfg.JWTSecret), cfg.SessionTTL)

	return &Core{
		Backend:   backend,
		Metrics:   m,
		Views:     views,
		Inventory: inventory.NewService(repo, views, log, m, cfg.ViewTTL),
		Auth:      auth.NewService(backend.Docs, tokens, log),
	}, nil
}

// Close releases the store.
func (c *Core) Close() error {
	return c.Backend.Close()
}

type App struct {
	cfg      *config.Config
	logger   logger.Logger
	core     *Core
	server   *httpserver.Server
	reloader *scheduler.SeedReloader
	gc       *scheduler.GarbageCollector
}

// New wires the application. The store must be reachable; the seed user,
// when a seed file is configured, must already exist.
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	loggerClient.Info("opening store", logger.String("backend", cfg.Store))
	core, err := OpenCore(ctx, cfg, loggerClient)
	if err != nil {
		return nil, err
	}
	loggerClient.Info("store initialized successfully", logger.String("backend", core.Backend.Name))

	var (
		reloader      *scheduler.SeedReloader
		reloadTrigger chan struct{}
	)
	if cfg.SeedFile != "" {
		user, err := core.Auth.LookupUser(ctx, cfg.SeedUser)
		if err != nil {
			_ = core.Close()
			return nil, fmt.Errorf("failed to resolve seed user: %w", err)
		}
		loggerClient.Info("seed file configured, initializing seed reloader",
			logger.String("file", cfg.SeedFile),
			logger.String("user_id", user.ID))

		reloadTrigger = make(chan struct{}, 1)
		reloader = scheduler.NewSeedReloader(
			cfg.SeedFile,
			user.ID,
			core.Inventory,
			loggerClient,
			core.Metrics,
			cfg.SeedReloadEvery,
			reloadTrigger,
		)
	} else {
		loggerClient.Info("seed file not configured, seed reload disabled")
	}

	var gc *scheduler.GarbageCollector
	if cfg.GCInterval > 0 {
		gc = scheduler.NewGarbageCollector(
			core.Views,
			core.Auth,
			loggerClient,
			core.Metrics,
			cfg.GCInterval,
			cfg.ViewIdle,
		)
	}

	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		AllowedHosts:   cfg.AllowedHosts,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		TrustProxy:     cfg.TrustProxy,
		CORSOrigins:    cfg.CORSOrigins,
		AuthRatePerMin: cfg.AuthRatePerMin,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		StoreName:      core.Backend.Name,
		Store:          core.Backend.Docs,
		Inventory:      core.Inventory,
		Auth:           core.Auth,
		Metrics:        core.Metrics,
		SeedReloader:   reloader,
		ReloadTrigger:  reloadTrigger,
	}

	return &App{
		cfg:      cfg,
		logger:   loggerClient,
		core:     core,
		server:   httpserver.New(cfg, d),
		reloader: reloader,
		gc:       gc,
	}, nil
}

// Run starts the background jobs and the HTTP server, and blocks until
// SIGINT/SIGTERM or a server error.
func (a *App) Run() error {
	a.logger.Infof("🚀 Starting vpsinv %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("vpsinv %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			_ = a.core.Close()
			return fmt.Errorf("failed to start seed reloader: %w", err)
		}
		a.logger.Info("seed reloader started",
			logger.Duration("interval", a.cfg.SeedReloadEvery))
	}

	if a.gc != nil {
		if err := a.gc.Start(ctx); err != nil {
			_ = a.core.Close()
			return fmt.Errorf("failed to start garbage collector: %w", err)
		}
		a.logger.Info("garbage collector started",
			logger.Duration("interval", a.cfg.GCInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	if a.reloader != nil {
		a.reloader.Stop()
	}
	if a.gc != nil {
		a.gc.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to stop server: %w", err))
	}

	if err := a.core.Close(); err != nil {
		a.logger.Warnf("failed to close store: %v", err)
	} else {
		a.logger.Info("✅ Store closed cleanly")
	}

	if runErr != nil {
		return runErr
	}
	a.logger.Info("✅ vpsinv stopped cleanly")
	return nil
}
