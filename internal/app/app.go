// Package app builds the resolver's dependencies from configuration and runs
// the HTTP service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/postal-resolver/internal/api"
	"github.com/JakeFAU/postal-resolver/internal/browser"
	rediscache "github.com/JakeFAU/postal-resolver/internal/cache/redis"
	"github.com/JakeFAU/postal-resolver/internal/config"
	"github.com/JakeFAU/postal-resolver/internal/id/uuid"
	"github.com/JakeFAU/postal-resolver/internal/logging"
	"github.com/JakeFAU/postal-resolver/internal/metrics"
	"github.com/JakeFAU/postal-resolver/internal/pool"
	"github.com/JakeFAU/postal-resolver/internal/portal"
	"github.com/JakeFAU/postal-resolver/internal/resolver"
	"github.com/JakeFAU/postal-resolver/internal/store/memory"
	"github.com/JakeFAU/postal-resolver/internal/store/postgres"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store     resolver.Store
	pgStore   *postgres.Store
	cache     *rediscache.Cache
	browsers  *pool.Pool[*browser.Browser]
	scraper   *portal.Client
	engine    *resolver.Engine
	apiServer *api.Server

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	return logger, nil
}

// Build creates every dependency needed to serve HTTP traffic.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := newApp(cfg, logger)
	a.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("session_mode", cfg.Portal.SessionMode),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.Bool("redis", cfg.Redis.URL != ""),
	)
	metrics.Init()

	if err := a.setupStore(ctx); err != nil {
		_ = a.closeInfrastructure()
		return nil, err
	}
	if err := a.setupCache(ctx); err != nil {
		_ = a.closeInfrastructure()
		return nil, err
	}
	a.setupScraper()

	var cache resolver.ResultCache
	if a.cache != nil {
		cache = a.cache
	}
	a.engine = resolver.NewEngine(a.store, a.scraper, cache, resolver.Config{
		PersistTimeout: cfg.Resolver.PersistTimeout(),
	}, a.logger.Named("engine"))

	checks := map[string]api.Pinger{"store": a.store}
	if a.cache != nil {
		checks["cache"] = a.cache
	}
	a.apiServer = api.NewServer(a.engine, checks, a.logger)
	return a, nil
}

// BuildScraper creates only the portal client, for one-shot lookups.
func BuildScraper(cfg *config.Config, logger *zap.Logger) *App {
	a := newApp(cfg, logger)
	a.setupScraper()
	return a
}

func newApp(cfg *config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Lookup asks the portal directly, bypassing the store.
func (a *App) Lookup(ctx context.Context, commune, street, number string) resolver.Outcome {
	return a.scraper.Lookup(ctx, commune, street, number)
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.startSweeper(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close()
}

// Close stops the sweeper, waits for it, then releases browsers, cache and store.
func (a *App) Close() error {
	var errs []error
	if a.sweepCancel != nil {
		a.sweepCancel()
		<-a.sweepDone
		a.sweepCancel = nil
	}
	if a.browsers != nil {
		if err := a.browsers.CloseAll(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.closeInfrastructure(); err != nil {
		errs = append(errs, err)
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure() error {
	var err error
	if a.cache != nil {
		if cerr := a.cache.Close(); cerr != nil {
			a.logger.Warn("redis close failed", zap.Error(cerr))
			err = cerr
		}
		a.cache = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
	return err
}

// startSweeper runs the browser pool's idle sweep until Close.
func (a *App) startSweeper(ctx context.Context) {
	if a.browsers == nil || a.sweepCancel != nil {
		return
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	a.sweepCancel = cancel
	a.sweepDone = make(chan struct{})
	go func() {
		defer close(a.sweepDone)
		a.browsers.Run(sweepCtx)
	}()
	a.logger.Info("browser pool sweeper started")
}

func (a *App) setupStore(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("No DSN specified for database, using in-memory store with development communes")
		mem := memory.NewStore(uuid.NewUUIDGenerator())
		if err := mem.SeedDevelopment(); err != nil {
			return fmt.Errorf("seed memory store: %w", err)
		}
		a.store = mem
		return nil
	}
	pg, err := postgres.NewStore(ctx, postgres.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime(),
	})
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	a.pgStore = pg
	a.store = pg
	a.logger.Info("postgres store initialized")
	return nil
}

func (a *App) setupCache(ctx context.Context) error {
	cache, err := rediscache.New(ctx, rediscache.Config{
		URL: a.cfg.Redis.URL,
		TTL: a.cfg.Redis.TTL(),
	})
	if err != nil {
		return fmt.Errorf("redis cache init failed: %w", err)
	}
	if cache == nil {
		a.logger.Info("hot result cache disabled")
		return nil
	}
	a.cache = cache
	a.logger.Info("hot result cache enabled", zap.Duration("ttl", a.cfg.Redis.TTL()))
	return nil
}

func (a *App) setupScraper() {
	pc := a.cfg.Portal
	portalCfg := portal.Config{
		BaseURL:           pc.BaseURL,
		PortletID:         pc.PortletID,
		UserAgent:         pc.UserAgent,
		SessionTimeout:    pc.SessionTimeout(),
		LookupTimeout:     pc.LookupTimeout(),
		RequestsPerSecond: pc.RequestsPerSecond,
		Burst:             pc.Burst,
	}

	var sessions portal.SessionSource
	if pc.SessionMode == config.SessionModeBrowser {
		bc := a.cfg.Browser
		a.browsers = browser.NewPool(
			browser.Options{Headless: bc.Headless, UserAgent: pc.UserAgent},
			pool.Options{
				MaxAge:     time.Duration(bc.MaxAgeMinutes) * time.Minute,
				MaxIdle:    time.Duration(bc.MaxIdleMinutes) * time.Minute,
				MaxHandles: bc.MaxHandles,
			},
			a.logger,
		)
		sessions = browser.NewSessions(a.browsers, pc.BaseURL, pc.SessionTimeout(), a.logger)
		a.logger.Info("using browser portal sessions",
			zap.Int("max_handles", bc.MaxHandles),
			zap.Bool("headless", bc.Headless),
		)
	} else {
		a.logger.Info("using http portal sessions")
	}
	a.scraper = portal.NewClient(portalCfg, sessions, a.logger)
	a.logger.Info("portal client ready",
		zap.String("base_url", pc.BaseURL),
		zap.Float64("requests_per_second", pc.RequestsPerSecond),
	)
}
