package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/qrapi/internal"
	"github.com/DukeRupert/qrapi/internal/cache"
	"github.com/DukeRupert/qrapi/internal/codec"
	"github.com/DukeRupert/qrapi/internal/handler"
	"github.com/DukeRupert/qrapi/internal/metrics"
	"github.com/DukeRupert/qrapi/internal/middleware"
	"github.com/DukeRupert/qrapi/internal/service"
	"github.com/DukeRupert/qrapi/internal/storage"
	"github.com/DukeRupert/qrapi/internal/store"
	"github.com/DukeRupert/qrapi/internal/store/memory"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// app holds everything the router needs.
type app struct {
	cfg      *internal.Config
	logger   *slog.Logger
	store    store.Store
	images   storage.Storage // nil when STORAGE_PROVIDER=none
	limiters []*middleware.RateLimiter
}

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	images, err := storage.New(storage.Config{
		Provider: cfg.StorageProvider,
		Local: storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		},
		R2: storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: st, images: images}
	defer a.close()

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "store", cfg.StoreDriver, "storage", cfg.StorageProvider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// openStore connects to Postgres and migrates it, or creates a memory store.
func openStore(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.StoreDriver == store.DriverMemory {
		logger.Warn("using in-memory store; data will not survive a restart")
		return memory.New(), nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := internal.RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	return store.NewPostgresStore(db, store.PostgresConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	}, logger), nil
}

// routes wires services, handlers and middleware into the root handler.
func (a *app) routes() http.Handler {
	cfg, logger := a.cfg, a.logger

	// Initialize services
	credentials := cache.NewAccountCache(cfg.AccountCacheTTL)
	accounts := service.NewAccountService(a.store, credentials, logger)
	quota := service.NewQuotaService(a.store, service.ShortID, credentials, logger)
	artifacts := service.NewArtifactService(a.store, quota, codec.NewRenderer(), a.images, logger)

	// Initialize middleware
	authMw := middleware.NewAuthMiddleware(accounts, logger)
	accountLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	ipLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	a.limiters = append(a.limiters, accountLimiter, ipLimiter)

	requireAccount := middleware.Stack(
		authMw.RequireAccount,
		middleware.NewRateLimitMiddleware(accountLimiter, middleware.ByAccount(cfg.TrustProxyHeaders), logger).Limit,
	)
	throttle := middleware.NewRateLimitMiddleware(ipLimiter, middleware.ByClientIP(cfg.TrustProxyHeaders), logger).Limit

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.Handle("GET /health", handler.NewHealthHandler(a.store, logger))
	mux.Handle("GET /metrics", middleware.BasicAuth("metrics", cfg.MetricsUsername, cfg.MetricsPassword)(promhttp.Handler()))

	handler.NewAPIHandler(accounts, quota, artifacts, cfg.BaseURL, logger).
		RegisterRoutes(mux, requireAccount, throttle)

	if _, ok := a.images.(*storage.LocalStorage); ok {
		handler.NewImageHandler(a.images, logger).RegisterRoutes(mux)
	}

	return middleware.Stack(
		middleware.NewRequestLoggingMiddleware(logger, cfg.TrustProxyHeaders).Handler,
		metrics.Middleware,
		middleware.NewSecurityHeadersMiddleware(cfg.IsProduction()).Handler,
		middleware.NewCORSMiddleware(cfg.CORSAllowedOrigin).Handler,
	)(mux)
}

func (a *app) close() {
	for _, l := range a.limiters {
		l.Close()
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
