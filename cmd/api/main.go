// Package main is the entry point for the Scout Pup API server.
//
// It loads the configuration, connects the PostgreSQL pool, wires the
// repositories, billing integration, and token verification into the core
// chassis (middleware, routing, health checks), and serves HTTP until a
// shutdown signal arrives.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"scoutpup/internal/api/handlers"
	"scoutpup/internal/auth"
	"scoutpup/internal/billing"
	"scoutpup/internal/config"
	"scoutpup/internal/core"
	"scoutpup/internal/db"
	"scoutpup/internal/external"
	"scoutpup/internal/trackers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewEnvVarProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("scoutpup API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	// Database pool.
	pool, err := newPool(context.Background(), cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	userRepo := db.NewUserRepository(pool)
	trackerRepo := db.NewTrackerRepository(pool)
	eventRepo := db.NewBillingEventRepository(pool)

	// Billing integration.
	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 20 * time.Second},
		external.StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
			Logger:    logger,
		},
	)
	catalog := billing.NewCatalog(cfg.Billing.ProPriceID, cfg.Billing.UltraPriceID)
	entitlements := billing.NewEntitlementResolver(catalog, stripeClient, logger)

	// Token verification.
	tokenService, err := auth.NewTokenService(cfg.Auth.JWTSecret.Unmask(), userRepo)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// Telemetry.
	metrics := core.NewPrometheusCollector(prometheus.DefaultRegisterer, cfg.Observability.MetricNamespace)

	// Build the server chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = metrics
	srv.Authenticator = tokenService
	srv.HealthProbes = []core.HealthProbe{db.NewPoolProbe(pool)}

	// Domain services and handlers.
	trackerService := trackers.NewService(userRepo, trackerRepo, entitlements, logger)

	trackersHandler := handlers.NewTrackersHandler(trackerService, srv.Validator, metrics, logger)
	usersHandler := handlers.NewUsersHandler(userRepo, entitlements, logger)
	billingHandler := handlers.NewBillingHandler(
		stripeClient,
		userRepo,
		catalog,
		srv.Validator,
		cfg.Server.DashboardURL,
		logger,
	)
	webhookHandler := handlers.NewStripeWebhookHandler(
		&external.StripeVerifier{},
		userRepo,
		eventRepo,
		metrics,
		cfg.Billing.StripeWebhookSecret.Unmask(),
		logger,
	)

	srv.RouteRegistrars = append(srv.RouteRegistrars,
		trackersHandler.RegisterRoutes,
		usersHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	// Background ledger maintenance. Stripe redelivers within days, so
	// entries older than the retention window serve no dedupe purpose.
	pruneCtx, stopPrune := context.WithCancel(context.Background())
	defer stopPrune()
	go pruneBillingEvents(pruneCtx, eventRepo, logger)

	return runHTTPServer(srv, cfg, logger)
}

// billingEventRetentionDays is how long processed webhook event IDs are kept
// in the dedupe ledger before being pruned.
const billingEventRetentionDays = 30

// pruneBillingEvents periodically deletes expired dedupe ledger entries. Runs
// until ctx is canceled; failures are logged and retried on the next tick.
func pruneBillingEvents(ctx context.Context, repo *db.BillingEventRepository, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := repo.DeleteOlderThan(ctx, billingEventRetentionDays)
			if err != nil {
				logger.Error("billing event pruning failed", "error", err)
				continue
			}
			if pruned > 0 {
				logger.Info("pruned billing event ledger", "deleted", pruned)
			}
		}
	}
}

// newPool builds the pgx connection pool from the database configuration.
func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	return pool, nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
