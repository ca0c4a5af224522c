// Package main is the entrypoint for the keyward API server.
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

	"github.com/google/uuid"
	"github.com/keyward/keyward/internal/api"
	"github.com/keyward/keyward/internal/api/handler"
	mw "github.com/keyward/keyward/internal/api/middleware"
	"github.com/keyward/keyward/internal/api/response"
	"github.com/keyward/keyward/internal/cache"
	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/guard"
	"github.com/keyward/keyward/internal/keys"
	"github.com/keyward/keyward/internal/ratelimit"
	"github.com/keyward/keyward/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Wire services
	pgStore := store.NewPostgresStore(pool)
	keySvc := keys.NewService(pgStore, cfg.Auth.SecretPepper)
	limiter := ratelimit.NewRedisLimiter(redisCache)
	g := guard.New(keySvc, pgStore, limiter)

	// 6. First-run bootstrap
	if cfg.Auth.BootstrapSecret != "" {
		key, err := keySvc.Bootstrap(ctx, defaultTenantID(ctx, pgStore), cfg.Auth.BootstrapSecret)
		if err != nil {
			return fmt.Errorf("bootstrap admin key: %w", err)
		}
		if key != nil {
			slog.Info("bootstrap admin key created", "key_id", key.ID, "key_prefix", key.KeyPrefix)
		}
	}

	// 7. Start expiry sweeper
	go sweepExpiredKeys(ctx, pgStore, cfg.Sweeper.Interval)

	// 8. Build router with dependencies
	deps := api.Dependencies{
		Auth: mw.NewAuth(g),

		HealthHandler:    healthHandler(pgStore, redisCache),
		VerifyHandler:    handler.NewVerifyHandler(),
		CreateKeyHandler: handler.NewCreateKeyHandler(keySvc),
		ListKeysHandler:  handler.NewListKeysHandler(keySvc),
		GetKeyHandler:    handler.NewGetKeyHandler(keySvc),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(keySvc),
		ListTiersHandler: handler.NewListTiersHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func defaultTenantID(ctx context.Context, s store.Store) uuid.UUID {
	tenant, err := s.GetDefaultTenant(ctx)
	if err != nil {
		slog.Error("default tenant missing", "error", err)
		os.Exit(1)
	}
	return tenant.ID
}

// sweepExpiredKeys periodically flips keys past their expiry to
// status=expired. Keys past expiry are already rejected at resolve time;
// the sweep keeps listings and audits honest.
func sweepExpiredKeys(ctx context.Context, s store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireAPIKeys(ctx, time.Now().UTC())
			if err != nil {
				slog.Warn("expire api keys", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired api keys", "count", n)
			}
		}
	}
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
