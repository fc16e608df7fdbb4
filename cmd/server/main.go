package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/CatalogLoader/internal/config"
	"github.com/JonMunkholm/CatalogLoader/internal/core"
	"github.com/JonMunkholm/CatalogLoader/internal/database"
	"github.com/JonMunkholm/CatalogLoader/internal/logging"
	"github.com/JonMunkholm/CatalogLoader/internal/storage"
	"github.com/JonMunkholm/CatalogLoader/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"bucket", cfg.Storage.BucketURL,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	// Open the chunk store bucket
	chunks, err := storage.Open(ctx, cfg.Storage.BucketURL)
	if err != nil {
		slog.Error("failed to open storage bucket", "error", err)
		os.Exit(1)
	}
	defer chunks.Close()

	// Choose persistence: PostgreSQL when DATABASE_URL is set, else
	// in-memory stores for local development.
	var (
		sessions core.SessionStore
		catalog  core.CatalogStore
		runs     core.RunStore
		assets   core.AssetStore
	)
	if cfg.Database.URL != "" {
		pool, err := openPool(ctx, cfg)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		sessions = database.NewSessionStore(pool)
		catalog = database.NewCatalogStore(pool)
		runs = database.NewRunStore(pool)
		assets = database.NewAssetStore(pool)
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory stores")
		sessions = core.NewMemorySessionStore()
		catalog = core.NewMemoryCatalogStore()
		runs = core.NewMemoryRunStore()
		assets = core.NewMemoryAssetStore()
	}

	// Wire the engines
	uploads := core.NewUploadEngine(sessions, chunks)
	linker := core.NewAssetLinker(sessions, catalog, assets, chunks, core.ScaleImage)
	imports := core.NewImportEngine(catalog, runs, linker)
	limiter := core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)

	server := web.NewServer(cfg, uploads, imports, linker, limiter, catalog, runs)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active imports to complete (with timeout)
		if active := limiter.ActiveCount(); active > 0 {
			slog.Info("waiting for imports to complete", "active", active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openPool connects to PostgreSQL and verifies the connection.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	return pool, nil
}
