package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/trackstats/internal/audit"
	"github.com/JonMunkholm/trackstats/internal/config"
	"github.com/JonMunkholm/trackstats/internal/core"
	"github.com/JonMunkholm/trackstats/internal/logging"
	"github.com/JonMunkholm/trackstats/internal/metrics"
	"github.com/JonMunkholm/trackstats/internal/web"
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
		"base_dir", cfg.Data.BaseDir,
		"reload_max_concurrent", cfg.Reload.MaxConcurrent,
		"reload_interval", cfg.Reload.Interval,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"audit_database", cfg.Database.URL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openAuditStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open audit store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	m := metrics.New(nil)

	service, err := core.NewService(core.ServiceConfig{
		BaseDir:     cfg.Data.BaseDir,
		DefaultFile: cfg.Data.DefaultFile,
		UpdateFile:  cfg.Data.UpdateFile,
		Loader: core.LoaderConfig{
			MaxFileSize:     cfg.Data.MaxFileSize,
			ArtistBlacklist: cfg.Data.ArtistBlacklist,
		},
		MaxConcurrentReloads: cfg.Reload.MaxConcurrent,
		ReloadWait:           cfg.Reload.MaxWaitTime,
		ReloadTimeout:        cfg.Reload.Timeout,
		Audit:                store,
		Metrics:              m,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	// A missing or broken default file is not fatal; data endpoints report
	// "Data not loaded" until a reload succeeds.
	if ds, err := service.LoadInitial(ctx); err != nil {
		slog.Warn("initial dataset not loaded", "file", cfg.Data.DefaultFile, "error", err)
	} else {
		slog.Info("initial dataset loaded", "rows", ds.Len(), "source", ds.Source)
	}

	server := web.NewServer(service, web.Options{
		Server:    cfg.Server,
		Security:  cfg.Security,
		RateLimit: cfg.Rate,
		WebSocket: cfg.WebSocket,
		Metrics:   m,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server starting", "addr", cfg.Server.Addr())
		return server.Start()
	})

	g.Go(func() error {
		server.Run(gctx)
		return nil
	})

	g.Go(func() error {
		service.StartReloadScheduler(gctx, cfg.Reload.Interval)
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Let in-flight reloads finish so their audit entries are written
		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for reloads to complete", "active", status.Active)
			if err := service.WaitForReloads(shutdownCtx); err != nil {
				slog.Warn("reloads did not complete in time", "error", err)
			} else {
				slog.Info("all reloads completed")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server stopped", "error", err)
		closeStore()
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openAuditStore connects to PostgreSQL when a database URL is configured and
// falls back to an in-memory history otherwise.
func openAuditStore(ctx context.Context, cfg config.DatabaseConfig) (audit.Store, func(), error) {
	if cfg.URL == "" {
		slog.Info("no DATABASE_URL configured, keeping reload history in memory")
		return audit.NewMemoryStore(0), func() {}, nil
	}

	pool, err := audit.NewPool(ctx, audit.PoolConfig{
		URL:             cfg.URL,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
	})
	if err != nil {
		return nil, nil, err
	}

	store := audit.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to audit database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to audit database")
	}

	return store, pool.Close, nil
}
