package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/RosterImport/internal/config"
	"github.com/JonMunkholm/RosterImport/internal/core"
	_ "github.com/JonMunkholm/RosterImport/internal/core/entities" // Register all entities
	"github.com/JonMunkholm/RosterImport/internal/logging"
	"github.com/JonMunkholm/RosterImport/internal/metrics"
	"github.com/JonMunkholm/RosterImport/internal/persistence/memory"
	"github.com/JonMunkholm/RosterImport/internal/persistence/postgres"
	"github.com/JonMunkholm/RosterImport/internal/persistence/sqlite"
	"github.com/JonMunkholm/RosterImport/internal/web"
	"github.com/joho/godotenv"
)

// recordStore is what every driver provides: record writes and the audit log.
type recordStore interface {
	core.Persister
	core.AuditSink
}

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"session_ttl", cfg.Import.SessionTTL,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open record store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	rec := metrics.New()

	service, err := core.NewService(core.Options{
		Catalog:           core.DefaultCatalog(),
		Store:             core.NewMemorySessionStore(cfg.Import.SessionTTL, core.WithMaxSessions(cfg.Import.MaxSessions)),
		Persister:         store,
		Audit:             store,
		Recorder:          rec,
		Limiter:           core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		ParseTimeout:      cfg.Import.ParseTimeout,
		CommitTimeout:     cfg.Import.CommitTimeout,
		ValidationWorkers: cfg.Import.ValidationWorkers,
		MaxRowsPerSheet:   cfg.Import.MaxRowsPerSheet,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	entities := service.Entities()
	slog.Info("entities registered", "count", len(entities))
	for _, def := range entities {
		slog.Debug("entity", "type", def.Type, "sheet", def.DisplayName, "fields", len(def.Fields))
	}

	server := web.NewServer(service, cfg, rec.Handler())

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartSessionSweeper(jobCtx, cfg.Import.SweepInterval)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for running uploads and commits
		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
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
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

// openStore connects the configured record store. The returned func
// releases it.
func openStore(ctx context.Context, cfg *config.Config) (recordStore, func(), error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		slog.Info("connected to database")
		return store, pool.Close, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("opened sqlite database", "path", cfg.SQLite.Path)
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("close sqlite database", "error", err)
			}
		}, nil

	default:
		slog.Warn("using in-memory record store; imported data is lost on restart")
		return memory.New(), func() {}, nil
	}
}
