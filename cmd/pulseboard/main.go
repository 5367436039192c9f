package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulseboard-labs/pulseboard/internal/analytics"
	"github.com/pulseboard-labs/pulseboard/internal/cache"
	"github.com/pulseboard-labs/pulseboard/internal/closeout"
	"github.com/pulseboard-labs/pulseboard/internal/core/categories"
	corecfg "github.com/pulseboard-labs/pulseboard/internal/core/config"
	"github.com/pulseboard-labs/pulseboard/internal/core/docstore"
	"github.com/pulseboard-labs/pulseboard/internal/core/storage/postgres"
	"github.com/pulseboard-labs/pulseboard/internal/migrations"
	"github.com/pulseboard-labs/pulseboard/internal/server"
	"github.com/pulseboard-labs/pulseboard/internal/session"
)

func main() {
	configPath := flag.String("config", "pulseboard.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Load question-category definitions
	registry, err := categories.Load(cfg.Categories.Path)
	if err != nil {
		slog.Error("Failed to load category definitions", "error", err)
		os.Exit(1)
	}

	// 3. Initialize the document store
	var store docstore.Store
	var pinger docstore.Pinger

	switch cfg.Database.Type {
	case "memory":
		slog.Warn("Running with in-memory document store; data will not survive a restart")
		mem := docstore.NewMemoryStore()
		store, pinger = mem, mem
	default:
		adapter, err := postgres.NewAdapter(
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
		)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer adapter.Close()

		if err := migrations.RunMigrations(adapter.DB(), cfg.Database.AutoMigrate); err != nil {
			slog.Error("Failed to run database migrations", "error", err)
			os.Exit(1)
		}
		store, pinger = adapter, adapter
	}

	// 4. Wire the aggregation core
	sessions := session.NewRepository(store)
	aggregator := cache.NewAggregator(store)
	rebuilder := cache.NewRebuilder(aggregator, sessions, cfg.Cache.RebuildWorkers)
	reader := cache.NewReader(store)

	// 5. Services
	closeoutSvc := closeout.NewService(store, sessions, aggregator, cfg.Server.MaxBodySizeMB)
	analyticsSvc := analytics.NewService(reader, rebuilder, registry)

	// 6. HTTP server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), pinger, cfg.Server.Mode)
	closeoutSvc.RegisterRoutes(srv.Engine)
	analyticsSvc.RegisterRoutes(srv.Engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
