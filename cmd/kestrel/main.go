// Kestrel - Batch transaction risk scoring and compliance classification.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/opensource-finance/kestrel/internal/advisory"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv(config.EnvPrefix + "_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Logging)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"strategy", cfg.Engine.Scoring.Strategy,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	scorer, err := advisory.New(cfg.Engine.Advisory, busImpl)
	if err != nil {
		slog.Error("failed to initialize advisory scorer", "error", err)
		os.Exit(1)
	}

	compiler, err := rules.NewExpressionCompiler()
	if err != nil {
		slog.Error("failed to initialize expression compiler", "error", err)
		os.Exit(1)
	}
	var sources []rules.Source
	if cfg.Engine.Rules.CatalogFile != "" {
		sources = append(sources, &rules.FileSource{Path: cfg.Engine.Rules.CatalogFile})
	}
	if cfg.Engine.Rules.UseRepositoryCatalog {
		sources = append(sources, &rules.RepositorySource{Repo: repo})
	}
	loader := rules.NewLoader(cfg.Engine.Rules, compiler, sources...)

	ruleSet, err := loader.Load(ctx)
	if err != nil {
		slog.Error("failed to load rule catalog", "error", err)
		os.Exit(1)
	}
	catalog, err := rules.NewCatalog(ruleSet)
	if err != nil {
		slog.Error("invalid rule catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("rule catalog loaded", "rules_count", catalog.Len(), "sources", len(sources))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	orchestrator, err := pipeline.New(pipeline.Options{
		Engine:     cfg.Engine,
		Catalog:    catalog,
		Repository: repo,
		Cache:      cacheImpl,
		ProfileTTL: cfg.Cache.ProfileTTL,
		Advisory:   scorer,
		Bus:        busImpl,
		Metrics:    m,
	})
	if err != nil {
		slog.Error("failed to initialize batch pipeline", "error", err)
		os.Exit(1)
	}

	var batchWorker *worker.Worker
	if cfg.Worker.Enabled {
		batchWorker = worker.NewWorker(busImpl, orchestrator)
		if err := batchWorker.Start(); err != nil {
			slog.Error("failed to start batch worker", "error", err)
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repository:   repo,
		Cache:        cacheImpl,
		Bus:          busImpl,
		Orchestrator: orchestrator,
		Loader:       loader,
		Compiler:     compiler,
		Metrics:      m,
		Gatherer:     registry,
		Version:      Version,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if batchWorker != nil {
		if err := batchWorker.Stop(); err != nil {
			slog.Error("failed to stop batch worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func setupLogger(cfg domain.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL")
	fmt.Println("  Batch risk scoring and compliance triage")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Scoring:  %s (EDD >= %d, SMR >= %d)\n",
		cfg.Engine.Scoring.Strategy, cfg.Engine.Scoring.EDDThreshold, cfg.Engine.Scoring.SMRThreshold)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyze                       - Analyze a batch of transactions")
	fmt.Println("    POST /batches/{batchId}/retry       - Finish writing an unpersisted batch")
	fmt.Println("    GET  /transactions/{id}             - Get transaction by ID")
	fmt.Println("    GET  /transactions/{id}/scorecards  - Scorecards of a transaction")
	fmt.Println("    GET  /graph/nodes/{partyId}         - Party aggregate")
	fmt.Println("    GET  /graph/nodes/{partyId}/edges   - Outgoing edges of a party")
	fmt.Println("    GET  /graph/edges/{from}/{to}       - Edge aggregate")
	fmt.Println("    GET  /rules                         - List loaded rules")
	fmt.Println("    POST /rules                         - Store an expression rule")
	fmt.Println("    POST /rules/reload                  - Rebuild the rule catalog")
	fmt.Println("    PUT  /profiles/{partyId}            - Declare a party profile")
	fmt.Println("    GET  /health                        - Health check")
	fmt.Println("    GET  /metrics                       - Prometheus metrics")
	fmt.Println()
}
