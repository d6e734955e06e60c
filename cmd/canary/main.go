package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fleetwatch/canary/internal/corpus"
	"github.com/fleetwatch/canary/internal/fleet"
	"github.com/fleetwatch/canary/internal/infrastructure/config"
	"github.com/fleetwatch/canary/internal/infrastructure/logging"
	"github.com/fleetwatch/canary/internal/infrastructure/monitoring"
	"github.com/fleetwatch/canary/internal/infrastructure/server"
	"github.com/fleetwatch/canary/internal/probe"
	"github.com/fleetwatch/canary/internal/scheduler"
	"github.com/fleetwatch/canary/internal/store"
)

func main() {
	interval := flag.Duration("interval", 0, "Probe interval (overrides PROBE_INTERVAL)")
	dbPath := flag.String("db", "", "SQLite path (overrides STORE_PATH)")
	opsPort := flag.String("ops-port", "", "Ops server port (overrides OPS_PORT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *interval > 0 {
		cfg.Scheduler.Interval = *interval
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *opsPort != "" {
		cfg.Ops.Port = *opsPort
	}

	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		l, err := logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			OutputPaths: []string{"stdout"},
		})
		if err != nil {
			log.Fatalf("Failed to build logger: %v", err)
		}
		logger = l
	}
	defer logger.Sync()

	logger.Info("Starting fleet canary",
		zap.String("directory", cfg.Directory.BaseURL),
		zap.String("template", cfg.Directory.Template),
		zap.Duration("interval", cfg.Scheduler.Interval),
	)

	metrics := monitoring.NewMetrics(nil)

	prompts, err := corpus.Load(cfg.Corpus.TextPath, cfg.Corpus.ImagePath)
	if err != nil {
		logger.Fatal("Failed to load prompt corpus", zap.Error(err))
	}
	logger.Info("Prompt corpus loaded",
		zap.Int("conversations", prompts.Conversations()),
		zap.Int("images", prompts.Images()),
	)

	db, err := store.Open(store.Config{
		Path:     cfg.Store.Path,
		PoolSize: cfg.Store.PoolSize,
	})
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer db.Close()

	directory := fleet.NewDirectory(cfg.Directory.BaseURL, fleet.WithTimeout(cfg.Directory.Timeout))

	endpoints := probe.Endpoints{
		probe.TaskChat: cfg.Probe.ChatURL,
	}
	if err := endpoints.Validate(); err != nil {
		logger.Fatal("Invalid probe endpoints", zap.Error(err))
	}

	client := probe.NewClient(cfg.Probe.APIKey, cfg.Probe.RatePerMin)
	driver := probe.NewDriver(client, prompts, endpoints, cfg.Directory.Template, logger, metrics)

	loop := scheduler.NewLoop(
		directory,
		driver,
		db,
		cfg.Scheduler.Interval,
		cfg.Probe.CycleTimeout,
		logger,
		metrics,
	)

	var ops *server.Ops
	if cfg.Ops.Enabled {
		ops = server.NewOps(cfg.Ops.Port, metrics, nil, logger)
		go func() {
			if err := ops.Run(); err != nil {
				logger.Error("Ops server failed", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop.Run(ctx)

	if ops != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ops.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Ops server shutdown error", zap.Error(err))
		}
	}
	logger.Info("Shutdown complete")
}
