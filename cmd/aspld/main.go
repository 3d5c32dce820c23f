// Package main wires together the article gateway service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aspl-project/aspl/internal/api"
	"github.com/aspl-project/aspl/internal/cache"
	"github.com/aspl-project/aspl/internal/clock/system"
	"github.com/aspl-project/aspl/internal/config"
	"github.com/aspl-project/aspl/internal/coordinator"
	"github.com/aspl-project/aspl/internal/extract"
	"github.com/aspl-project/aspl/internal/id/uuid"
	"github.com/aspl-project/aspl/internal/logging"
	"github.com/aspl-project/aspl/internal/metrics"
	"github.com/aspl-project/aspl/internal/monitor"
	"github.com/aspl-project/aspl/internal/pipeline"
	"github.com/aspl-project/aspl/internal/pool"
	"github.com/aspl-project/aspl/internal/preprocess"
	"github.com/aspl-project/aspl/internal/render"
	"github.com/aspl-project/aspl/internal/schema"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	var store cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		redisStore, err := cache.NewRedisStore(cfg.Cache.RedisURL, clock)
		if err != nil {
			logger.Fatal("redis store init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := redisStore.Close(); closeErr != nil {
				logger.Warn("redis close failed", zap.Error(closeErr))
			}
		}()
		store = redisStore
	default:
		store = cache.NewMemoryStore(clock)
	}

	renderer, err := render.New(render.Config{
		UserAgent:        cfg.Render.UserAgent,
		ProbeTimeout:     time.Duration(cfg.Render.ProbeTimeoutSec) * time.Second,
		HeadlessEnabled:  cfg.Render.HeadlessEnabled,
		MaxHeadless:      cfg.Render.HeadlessParallel,
		NavTimeout:       time.Duration(cfg.Render.NavTimeoutSec) * time.Second,
		PerDomainRPS:     cfg.Render.PerDomainRPS,
		PerDomainBurst:   cfg.Render.PerDomainBurst,
		PromoteThreshold: cfg.Render.PromotionThreshold,
	}, logger.Named("render"))
	if err != nil {
		logger.Fatal("renderer init failed", zap.Error(err))
	}
	defer renderer.Close()

	policy := pipeline.DefaultPolicy()
	policy.Render = pipeline.StagePolicy{
		MaxAttempts: cfg.Pipeline.RenderAttempts,
		Timeout:     time.Duration(cfg.Pipeline.RenderTimeoutSec) * time.Second,
	}
	policy.Extract = pipeline.StagePolicy{
		MaxAttempts: cfg.Pipeline.ExtractAttempts,
		Timeout:     time.Duration(cfg.Pipeline.ExtractTimeoutSec) * time.Second,
	}
	policy.BackoffBase = time.Duration(cfg.Pipeline.BackoffInitialMs) * time.Millisecond
	policy.BackoffMax = time.Duration(cfg.Pipeline.BackoffMaxMs) * time.Millisecond
	policy.OverallBudget = cfg.OverallBudget()
	policy.CacheTTL = cfg.CacheTTL()

	controller := pipeline.New(
		renderer,
		preprocess.New(),
		extract.NewHeuristic(),
		extract.NewRecognizer(),
		schema.New(cfg.Pipeline.MinWordCount),
		store,
		clock,
		policy,
		logger.Named("pipeline"),
	)

	workerPool := pool.New(cfg.Pool.Workers, cfg.Pool.QueueDepth, logger.Named("pool"))
	coord := coordinator.New(store, controller, workerPool, clock, logger.Named("coordinator"))

	webhooks := monitor.NewWebhookNotifier(
		&http.Client{},
		clock,
		idGen,
		time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second,
		logger.Named("webhook"),
	)
	mon := monitor.New(coord, store, clock, idGen, webhooks, monitor.Config{
		Interval:  time.Duration(cfg.Monitor.IntervalSeconds) * time.Second,
		SourceTTL: time.Duration(cfg.Monitor.SourceTTLSeconds) * time.Second,
		MaxEvents: cfg.Monitor.MaxEvents,
	}, logger.Named("monitor"))

	apiServer := api.NewServer(coord, mon, webhooks, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("worker pool started", zap.Int("workers", cfg.Pool.Workers))
		workerPool.Run(ctx)
	}()

	go func() {
		logger.Info("change monitor started",
			zap.Int("interval_seconds", cfg.Monitor.IntervalSeconds))
		mon.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
