// Command worker runs the batch inference pool: a supervisor keeps
// WORKER_COUNT workers collecting and executing micro-batches, restarts
// crashed workers, and periodically recovers stuck jobs.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xxjiinn/medical-inference-platform/internal/adapter/observability"
	"github.com/xxjiinn/medical-inference-platform/internal/adapter/predictor/remote"
	"github.com/xxjiinn/medical-inference-platform/internal/adapter/predictor/stub"
	"github.com/xxjiinn/medical-inference-platform/internal/adapter/queue/redisq"
	"github.com/xxjiinn/medical-inference-platform/internal/adapter/repo/postgres"
	"github.com/xxjiinn/medical-inference-platform/internal/config"
	"github.com/xxjiinn/medical-inference-platform/internal/domain"
	"github.com/xxjiinn/medical-inference-platform/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Expose worker metrics on a dedicated port so Prometheus can scrape
	// the job pipeline separately from the API.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker pool",
		slog.String("env", cfg.AppEnv),
		slog.Int("workers", cfg.WorkerCount),
		slog.String("engine", cfg.InferenceEngine))

	pool, err := postgres.NewPool(context.Background(), cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	queue, err := redisq.New(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = queue.Close() }()

	newPredictor := func() domain.Predictor {
		if cfg.InferenceEngine == "remote" {
			return remote.New(cfg.InferenceURL, cfg.InferenceDevice)
		}
		return stub.New(cfg.InferenceDevice)
	}

	sup := &worker.Supervisor{
		Jobs:         postgres.NewJobRepo(pool),
		Results:      postgres.NewResultRepo(pool),
		Queue:        queue,
		NewPredictor: newPredictor,

		WorkerCount:   cfg.WorkerCount,
		PerJobTimeout: cfg.InferenceTimeout,
		BatchWindow:   cfg.BatchWindow(),
		BatchMaxSize:  cfg.BatchMaxSize,
		MaxRetries:    cfg.MaxRetries,
		Engine:        cfg.InferenceEngine,

		RecoveryInterval:     cfg.RecoveryInterval,
		StuckInProgressAfter: cfg.StuckInProgressAfter,
		StuckQueuedAfter:     cfg.StuckQueuedAfter,
		DrainTimeout:         cfg.WorkerDrainTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := sup.Run(ctx); err != nil {
		slog.Warn("supervisor exited", slog.Any("error", err))
		os.Exit(1)
	}
}
