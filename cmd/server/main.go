// Command server starts the inference platform HTTP API.
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

	httpserver "github.com/xxjiinn/medical-inference-platform/internal/adapter/httpserver"
	"github.com/xxjiinn/medical-inference-platform/internal/adapter/observability"
	"github.com/xxjiinn/medical-inference-platform/internal/adapter/queue/redisq"
	"github.com/xxjiinn/medical-inference-platform/internal/adapter/repo/postgres"
	"github.com/xxjiinn/medical-inference-platform/internal/app"
	"github.com/xxjiinn/medical-inference-platform/internal/config"
	"github.com/xxjiinn/medical-inference-platform/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	queue, err := redisq.New(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = queue.Close() }()

	modelRepo := postgres.NewModelRepo(pool)
	jobRepo := postgres.NewJobRepo(pool)
	resultRepo := postgres.NewResultRepo(pool)
	statsRepo := postgres.NewStatsRepo(pool)

	srv := httpserver.NewServer(
		usecase.NewSubmitService(modelRepo, jobRepo, resultRepo, queue),
		usecase.NewStatusService(jobRepo, resultRepo),
		usecase.NewOpsService(jobRepo, statsRepo, queue),
		cfg.MaxUploadBytes(),
	)

	ready := app.Readiness{DB: pool, Redis: queue}.Handler()
	handler := app.BuildRouter(cfg, srv, ready)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
