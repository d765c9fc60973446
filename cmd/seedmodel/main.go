// Command seedmodel registers a model version so the API can accept
// submissions. Run once per deployment or after weights change; the latest
// seeded version is the one new jobs bind to.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/xxjiinn/medical-inference-platform/internal/adapter/observability"
	"github.com/xxjiinn/medical-inference-platform/internal/adapter/repo/postgres"
	"github.com/xxjiinn/medical-inference-platform/internal/config"
)

func main() {
	name := flag.String("name", "densenet121-res224-all", "model version name")
	weights := flag.String("weights", "torchxrayvision://densenet121-res224-all", "weights reference")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	m, err := postgres.NewModelRepo(pool).Seed(ctx, *name, *weights)
	if err != nil {
		slog.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("model seeded", slog.Int64("id", m.ID), slog.String("name", m.Name), slog.String("weights", m.WeightsRef))
}
