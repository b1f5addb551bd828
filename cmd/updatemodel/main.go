// Command updatemodel runs one model update: it tops up the reading archive
// from the flood-monitoring archive CSVs, refits the prediction model, and
// writes both artifacts. Intended to run from cron a few times a day.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/oxriver/flowmodel/internal/adapter/floodapi"
	"github.com/oxriver/flowmodel/internal/adapter/openmeteo"
	"github.com/oxriver/flowmodel/internal/config"
	"github.com/oxriver/flowmodel/internal/observability"
	"github.com/oxriver/flowmodel/internal/pipeline"
)

func main() {
	configFile := flag.String("config", "", "path to config file (optional; defaults and FLOWMODEL_* env apply)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	metrics := observability.NewMetrics()

	flood := floodapi.NewClient(cfg.FloodAPI.BaseURL, cfg.FloodAPI.Timeout, logger)
	weather := openmeteo.NewClient(cfg.OpenMeteo.BaseURL, cfg.OpenMeteo.EnsembleBaseURL, cfg.OpenMeteo.Timezone, cfg.OpenMeteo.Timeout, logger)

	runner := pipeline.NewModelRunner(cfg, flood, weather, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := runner.Run(ctx)
	if runErr != nil {
		logger.Error("model update failed", "error", runErr)
	}

	if cfg.Metrics.PushGateway != "" {
		if err := metrics.Push(cfg.Metrics.PushGateway, cfg.Metrics.Job); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
}
