// Command fetchcurrent runs one snapshot update: latest lock levels, derived
// flow, rainfall, weather forecast, rowing flags, and short per-channel
// histories, written to the current-conditions artifact. Intended to run from
// cron every few minutes.
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
	"github.com/oxriver/flowmodel/internal/adapter/ourcs"
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
	flags := ourcs.NewClient(cfg.OURCS.BaseURL, cfg.OURCS.Timeout, logger)

	runner := pipeline.NewCurrentRunner(cfg, flood, weather, flags, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := runner.Run(ctx)
	if runErr != nil {
		logger.Error("snapshot update failed", "error", runErr)
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
