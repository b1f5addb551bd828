package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/oxriver/flowmodel/internal/archive"
	"github.com/oxriver/flowmodel/internal/config"
	"github.com/oxriver/flowmodel/internal/model"
	"github.com/oxriver/flowmodel/internal/observability"
	"github.com/oxriver/flowmodel/internal/series"
)

// CurrentRunner executes one snapshot update: latest lock levels, derived
// flow, rainfall, forecast, flags, and short per-channel histories.
type CurrentRunner struct {
	cfg     *config.Config
	flood   LiveFetcher
	weather WeatherFetcher
	flags   FlagFetcher
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewCurrentRunner creates a CurrentRunner with the given sources and
// observability.
func NewCurrentRunner(cfg *config.Config, flood LiveFetcher, weather WeatherFetcher, flags FlagFetcher, logger *slog.Logger, metrics *observability.Metrics) *CurrentRunner {
	return &CurrentRunner{
		cfg:     cfg,
		flood:   flood,
		weather: weather,
		flags:   flags,
		logger:  logger,
		metrics: metrics,
	}
}

// Run executes one snapshot update. Each section falls back to the previous
// snapshot when its fetch fails; only an unwritable artifact fails the run.
func (r *CurrentRunner) Run(ctx context.Context) error {
	start := time.Now()
	r.logger.Info("snapshot update started")

	prev, havePrev, err := archive.LoadCurrent(r.cfg.Paths.CurrentFile)
	if err != nil {
		r.logger.Warn("previous snapshot unreadable, starting fresh", "error", err)
		havePrev = false
	}

	snap := model.NewCurrentConditions()
	r.fetchLocks(ctx, &snap, prev, havePrev)
	r.fetchHistories(ctx, &snap, prev, havePrev)
	r.deriveFlow(&snap)
	r.fetchRainfall(ctx, &snap, prev, havePrev)
	r.fetchForecast(ctx, &snap, prev, havePrev)
	r.fetchFlags(ctx, &snap, prev, havePrev)

	if err := archive.SaveCurrent(r.cfg.Paths.CurrentFile, snap); err != nil {
		return err
	}

	r.metrics.RunDuration.Observe(time.Since(start).Seconds())
	r.metrics.RunSucceeded.Set(1)
	r.logger.Info("snapshot update finished", "duration", time.Since(start))
	return nil
}

// fetchLocks reads the latest level at each level channel's station.
func (r *CurrentRunner) fetchLocks(ctx context.Context, snap *model.CurrentConditions, prev model.CurrentConditions, havePrev bool) {
	for _, ch := range r.cfg.Channels {
		if ch.Kind != "level" || ch.StationID == "" {
			continue
		}

		reading, err := r.flood.LatestLevel(ctx, ch.StationID, ch.Qualifier)
		if err != nil {
			r.logger.Warn("lock level fetch failed", "channel", ch.Name, "error", err)
			r.metrics.FetchFailures.WithLabelValues("flood_api").Inc()
			if havePrev {
				if lock, ok := prev.Locks[ch.Name]; ok {
					snap.Locks[ch.Name] = lock
				}
			}
			continue
		}

		level := reading.Value
		snap.Locks[ch.Name] = model.LockLevel{
			Level:     &level,
			Timestamp: series.CanonicalTimestamp(reading.Timestamp),
		}
	}
}

// fetchHistories pulls a short newest-first reading history per channel for
// the website's sparkline charts.
func (r *CurrentRunner) fetchHistories(ctx context.Context, snap *model.CurrentConditions, prev model.CurrentConditions, havePrev bool) {
	since := clock.Now().UTC().AddDate(0, 0, -r.cfg.Retention.HistoryDays)

	for _, ch := range r.cfg.Channels {
		batch, err := r.flood.ReadingsSince(ctx, ch.MeasureID, since)
		if err != nil {
			r.logger.Warn("history fetch failed", "channel", ch.Name, "error", err)
			r.metrics.FetchFailures.WithLabelValues("flood_api").Inc()
			if havePrev {
				snap.Histories[ch.Name] = prev.Histories[ch.Name]
			}
			continue
		}

		ts := series.Merge(nil, batch)
		r.metrics.ReadingsFetched.WithLabelValues(ch.Name).Add(float64(len(ts)))
		r.metrics.RowsDropped.Add(float64(series.CountInvalid(batch)))
		snap.Histories[ch.Name] = series.Trim(ts, since, series.Descending)
	}
}

// deriveFlow computes the current flow picture from the fetched level
// histories: raw differential, offset-corrected flow, the flow one grid
// interval ago, and the trend between them.
func (r *CurrentRunner) deriveFlow(snap *model.CurrentConditions) {
	d := r.cfg.Differential
	if d.Upstream == "" || d.Downstream == "" {
		return
	}

	up := series.FromReadings(snap.Histories[d.Upstream])
	down := series.FromReadings(snap.Histories[d.Downstream])
	flow := series.Differential(up, down, d.LockOffset)

	latest, ok := series.Latest(flow)
	if !ok {
		return
	}

	flowNow := latest.Value
	diff := flowNow + d.LockOffset
	snap.Flow.Flow = &flowNow
	snap.Flow.Differential = &diff

	interval := time.Duration(r.cfg.Grid.IntervalHours) * time.Hour
	if earlier, ok := flow[series.CanonicalTimestamp(latest.Timestamp.Add(-interval))]; ok {
		snap.Flow.Flow2hAgo = &earlier
		snap.Flow.Trend = model.FlowTrend(flowNow - earlier)
	}
}

// fetchRainfall accumulates nearby gauge rainfall over 24 hours and 7 days.
func (r *CurrentRunner) fetchRainfall(ctx context.Context, snap *model.CurrentConditions, prev model.CurrentConditions, havePrev bool) {
	om := r.cfg.OpenMeteo
	now := clock.Now().UTC()

	windows := []struct {
		window time.Duration
		dest   *float64
		fall   float64
	}{
		{24 * time.Hour, &snap.Rainfall24h, prev.Rainfall24h},
		{7 * 24 * time.Hour, &snap.Rainfall7d, prev.Rainfall7d},
	}
	for _, w := range windows {
		total, err := r.flood.Rainfall(ctx, om.Latitude, om.Longitude, r.cfg.Rainfall.RadiusKm, r.cfg.Rainfall.MaxStations, w.window, now)
		if err != nil {
			r.logger.Warn("rainfall fetch failed", "window", w.window, "error", err)
			r.metrics.FetchFailures.WithLabelValues("flood_api").Inc()
			if havePrev {
				*w.dest = w.fall
			}
			continue
		}
		*w.dest = total
	}
}

func (r *CurrentRunner) fetchForecast(ctx context.Context, snap *model.CurrentConditions, prev model.CurrentConditions, havePrev bool) {
	om := r.cfg.OpenMeteo
	hours, err := r.weather.Forecast(ctx, om.Latitude, om.Longitude, om.ForecastHours)
	if err != nil {
		r.logger.Warn("forecast fetch failed", "error", err)
		r.metrics.FetchFailures.WithLabelValues("open_meteo").Inc()
		if havePrev {
			snap.WeatherForecast = prev.WeatherForecast
		}
		return
	}
	snap.WeatherForecast = hours
}

func (r *CurrentRunner) fetchFlags(ctx context.Context, snap *model.CurrentConditions, prev model.CurrentConditions, havePrev bool) {
	for _, reach := range r.cfg.OURCS.Reaches {
		flag, err := r.flags.FlagStatus(ctx, reach)
		if err != nil {
			r.logger.Warn("flag fetch failed", "reach", reach, "error", err)
			r.metrics.FetchFailures.WithLabelValues("ourcs").Inc()
			if havePrev {
				if f, ok := prev.Flags[reach]; ok {
					snap.Flags[reach] = f
				}
			}
			continue
		}
		snap.Flags[reach] = flag
	}
}
