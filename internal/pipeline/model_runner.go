// Package pipeline orchestrates the two scheduled runs: the model update,
// which refreshes the reading archive and refits the prediction model, and
// the snapshot update, which refreshes the current-conditions artifact.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oxriver/flowmodel/internal/analysis"
	"github.com/oxriver/flowmodel/internal/archive"
	"github.com/oxriver/flowmodel/internal/config"
	"github.com/oxriver/flowmodel/internal/model"
	"github.com/oxriver/flowmodel/internal/observability"
	"github.com/oxriver/flowmodel/internal/series"
)

// ModelRunner executes one model update: fetch, merge, trim, fit, publish.
type ModelRunner struct {
	cfg     *config.Config
	flood   ArchiveFetcher
	weather WeatherFetcher
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewModelRunner creates a ModelRunner with the given sources and observability.
func NewModelRunner(cfg *config.Config, flood ArchiveFetcher, weather WeatherFetcher, logger *slog.Logger, metrics *observability.Metrics) *ModelRunner {
	return &ModelRunner{
		cfg:     cfg,
		flood:   flood,
		weather: weather,
		logger:  logger,
		metrics: metrics,
	}
}

// Run executes one complete model update. Only an unreadable archive or an
// unwritable artifact fails the run; individual fetch or fit failures degrade
// the output and are logged.
func (r *ModelRunner) Run(ctx context.Context) error {
	start := time.Now()
	runID := uuid.NewString()
	r.logger.Info("model update started", "run_id", runID)

	store, err := archive.LoadStore(r.cfg.Paths.ArchiveFile)
	if err != nil {
		return err
	}

	r.fetchArchiveDays(ctx, store)
	r.applyRetention(store)
	r.deriveDifferential(store)

	aligned := r.alignChannels(store)
	rec := model.NewRecord(runID)
	r.setDataRange(&rec, store)

	r.fitRegression(&rec, aligned)
	r.fitDecays(&rec, aligned)
	r.fitEnsemble(ctx, &rec)

	if err := archive.SaveArchive(r.cfg.Paths.ArchiveFile, model.NewArchive(store)); err != nil {
		return err
	}
	if err := archive.SaveModel(r.cfg.Paths.ModelFile, rec); err != nil {
		return err
	}

	r.metrics.RunDuration.Observe(time.Since(start).Seconds())
	r.metrics.RunSucceeded.Set(1)
	r.logger.Info("model update finished", "run_id", runID, "duration", time.Since(start))
	return nil
}

// fetchArchiveDays pulls the last FetchDays archive CSVs through a bounded
// worker pool and merges the batches into the store. The store is only
// touched under the mutex; all analysis happens after the pool drains.
func (r *ModelRunner) fetchArchiveDays(ctx context.Context, store map[string]series.TimeSeries) {
	measureIDs := r.cfg.MeasureIDs()
	today := clock.Now().UTC().Truncate(24 * time.Hour)

	days := make(chan time.Time)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < r.cfg.Fetch.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for day := range days {
				batches, err := r.flood.ArchiveDay(ctx, day, measureIDs, r.cfg.Grid.IntervalHours, r.cfg.Grid.MinuteOffset)
				if err != nil {
					r.logger.Warn("archive day fetch failed", "day", day.Format("2006-01-02"), "error", err)
					r.metrics.FetchFailures.WithLabelValues("flood_api").Inc()
					continue
				}

				mu.Lock()
				for channel, batch := range batches {
					store[channel] = series.Merge(store[channel], batch)
					r.metrics.ReadingsFetched.WithLabelValues(channel).Add(float64(len(batch)))
					r.metrics.RowsDropped.Add(float64(series.CountInvalid(batch)))
				}
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < r.cfg.Retention.FetchDays; i++ {
		select {
		case <-ctx.Done():
			close(days)
			wg.Wait()
			return
		case days <- today.AddDate(0, 0, -i):
		}
	}
	close(days)
	wg.Wait()
}

// applyRetention drops readings older than the archive horizon.
func (r *ModelRunner) applyRetention(store map[string]series.TimeSeries) {
	cutoff := clock.Now().UTC().AddDate(0, 0, -r.cfg.Retention.ArchiveDays)
	for channel, ts := range store {
		store[channel] = series.FromReadings(series.Trim(ts, cutoff, series.Ascending))
	}
}

// deriveDifferential computes the derived flow channel from the two lock
// levels. Skipped when not configured.
func (r *ModelRunner) deriveDifferential(store map[string]series.TimeSeries) {
	d := r.cfg.Differential
	if d.Upstream == "" || d.Downstream == "" {
		return
	}
	store[d.Name] = series.Differential(store[d.Upstream], store[d.Downstream], d.LockOffset)
}

// alignChannels materializes every channel ascending and snaps it to the
// sampling grid.
func (r *ModelRunner) alignChannels(store map[string]series.TimeSeries) map[string][]series.Reading {
	aligned := make(map[string][]series.Reading, len(store))
	for channel, ts := range store {
		readings := series.Trim(ts, time.Time{}, series.Ascending)
		aligned[channel] = series.AlignToGrid(readings, r.cfg.Grid.IntervalHours, r.cfg.Grid.MinuteOffset)
	}
	return aligned
}

func (r *ModelRunner) setDataRange(rec *model.Record, store map[string]series.TimeSeries) {
	meta := model.NewArchive(store).Metadata
	rec.DataRange = model.DataRange{
		Start: meta.EarliestReading,
		End:   meta.LatestReading,
	}
}

// fitRegression pairs the X channel against the differential channel and
// fits the published line. Too little overlap leaves the previous published
// regression in place by omitting the block.
func (r *ModelRunner) fitRegression(rec *model.Record, aligned map[string][]series.Reading) {
	x := r.cfg.Regression.XChannel
	y := r.cfg.Differential.Name
	if x == "" || y == "" {
		return
	}

	samples := series.Pair(aligned[x], aligned[y])
	rec.DataRange.Samples = len(samples)

	reg, err := analysis.FitRegression(samples)
	if errors.Is(err, analysis.ErrInsufficientData) {
		r.logger.Warn("regression skipped", "samples", len(samples), "error", err)
		return
	}
	if err != nil {
		r.logger.Warn("regression failed", "error", err)
		return
	}
	rec.SetRegression(reg)

	lowerX, err := reg.Invert(r.cfg.Regression.LowerThreshold)
	if err != nil {
		r.logger.Warn("threshold conversion failed", "error", err)
		return
	}
	upperX, err := reg.Invert(r.cfg.Regression.UpperThreshold)
	if err != nil {
		r.logger.Warn("threshold conversion failed", "error", err)
		return
	}
	rec.SetThresholds(lowerX, upperX, r.cfg.Regression.LowerThreshold, r.cfg.Regression.UpperThreshold)
}

// fitDecays detects peaks and fits the recession model on each configured
// channel. A channel with no accepted fits publishes the default τ.
func (r *ModelRunner) fitDecays(rec *model.Record, aligned map[string][]series.Reading) {
	for _, channel := range r.cfg.Decay.Channels {
		points := aligned[channel]
		dcfg := r.decayConfig(channel)

		peaks := analysis.FindPeaks(points, r.cfg.Decay.MinPeakValue[channel], r.cfg.Peaks.HalfWindow, r.cfg.Peaks.MinGap)
		r.metrics.PeaksDetected.WithLabelValues(channel).Add(float64(len(peaks)))

		fits := analysis.FitDecays(points, peaks, dcfg)
		r.metrics.DecayFits.WithLabelValues(channel, "accepted").Add(float64(len(fits)))
		r.metrics.DecayFits.WithLabelValues(channel, "rejected").Add(float64(len(peaks) - len(fits)))

		summary := analysis.SummariseDecays(fits, r.cfg.Decay.DefaultTauHours, recentBaseline(points, dcfg.LookbackStart))
		rec.SetDecay(channel, summary)
		r.logger.Info("decay fitted", "channel", channel, "peaks", len(peaks), "accepted", len(fits))
	}
}

func (r *ModelRunner) decayConfig(channel string) analysis.DecayConfig {
	dcfg := analysis.DefaultDecayConfig()
	if v := r.cfg.Decay.LookbackStart; v > 0 {
		dcfg.LookbackStart = v
	}
	if v := r.cfg.Decay.LookbackEnd; v > 0 {
		dcfg.LookbackEnd = v
	}
	if v := r.cfg.Decay.MaxLookahead; v > 0 {
		dcfg.MaxLookahead = v
	}
	if v, ok := r.cfg.Decay.MinRise[channel]; ok {
		dcfg.MinRise = v
	}
	return dcfg
}

// recentBaseline is the published baseline for a channel: the minimum over
// the trailing lookback window.
func recentBaseline(points []series.Reading, lookback int) float64 {
	if len(points) == 0 {
		return 0
	}
	start := len(points) - lookback
	if start < 0 {
		start = 0
	}
	minimum := points[start].Value
	for _, p := range points[start+1:] {
		if p.Value < minimum {
			minimum = p.Value
		}
	}
	return minimum
}

// fitEnsemble fetches the precipitation ensemble and publishes totals at the
// 24 h and 72 h horizons plus per-day sums in the station's local zone. A
// failed forecast fetch degrades the record rather than failing the run.
func (r *ModelRunner) fitEnsemble(ctx context.Context, rec *model.Record) {
	om := r.cfg.OpenMeteo
	ens, err := r.weather.EnsemblePrecipitation(ctx, om.Latitude, om.Longitude, om.EnsembleHours)
	if err != nil {
		r.logger.Warn("ensemble fetch failed", "error", err)
		r.metrics.FetchFailures.WithLabelValues("open_meteo").Inc()
		return
	}
	if len(ens.Members) == 0 {
		r.logger.Warn("ensemble forecast empty")
		return
	}

	rec.SetEnsemble("24h", analysis.SummariseEnsemble(analysis.MemberTotals(ens.Members, 24)))
	rec.SetEnsemble("72h", analysis.SummariseEnsemble(analysis.MemberTotals(ens.Members, 72)))

	loc, err := time.LoadLocation(om.Timezone)
	if err != nil {
		r.logger.Warn("bad forecast timezone", "timezone", om.Timezone, "error", err)
		return
	}
	rec.SetDailyForecast(analysis.DailyTotals(ens.Times, analysis.HourlyMeans(ens.Members), loc))
}
