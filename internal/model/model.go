// Package model assembles the published artifacts: the per-channel reading
// archive and the prediction model record. Every numeric output is rounded
// to a fixed, documented precision so repeated runs on identical input
// produce byte-identical JSON.
package model

import (
	"math"
	"time"

	"github.com/oxriver/flowmodel/internal/analysis"
	"github.com/oxriver/flowmodel/internal/series"
)

// Rounding precision per field, in decimal places.
const (
	SlopePlaces       = 6
	InterceptPlaces   = 4
	RSquaredPlaces    = 4
	CorrelationPlaces = 4
	ThresholdPlaces   = 1
	DecayPlaces       = 1
	BaselinePlaces    = 2
	EnsemblePlaces    = 1
)

// Archive is the persisted form of the reading store: ascending per-channel
// reading lists plus summary metadata.
type Archive struct {
	Metadata ArchiveMetadata             `json:"metadata"`
	Channels map[string][]series.Reading `json:"channels"`
}

// ArchiveMetadata summarizes the archive contents.
type ArchiveMetadata struct {
	Created         string         `json:"created"`
	EarliestReading string         `json:"earliest_reading,omitempty"`
	LatestReading   string         `json:"latest_reading,omitempty"`
	ReadingCounts   map[string]int `json:"reading_counts"`
}

// NewArchive materializes the store ascending and computes metadata.
func NewArchive(store map[string]series.TimeSeries) Archive {
	channels := make(map[string][]series.Reading, len(store))
	counts := make(map[string]int, len(store))
	var earliest, latest time.Time

	for name, ts := range store {
		readings := series.Trim(ts, time.Time{}, series.Ascending)
		channels[name] = readings
		counts[name] = len(readings)
		if len(readings) == 0 {
			continue
		}
		first := readings[0].Timestamp
		last := readings[len(readings)-1].Timestamp
		if earliest.IsZero() || first.Before(earliest) {
			earliest = first
		}
		if last.After(latest) {
			latest = last
		}
	}

	meta := ArchiveMetadata{
		Created:       series.CanonicalTimestamp(clock.Now()),
		ReadingCounts: counts,
	}
	if !earliest.IsZero() {
		meta.EarliestReading = series.CanonicalTimestamp(earliest)
		meta.LatestReading = series.CanonicalTimestamp(latest)
	}
	return Archive{Metadata: meta, Channels: channels}
}

// Record is the prediction model artifact.
type Record struct {
	Updated       string                   `json:"updated"`
	RunID         string                   `json:"run_id,omitempty"`
	DataRange     DataRange                `json:"data_range"`
	Regression    *RegressionBlock         `json:"regression,omitempty"`
	Thresholds    *ThresholdBlock          `json:"thresholds,omitempty"`
	Decay         map[string]DecayBlock    `json:"decay,omitempty"`
	Ensemble      map[string]EnsembleBlock `json:"ensemble,omitempty"`
	DailyForecast []analysis.DailyTotal    `json:"daily_forecast,omitempty"`
}

// DataRange describes the observations behind the model.
type DataRange struct {
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
	Samples int    `json:"samples"`
}

// RegressionBlock is the published linear model. Slope is rounded to 6
// places, the remaining statistics to 4.
type RegressionBlock struct {
	Slope       float64 `json:"slope"`
	Intercept   float64 `json:"intercept"`
	RSquared    float64 `json:"r_squared"`
	Correlation float64 `json:"correlation"`
	NSamples    int     `json:"n_samples"`
}

// ThresholdBlock carries the calibration levels in y units and their
// crossings converted to x units via the inverted regression, rounded to 1
// place.
type ThresholdBlock struct {
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	LowerY float64 `json:"lower_y"`
	UpperY float64 `json:"upper_y"`
}

// DecayBlock is the published recession summary for one channel, rounded to
// 1 place (baseline to 2).
type DecayBlock struct {
	Baseline            float64 `json:"baseline"`
	TauHoursMean        float64 `json:"tau_hours_mean"`
	TauHoursMedian      float64 `json:"tau_hours_median"`
	HalfLifeHoursMean   float64 `json:"half_life_hours_mean"`
	HalfLifeHoursMedian float64 `json:"half_life_hours_median"`
	NPeaksAnalyzed      int     `json:"n_peaks_analyzed"`
}

// EnsembleBlock is the published forecast spread for one horizon, rounded to
// 1 place.
type EnsembleBlock struct {
	Mean float64 `json:"mean"`
	P10  float64 `json:"p10"`
	P90  float64 `json:"p90"`
}

// NewRecord starts a model record stamped with the current time and run ID.
func NewRecord(runID string) Record {
	return Record{
		Updated: series.CanonicalTimestamp(clock.Now()),
		RunID:   runID,
		Decay:   make(map[string]DecayBlock),
	}
}

// SetRegression attaches a fitted regression.
func (r *Record) SetRegression(reg analysis.Regression) {
	r.Regression = &RegressionBlock{
		Slope:       Round(reg.Slope, SlopePlaces),
		Intercept:   Round(reg.Intercept, InterceptPlaces),
		RSquared:    Round(reg.RSquared, RSquaredPlaces),
		Correlation: Round(reg.Correlation, CorrelationPlaces),
		NSamples:    reg.NSamples,
	}
}

// SetThresholds attaches the converted calibration levels.
func (r *Record) SetThresholds(lowerX, upperX, lowerY, upperY float64) {
	r.Thresholds = &ThresholdBlock{
		Lower:  Round(lowerX, ThresholdPlaces),
		Upper:  Round(upperX, ThresholdPlaces),
		LowerY: lowerY,
		UpperY: upperY,
	}
}

// SetDecay attaches one channel's recession summary.
func (r *Record) SetDecay(channel string, s analysis.DecaySummary) {
	r.Decay[channel] = DecayBlock{
		Baseline:            Round(s.Baseline, BaselinePlaces),
		TauHoursMean:        Round(s.TauMean, DecayPlaces),
		TauHoursMedian:      Round(s.TauMedian, DecayPlaces),
		HalfLifeHoursMean:   Round(s.HalfLifeMean, DecayPlaces),
		HalfLifeHoursMedian: Round(s.HalfLifeMedian, DecayPlaces),
		NPeaksAnalyzed:      s.NPeaks,
	}
}

// SetEnsemble attaches one horizon's forecast spread, keyed like "24h".
func (r *Record) SetEnsemble(horizon string, s analysis.EnsembleSummary) {
	if r.Ensemble == nil {
		r.Ensemble = make(map[string]EnsembleBlock)
	}
	r.Ensemble[horizon] = EnsembleBlock{
		Mean: Round(s.Mean, EnsemblePlaces),
		P10:  Round(s.P10, EnsemblePlaces),
		P90:  Round(s.P90, EnsemblePlaces),
	}
}

// SetDailyForecast attaches the multi-day forecast totals, rounded to 1 place.
func (r *Record) SetDailyForecast(totals []analysis.DailyTotal) {
	rounded := make([]analysis.DailyTotal, len(totals))
	for i, d := range totals {
		rounded[i] = analysis.DailyTotal{Date: d.Date, Total: Round(d.Total, EnsemblePlaces)}
	}
	r.DailyForecast = rounded
}

// Round rounds v half-away-from-zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
