package model

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxriver/flowmodel/internal/analysis"
	"github.com/oxriver/flowmodel/internal/series"
)

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { SetClock(nil) })
}

func TestRound(t *testing.T) {
	tests := []struct {
		name     string
		v        float64
		places   int
		expected float64
	}{
		{"six places", 0.123456789, 6, 0.123457},
		{"one place", 34.567, 1, 34.6},
		{"half away from zero", 2.25, 1, 2.3},
		{"negative", -1.2345, 2, -1.23},
		{"zero places", 3.6, 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Round(tt.v, tt.places), 1e-12)
		})
	}
}

func TestNewArchive(t *testing.T) {
	freezeClock(t, time.Date(2024, 4, 26, 6, 0, 0, 0, time.UTC))

	store := map[string]series.TimeSeries{
		"farmoor": {
			"2024-01-02T00:00:00Z": 20,
			"2024-01-01T00:00:00Z": 10,
		},
		"osney": {
			"2024-01-03T00:00:00Z": 3.1,
		},
		"empty": {},
	}

	a := NewArchive(store)

	assert.Equal(t, "2024-04-26T06:00:00Z", a.Metadata.Created)
	assert.Equal(t, "2024-01-01T00:00:00Z", a.Metadata.EarliestReading)
	assert.Equal(t, "2024-01-03T00:00:00Z", a.Metadata.LatestReading)
	assert.Equal(t, map[string]int{"farmoor": 2, "osney": 1, "empty": 0}, a.Metadata.ReadingCounts)

	require.Len(t, a.Channels["farmoor"], 2)
	assert.True(t, a.Channels["farmoor"][0].Timestamp.Before(a.Channels["farmoor"][1].Timestamp))
}

func TestRecordAssembly(t *testing.T) {
	freezeClock(t, time.Date(2024, 4, 26, 6, 0, 0, 0, time.UTC))

	rec := NewRecord("run-1")
	assert.Equal(t, "2024-04-26T06:00:00Z", rec.Updated)
	assert.Equal(t, "run-1", rec.RunID)

	t.Run("regression rounding", func(t *testing.T) {
		rec.SetRegression(analysis.Regression{
			Slope:       0.0123456789,
			Intercept:   -1.23456789,
			RSquared:    0.87654321,
			Correlation: 0.93612345,
			NSamples:    2500,
		})

		require.NotNil(t, rec.Regression)
		assert.Equal(t, 0.012346, rec.Regression.Slope)
		assert.Equal(t, -1.2346, rec.Regression.Intercept)
		assert.Equal(t, 0.8765, rec.Regression.RSquared)
		assert.Equal(t, 0.9361, rec.Regression.Correlation)
		assert.Equal(t, 2500, rec.Regression.NSamples)
	})

	t.Run("thresholds rounding", func(t *testing.T) {
		rec.SetThresholds(34.5678, 58.9123, 0.45, 0.75)

		require.NotNil(t, rec.Thresholds)
		assert.Equal(t, 34.6, rec.Thresholds.Lower)
		assert.Equal(t, 58.9, rec.Thresholds.Upper)
		assert.Equal(t, 0.45, rec.Thresholds.LowerY)
		assert.Equal(t, 0.75, rec.Thresholds.UpperY)
	})

	t.Run("decay block per channel", func(t *testing.T) {
		rec.SetDecay("farmoor", analysis.DecaySummary{
			Baseline:       3.456,
			TauMean:        27.89,
			TauMedian:      25.01,
			HalfLifeMean:   19.33,
			HalfLifeMedian: 17.34,
			NPeaks:         4,
		})

		block, ok := rec.Decay["farmoor"]
		require.True(t, ok)
		assert.Equal(t, 3.46, block.Baseline)
		assert.Equal(t, 27.9, block.TauHoursMean)
		assert.Equal(t, 25.0, block.TauHoursMedian)
		assert.Equal(t, 4, block.NPeaksAnalyzed)
	})

	t.Run("ensemble and daily forecast", func(t *testing.T) {
		rec.SetEnsemble("24h", analysis.EnsembleSummary{Mean: 4.567, P10: 0.123, P90: 12.345})
		rec.SetDailyForecast([]analysis.DailyTotal{{Date: "2024-04-26", Total: 3.14159}})

		assert.Equal(t, EnsembleBlock{Mean: 4.6, P10: 0.1, P90: 12.3}, rec.Ensemble["24h"])
		require.Len(t, rec.DailyForecast, 1)
		assert.Equal(t, 3.1, rec.DailyForecast[0].Total)
	})
}

func TestFlowTrend(t *testing.T) {
	assert.Equal(t, "increasing", FlowTrend(0.2))
	assert.Equal(t, "decreasing", FlowTrend(-0.11))
	assert.Equal(t, "level", FlowTrend(0.05))
	assert.Equal(t, "level", FlowTrend(-0.1))
}
