package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxriver/flowmodel/internal/archive"
	"github.com/oxriver/flowmodel/internal/model"
	"github.com/oxriver/flowmodel/internal/observability"
	"github.com/oxriver/flowmodel/internal/series"
)

type fakeLive struct {
	fail      bool
	latest    map[string]series.Reading // station ID → reading
	histories map[string][]series.Raw   // measure ID → batch
	rain      map[time.Duration]float64
}

func (f *fakeLive) ReadingsSince(_ context.Context, measureID string, _ time.Time) ([]series.Raw, error) {
	if f.fail {
		return nil, errors.New("flood api down")
	}
	return f.histories[measureID], nil
}

func (f *fakeLive) LatestLevel(_ context.Context, stationID, _ string) (series.Reading, error) {
	if f.fail {
		return series.Reading{}, errors.New("flood api down")
	}
	r, ok := f.latest[stationID]
	if !ok {
		return series.Reading{}, errors.New("no measure with a reading")
	}
	return r, nil
}

func (f *fakeLive) Rainfall(_ context.Context, _, _ float64, _, _ int, window time.Duration, _ time.Time) (float64, error) {
	if f.fail {
		return 0, errors.New("flood api down")
	}
	return f.rain[window], nil
}

type fakeFlags struct {
	fail bool
	flag model.Flag
}

func (f *fakeFlags) FlagStatus(_ context.Context, reach string) (model.Flag, error) {
	if f.fail {
		return model.Flag{}, errors.New("ourcs down")
	}
	return f.flag, nil
}

func loadSnapshot(t *testing.T, path string) model.CurrentConditions {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap model.CurrentConditions
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap
}

func TestCurrentRunner(t *testing.T) {
	now := time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)
	at := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	key := series.CanonicalTimestamp(at)
	keyEarlier := series.CanonicalTimestamp(at.Add(-2 * time.Hour))

	healthyLive := func() *fakeLive {
		return &fakeLive{
			latest: map[string]series.Reading{
				"1302TH": {Timestamp: at, Value: 2.1},
				"1303TH": {Timestamp: at, Value: 1.9},
			},
			histories: map[string][]series.Raw{
				"1302TH-level-downstage-i-15_min-mASD": {
					{Timestamp: key, Value: "4.0"},
					{Timestamp: keyEarlier, Value: "3.8"},
				},
				"1303TH-level-stage-i-15_min-mASD": {
					{Timestamp: key, Value: "2.0"},
					{Timestamp: keyEarlier, Value: "2.0"},
				},
				"1100TH-flow--Mean-15_min-m3_s": {
					{Timestamp: key, Value: "31.0"},
				},
			},
			rain: map[time.Duration]float64{
				24 * time.Hour:     1.5,
				7 * 24 * time.Hour: 10.5,
			},
		}
	}

	t.Run("full snapshot", func(t *testing.T) {
		freezeClocks(t, now)
		cfg := testConfig(t)
		weather := &fakeWeather{forecast: []model.ForecastHour{
			{Time: "2024-06-15T10:00", Temperature: 18.5, Precipitation: 0.2},
		}}
		flags := &fakeFlags{flag: model.Flag{Status: "amber", StatusText: "Amber Flag"}}

		runner := NewCurrentRunner(cfg, healthyLive(), weather, flags, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetrics())
		require.NoError(t, runner.Run(context.Background()))

		snap := loadSnapshot(t, cfg.Paths.CurrentFile)
		assert.Equal(t, series.CanonicalTimestamp(now), snap.LastUpdated)

		require.Contains(t, snap.Locks, "godstow")
		require.Contains(t, snap.Locks, "osney")
		assert.NotContains(t, snap.Locks, "farmoor") // flow channel, not a lock
		require.NotNil(t, snap.Locks["godstow"].Level)
		assert.Equal(t, 2.1, *snap.Locks["godstow"].Level)
		assert.Equal(t, key, snap.Locks["godstow"].Timestamp)

		require.NotNil(t, snap.Flow.Flow)
		assert.InDelta(t, 0.37, *snap.Flow.Flow, 1e-9) // 4.0 − 2.0 − 1.63
		require.NotNil(t, snap.Flow.Differential)
		assert.InDelta(t, 2.0, *snap.Flow.Differential, 1e-9)
		require.NotNil(t, snap.Flow.Flow2hAgo)
		assert.InDelta(t, 0.17, *snap.Flow.Flow2hAgo, 1e-9)
		assert.Equal(t, "increasing", snap.Flow.Trend)

		assert.InDelta(t, 1.5, snap.Rainfall24h, 1e-9)
		assert.InDelta(t, 10.5, snap.Rainfall7d, 1e-9)

		require.Len(t, snap.WeatherForecast, 1)
		assert.Equal(t, 18.5, snap.WeatherForecast[0].Temperature)

		require.Contains(t, snap.Flags, "godstow")
		require.Contains(t, snap.Flags, "isis")
		assert.Equal(t, "amber", snap.Flags["godstow"].Status)

		// histories are newest-first
		require.Len(t, snap.Histories["godstow"], 2)
		assert.Equal(t, at, snap.Histories["godstow"][0].Timestamp.UTC())
		assert.Equal(t, 4.0, snap.Histories["godstow"][0].Value)
	})

	t.Run("falls back to previous snapshot", func(t *testing.T) {
		freezeClocks(t, now)
		cfg := testConfig(t)

		level := 1.95
		prev := model.NewCurrentConditions()
		prev.Locks["godstow"] = model.LockLevel{Level: &level, Timestamp: keyEarlier}
		prev.Rainfall24h = 0.8
		prev.Rainfall7d = 6.2
		prev.WeatherForecast = []model.ForecastHour{{Time: "2024-06-15T06:00", Temperature: 14.0}}
		prev.Flags["isis"] = model.Flag{Status: "green"}
		prev.Histories["farmoor"] = []series.Reading{{Timestamp: at, Value: 30.5}}
		require.NoError(t, archive.SaveCurrent(cfg.Paths.CurrentFile, prev))

		runner := NewCurrentRunner(cfg, &fakeLive{fail: true}, &fakeWeather{forecastErr: errors.New("down")},
			&fakeFlags{fail: true}, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetrics())
		require.NoError(t, runner.Run(context.Background()))

		snap := loadSnapshot(t, cfg.Paths.CurrentFile)
		require.Contains(t, snap.Locks, "godstow")
		require.NotNil(t, snap.Locks["godstow"].Level)
		assert.Equal(t, 1.95, *snap.Locks["godstow"].Level)

		assert.InDelta(t, 0.8, snap.Rainfall24h, 1e-9)
		assert.InDelta(t, 6.2, snap.Rainfall7d, 1e-9)
		require.Len(t, snap.WeatherForecast, 1)
		assert.Equal(t, 14.0, snap.WeatherForecast[0].Temperature)
		assert.Equal(t, "green", snap.Flags["isis"].Status)
		require.Len(t, snap.Histories["farmoor"], 1)
		assert.Equal(t, 30.5, snap.Histories["farmoor"][0].Value)

		// derived flow has no inputs this run
		assert.Nil(t, snap.Flow.Flow)
	})

	t.Run("no previous snapshot leaves gaps", func(t *testing.T) {
		freezeClocks(t, now)
		cfg := testConfig(t)

		runner := NewCurrentRunner(cfg, &fakeLive{fail: true}, &fakeWeather{forecastErr: errors.New("down")},
			&fakeFlags{fail: true}, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetrics())
		require.NoError(t, runner.Run(context.Background()))

		snap := loadSnapshot(t, cfg.Paths.CurrentFile)
		assert.Empty(t, snap.Locks)
		assert.Empty(t, snap.Flags)
		assert.Nil(t, snap.Flow.Flow)
		assert.Zero(t, snap.Rainfall24h)
	})
}
