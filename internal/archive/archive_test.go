package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxriver/flowmodel/internal/model"
	"github.com/oxriver/flowmodel/internal/series"
)

func TestArchiveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "historic.json")

	store := map[string]series.TimeSeries{
		"farmoor": {
			"2024-01-01T00:00:00Z": 12.5,
			"2024-01-01T02:00:00Z": 13.0,
		},
	}

	require.NoError(t, SaveArchive(path, model.NewArchive(store)))

	loaded, err := LoadStore(path)
	require.NoError(t, err)
	if diff := cmp.Diff(store, loaded); diff != "" {
		t.Errorf("store round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadStore(t *testing.T) {
	t.Run("missing file is an empty store", func(t *testing.T) {
		store, err := LoadStore(filepath.Join(t.TempDir(), "nope.json"))
		require.NoError(t, err)
		assert.Empty(t, store)
	})

	t.Run("corrupt archive is a hard error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "historic.json")
		require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

		_, err := LoadStore(path)
		assert.Error(t, err)
	})
}

func TestSaveModelDeterministic(t *testing.T) {
	dir := t.TempDir()
	rec := model.Record{
		Updated:   "2024-04-26T06:00:00Z",
		DataRange: model.DataRange{Start: "2024-01-01T00:00:00Z", End: "2024-04-25T22:00:00Z", Samples: 1234},
		Regression: &model.RegressionBlock{
			Slope: 0.012346, Intercept: -1.2346, RSquared: 0.8765, Correlation: 0.9361, NSamples: 1234,
		},
	}

	pathA := filepath.Join(dir, "a.json")
	pathB := filepath.Join(dir, "b.json")
	require.NoError(t, SaveModel(pathA, rec))
	require.NoError(t, SaveModel(pathB, rec))

	a, err := os.ReadFile(pathA)
	require.NoError(t, err)
	b, err := os.ReadFile(pathB)
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical records must serialize byte-identically")
}

func TestCurrentRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "current.json")

	level := 3.14
	c := model.CurrentConditions{
		LastUpdated: "2024-04-26T06:00:00Z",
		Locks: map[string]model.LockLevel{
			"godstow": {Level: &level, Timestamp: "2024-04-26T05:45:00Z"},
		},
		Flow: model.FlowStatus{Trend: "level"},
		Histories: map[string][]series.Reading{
			"godstow": {{Timestamp: time.Date(2024, 4, 26, 5, 45, 0, 0, time.UTC), Value: 3.14}},
		},
	}

	require.NoError(t, SaveCurrent(path, c))

	loaded, ok, err := LoadCurrent(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c, loaded)

	t.Run("missing snapshot", func(t *testing.T) {
		_, ok, err := LoadCurrent(filepath.Join(t.TempDir(), "none.json"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
