package openmeteo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "51.7520", q.Get("latitude"))
		assert.Equal(t, "24", q.Get("forecast_hours"))
		assert.Equal(t, "Europe/London", q.Get("timezone"))
		fmt.Fprint(w, `{"hourly": {
			"time": ["2024-06-01T10:00", "2024-06-01T11:00"],
			"temperature_2m": [18.5, 19.1],
			"precipitation_probability": [10, 35],
			"precipitation": [0.0, 0.2],
			"weather_code": [2, 61]
		}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.URL, "Europe/London", 5*time.Second, testLogger())
	hours, err := client.Forecast(context.Background(), 51.7520, -1.2577, 24)

	require.NoError(t, err)
	require.Len(t, hours, 2)
	assert.Equal(t, "2024-06-01T10:00", hours[0].Time)
	assert.Equal(t, 18.5, hours[0].Temperature)
	assert.Equal(t, 35.0, hours[1].PrecipitationProbability)
	assert.Equal(t, 61, hours[1].WeatherCode)
}

func TestEnsemblePrecipitation(t *testing.T) {
	t.Run("collects members in stable order", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/ensemble", r.URL.Path)
			fmt.Fprint(w, `{"hourly": {
				"time": ["2024-06-01T10:00", "2024-06-01T11:00"],
				"precipitation_member02": [0.3, 0.4],
				"precipitation": [0.1, 0.2],
				"precipitation_member01": [0.2, 0.3]
			}}`)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, srv.URL, "Europe/London", 5*time.Second, testLogger())
		forecast, err := client.EnsemblePrecipitation(context.Background(), 51.7520, -1.2577, 72)

		require.NoError(t, err)
		require.Len(t, forecast.Times, 2)

		london, err := time.LoadLocation("Europe/London")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, london), forecast.Times[0])

		require.Len(t, forecast.Members, 3)
		// sorted key order: precipitation, _member01, _member02
		assert.Equal(t, []float64{0.1, 0.2}, forecast.Members[0])
		assert.Equal(t, []float64{0.2, 0.3}, forecast.Members[1])
		assert.Equal(t, []float64{0.3, 0.4}, forecast.Members[2])
	})

	t.Run("drops ragged members", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"hourly": {
				"time": ["2024-06-01T10:00", "2024-06-01T11:00"],
				"precipitation": [0.1, 0.2],
				"precipitation_member01": [0.5]
			}}`)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, srv.URL, "Europe/London", 5*time.Second, testLogger())
		forecast, err := client.EnsemblePrecipitation(context.Background(), 51.7520, -1.2577, 72)

		require.NoError(t, err)
		require.Len(t, forecast.Members, 1)
		assert.Equal(t, []float64{0.1, 0.2}, forecast.Members[0])
	})

	t.Run("propagates API errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, srv.URL, "Europe/London", 5*time.Second, testLogger())
		_, err := client.EnsemblePrecipitation(context.Background(), 51.7520, -1.2577, 72)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 429")
	})
}
