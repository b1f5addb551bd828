// Package openmeteo fetches deterministic and ensemble weather forecasts
// from the Open-Meteo API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oxriver/flowmodel/internal/model"
)

// hourlyTimeLayout is Open-Meteo's local-time format when a timezone is
// requested.
const hourlyTimeLayout = "2006-01-02T15:04"

// Client talks to the Open-Meteo forecast and ensemble APIs.
type Client struct {
	baseURL         string
	ensembleBaseURL string
	httpClient      *http.Client
	logger          *slog.Logger
	timezone        string
}

// NewClient creates an Open-Meteo client. timezone is the IANA zone forecasts
// are expressed in, e.g. "Europe/London".
func NewClient(baseURL, ensembleBaseURL, timezone string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:         baseURL,
		ensembleBaseURL: ensembleBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:   logger,
		timezone: timezone,
	}
}

// Forecast fetches the next hours of the deterministic forecast for a point.
func (c *Client) Forecast(ctx context.Context, lat, lon float64, hours int) ([]model.ForecastHour, error) {
	params := url.Values{
		"latitude":       {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude":      {strconv.FormatFloat(lon, 'f', 4, 64)},
		"hourly":         {"temperature_2m,precipitation_probability,precipitation,weather_code"},
		"forecast_hours": {strconv.Itoa(hours)},
		"timezone":       {c.timezone},
	}
	u := fmt.Sprintf("%s/v1/forecast?%s", c.baseURL, params.Encode())

	var resp forecastResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	h := resp.Hourly
	out := make([]model.ForecastHour, 0, len(h.Time))
	for i, ts := range h.Time {
		fh := model.ForecastHour{Time: ts}
		if i < len(h.Temperature) {
			fh.Temperature = h.Temperature[i]
		}
		if i < len(h.PrecipitationProbability) {
			fh.PrecipitationProbability = h.PrecipitationProbability[i]
		}
		if i < len(h.Precipitation) {
			fh.Precipitation = h.Precipitation[i]
		}
		if i < len(h.WeatherCode) {
			fh.WeatherCode = h.WeatherCode[i]
		}
		out = append(out, fh)
	}
	return out, nil
}

// EnsemblePrecipitation fetches hourly precipitation for every ensemble
// member over the next hours. Member columns arrive as dynamically named
// fields (precipitation, precipitation_member01, ...), so the hourly block
// is decoded generically and member keys are sorted for a deterministic
// member order.
func (c *Client) EnsemblePrecipitation(ctx context.Context, lat, lon float64, hours int) (model.EnsembleForecast, error) {
	params := url.Values{
		"latitude":       {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude":      {strconv.FormatFloat(lon, 'f', 4, 64)},
		"hourly":         {"precipitation"},
		"forecast_hours": {strconv.Itoa(hours)},
		"timezone":       {c.timezone},
	}
	u := fmt.Sprintf("%s/v1/ensemble?%s", c.ensembleBaseURL, params.Encode())

	var resp ensembleResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return model.EnsembleForecast{}, fmt.Errorf("ensemble: %w", err)
	}

	loc, err := time.LoadLocation(c.timezone)
	if err != nil {
		return model.EnsembleForecast{}, fmt.Errorf("load timezone %s: %w", c.timezone, err)
	}

	var rawTimes []string
	if raw, ok := resp.Hourly["time"]; ok {
		if err := json.Unmarshal(raw, &rawTimes); err != nil {
			return model.EnsembleForecast{}, fmt.Errorf("decode ensemble times: %w", err)
		}
	}
	times := make([]time.Time, 0, len(rawTimes))
	for _, ts := range rawTimes {
		t, err := time.ParseInLocation(hourlyTimeLayout, ts, loc)
		if err != nil {
			return model.EnsembleForecast{}, fmt.Errorf("parse ensemble time %q: %w", ts, err)
		}
		times = append(times, t)
	}

	memberKeys := make([]string, 0, len(resp.Hourly))
	for key := range resp.Hourly {
		if strings.HasPrefix(key, "precipitation") {
			memberKeys = append(memberKeys, key)
		}
	}
	sort.Strings(memberKeys)

	forecast := model.EnsembleForecast{Times: times}
	for _, key := range memberKeys {
		var values []float64
		if err := json.Unmarshal(resp.Hourly[key], &values); err != nil {
			c.logger.Warn("skipping unreadable ensemble member", "member", key, "error", err)
			continue
		}
		if len(values) != len(times) {
			c.logger.Warn("skipping ragged ensemble member", "member", key, "points", len(values), "expected", len(times))
			continue
		}
		forecast.Members = append(forecast.Members, values)
	}
	return forecast, nil
}

func (c *Client) getJSON(ctx context.Context, fullURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type forecastResponse struct {
	Hourly struct {
		Time                     []string  `json:"time"`
		Temperature              []float64 `json:"temperature_2m"`
		PrecipitationProbability []float64 `json:"precipitation_probability"`
		Precipitation            []float64 `json:"precipitation"`
		WeatherCode              []int     `json:"weather_code"`
	} `json:"hourly"`
}

type ensembleResponse struct {
	Hourly map[string]json.RawMessage `json:"hourly"`
}
