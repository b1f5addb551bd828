package model

import (
	"time"

	"github.com/oxriver/flowmodel/internal/series"
)

// trendThreshold is the flow change (m) over two hours below which the
// trend reads as level.
const trendThreshold = 0.1

// LockLevel is the latest level reading at one lock. Level is nil when the
// fetch failed and no previous snapshot could back it up.
type LockLevel struct {
	Level     *float64 `json:"level"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// FlowStatus is the derived flow picture: upstream minus downstream level,
// the lock-offset-corrected flow, and its two-hour trend.
type FlowStatus struct {
	Differential *float64 `json:"differential"`
	Flow         *float64 `json:"flow"`
	Flow2hAgo    *float64 `json:"flow_2h_ago"`
	Trend        string   `json:"trend,omitempty"` // increasing, decreasing or level
}

// ForecastHour is one hour of the deterministic weather forecast.
type ForecastHour struct {
	Time                     string  `json:"time"`
	Temperature              float64 `json:"temperature"`
	PrecipitationProbability float64 `json:"precipitation_probability"`
	Precipitation            float64 `json:"precipitation"`
	WeatherCode              int     `json:"weather_code"`
}

// Flag is a rowing flag status for one reach.
type Flag struct {
	Status     string `json:"status,omitempty"`
	StatusText string `json:"status_text,omitempty"`
	SetDate    string `json:"set_date,omitempty"`
}

// EnsembleForecast is a probabilistic forecast: one hourly value series per
// ensemble member, all sharing the same time axis.
type EnsembleForecast struct {
	Times   []time.Time
	Members [][]float64
}

// CurrentConditions is the frequently-refreshed snapshot artifact.
type CurrentConditions struct {
	LastUpdated     string                      `json:"last_updated"`
	Locks           map[string]LockLevel        `json:"locks"`
	Flow            FlowStatus                  `json:"flow"`
	Rainfall24h     float64                     `json:"rainfall_24h"`
	Rainfall7d      float64                     `json:"rainfall_7d"`
	WeatherForecast []ForecastHour              `json:"weather_forecast,omitempty"`
	Flags           map[string]Flag             `json:"flags,omitempty"`
	Histories       map[string][]series.Reading `json:"histories"` // newest-first
}

// NewCurrentConditions starts a snapshot stamped with the current time.
func NewCurrentConditions() CurrentConditions {
	return CurrentConditions{
		LastUpdated: series.CanonicalTimestamp(clock.Now()),
		Locks:       make(map[string]LockLevel),
		Flags:       make(map[string]Flag),
		Histories:   make(map[string][]series.Reading),
	}
}

// FlowTrend classifies a two-hour flow change.
func FlowTrend(change float64) string {
	switch {
	case change > trendThreshold:
		return "increasing"
	case change < -trendThreshold:
		return "decreasing"
	default:
		return "level"
	}
}
