// Package config loads all service settings through Viper: built-in
// defaults, an optional YAML file, and FLOWMODEL_* environment overrides,
// in increasing precedence. The station and measure tables live here rather
// than as process-wide constants so a deployment for another river reach is
// a config file, not a code change.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Channel identifies one physical quantity's time series at an EA station.
type Channel struct {
	Name      string `mapstructure:"name"`
	MeasureID string `mapstructure:"measure_id"`
	StationID string `mapstructure:"station_id"`
	Qualifier string `mapstructure:"qualifier"` // e.g. "stage", "downstage"
	Kind      string `mapstructure:"kind"`      // "level" or "flow"
}

// Config holds all settings for both binaries.
type Config struct {
	Channels []Channel `mapstructure:"channels"`

	// Differential is the derived flow channel: upstream level minus
	// downstream level minus the lock offset.
	Differential struct {
		Name       string  `mapstructure:"name"`
		Upstream   string  `mapstructure:"upstream"`
		Downstream string  `mapstructure:"downstream"`
		LockOffset float64 `mapstructure:"lock_offset"`
	} `mapstructure:"differential"`

	// Regression pairs the X channel against the differential channel and
	// converts the two calibration levels into X units.
	Regression struct {
		XChannel       string  `mapstructure:"x_channel"`
		LowerThreshold float64 `mapstructure:"lower_threshold"`
		UpperThreshold float64 `mapstructure:"upper_threshold"`
	} `mapstructure:"regression"`

	Grid struct {
		IntervalHours int `mapstructure:"interval_hours"`
		MinuteOffset  int `mapstructure:"minute_offset"`
	} `mapstructure:"grid"`

	Peaks struct {
		HalfWindow int `mapstructure:"half_window"` // grid points
		MinGap     int `mapstructure:"min_gap"`     // grid points
	} `mapstructure:"peaks"`

	// Decay tunes the recession fitter. MinPeakValue and MinRise are per
	// decay channel, keyed by channel name.
	Decay struct {
		Channels        []string           `mapstructure:"channels"`
		MinPeakValue    map[string]float64 `mapstructure:"min_peak_value"`
		MinRise         map[string]float64 `mapstructure:"min_rise"`
		DefaultTauHours float64            `mapstructure:"default_tau_hours"`
		LookbackStart   int                `mapstructure:"lookback_start"`
		LookbackEnd     int                `mapstructure:"lookback_end"`
		MaxLookahead    int                `mapstructure:"max_lookahead"`
	} `mapstructure:"decay"`

	Retention struct {
		ArchiveDays int `mapstructure:"archive_days"` // model archive horizon
		HistoryDays int `mapstructure:"history_days"` // current-snapshot histories
		FetchDays   int `mapstructure:"fetch_days"`   // archive days refetched per run
	} `mapstructure:"retention"`

	Fetch struct {
		Workers int           `mapstructure:"workers"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"fetch"`

	FloodAPI struct {
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"flood_api"`

	OpenMeteo struct {
		BaseURL         string        `mapstructure:"base_url"`
		EnsembleBaseURL string        `mapstructure:"ensemble_base_url"`
		Timeout         time.Duration `mapstructure:"timeout"`
		Latitude        float64       `mapstructure:"latitude"`
		Longitude       float64       `mapstructure:"longitude"`
		ForecastHours   int           `mapstructure:"forecast_hours"`
		EnsembleHours   int           `mapstructure:"ensemble_hours"`
		Timezone        string        `mapstructure:"timezone"`
	} `mapstructure:"open_meteo"`

	OURCS struct {
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
		Reaches []string      `mapstructure:"reaches"`
	} `mapstructure:"ourcs"`

	Rainfall struct {
		RadiusKm    int `mapstructure:"radius_km"`
		MaxStations int `mapstructure:"max_stations"`
	} `mapstructure:"rainfall"`

	Paths struct {
		ArchiveFile string `mapstructure:"archive_file"`
		ModelFile   string `mapstructure:"model_file"`
		CurrentFile string `mapstructure:"current_file"`
	} `mapstructure:"paths"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Metrics struct {
		PushGateway string `mapstructure:"push_gateway"`
		Job         string `mapstructure:"job"`
	} `mapstructure:"metrics"`
}

// Load builds the configuration. file may be empty to run on defaults and
// environment alone.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FLOWMODEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults carries the Oxford deployment: Godstow and Osney lock levels
// and the Farmoor flow gauge on the Thames.
func setDefaults(v *viper.Viper) {
	v.SetDefault("channels", []map[string]any{
		{
			"name":       "godstow",
			"measure_id": "1302TH-level-downstage-i-15_min-mASD",
			"station_id": "1302TH",
			"qualifier":  "downstage",
			"kind":       "level",
		},
		{
			"name":       "osney",
			"measure_id": "1303TH-level-stage-i-15_min-mASD",
			"station_id": "1303TH",
			"qualifier":  "stage",
			"kind":       "level",
		},
		{
			"name":       "farmoor",
			"measure_id": "1100TH-flow--Mean-15_min-m3_s",
			"station_id": "1100TH",
			"qualifier":  "flow",
			"kind":       "flow",
		},
	})

	v.SetDefault("differential.name", "flow_diff")
	v.SetDefault("differential.upstream", "godstow")
	v.SetDefault("differential.downstream", "osney")
	v.SetDefault("differential.lock_offset", 1.63)

	v.SetDefault("regression.x_channel", "farmoor")
	v.SetDefault("regression.lower_threshold", 0.45)
	v.SetDefault("regression.upper_threshold", 0.75)

	v.SetDefault("grid.interval_hours", 2)
	v.SetDefault("grid.minute_offset", 0)

	v.SetDefault("peaks.half_window", 6) // 12 h on the 2-hour grid
	v.SetDefault("peaks.min_gap", 24)    // 2 days

	v.SetDefault("decay.channels", []string{"farmoor", "flow_diff"})
	v.SetDefault("decay.min_peak_value", map[string]float64{"farmoor": 30, "flow_diff": 0.45})
	v.SetDefault("decay.min_rise", map[string]float64{"farmoor": 5, "flow_diff": 0.15})
	v.SetDefault("decay.default_tau_hours", 36)
	v.SetDefault("decay.lookback_start", 84)
	v.SetDefault("decay.lookback_end", 12)
	v.SetDefault("decay.max_lookahead", 180)

	v.SetDefault("retention.archive_days", 365)
	v.SetDefault("retention.history_days", 14)
	v.SetDefault("retention.fetch_days", 14)

	v.SetDefault("fetch.workers", 10)
	v.SetDefault("fetch.timeout", "120s")

	v.SetDefault("flood_api.base_url", "https://environment.data.gov.uk/flood-monitoring")
	v.SetDefault("flood_api.timeout", "60s")

	v.SetDefault("open_meteo.base_url", "https://api.open-meteo.com")
	v.SetDefault("open_meteo.ensemble_base_url", "https://ensemble-api.open-meteo.com")
	v.SetDefault("open_meteo.timeout", "30s")
	v.SetDefault("open_meteo.latitude", 51.7520)
	v.SetDefault("open_meteo.longitude", -1.2577)
	v.SetDefault("open_meteo.forecast_hours", 24)
	v.SetDefault("open_meteo.ensemble_hours", 72)
	v.SetDefault("open_meteo.timezone", "Europe/London")

	v.SetDefault("ourcs.base_url", "https://ourcs.co.uk")
	v.SetDefault("ourcs.timeout", "30s")
	v.SetDefault("ourcs.reaches", []string{"godstow", "isis"})

	v.SetDefault("rainfall.radius_km", 15)
	v.SetDefault("rainfall.max_stations", 3)

	v.SetDefault("paths.archive_file", "data/historic.json")
	v.SetDefault("paths.model_file", "data/prediction_model.json")
	v.SetDefault("paths.current_file", "data/current.json")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.push_gateway", "")
	v.SetDefault("metrics.job", "flowmodel")
}

func (c *Config) validate() error {
	if len(c.Channels) == 0 {
		return errors.New("at least one channel is required")
	}

	names := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Name == "" || ch.MeasureID == "" {
			return fmt.Errorf("channel %q needs a name and measure_id", ch.Name)
		}
		if names[ch.Name] {
			return fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		names[ch.Name] = true
	}

	if up := c.Differential.Upstream; up != "" && !names[up] {
		return fmt.Errorf("differential upstream channel %q not configured", up)
	}
	if down := c.Differential.Downstream; down != "" && !names[down] {
		return fmt.Errorf("differential downstream channel %q not configured", down)
	}
	if x := c.Regression.XChannel; x != "" && !names[x] {
		return fmt.Errorf("regression x channel %q not configured", x)
	}

	if c.Grid.IntervalHours <= 0 || c.Grid.IntervalHours > 24 {
		return fmt.Errorf("grid interval_hours %d out of range", c.Grid.IntervalHours)
	}
	if c.Fetch.Workers <= 0 {
		return errors.New("fetch workers must be positive")
	}
	if c.Retention.ArchiveDays <= 0 {
		return errors.New("retention archive_days must be positive")
	}
	return nil
}

// ChannelByName returns the configured channel with the given name.
func (c *Config) ChannelByName(name string) (Channel, bool) {
	for _, ch := range c.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return Channel{}, false
}

// MeasureIDs maps channel name to EA measure ID for archive CSV filtering.
func (c *Config) MeasureIDs() map[string]string {
	out := make(map[string]string, len(c.Channels))
	for _, ch := range c.Channels {
		out[ch.Name] = ch.MeasureID
	}
	return out
}
