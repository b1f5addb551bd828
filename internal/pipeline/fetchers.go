package pipeline

import (
	"context"
	"time"

	"github.com/oxriver/flowmodel/internal/model"
	"github.com/oxriver/flowmodel/internal/series"
)

// ArchiveFetcher provides bulk historical readings, one UTC day at a time.
type ArchiveFetcher interface {
	ArchiveDay(ctx context.Context, day time.Time, measureIDs map[string]string, intervalHours, minuteOffset int) (map[string][]series.Raw, error)
}

// LiveFetcher provides the near-real-time reads used by the snapshot run.
type LiveFetcher interface {
	ReadingsSince(ctx context.Context, measureID string, since time.Time) ([]series.Raw, error)
	LatestLevel(ctx context.Context, stationID, qualifier string) (series.Reading, error)
	Rainfall(ctx context.Context, lat, lon float64, radiusKm, maxStations int, window time.Duration, now time.Time) (float64, error)
}

// WeatherFetcher provides deterministic and ensemble forecasts.
type WeatherFetcher interface {
	Forecast(ctx context.Context, lat, lon float64, hours int) ([]model.ForecastHour, error)
	EnsemblePrecipitation(ctx context.Context, lat, lon float64, hours int) (model.EnsembleForecast, error)
}

// FlagFetcher provides rowing flag statuses.
type FlagFetcher interface {
	FlagStatus(ctx context.Context, reach string) (model.Flag, error)
}
