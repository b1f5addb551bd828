// Package floodapi is the client for the Environment Agency flood-monitoring
// API: live readings, daily archive CSVs, station latest levels, and nearby
// rainfall accumulation.
package floodapi

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/oxriver/flowmodel/internal/series"
)

// Client talks to one flood-monitoring API deployment.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a flood-monitoring API client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ReadingsSince fetches all readings for a measure from since onward. The
// API caps responses at the _limit parameter; 10000 covers well over a
// month of 15-minute readings.
func (c *Client) ReadingsSince(ctx context.Context, measureID string, since time.Time) ([]series.Raw, error) {
	params := url.Values{
		"since":   {series.CanonicalTimestamp(since)},
		"_limit":  {"10000"},
		"_sorted": {""},
	}
	u := fmt.Sprintf("%s/id/measures/%s/readings.json?%s", c.baseURL, url.PathEscape(measureID), params.Encode())

	var resp readingsResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("readings for %s: %w", measureID, err)
	}

	out := make([]series.Raw, 0, len(resp.Items))
	for _, item := range resp.Items {
		out = append(out, series.Raw{Timestamp: item.DateTime, Value: item.Value})
	}
	return out, nil
}

// ArchiveDay fetches one UTC day's archive CSV and extracts the configured
// measures, keeping only rows on the sampling grid. Rows with sentinel or
// unparsable values pass through as Raw entries for the merge step to drop,
// keeping the malformed-row policy in one place.
func (c *Client) ArchiveDay(ctx context.Context, day time.Time, measureIDs map[string]string, intervalHours, minuteOffset int) (map[string][]series.Raw, error) {
	u := fmt.Sprintf("%s/archive/readings-%s.csv", c.baseURL, day.UTC().Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive day %s: %w", day.Format("2006-01-02"), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive day %s: status %d", day.Format("2006-01-02"), resp.StatusCode)
	}

	// Measure URLs in the CSV are fully qualified; build the reverse lookup.
	byURL := make(map[string]string, len(measureIDs))
	for name, id := range measureIDs {
		byURL[c.baseURL+"/id/measures/"+id] = name
		// Archive rows historically use the http scheme regardless of how
		// the API is addressed.
		byURL["http://environment.data.gov.uk/flood-monitoring/id/measures/"+id] = name
	}

	batches := make(map[string][]series.Raw, len(measureIDs))
	r := csv.NewReader(resp.Body)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("archive day %s: read header: %w", day.Format("2006-01-02"), err)
	}
	col := indexColumns(header)
	if col.dateTime < 0 || col.measure < 0 || col.value < 0 {
		return nil, fmt.Errorf("archive day %s: unexpected header %v", day.Format("2006-01-02"), header)
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A truncated or ragged row spoils neither the day nor the run.
			c.logger.Debug("skipping malformed archive row", "day", day.Format("2006-01-02"), "error", err)
			continue
		}
		if len(row) <= col.dateTime || len(row) <= col.measure || len(row) <= col.value {
			continue
		}

		name, ok := byURL[row[col.measure]]
		if !ok {
			continue
		}
		if !onGrid(row[col.dateTime], intervalHours, minuteOffset) {
			continue
		}
		batches[name] = append(batches[name], series.Raw{
			Timestamp: row[col.dateTime],
			Value:     json.Number(row[col.value]),
		})
	}
	return batches, nil
}

type columnIndex struct {
	dateTime, measure, value int
}

func indexColumns(header []string) columnIndex {
	col := columnIndex{dateTime: -1, measure: -1, value: -1}
	for i, h := range header {
		switch h {
		case "dateTime":
			col.dateTime = i
		case "measure":
			col.measure = i
		case "value":
			col.value = i
		}
	}
	return col
}

// onGrid checks the HH:MM of an ISO timestamp against the sampling grid
// without a full time.Parse; archive days hold ~100k rows.
func onGrid(timestamp string, intervalHours, minuteOffset int) bool {
	// "2024-01-05T10:00:00Z" — hour at [11:13], minute at [14:16].
	if len(timestamp) < 16 || timestamp[10] != 'T' {
		return false
	}
	hour, err := strconv.Atoi(timestamp[11:13])
	if err != nil {
		return false
	}
	minute, err := strconv.Atoi(timestamp[14:16])
	if err != nil {
		return false
	}
	return hour%intervalHours == 0 && minute == minuteOffset
}

// LatestLevel fetches the newest reading for a station's measure with the
// given qualifier, preferring measures on the mASD datum. When the station
// document carries no latestReading it falls back to the readings endpoint.
func (c *Client) LatestLevel(ctx context.Context, stationID, qualifier string) (series.Reading, error) {
	u := fmt.Sprintf("%s/id/stations/%s.json", c.baseURL, url.PathEscape(stationID))

	var resp stationResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return series.Reading{}, fmt.Errorf("station %s: %w", stationID, err)
	}

	for _, m := range resp.Items.Measures {
		id := m.shortID()
		if !matchesQualifier(id, qualifier) {
			continue
		}

		if m.LatestReading != nil && m.LatestReading.DateTime != "" {
			return rawToReading(series.Raw{Timestamp: m.LatestReading.DateTime, Value: m.LatestReading.Value})
		}

		readings, err := c.ReadingsSince(ctx, id, time.Time{})
		if err != nil {
			return series.Reading{}, err
		}
		if len(readings) > 0 {
			return rawToReading(readings[0])
		}
	}
	return series.Reading{}, fmt.Errorf("station %s: no %s measure with a reading", stationID, qualifier)
}

// matchesQualifier requires the qualifier as a full hyphen-separated
// component and the mASD datum, mirroring the EA measure ID scheme.
func matchesQualifier(measureID, qualifier string) bool {
	if !containsComponent(measureID, qualifier) {
		return false
	}
	return containsComponent(measureID, "mASD") || hasSuffix(measureID, "mASD")
}

// Rainfall returns the mean accumulated rainfall over the window across up
// to maxStations rainfall stations within radiusKm of the point.
func (c *Client) Rainfall(ctx context.Context, lat, lon float64, radiusKm, maxStations int, window time.Duration, now time.Time) (float64, error) {
	params := url.Values{
		"parameter": {"rainfall"},
		"lat":       {strconv.FormatFloat(lat, 'f', 4, 64)},
		"long":      {strconv.FormatFloat(lon, 'f', 4, 64)},
		"dist":      {strconv.Itoa(radiusKm)},
	}
	u := fmt.Sprintf("%s/id/stations.json?%s", c.baseURL, params.Encode())

	var resp stationsResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return 0, fmt.Errorf("rainfall stations: %w", err)
	}

	since := now.Add(-window)
	var total float64
	var counted int
	for _, station := range resp.Items {
		if counted >= maxStations {
			break
		}
		for _, m := range station.Measures {
			readings, err := c.ReadingsSince(ctx, m.shortID(), since)
			if err != nil || len(readings) == 0 {
				continue
			}
			var stationTotal float64
			for _, r := range readings {
				if v, err := r.Value.Float64(); err == nil {
					stationTotal += v
				}
			}
			total += stationTotal
			counted++
			break
		}
	}

	if counted == 0 {
		return 0, nil
	}
	return total / float64(counted), nil
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

func rawToReading(r series.Raw) (series.Reading, error) {
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return series.Reading{}, fmt.Errorf("parse reading timestamp %q: %w", r.Timestamp, err)
	}
	v, err := r.Value.Float64()
	if err != nil {
		return series.Reading{}, fmt.Errorf("parse reading value %q: %w", r.Value, err)
	}
	return series.Reading{Timestamp: t.UTC(), Value: v}, nil
}

func containsComponent(id, component string) bool {
	for start := 0; start < len(id); start++ {
		if id[start] != '-' && start != 0 {
			continue
		}
		s := start
		if id[s] == '-' {
			s++
		}
		end := s + len(component)
		if end > len(id) {
			return false
		}
		if id[s:end] == component && (end == len(id) || id[end] == '-') {
			return true
		}
	}
	return false
}

func hasSuffix(id, suffix string) bool {
	return len(id) >= len(suffix) && id[len(id)-len(suffix):] == suffix
}

// API response types.

type readingsResponse struct {
	Items []readingItem `json:"items"`
}

type readingItem struct {
	DateTime string      `json:"dateTime"`
	Value    json.Number `json:"value"`
}

type stationResponse struct {
	Items struct {
		Measures []measure `json:"measures"`
	} `json:"items"`
}

type stationsResponse struct {
	Items []struct {
		Measures []measure `json:"measures"`
	} `json:"items"`
}

type measure struct {
	ID            string       `json:"@id"`
	LatestReading *readingItem `json:"latestReading"`
}

// shortID strips the URL prefix from a measure's @id.
func (m measure) shortID() string {
	for i := len(m.ID) - 1; i >= 0; i-- {
		if m.ID[i] == '/' {
			return m.ID[i+1:]
		}
	}
	return m.ID
}
