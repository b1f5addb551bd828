package series

import (
	"encoding/json"
	"sort"
	"time"
)

// Reading is a single timestamped scalar measurement on one channel.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Raw is one reading as delivered by the fetch layer, before validation.
// Value is a json.Number so both numeric JSON fields and CSV cell strings
// funnel through the same validation in Merge.
type Raw struct {
	Timestamp string      `json:"timestamp"`
	Value     json.Number `json:"value"`
}

// TimeSeries maps a canonical RFC3339 UTC timestamp to a reading value.
// Keys are unique by construction.
type TimeSeries map[string]float64

// Order selects the sort direction of materialized readings.
type Order int

const (
	Ascending Order = iota
	Descending
)

// Merge upserts each entry of batch into existing and returns the merged
// series. On a timestamp collision the batch entry wins. Entries with an
// unparsable timestamp or value are dropped. Neither input is mutated.
func Merge(existing TimeSeries, batch []Raw) TimeSeries {
	merged := make(TimeSeries, len(existing)+len(batch))
	for ts, v := range existing {
		merged[ts] = v
	}
	for _, r := range batch {
		t, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			continue
		}
		v, err := r.Value.Float64()
		if err != nil {
			continue
		}
		merged[CanonicalTimestamp(t)] = v
	}
	return merged
}

// CountInvalid reports how many entries of batch Merge would drop, for
// observability counters.
func CountInvalid(batch []Raw) int {
	n := 0
	for _, r := range batch {
		if _, err := time.Parse(time.RFC3339, r.Timestamp); err != nil {
			n++
			continue
		}
		if _, err := r.Value.Float64(); err != nil {
			n++
		}
	}
	return n
}

// CanonicalTimestamp formats t as the UTC RFC3339 string used as a series key.
// Canonicalizing on write means "2024-01-05T10:00:00+00:00" and
// "2024-01-05T10:00:00Z" dedupe to one key.
func CanonicalTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Trim materializes the readings of ts with timestamp >= cutoff, sorted in
// the requested order. A zero cutoff keeps everything.
func Trim(ts TimeSeries, cutoff time.Time, order Order) []Reading {
	out := make([]Reading, 0, len(ts))
	for key, v := range ts {
		t, err := time.Parse(time.RFC3339, key)
		if err != nil {
			continue
		}
		if !cutoff.IsZero() && t.Before(cutoff) {
			continue
		}
		out = append(out, Reading{Timestamp: t, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if order == Descending {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// FromReadings rebuilds the map form from materialized readings, e.g. when
// loading a persisted archive.
func FromReadings(readings []Reading) TimeSeries {
	ts := make(TimeSeries, len(readings))
	for _, r := range readings {
		ts[CanonicalTimestamp(r.Timestamp)] = r.Value
	}
	return ts
}

// Latest returns the most recent reading of ts, or false when empty.
func Latest(ts TimeSeries) (Reading, bool) {
	var best Reading
	found := false
	for key, v := range ts {
		t, err := time.Parse(time.RFC3339, key)
		if err != nil {
			continue
		}
		if !found || t.After(best.Timestamp) {
			best = Reading{Timestamp: t, Value: v}
			found = true
		}
	}
	return best, found
}

// Differential derives a new series from two level channels:
// upstream − downstream − offset at every timestamp present in both.
func Differential(upstream, downstream TimeSeries, offset float64) TimeSeries {
	out := make(TimeSeries)
	for ts, up := range upstream {
		if down, ok := downstream[ts]; ok {
			out[ts] = up - down - offset
		}
	}
	return out
}
