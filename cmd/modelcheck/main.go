// Command modelcheck performs integrity checks on the published artifacts:
// the reading archive, the prediction model, and the current-conditions
// snapshot. It verifies ordering, timestamp canonicality, metadata
// consistency, rounding conformity, and internal model invariants.
//
// Usage:
//
//	go run ./cmd/modelcheck \
//	  -archive data/historic.json \
//	  -model data/prediction_model.json \
//	  -current data/current.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/oxriver/flowmodel/internal/model"
	"github.com/oxriver/flowmodel/internal/series"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	archivePath := flag.String("archive", "", "path to the reading archive JSON")
	modelPath := flag.String("model", "", "path to the prediction model JSON")
	currentPath := flag.String("current", "", "path to the current-conditions JSON (optional)")
	flag.Parse()

	if *archivePath == "" || *modelPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*archivePath, *modelPath, *currentPath); code != 0 {
		os.Exit(code)
	}
}

func run(archivePath, modelPath, currentPath string) int {
	fmt.Println("=== Artifact Integrity Check ===")
	fmt.Println()

	arch, err := loadJSON[model.Archive](archivePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load archive: %v\n", err)
		return 1
	}
	rec, err := loadJSON[model.Record](modelPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load model: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateArchive(arch),
		validateModel(rec),
		validateCrossArtifact(arch, rec),
	}

	if currentPath != "" {
		snap, err := loadJSON[model.CurrentConditions](currentPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load snapshot: %v\n", err)
			return 1
		}
		phases = append(phases, validateSnapshot(snap))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll checks passed.")
		return 0
	}
	fmt.Println("\nCheck FAILED.")
	return 1
}

func loadJSON[T any](path string) (T, error) {
	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}

// ── Phase 1: Archive ──
// Channels sorted ascending, canonical timestamps, metadata consistent.

func validateArchive(arch model.Archive) *phase {
	p := &phase{name: "Phase 1: Archive (ordering, metadata)"}

	var earliest, latest time.Time
	for name, readings := range arch.Channels {
		seen := make(map[string]bool, len(readings))
		for i, r := range readings {
			key := series.CanonicalTimestamp(r.Timestamp)
			if seen[key] {
				p.errorf("%s[%d]: duplicate timestamp %s", name, i, key)
			}
			seen[key] = true

			if i > 0 && !readings[i-1].Timestamp.Before(r.Timestamp) {
				p.errorf("%s[%d]: not ascending (%s after %s)", name, i,
					key, series.CanonicalTimestamp(readings[i-1].Timestamp))
			}
		}

		if count, ok := arch.Metadata.ReadingCounts[name]; !ok {
			p.errorf("%s: missing from metadata reading_counts", name)
		} else if count != len(readings) {
			p.errorf("%s: metadata count %d, actual %d", name, count, len(readings))
		}

		if len(readings) > 0 {
			first := readings[0].Timestamp
			last := readings[len(readings)-1].Timestamp
			if earliest.IsZero() || first.Before(earliest) {
				earliest = first
			}
			if last.After(latest) {
				latest = last
			}
		}
	}

	if !earliest.IsZero() {
		if got := arch.Metadata.EarliestReading; got != series.CanonicalTimestamp(earliest) {
			p.errorf("metadata earliest_reading %s, actual %s", got, series.CanonicalTimestamp(earliest))
		}
		if got := arch.Metadata.LatestReading; got != series.CanonicalTimestamp(latest) {
			p.errorf("metadata latest_reading %s, actual %s", got, series.CanonicalTimestamp(latest))
		}
	}
	return p
}

// ── Phase 2: Model ──
// Rounding conformity and internal invariants.

func validateModel(rec model.Record) *phase {
	p := &phase{name: "Phase 2: Model (rounding, invariants)"}

	if _, err := time.Parse(time.RFC3339, rec.Updated); err != nil {
		p.errorf("updated %q is not RFC3339: %v", rec.Updated, err)
	}

	if reg := rec.Regression; reg != nil {
		checkRounded(p, "regression.slope", reg.Slope, model.SlopePlaces)
		checkRounded(p, "regression.intercept", reg.Intercept, model.InterceptPlaces)
		checkRounded(p, "regression.r_squared", reg.RSquared, model.RSquaredPlaces)
		checkRounded(p, "regression.correlation", reg.Correlation, model.CorrelationPlaces)

		if reg.RSquared < 0 || reg.RSquared > 1 {
			p.errorf("regression.r_squared %g outside [0, 1]", reg.RSquared)
		}
		if math.Abs(reg.Correlation) > 1 {
			p.errorf("regression.correlation %g outside [-1, 1]", reg.Correlation)
		}
		if reg.NSamples < 100 {
			p.errorf("regression published from %d samples (floor is 100)", reg.NSamples)
		}
		if rec.Thresholds == nil {
			p.errorf("regression present but thresholds missing")
		}
	}

	if th := rec.Thresholds; th != nil {
		checkRounded(p, "thresholds.lower", th.Lower, model.ThresholdPlaces)
		checkRounded(p, "thresholds.upper", th.Upper, model.ThresholdPlaces)
		if th.LowerY >= th.UpperY {
			p.errorf("thresholds lower_y %g >= upper_y %g", th.LowerY, th.UpperY)
		}

		// The converted thresholds must land back near the calibration levels
		// through the published line, within rounding slack.
		if reg := rec.Regression; reg != nil && reg.Slope != 0 {
			slack := 0.5 * math.Pow(10, -float64(model.ThresholdPlaces)) * math.Abs(reg.Slope) * 1.01
			slack += 1e-4 // slope and intercept are themselves rounded
			if got := reg.Slope*th.Lower + reg.Intercept; math.Abs(got-th.LowerY) > slack+1e-2 {
				p.errorf("thresholds.lower %g maps to %g, expected ~%g", th.Lower, got, th.LowerY)
			}
			if got := reg.Slope*th.Upper + reg.Intercept; math.Abs(got-th.UpperY) > slack+1e-2 {
				p.errorf("thresholds.upper %g maps to %g, expected ~%g", th.Upper, got, th.UpperY)
			}
		}
	}

	for channel, d := range rec.Decay {
		checkRounded(p, "decay."+channel+".baseline", d.Baseline, model.BaselinePlaces)
		checkRounded(p, "decay."+channel+".tau_hours_mean", d.TauHoursMean, model.DecayPlaces)
		checkRounded(p, "decay."+channel+".half_life_hours_mean", d.HalfLifeHoursMean, model.DecayPlaces)

		if d.TauHoursMean <= 0 {
			p.errorf("decay.%s: tau_hours_mean %g not positive", channel, d.TauHoursMean)
		}
		// half-life = τ·ln2, both rounded independently
		if want := d.TauHoursMean * math.Ln2; math.Abs(d.HalfLifeHoursMean-want) > 0.1 {
			p.errorf("decay.%s: half_life_hours_mean %g, expected ~%g", channel, d.HalfLifeHoursMean, want)
		}
		if d.NPeaksAnalyzed < 0 {
			p.errorf("decay.%s: negative n_peaks_analyzed", channel)
		}
	}

	for horizon, e := range rec.Ensemble {
		checkRounded(p, "ensemble."+horizon+".mean", e.Mean, model.EnsemblePlaces)
		if e.P10 > e.P90 {
			p.errorf("ensemble.%s: p10 %g > p90 %g", horizon, e.P10, e.P90)
		}
	}

	for i, d := range rec.DailyForecast {
		if _, err := time.Parse("2006-01-02", d.Date); err != nil {
			p.errorf("daily_forecast[%d]: bad date %q", i, d.Date)
		}
		if i > 0 && rec.DailyForecast[i-1].Date >= d.Date {
			p.errorf("daily_forecast[%d]: dates not ascending", i)
		}
		checkRounded(p, fmt.Sprintf("daily_forecast[%d].total", i), d.Total, model.EnsemblePlaces)
	}
	return p
}

// ── Phase 3: Cross-artifact ──
// The model's data range must lie inside the archive it was fitted from.

func validateCrossArtifact(arch model.Archive, rec model.Record) *phase {
	p := &phase{name: "Phase 3: Cross-artifact (data range)"}

	if rec.DataRange.Start == "" {
		return p
	}
	start, err := time.Parse(time.RFC3339, rec.DataRange.Start)
	if err != nil {
		p.errorf("data_range.start %q is not RFC3339: %v", rec.DataRange.Start, err)
		return p
	}
	end, err := time.Parse(time.RFC3339, rec.DataRange.End)
	if err != nil {
		p.errorf("data_range.end %q is not RFC3339: %v", rec.DataRange.End, err)
		return p
	}
	if end.Before(start) {
		p.errorf("data_range end %s before start %s", rec.DataRange.End, rec.DataRange.Start)
	}

	archEarliest, err1 := time.Parse(time.RFC3339, arch.Metadata.EarliestReading)
	archLatest, err2 := time.Parse(time.RFC3339, arch.Metadata.LatestReading)
	if err1 == nil && start.Before(archEarliest) {
		p.errorf("data_range.start %s precedes archive earliest %s", rec.DataRange.Start, arch.Metadata.EarliestReading)
	}
	if err2 == nil && end.After(archLatest) {
		p.errorf("data_range.end %s exceeds archive latest %s", rec.DataRange.End, arch.Metadata.LatestReading)
	}
	return p
}

// ── Phase 4: Snapshot ──

var trendValues = map[string]bool{"": true, "increasing": true, "decreasing": true, "level": true}

func validateSnapshot(snap model.CurrentConditions) *phase {
	p := &phase{name: "Phase 4: Snapshot (histories, trend)"}

	if _, err := time.Parse(time.RFC3339, snap.LastUpdated); err != nil {
		p.errorf("last_updated %q is not RFC3339: %v", snap.LastUpdated, err)
	}
	if !trendValues[snap.Flow.Trend] {
		p.errorf("flow.trend %q not in {increasing, decreasing, level}", snap.Flow.Trend)
	}
	if snap.Flow.Trend != "" && (snap.Flow.Flow == nil || snap.Flow.Flow2hAgo == nil) {
		p.errorf("flow.trend set without both flow readings")
	}

	for name, readings := range snap.Histories {
		for i := 1; i < len(readings); i++ {
			if !readings[i].Timestamp.Before(readings[i-1].Timestamp) {
				p.errorf("histories.%s[%d]: not newest-first", name, i)
				break
			}
		}
	}
	return p
}

// checkRounded verifies a published value carries no more precision than its
// documented rounding.
func checkRounded(p *phase, field string, v float64, places int) {
	if v != model.Round(v, places) {
		p.errorf("%s = %v not rounded to %d places", field, v, places)
	}
}
