package analysis

import (
	"math"
	"time"

	"github.com/oxriver/flowmodel/internal/series"
)

// DecayConfig tunes the per-peak recession fit. Counts are in grid points of
// the aligned series (2-hour points by default), so LookbackStart 84 reaches
// a week before the peak and MaxLookahead 180 follows it for 15 days.
type DecayConfig struct {
	LookbackStart  int     // baseline window begins this many points before the peak
	LookbackEnd    int     // and ends this many points before it, excluding the rising limb
	MinRise        float64 // smallest peak-over-baseline amplitude worth modelling
	ReRiseAfter    float64 // hours after the peak before re-rise detection arms
	ReRiseSpan     int     // consecutive grid points a re-rise is measured over
	MaxLookahead   int     // hard bound on points collected past the peak
	MinDecayPoints int     // collected points required before fitting
	MinLogPoints   int     // in-band log points required for the fit
	MinRSquared    float64 // log-linear fit quality gate
}

// DefaultDecayConfig returns the tuning used for the 2-hour grid.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		LookbackStart:  84,
		LookbackEnd:    12,
		MinRise:        5,
		ReRiseAfter:    12,
		ReRiseSpan:     3,
		MaxLookahead:   180,
		MinDecayPoints: 6,
		MinLogPoints:   4,
		MinRSquared:    0.5,
	}
}

// DecayFit is an accepted recession model for the falling limb after one
// peak: value(t) = baseline + amplitude·exp(−t/τ).
type DecayFit struct {
	PeakTime      time.Time
	PeakValue     float64
	Baseline      float64
	Amplitude     float64
	TauHours      float64
	HalfLifeHours float64
	RSquared      float64
	NFitPoints    int
}

// DecaySummary aggregates the accepted fits for one channel.
type DecaySummary struct {
	Baseline       float64
	TauMean        float64
	TauMedian      float64
	HalfLifeMean   float64
	HalfLifeMedian float64
	NPeaks         int
}

// FitDecays fits a recession model after each peak. Every rejection along
// the way is a silent, expected outcome; the returned slice holds only fits
// with a decaying slope and R² above the configured gate.
func FitDecays(points []series.Reading, peaks []Peak, cfg DecayConfig) []DecayFit {
	var fits []DecayFit
	for i, peak := range peaks {
		var next *Peak
		if i+1 < len(peaks) {
			next = &peaks[i+1]
		}
		if fit, ok := fitOne(points, peak, next, cfg); ok {
			fits = append(fits, fit)
		}
	}
	return fits
}

func fitOne(points []series.Reading, peak Peak, next *Peak, cfg DecayConfig) (DecayFit, bool) {
	baseline, ok := baselineBefore(points, peak.Index, cfg)
	if !ok {
		return DecayFit{}, false
	}

	amplitude := peak.Value - baseline
	if amplitude < cfg.MinRise {
		return DecayFit{}, false
	}

	hours, values := collectLimb(points, peak, next, cfg)
	if len(values) < cfg.MinDecayPoints {
		return DecayFit{}, false
	}

	// Keep only points inside the usable ratio band: near or below the
	// baseline the log blows up, above the amplitude it is noise.
	var logHours, logRatios []float64
	for i, v := range values {
		ratio := (v - baseline) / amplitude
		if ratio > 0.01 && ratio <= 1.0 {
			logHours = append(logHours, hours[i])
			logRatios = append(logRatios, math.Log(ratio))
		}
	}
	if len(logHours) < cfg.MinLogPoints {
		return DecayFit{}, false
	}

	slope, _, rSquared := olsFit(logHours, logRatios)
	if slope >= 0 {
		return DecayFit{}, false
	}
	if rSquared <= cfg.MinRSquared {
		return DecayFit{}, false
	}

	tau := -1 / slope
	return DecayFit{
		PeakTime:      peak.Timestamp,
		PeakValue:     peak.Value,
		Baseline:      baseline,
		Amplitude:     amplitude,
		TauHours:      tau,
		HalfLifeHours: tau * math.Ln2,
		RSquared:      rSquared,
		NFitPoints:    len(logHours),
	}, true
}

// baselineBefore finds the minimum value in the lookback window strictly
// preceding the peak. The window starts LookbackStart points back and ends
// LookbackEnd points back so the rising limb is excluded; when that window
// holds nothing it widens to the full history before the peak.
func baselineBefore(points []series.Reading, peakIdx int, cfg DecayConfig) (float64, bool) {
	start := peakIdx - cfg.LookbackStart
	if start < 0 {
		start = 0
	}
	end := peakIdx - cfg.LookbackEnd
	if end <= start {
		start, end = 0, peakIdx
	}
	if end <= start {
		return 0, false
	}

	minimum := points[start].Value
	for _, p := range points[start+1 : end] {
		if p.Value < minimum {
			minimum = p.Value
		}
	}
	return minimum, true
}

// collectLimb walks forward from the peak gathering (hours-since-peak,
// value) pairs until the next accepted peak is reached, a re-rise is
// detected, or the lookahead bound runs out.
func collectLimb(points []series.Reading, peak Peak, next *Peak, cfg DecayConfig) (hours, values []float64) {
	for j := peak.Index; j < len(points) && j-peak.Index <= cfg.MaxLookahead; j++ {
		if next != nil && !points[j].Timestamp.Before(next.Timestamp) {
			break
		}

		h := points[j].Timestamp.Sub(peak.Timestamp).Hours()
		if h > cfg.ReRiseAfter && j-cfg.ReRiseSpan >= peak.Index &&
			points[j].Value-points[j-cfg.ReRiseSpan].Value > cfg.MinRise {
			break
		}

		hours = append(hours, h)
		values = append(values, points[j].Value)
	}
	return hours, values
}

// SummariseDecays reduces the accepted fits to mean and median τ and
// half-life. With no accepted fits the caller-supplied default τ is
// published with a zero peak count rather than failing the run.
func SummariseDecays(fits []DecayFit, defaultTauHours, baseline float64) DecaySummary {
	if len(fits) == 0 {
		return DecaySummary{
			Baseline:       baseline,
			TauMean:        defaultTauHours,
			TauMedian:      defaultTauHours,
			HalfLifeMean:   defaultTauHours * math.Ln2,
			HalfLifeMedian: defaultTauHours * math.Ln2,
		}
	}

	taus := make([]float64, len(fits))
	halves := make([]float64, len(fits))
	for i, f := range fits {
		taus[i] = f.TauHours
		halves[i] = f.HalfLifeHours
	}

	return DecaySummary{
		Baseline:       baseline,
		TauMean:        Mean(taus),
		TauMedian:      Percentile(taus, 50),
		HalfLifeMean:   Mean(halves),
		HalfLifeMedian: Percentile(halves, 50),
		NPeaks:         len(fits),
	}
}
