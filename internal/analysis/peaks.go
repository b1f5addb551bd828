package analysis

import (
	"time"

	"github.com/oxriver/flowmodel/internal/series"
)

// Peak is a local maximum in a grid-aligned series.
type Peak struct {
	Index     int
	Timestamp time.Time
	Value     float64
}

// FindPeaks scans points for local maxima. A point qualifies when its value
// is at least minValue and equals the maximum of the closed window
// [i−halfWindow, i+halfWindow]. Points closer than halfWindow to either end
// are never evaluated. A candidate within minGap indices of the previously
// accepted peak merges with it: the larger value wins. This is a
// sliding-window scan, not a global-maximum search; several peaks per series
// are expected.
func FindPeaks(points []series.Reading, minValue float64, halfWindow, minGap int) []Peak {
	var peaks []Peak
	for i := halfWindow; i < len(points)-halfWindow; i++ {
		v := points[i].Value
		if v < minValue {
			continue
		}
		if !windowMax(points, i, halfWindow) {
			continue
		}

		candidate := Peak{Index: i, Timestamp: points[i].Timestamp, Value: v}
		if len(peaks) > 0 && i-peaks[len(peaks)-1].Index < minGap {
			if v > peaks[len(peaks)-1].Value {
				peaks[len(peaks)-1] = candidate
			}
			continue
		}
		peaks = append(peaks, candidate)
	}
	return peaks
}

// windowMax reports whether points[i] is >= every value in the closed
// window around it.
func windowMax(points []series.Reading, i, halfWindow int) bool {
	for j := i - halfWindow; j <= i+halfWindow; j++ {
		if points[j].Value > points[i].Value {
			return false
		}
	}
	return true
}
