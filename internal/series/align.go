package series

// AlignToGrid keeps the readings whose UTC hour is a multiple of
// intervalHours and whose minute equals minuteOffset. Input must be
// ascending; output preserves order. Two independently-sampled channels
// aligned to the same grid can then be paired timestamp-for-timestamp.
func AlignToGrid(readings []Reading, intervalHours, minuteOffset int) []Reading {
	if intervalHours <= 0 {
		intervalHours = 1
	}
	out := make([]Reading, 0, len(readings))
	for _, r := range readings {
		t := r.Timestamp.UTC()
		if t.Hour()%intervalHours != 0 || t.Minute() != minuteOffset {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Sample is one (x, y) observation paired on a shared timestamp.
type Sample struct {
	X float64
	Y float64
}

// Pair inner-joins two aligned series on timestamp, ascending by the x
// series' order. Timestamps present in only one series are skipped.
func Pair(xs, ys []Reading) []Sample {
	byTime := make(map[int64]float64, len(ys))
	for _, r := range ys {
		byTime[r.Timestamp.Unix()] = r.Value
	}
	out := make([]Sample, 0, len(xs))
	for _, r := range xs {
		if y, ok := byTime[r.Timestamp.Unix()]; ok {
			out = append(out, Sample{X: r.Value, Y: y})
		}
	}
	return out
}
