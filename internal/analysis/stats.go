package analysis

import (
	"math"
	"sort"
	"time"
)

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Percentile returns the p-th percentile of values using linear
// interpolation between closest ranks: index = (p/100)·(n−1), interpolated
// between floor and ceil, the upper index clamped to the last element.
// Returns 0 for an empty slice. The input is not mutated.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	idx := p / 100 * float64(n-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if upper > n-1 {
		upper = n - 1
	}
	if lower == upper {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// EnsembleSummary describes the spread of per-member totals at one horizon.
type EnsembleSummary struct {
	Mean float64
	P10  float64
	P90  float64
}

// SummariseEnsemble reduces one total per forecast member to mean and
// 10th/90th percentiles.
func SummariseEnsemble(memberTotals []float64) EnsembleSummary {
	return EnsembleSummary{
		Mean: Mean(memberTotals),
		P10:  Percentile(memberTotals, 10),
		P90:  Percentile(memberTotals, 90),
	}
}

// MemberTotals sums the first horizonHours hours of each member's hourly
// series. Members shorter than the horizon contribute what they have.
func MemberTotals(members [][]float64, horizonHours int) []float64 {
	totals := make([]float64, len(members))
	for i, member := range members {
		limit := horizonHours
		if limit > len(member) {
			limit = len(member)
		}
		var sum float64
		for _, v := range member[:limit] {
			sum += v
		}
		totals[i] = sum
	}
	return totals
}

// HourlyMeans collapses the members to one cross-member mean per hour.
// Hours where some members are shorter average over the members present.
func HourlyMeans(members [][]float64) []float64 {
	maxLen := 0
	for _, m := range members {
		if len(m) > maxLen {
			maxLen = len(m)
		}
	}

	means := make([]float64, maxLen)
	for h := 0; h < maxLen; h++ {
		var sum float64
		var count int
		for _, m := range members {
			if h < len(m) {
				sum += m[h]
				count++
			}
		}
		if count > 0 {
			means[h] = sum / float64(count)
		}
	}
	return means
}

// DailyTotal is the summed forecast for one calendar date.
type DailyTotal struct {
	Date  string  `json:"date"` // YYYY-MM-DD in the station's local zone
	Total float64 `json:"total"`
}

// DailyTotals buckets each hour's value by calendar date in loc and sums
// within each date, ordered by date. times and hourly run in lockstep;
// extra entries on either side are ignored.
func DailyTotals(times []time.Time, hourly []float64, loc *time.Location) []DailyTotal {
	n := len(times)
	if len(hourly) < n {
		n = len(hourly)
	}

	byDate := make(map[string]float64)
	var order []string
	for i := 0; i < n; i++ {
		date := times[i].In(loc).Format("2006-01-02")
		if _, seen := byDate[date]; !seen {
			order = append(order, date)
		}
		byDate[date] += hourly[i]
	}
	sort.Strings(order)

	out := make([]DailyTotal, len(order))
	for i, date := range order {
		out[i] = DailyTotal{Date: date, Total: byDate[date]}
	}
	return out
}
