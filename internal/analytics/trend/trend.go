// Package trend fits the dotted least-squares overlay drawn over interval
// charts. It is cosmetic and nothing in prediction or records depends on it.
package trend

import (
	mstats "github.com/montanaflynn/stats"

	"feedlog/backend/internal/analytics/interval"
)

// Fit regresses values against their index. ok is false with fewer than two
// points or a singular design.
func Fit(values []float64) (slope, intercept float64, ok bool) {
	n := float64(len(values))
	if len(values) < 2 {
		return 0, 0, false
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denominator := n*sumXX - sumX*sumX
	if denominator == 0 {
		return 0, 0, false
	}
	slope = (n*sumXY - sumX*sumY) / denominator
	intercept = (sumY - slope*sumX) / n
	return slope, intercept, true
}

// Attach returns a copy of intervals with TrendLine populated.
func Attach(intervals []interval.Interval) []interval.Interval {
	result := make([]interval.Interval, len(intervals))
	copy(result, intervals)
	if _, _, ok := Fit(interval.Minutes(intervals)); !ok {
		return result
	}

	series := make(mstats.Series, len(intervals))
	for i, iv := range intervals {
		series[i] = mstats.Coordinate{X: float64(i), Y: float64(iv.Minutes)}
	}
	fitted, err := mstats.LinearRegression(series)
	if err != nil || len(fitted) != len(result) {
		return result
	}
	for i := range result {
		value := fitted[i].Y
		result[i].TrendLine = &value
	}
	return result
}
