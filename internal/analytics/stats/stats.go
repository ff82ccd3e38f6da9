// Package stats wraps github.com/montanaflynn/stats with total functions:
// empty or non-finite input yields 0 instead of an error.
package stats

import (
	"math"
	"sort"

	mstats "github.com/montanaflynn/stats"
)

func finite(xs []float64) mstats.Float64Data {
	result := make(mstats.Float64Data, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			result = append(result, x)
		}
	}
	return result
}

func sortedFinite(xs []float64) []float64 {
	data := finite(xs)
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return sorted
}

func Median(xs []float64) float64 {
	value, err := mstats.Median(finite(xs))
	if err != nil {
		return 0
	}
	return value
}

func Mean(xs []float64) float64 {
	value, err := mstats.Mean(finite(xs))
	if err != nil {
		return 0
	}
	return value
}

// StdDev is the population standard deviation.
func StdDev(xs []float64) float64 {
	value, err := mstats.StandardDeviationPopulation(finite(xs))
	if err != nil {
		return 0
	}
	return value
}

// CoefficientOfVariation returns stdDev/mean as a ratio, 0 when the mean is 0.
func CoefficientOfVariation(xs []float64) float64 {
	mean := Mean(xs)
	if mean == 0 {
		return 0
	}
	return StdDev(xs) / mean
}

// MAD is the median absolute deviation from the median.
func MAD(xs []float64) float64 {
	value, err := mstats.MedianAbsoluteDeviationPopulation(finite(xs))
	if err != nil {
		return 0
	}
	return value
}

func Min(xs []float64) float64 {
	value, err := mstats.Min(finite(xs))
	if err != nil {
		return 0
	}
	return value
}

func Max(xs []float64) float64 {
	value, err := mstats.Max(finite(xs))
	if err != nil {
		return 0
	}
	return value
}

// Percentile interpolates linearly between order statistics. p is a ratio in
// [0, 1] and is clamped to that range.
func Percentile(xs []float64, p float64) float64 {
	sorted := sortedFinite(xs)
	if len(sorted) == 0 {
		return 0
	}
	p = Clamp(p, 0, 1)
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// TrimmedMean drops trimRatio/2 of the samples from each tail before
// averaging. When trimming would leave nothing, the plain mean is returned.
func TrimmedMean(xs []float64, trimRatio float64) float64 {
	sorted := sortedFinite(xs)
	if len(sorted) == 0 {
		return 0
	}
	trimRatio = Clamp(trimRatio, 0, 1)
	k := int(math.Floor(float64(len(sorted)) * trimRatio / 2))
	if k*2 >= len(sorted) {
		return Mean(sorted)
	}
	return Mean(sorted[k : len(sorted)-k])
}

func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Round1 rounds to one decimal place.
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}
