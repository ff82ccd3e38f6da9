// Package interval turns a sorted feeding sequence into inter-feeding
// intervals.
package interval

import (
	"math"
	"time"

	"feedlog/backend/internal/feeding"
)

type Interval struct {
	Minutes    int          `json:"minutes"`
	IsNight    bool         `json:"is_night"`
	Timestamp  time.Time    `json:"timestamp"`
	Side       feeding.Side `json:"side"`
	UnixMillis int64        `json:"unix_ms"`
	TrendLine  *float64     `json:"trend_line,omitempty"`
}

// NightFunc decides the day/night tag of an interval from its later event.
type NightFunc func(time.Time) bool

// Extract expects events ascending by timestamp. Events without a usable
// timestamp are skipped; intervals only join consecutive usable events.
func Extract(events []feeding.Event, isNight NightFunc) []Interval {
	result := make([]Interval, 0, len(events))
	var prev *feeding.Event
	for idx := range events {
		current := events[idx]
		if !current.Valid() {
			continue
		}
		if prev != nil {
			minutes := int(math.Round(float64(current.Timestamp.Sub(prev.Timestamp).Milliseconds()) / 60000))
			night := false
			if isNight != nil {
				night = isNight(current.Timestamp)
			}
			result = append(result, Interval{
				Minutes:    minutes,
				IsNight:    night,
				Timestamp:  current.Timestamp,
				Side:       current.Side,
				UnixMillis: current.Timestamp.UnixMilli(),
			})
		}
		prev = &events[idx]
	}
	return result
}

// Usable reports whether an interval belongs in record and prediction pools.
func Usable(iv Interval) bool {
	return iv.Minutes >= feeding.MinIntervalMinutes && iv.Minutes <= feeding.MaxIntervalMinutes
}

func FilterUsable(intervals []Interval) []Interval {
	result := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if Usable(iv) {
			result = append(result, iv)
		}
	}
	return result
}

func Minutes(intervals []Interval) []float64 {
	result := make([]float64, len(intervals))
	for i, iv := range intervals {
		result[i] = float64(iv.Minutes)
	}
	return result
}
