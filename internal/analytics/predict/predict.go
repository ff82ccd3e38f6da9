// Package predict estimates the next feeding time from recent intervals.
package predict

import (
	"math"
	"time"

	"feedlog/backend/internal/analytics/interval"
	"feedlog/backend/internal/analytics/schedule"
	"feedlog/backend/internal/analytics/stats"
	"feedlog/backend/internal/feeding"
)

const (
	SourceSlot     = "slot"
	SourceDayNight = "day_night"
	SourceWindow   = "window"
	SourceDefault  = "default"

	defaultReliability = 10

	clusterStartHour      = 17
	clusterEndHour        = 21
	clusterSlotMinSamples = 5
	clusterMedianRatio    = 0.7
	clusterLookback       = 3 * time.Hour
	clusterMinFeedings    = 3

	recencyShareThreshold = 0.7
)

type Result struct {
	ExpectedIntervalMinutes float64 `json:"expected_interval_minutes"`
	ProbWindowMinutes       float64 `json:"prob_window_minutes"`
	NextFeedingPrediction   float64 `json:"next_feeding_prediction"`
	IsLikelyWindow          bool    `json:"is_likely_window"`
	ReliabilityIndex        int     `json:"reliability_index"`
	IsClusterFeeding        bool    `json:"is_cluster_feeding"`
	TimeSinceLastMinutes    float64 `json:"time_since_last_minutes"`
	Source                  string  `json:"source"`
	SampleSize              int     `json:"sample_size"`
	WindowHours             int     `json:"window_hours"`
}

type options struct {
	params        Params
	loc           *time.Location
	timeSinceLast float64
	overrideSince bool
}

type Option func(*options)

func WithParams(p Params) Option {
	return func(o *options) { o.params = p }
}

// WithLocation sets the zone used for hour-of-day decisions.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithTimeSinceLast overrides the elapsed minutes since the last feeding.
func WithTimeSinceLast(minutes float64) Option {
	return func(o *options) {
		o.timeSinceLast = minutes
		o.overrideSince = true
	}
}

// Predict returns nil when there is no usable event.
func Predict(events []feeding.Event, totalEventCount, ageWeeks int, now time.Time, opts ...Option) *Result {
	o := options{params: DefaultParams(), loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	p := o.params

	sorted := feeding.SortAscending(events)
	if len(sorted) == 0 {
		return nil
	}
	now = now.In(o.loc)
	last := sorted[len(sorted)-1].Timestamp

	timeSince := now.Sub(last).Minutes()
	if o.overrideSince {
		timeSince = o.timeSinceLast
	}

	nightFixed := func(t time.Time) bool { return schedule.IsNightFixed(t.In(o.loc)) }
	usableAll := interval.FilterUsable(interval.Extract(sorted, nightFixed))

	windowHours := TimeWindowHours(ageWeeks, totalEventCount)
	cutoff := now.Add(-time.Duration(windowHours) * time.Hour)
	windowed := make([]interval.Interval, 0, len(usableAll))
	for _, iv := range usableAll {
		if !iv.Timestamp.Before(cutoff) {
			windowed = append(windowed, iv)
		}
	}
	inWindowShare := 0.0
	if len(usableAll) > 0 {
		inWindowShare = float64(len(windowed)) / float64(len(usableAll))
	}
	if len(windowed) < 2 {
		windowed = usableAll
	}

	slotPools := make(map[string][]float64, len(slots))
	var dayPool, nightPool, allPool []float64
	for _, iv := range windowed {
		minutes := float64(iv.Minutes)
		key := slotForHour(iv.Timestamp.In(o.loc).Hour())
		slotPools[key] = append(slotPools[key], minutes)
		if iv.IsNight {
			nightPool = append(nightPool, minutes)
		} else {
			dayPool = append(dayPool, minutes)
		}
		allPool = append(allPool, minutes)
	}

	currentHour := now.Hour()
	nightNow := schedule.IsNightFixed(now)
	pool, source := selectPool(
		slotPools[slotForHour(currentHour)],
		dayPool,
		nightPool,
		allPool,
		nightNow,
		MinSlotSamples(ageWeeks, totalEventCount),
		p.FixedMinSamples,
	)

	var expected float64
	reliability := defaultReliability
	if len(usableAll) < p.MinHistory || len(pool) == 0 {
		expected = DefaultInterval(ageWeeks, nightNow)
		source = SourceDefault
	} else {
		expected = stats.Clamp(
			stats.TrimmedMean(pool, p.OutlierTrimRatio),
			p.ClampMin,
			ClampMax(ageWeeks, totalEventCount),
		)
		if inClusterHours(currentHour) {
			evening := slotPools[eveningSlotKey]
			if len(evening) > clusterSlotMinSamples {
				eveningMedian := stats.Median(evening)
				if eveningMedian < expected*clusterMedianRatio {
					expected = eveningMedian
				}
			}
		}

		cv := stats.CoefficientOfVariation(pool)
		recency := 0.1
		if inWindowShare >= recencyShareThreshold {
			recency = 0.2
		}
		score := 0.4*math.Min(float64(len(pool))/10, 1) + 0.4*math.Max(0, 1-cv) + recency
		reliability = int(math.Round(stats.Clamp(score*100, 0, 100)))
	}

	width := math.Max(stats.MAD(pool)*p.MADScale, math.Max(expected*p.WindowFloorRatio, p.WindowMin))
	width = stats.Clamp(width, p.WindowMin, p.WindowMax)
	width = stats.Clamp(width*(1+stats.CoefficientOfVariation(pool)*0.5), p.WindowMin, p.WindowMax)

	expected = stats.Round1(expected)
	width = stats.Round1(width)
	half := width / 2

	return &Result{
		ExpectedIntervalMinutes: expected,
		ProbWindowMinutes:       width,
		NextFeedingPrediction:   stats.Round1(math.Max(0, expected-timeSince)),
		IsLikelyWindow:          timeSince >= expected-half && timeSince <= expected+half,
		ReliabilityIndex:        reliability,
		IsClusterFeeding:        inClusterHours(currentHour) && countSince(sorted, now.Add(-clusterLookback), now) >= clusterMinFeedings,
		TimeSinceLastMinutes:    stats.Round1(timeSince),
		Source:                  source,
		SampleSize:              len(pool),
		WindowHours:             windowHours,
	}
}

func selectPool(current, day, night, all []float64, nightNow bool, slotMin, fixedMin int) ([]float64, string) {
	if len(current) >= slotMin {
		return current, SourceSlot
	}
	dayNight := day
	if nightNow {
		dayNight = night
	}
	if len(dayNight) >= fixedMin {
		return dayNight, SourceDayNight
	}
	if len(all) >= 2 {
		return all, SourceWindow
	}
	return nil, SourceDefault
}

func inClusterHours(hour int) bool {
	return hour >= clusterStartHour && hour <= clusterEndHour
}

func countSince(events []feeding.Event, from, to time.Time) int {
	count := 0
	for _, event := range events {
		if !event.Timestamp.Before(from) && !event.Timestamp.After(to) {
			count++
		}
	}
	return count
}
