// Package bedtime estimates an evening bedtime window from the feeding that
// precedes the first long night stretch.
package bedtime

import (
	"fmt"
	"math"
	"time"

	"feedlog/backend/internal/analytics/stats"
	"feedlog/backend/internal/feeding"
)

type Status string

const (
	StatusTooYoung      Status = "too-young"
	StatusNotEnoughData Status = "not-enough-data"
	StatusLearning      Status = "learning"
	StatusReady         Status = "ready"
)

const (
	MinAgeWeeks       = 10
	WindowDays        = 30
	MinCandidates     = 10
	LongStretchMinute = 240

	eveningStartMinutes = 17 * 60
	fullSampleSize      = 20
	fullIQRMinutes      = 120
	recentSampleCount   = 5
)

type Bucket struct {
	Label      string `json:"label"`
	Candidates int    `json:"candidates"`
	Others     int    `json:"others"`
}

type Sample struct {
	Date       string `json:"date"`
	Time       string `json:"time"`
	Minutes    int    `json:"minutes"`
	GapMinutes int    `json:"gap_minutes"`
}

type Result struct {
	Status             Status   `json:"status"`
	NightsNeeded       int      `json:"nights_needed,omitempty"`
	SampleSize         int      `json:"sample_size"`
	TotalEvents        int      `json:"total_events"`
	WindowStartMinutes int      `json:"window_start_minutes"`
	WindowEndMinutes   int      `json:"window_end_minutes"`
	MedianMinutes      int      `json:"median_minutes"`
	Reliability        int      `json:"reliability"`
	AverageGapMinutes  float64  `json:"average_gap_minutes,omitempty"`
	MedianGapMinutes   float64  `json:"median_gap_minutes,omitempty"`
	CoarseBuckets      []Bucket `json:"coarse_buckets,omitempty"`
	EveningBuckets     []Bucket `json:"evening_buckets,omitempty"`
	RecentSamples      []Sample `json:"recent_samples,omitempty"`
}

type localEvent struct {
	at      time.Time
	date    string
	minutes int
}

type candidate struct {
	local localEvent
	gap   float64
}

var coarseLabels = []string{"before-17", "17-19", "19-21", "21+"}

var eveningLabels = []string{"17-18", "18-19", "19-20", "20-21", "21-22", "22+"}

func coarseIndex(minutes int) int {
	switch {
	case minutes < 17*60:
		return 0
	case minutes < 19*60:
		return 1
	case minutes < 21*60:
		return 2
	default:
		return 3
	}
}

// eveningIndex is only meaningful for minutes at or after 17:00.
func eveningIndex(minutes int) int {
	idx := minutes/60 - 17
	if idx > len(eveningLabels)-1 {
		idx = len(eveningLabels) - 1
	}
	return idx
}

func newBuckets(labels []string) []Bucket {
	buckets := make([]Bucket, len(labels))
	for i, label := range labels {
		buckets[i] = Bucket{Label: label}
	}
	return buckets
}

// Estimate never fails; insufficient history is reported through Status.
func Estimate(events []feeding.Event, ageWeeks int, now time.Time, loc *time.Location) Result {
	if ageWeeks < MinAgeWeeks {
		return Result{Status: StatusTooYoung}
	}
	if loc == nil {
		loc = time.UTC
	}

	cutoff := now.AddDate(0, 0, -WindowDays)
	ordered := feeding.SortAscending(events)
	local := make([]localEvent, 0, len(ordered))
	for _, event := range ordered {
		if event.Timestamp.Before(cutoff) || event.Timestamp.After(now) {
			continue
		}
		at := event.Timestamp.In(loc)
		local = append(local, localEvent{
			at:      at,
			date:    at.Format("2006-01-02"),
			minutes: at.Hour()*60 + at.Minute(),
		})
	}
	if len(local) < 2 {
		return Result{Status: StatusNotEnoughData, TotalEvents: len(local)}
	}

	coarse := newBuckets(coarseLabels)
	evening := newBuckets(eveningLabels)
	candidates := make([]candidate, 0)
	for idx := 0; idx < len(local)-1; idx++ {
		current := local[idx]
		next := local[idx+1]
		gapToNext := next.at.Sub(current.at).Minutes()
		crossesDay := next.date != current.date
		isCandidate := gapToNext >= LongStretchMinute && (crossesDay || current.minutes >= eveningStartMinutes)

		tally := func(b *Bucket) {
			if isCandidate {
				b.Candidates++
			} else {
				b.Others++
			}
		}
		tally(&coarse[coarseIndex(current.minutes)])
		if current.minutes >= eveningStartMinutes {
			tally(&evening[eveningIndex(current.minutes)])
		}
		if isCandidate {
			candidates = append(candidates, candidate{local: current, gap: gapToNext})
		}
	}

	result := Result{
		SampleSize:     len(candidates),
		TotalEvents:    len(local),
		CoarseBuckets:  coarse,
		EveningBuckets: evening,
	}
	if len(candidates) < MinCandidates {
		result.Status = StatusLearning
		result.NightsNeeded = MinCandidates - len(candidates)
		return result
	}

	minutes := make([]float64, len(candidates))
	gaps := make([]float64, len(candidates))
	for i, c := range candidates {
		minutes[i] = float64(c.local.minutes)
		gaps[i] = c.gap
	}
	p25 := stats.Percentile(minutes, 0.25)
	p75 := stats.Percentile(minutes, 0.75)
	iqr := p75 - p25
	score := 0.5*math.Min(float64(len(candidates))/fullSampleSize, 1) + 0.5*math.Max(0, 1-iqr/fullIQRMinutes)

	result.Status = StatusReady
	result.WindowStartMinutes = int(math.Round(p25))
	result.WindowEndMinutes = int(math.Round(p75))
	result.MedianMinutes = int(math.Round(stats.Median(minutes)))
	result.Reliability = int(math.Round(score * 100))
	result.AverageGapMinutes = stats.Round1(stats.Mean(gaps))
	result.MedianGapMinutes = stats.Round1(stats.Median(gaps))

	for i := len(candidates) - 1; i >= 0 && len(result.RecentSamples) < recentSampleCount; i-- {
		c := candidates[i]
		result.RecentSamples = append(result.RecentSamples, Sample{
			Date:       c.local.date,
			Time:       c.local.at.Format("15:04"),
			Minutes:    c.local.minutes,
			GapMinutes: int(math.Round(c.gap)),
		})
	}
	return result
}

// FormatMinutes renders minutes since midnight as HH:MM.
func FormatMinutes(minutes int) string {
	minutes = ((minutes % 1440) + 1440) % 1440
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
