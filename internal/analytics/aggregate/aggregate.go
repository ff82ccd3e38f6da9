// Package aggregate builds the daily and weekly rollups shown on the
// dashboard. Every builder is pure over the snapshot it receives.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"feedlog/backend/internal/analytics/interval"
	"feedlog/backend/internal/analytics/schedule"
	"feedlog/backend/internal/analytics/stats"
	"feedlog/backend/internal/feeding"
)

const dateLayout = "2006-01-02"

type DayCount struct {
	Date   string `json:"date"`
	Left   int    `json:"left"`
	Right  int    `json:"right"`
	Bottle int    `json:"bottle"`
	Total  int    `json:"total"`
}

type Summary struct {
	Count   int     `json:"count"`
	Median  float64 `json:"median"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	StdDev  float64 `json:"std_dev"`
	CV      float64 `json:"cv"`
}

type WeekStats struct {
	WeekKey   string  `json:"week_key"`
	WeekStart string  `json:"week_start"`
	AgeWeeks  int     `json:"age_weeks"`
	Day       Summary `json:"day"`
	Night     Summary `json:"night"`
}

type DaySplit struct {
	Date  string  `json:"date"`
	Day   Summary `json:"day"`
	Night Summary `json:"night"`
}

type Bucket struct {
	Label   string `json:"label"`
	MinFrom int    `json:"min_from"`
	Count   int    `json:"count"`
	Day     int    `json:"day"`
	Night   int    `json:"night"`
}

// Summarize reports CV as a percentage of the average.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	return Summary{
		Count:   len(values),
		Median:  stats.Round1(stats.Median(values)),
		Average: stats.Round1(stats.Mean(values)),
		Min:     stats.Min(values),
		Max:     stats.Max(values),
		StdDev:  stats.Round1(stats.StdDev(values)),
		CV:      stats.Round1(stats.CoefficientOfVariation(values) * 100),
	}
}

func localDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// Daily returns one zero-filled row per local calendar day in [from, to].
func Daily(events []feeding.Event, from, to time.Time, loc *time.Location) []DayCount {
	loc = location(loc)
	start := localDate(from, loc)
	end := localDate(to, loc)
	if end.Before(start) {
		return []DayCount{}
	}

	rows := make([]DayCount, 0)
	index := make(map[string]int)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format(dateLayout)
		index[key] = len(rows)
		rows = append(rows, DayCount{Date: key})
	}

	for _, event := range events {
		if !event.Valid() {
			continue
		}
		pos, ok := index[event.Timestamp.In(loc).Format(dateLayout)]
		if !ok {
			continue
		}
		row := &rows[pos]
		switch event.Side {
		case feeding.SideLeft:
			row.Left++
		case feeding.SideRight:
			row.Right++
		case feeding.SideBottle:
			row.Bottle++
		}
		row.Total++
	}
	return rows
}

// DailyRange covers the last days calendar days ending today.
func DailyRange(events []feeding.Event, days int, now time.Time, loc *time.Location) []DayCount {
	if days <= 0 {
		return []DayCount{}
	}
	return Daily(events, now.AddDate(0, 0, -(days-1)), now, loc)
}

type pair struct {
	prev    time.Time
	current time.Time
	minutes float64
}

func usablePairs(events []feeding.Event, loc *time.Location) []pair {
	ordered := feeding.SortAscending(events)
	intervals := interval.Extract(ordered, nil)
	pairs := make([]pair, 0, len(intervals))
	valid := make([]feeding.Event, 0, len(ordered))
	for _, event := range ordered {
		if event.Valid() {
			valid = append(valid, event)
		}
	}
	for i, iv := range intervals {
		if !interval.Usable(iv) {
			continue
		}
		pairs = append(pairs, pair{
			prev:    valid[i].Timestamp.In(loc),
			current: valid[i+1].Timestamp.In(loc),
			minutes: float64(iv.Minutes),
		})
	}
	return pairs
}

func ageAt(birthDate *time.Time, at time.Time) int {
	if birthDate == nil {
		return 0
	}
	return schedule.AgeInWeeks(*birthDate, at)
}

// localBirth returns birthDate anchored at local midnight, or nil.
func localBirth(birthDate *time.Time, loc *time.Location) *time.Time {
	if birthDate == nil {
		return nil
	}
	birth := schedule.BirthMidnight(*birthDate, loc)
	return &birth
}

func eitherNight(p pair, s schedule.Schedule) bool {
	return schedule.IsNightScheduled(p.prev, s) || schedule.IsNightScheduled(p.current, s)
}

type weekAccumulator struct {
	stats WeekStats
	start time.Time
	day   []float64
	night []float64
}

// WeeklyMedians groups usable intervals into ISO weeks, or into 7-day age
// weeks anchored at birthDate when one is given.
func WeeklyMedians(events []feeding.Event, birthDate *time.Time, loc *time.Location) []WeekStats {
	loc = location(loc)
	birthDate = localBirth(birthDate, loc)
	weeks := make(map[string]*weekAccumulator)
	for _, p := range usablePairs(events, loc) {
		age := ageAt(birthDate, p.current)
		var key string
		var start time.Time
		if birthDate != nil {
			key = fmt.Sprintf("age-week-%d", age)
			start = birthDate.AddDate(0, 0, 7*age)
		} else {
			year, week := p.current.ISOWeek()
			key = fmt.Sprintf("%d-W%02d", year, week)
			day := localDate(p.current, loc)
			offset := (int(day.Weekday()) + 6) % 7
			start = day.AddDate(0, 0, -offset)
		}

		acc, ok := weeks[key]
		if !ok {
			acc = &weekAccumulator{
				stats: WeekStats{WeekKey: key, WeekStart: start.Format(dateLayout), AgeWeeks: age},
				start: start,
			}
			weeks[key] = acc
		}
		if eitherNight(p, schedule.ForAge(age)) {
			acc.night = append(acc.night, p.minutes)
		} else {
			acc.day = append(acc.day, p.minutes)
		}
	}

	ordered := make([]*weekAccumulator, 0, len(weeks))
	for _, acc := range weeks {
		ordered = append(ordered, acc)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].start.Before(ordered[j].start) })

	result := make([]WeekStats, 0, len(ordered))
	for _, acc := range ordered {
		acc.stats.Day = Summarize(acc.day)
		acc.stats.Night = Summarize(acc.night)
		result = append(result, acc.stats)
	}
	return result
}

// RecentDays splits the last days calendar days into day and night
// summaries. A night interval whose later feeding lands at or after the
// night start belongs to the following day's "last night" bucket; buckets
// past today are not reported.
func RecentDays(events []feeding.Event, days int, now time.Time, birthDate *time.Time, loc *time.Location) []DaySplit {
	if days <= 0 {
		return []DaySplit{}
	}
	loc = location(loc)
	birthDate = localBirth(birthDate, loc)
	today := localDate(now, loc)
	start := today.AddDate(0, 0, -(days - 1))

	keys := make([]string, 0, days)
	dayValues := make(map[string][]float64, days)
	nightValues := make(map[string][]float64, days)
	for day := start; !day.After(today); day = day.AddDate(0, 0, 1) {
		key := day.Format(dateLayout)
		keys = append(keys, key)
		dayValues[key] = nil
	}

	for _, p := range usablePairs(events, loc) {
		s := schedule.ForAge(ageAt(birthDate, p.current))
		night := eitherNight(p, s)
		bucket := localDate(p.current, loc)
		if night && p.current.Hour() >= s.NightStartHour {
			bucket = bucket.AddDate(0, 0, 1)
		}
		key := bucket.Format(dateLayout)
		if _, ok := dayValues[key]; !ok {
			continue
		}
		if night {
			nightValues[key] = append(nightValues[key], p.minutes)
		} else {
			dayValues[key] = append(dayValues[key], p.minutes)
		}
	}

	result := make([]DaySplit, 0, len(keys))
	for _, key := range keys {
		result = append(result, DaySplit{
			Date:  key,
			Day:   Summarize(dayValues[key]),
			Night: Summarize(nightValues[key]),
		})
	}
	return result
}

const (
	bucketWidthMinutes = 60
	bucketCount        = 7
)

// RecordBuckets histograms usable intervals in hour-wide buckets; the last
// bucket is open ended (6h+).
func RecordBuckets(intervals []interval.Interval) []Bucket {
	buckets := make([]Bucket, bucketCount)
	for i := range buckets {
		from := i * bucketWidthMinutes
		buckets[i].MinFrom = from
		if i == bucketCount-1 {
			buckets[i].Label = fmt.Sprintf("%dh+", i)
		} else {
			buckets[i].Label = fmt.Sprintf("%d-%dh", i, i+1)
		}
	}
	for _, iv := range intervals {
		if !interval.Usable(iv) {
			continue
		}
		idx := iv.Minutes / bucketWidthMinutes
		if idx >= bucketCount {
			idx = bucketCount - 1
		}
		buckets[idx].Count++
		if iv.IsNight {
			buckets[idx].Night++
		} else {
			buckets[idx].Day++
		}
	}
	return buckets
}
