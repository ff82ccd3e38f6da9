// Package schedule maps a baby's age to a day/night boundary and classifies
// instants and intervals against it.
//
// Two night rules coexist. IsNight follows the age-based Schedule and is used
// for display and aggregation. IsNightFixed is the narrower 22:00-07:00 rule
// that prediction slots and records were built on; the two are intentionally
// kept separate.
package schedule

import "time"

type Schedule struct {
	DayStartHour     int `json:"day_start_hour"`
	DayStartMinute   int `json:"day_start_minute"`
	NightStartHour   int `json:"night_start_hour"`
	NightStartMinute int `json:"night_start_minute"`
}

func (s Schedule) DayStartMinutes() int {
	return s.DayStartHour*60 + s.DayStartMinute
}

func (s Schedule) NightStartMinutes() int {
	return s.NightStartHour*60 + s.NightStartMinute
}

type ageBand struct {
	maxWeeks    int
	nightHour   int
	nightMinute int
}

// Upper bounds are inclusive; the last band is open-ended.
var ageBands = []ageBand{
	{maxWeeks: 12, nightHour: 21, nightMinute: 0},
	{maxWeeks: 24, nightHour: 20, nightMinute: 0},
	{maxWeeks: 52, nightHour: 19, nightMinute: 30},
	{maxWeeks: -1, nightHour: 19, nightMinute: 0},
}

const (
	dayStartHour   = 7
	dayStartMinute = 0

	fixedNightStartHour = 22
	fixedDayStartHour   = 7
)

// ForAge returns the schedule for a baby of the given age in weeks.
func ForAge(ageWeeks int) Schedule {
	band := ageBands[len(ageBands)-1]
	for _, candidate := range ageBands {
		if candidate.maxWeeks < 0 || ageWeeks <= candidate.maxWeeks {
			band = candidate
			break
		}
	}
	return Schedule{
		DayStartHour:     dayStartHour,
		DayStartMinute:   dayStartMinute,
		NightStartHour:   band.nightHour,
		NightStartMinute: band.nightMinute,
	}
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// IsNight evaluates t in its own location against s. Night wraps midnight.
func IsNight(t time.Time, s Schedule) bool {
	m := minuteOfDay(t)
	return m >= s.NightStartMinutes() || m < s.DayStartMinutes()
}

// IsNightScheduled is an alias of IsNight kept for call sites that sit next
// to IsNightFixed.
func IsNightScheduled(t time.Time, s Schedule) bool {
	return IsNight(t, s)
}

// IsNightFixed applies the age-independent 22:00-07:00 rule.
func IsNightFixed(t time.Time) bool {
	hour := t.Hour()
	return hour >= fixedNightStartHour || hour < fixedDayStartHour
}

// DayFraction returns the percentage (0-100) of [start, end] that falls inside
// the daytime windows of s, walking calendar days in start's location.
func DayFraction(start, end time.Time, s Schedule) float64 {
	if !end.After(start) {
		return 0
	}
	loc := start.Location()
	end = end.In(loc)
	total := end.Sub(start)

	var dayTime time.Duration
	cursor := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	for !cursor.After(end) {
		windowStart := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), s.DayStartHour, s.DayStartMinute, 0, 0, loc)
		windowEnd := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), s.NightStartHour, s.NightStartMinute, 0, 0, loc)
		lo := windowStart
		if start.After(lo) {
			lo = start
		}
		hi := windowEnd
		if end.Before(hi) {
			hi = end
		}
		if hi.After(lo) {
			dayTime += hi.Sub(lo)
		}
		cursor = time.Date(cursor.Year(), cursor.Month(), cursor.Day()+1, 0, 0, 0, 0, loc)
	}
	return float64(dayTime) / float64(total) * 100
}

// ClassifyInterval reports whether [start, end] counts as night. More than
// half daytime is day; an exact 50% split is night.
func ClassifyInterval(start, end time.Time, s Schedule) bool {
	return DayFraction(start, end, s) <= 50
}

// AgeInWeeks returns the completed weeks between birth and at, never negative.
func AgeInWeeks(birth, at time.Time) int {
	if birth.IsZero() || at.Before(birth) {
		return 0
	}
	return int(at.Sub(birth).Hours() / 24 / 7)
}

// BirthMidnight anchors a birth date at midnight of its calendar date in loc.
// Birth dates are dates, not instants, so the components are taken as given.
func BirthMidnight(birth time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(birth.Year(), birth.Month(), birth.Day(), 0, 0, 0, 0, loc)
}
