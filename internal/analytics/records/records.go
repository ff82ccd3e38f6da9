// Package records keeps the top three longest feeding intervals (gold,
// silver, bronze) for day and night, rebuilt from the trailing 30 days.
package records

import (
	"context"
	"math"
	"sort"
	"time"

	"feedlog/backend/internal/analytics/interval"
	"feedlog/backend/internal/analytics/schedule"
	"feedlog/backend/internal/feeding"
)

type Rank string

const (
	RankGold   Rank = "gold"
	RankSilver Rank = "silver"
	RankBronze Rank = "bronze"
)

// WindowDays is the history span records are computed over.
const WindowDays = 30

const (
	maxEntries       = 3
	approachingRatio = 0.8
)

// rankOrder maps a position in a descending pool to its medal.
var rankOrder = [maxEntries]Rank{RankGold, RankSilver, RankBronze}

type Entry struct {
	Interval  int       `json:"interval"`
	Timestamp time.Time `json:"timestamp"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
}

type Set struct {
	Day   []Entry `json:"day"`
	Night []Entry `json:"night"`
}

func (s Set) pool(night bool) []Entry {
	if night {
		return s.Night
	}
	return s.Day
}

type Broken struct {
	Rank        Rank   `json:"rank"`
	OldRecord   int    `json:"old_record"`
	NewRecord   int    `json:"new_record"`
	Improvement int    `json:"improvement"`
	IsNight     bool   `json:"is_night"`
	BeatenRanks []Rank `json:"beaten_ranks"`
}

// Notifier receives broken records. Implementations must not block the
// caller; the celebration is fire-and-forget.
type Notifier interface {
	RecordBroken(ctx context.Context, userID string, broken Broken)
}

// FirstRecordThreshold is the minimum interval that may open an empty pool.
func FirstRecordThreshold(ageWeeks int) int {
	switch {
	case ageWeeks < 4:
		return 30
	case ageWeeks < 12:
		return 45
	default:
		return 60
	}
}

func isNight(loc *time.Location) interval.NightFunc {
	if loc == nil {
		loc = time.UTC
	}
	return func(t time.Time) bool {
		return schedule.IsNightFixed(t.In(loc))
	}
}

// Update rebuilds the record set from scratch. Calling it twice on the same
// snapshot yields identical sets.
func Update(events []feeding.Event, loc *time.Location) Set {
	if loc == nil {
		loc = time.UTC
	}
	intervals := interval.FilterUsable(interval.Extract(feeding.SortAscending(events), isNight(loc)))

	var day, night []interval.Interval
	for _, iv := range intervals {
		if iv.IsNight {
			night = append(night, iv)
		} else {
			day = append(day, iv)
		}
	}
	return Set{
		Day:   topEntries(day, loc),
		Night: topEntries(night, loc),
	}
}

func topEntries(intervals []interval.Interval, loc *time.Location) []Entry {
	ordered := make([]interval.Interval, len(intervals))
	copy(ordered, intervals)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Minutes > ordered[j].Minutes
	})

	entries := make([]Entry, 0, maxEntries)
	for _, iv := range ordered {
		if len(entries) == maxEntries {
			break
		}
		if iv.Minutes <= 0 || iv.Timestamp.IsZero() {
			continue
		}
		local := iv.Timestamp.In(loc)
		entries = append(entries, Entry{
			Interval:  iv.Minutes,
			Timestamp: iv.Timestamp.UTC(),
			Date:      local.Format("2006-01-02"),
			Time:      local.Format("15:04"),
		})
	}
	return entries
}

// CheckNew reports the highest record the interval from previous to newEvent
// beats, or nil. set must not already contain the new interval. Ties count as
// beaten. Slots missing from a partial pool are open to any interval that
// reaches FirstRecordThreshold.
func CheckNew(newEvent, previous feeding.Event, set Set, ageWeeks int, loc *time.Location) *Broken {
	if !newEvent.Valid() || !previous.Valid() || !newEvent.Timestamp.After(previous.Timestamp) {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	minutes := int(math.Round(float64(newEvent.Timestamp.Sub(previous.Timestamp).Milliseconds()) / 60000))
	if !interval.Usable(interval.Interval{Minutes: minutes}) {
		return nil
	}
	night := schedule.IsNightFixed(newEvent.Timestamp.In(loc))
	pool := set.pool(night)

	if len(pool) == 0 {
		if minutes < FirstRecordThreshold(ageWeeks) {
			return nil
		}
		return &Broken{
			Rank:        RankBronze,
			OldRecord:   0,
			NewRecord:   minutes,
			Improvement: minutes,
			IsNight:     night,
			BeatenRanks: []Rank{RankBronze},
		}
	}

	var beaten []Rank
	var best *Broken
	for idx := maxEntries - 1; idx >= 0; idx-- {
		old := 0
		threshold := FirstRecordThreshold(ageWeeks)
		if idx < len(pool) {
			old = pool[idx].Interval
			threshold = old
		}
		if minutes < threshold {
			continue
		}
		beaten = append(beaten, rankOrder[idx])
		best = &Broken{
			Rank:        rankOrder[idx],
			OldRecord:   old,
			NewRecord:   minutes,
			Improvement: minutes - old,
			IsNight:     night,
		}
	}
	if best == nil {
		return nil
	}
	best.BeatenRanks = beaten
	return best
}

// CheckNewFromHistory drops newEvent from history, rebuilds the set from the
// remainder and compares against the event immediately preceding newEvent.
func CheckNewFromHistory(history []feeding.Event, newEvent feeding.Event, ageWeeks int, loc *time.Location) *Broken {
	remaining := feeding.SortAscending(feeding.Without(history, newEvent.ID))
	var previous *feeding.Event
	for idx := range remaining {
		if !remaining[idx].Timestamp.Before(newEvent.Timestamp) {
			break
		}
		previous = &remaining[idx]
	}
	if previous == nil {
		return nil
	}
	return CheckNew(newEvent, *previous, Update(remaining, loc), ageWeeks, loc)
}

type Progress struct {
	IsNight          bool    `json:"is_night"`
	NoRecords        bool    `json:"no_records"`
	TargetRank       Rank    `json:"target_rank,omitempty"`
	TargetMinutes    int     `json:"target_minutes"`
	MinutesRemaining float64 `json:"minutes_remaining"`
	IsApproaching    bool    `json:"is_approaching"`
	AllBeaten        bool    `json:"all_beaten"`
}

// Approaching finds the smallest record the running interval has not yet
// beaten. When every record is beaten an absolute record is in progress.
func Approaching(set Set, timeSinceLast float64, night bool) Progress {
	pool := set.pool(night)
	progress := Progress{IsNight: night}
	if len(pool) == 0 {
		progress.NoRecords = true
		return progress
	}
	for idx := len(pool) - 1; idx >= 0; idx-- {
		target := float64(pool[idx].Interval)
		if timeSinceLast >= target {
			continue
		}
		progress.TargetRank = rankOrder[idx]
		progress.TargetMinutes = pool[idx].Interval
		progress.MinutesRemaining = math.Round((target-timeSinceLast)*10) / 10
		progress.IsApproaching = timeSinceLast >= target*approachingRatio
		return progress
	}
	progress.AllBeaten = true
	progress.TargetRank = RankGold
	progress.TargetMinutes = pool[0].Interval
	return progress
}

// ApproachingNow classifies the running interval with the fixed night rule
// evaluated at now.
func ApproachingNow(set Set, lastFeeding, now time.Time, loc *time.Location) Progress {
	if loc == nil {
		loc = time.UTC
	}
	return Approaching(set, now.Sub(lastFeeding).Minutes(), schedule.IsNightFixed(now.In(loc)))
}
