// Package feeding holds the persisted feeding fact shared by the store,
// the HTTP layer and the analytics packages.
package feeding

import (
	"sort"
	"strings"
	"time"
)

type Side string

const (
	SideLeft   Side = "left"
	SideRight  Side = "right"
	SideBottle Side = "bottle"
)

// Intervals outside [MinIntervalMinutes, MaxIntervalMinutes] are treated as
// data-entry noise by records and prediction.
const (
	MinIntervalMinutes = 1
	MaxIntervalMinutes = 1440
)

var validSides = map[Side]struct{}{
	SideLeft:   {},
	SideRight:  {},
	SideBottle: {},
}

func ParseSide(input string) (Side, bool) {
	side := Side(strings.ToLower(strings.TrimSpace(input)))
	if side == "" {
		return "", false
	}
	_, ok := validSides[side]
	return side, ok
}

type Event struct {
	ID        string    `json:"id"`
	Side      Side      `json:"side"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
}

// Valid reports whether the event carries a usable timestamp.
func (e Event) Valid() bool {
	return !e.Timestamp.IsZero()
}

// SortAscending returns a copy of events ordered by timestamp, dropping
// events without a usable timestamp.
func SortAscending(events []Event) []Event {
	ordered := make([]Event, 0, len(events))
	for _, event := range events {
		if event.Valid() {
			ordered = append(ordered, event)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	return ordered
}

// Since returns the events at or after cutoff, preserving order.
func Since(events []Event, cutoff time.Time) []Event {
	result := make([]Event, 0, len(events))
	for _, event := range events {
		if !event.Timestamp.Before(cutoff) {
			result = append(result, event)
		}
	}
	return result
}

// Without returns events minus the one with the given id.
func Without(events []Event, id string) []Event {
	result := make([]Event, 0, len(events))
	for _, event := range events {
		if event.ID != id {
			result = append(result, event)
		}
	}
	return result
}
