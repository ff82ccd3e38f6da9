package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"feedlog/backend/internal/analytics/schedule"
	"feedlog/backend/internal/feeding"
	"feedlog/backend/internal/store"
)

// snapshot is the frozen input every analytics read is computed from. It is
// rebuilt from the store on each request, never cached between requests.
type snapshot struct {
	userID    string
	now       time.Time
	loc       *time.Location
	birthDate *time.Time
	events    []feeding.Event
	total     int
}

func (s snapshot) ageWeeks() int {
	if s.birthDate == nil {
		return 0
	}
	return schedule.AgeInWeeks(*s.birthDate, s.now)
}

func (s snapshot) last() (feeding.Event, bool) {
	if len(s.events) == 0 {
		return feeding.Event{}, false
	}
	return s.events[len(s.events)-1], true
}

// loadProfile returns the stored profile, or the configured defaults when
// the user has not saved one yet.
func (a *App) loadProfile(ctx context.Context, userID string) (store.Profile, *time.Location, error) {
	profile, err := a.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		profile = store.Profile{UserID: userID, Timezone: a.cfg.DefaultTimezone}
	} else if err != nil {
		return store.Profile{}, nil, err
	}
	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		a.logger.Warnf("profile timezone %q for %s is invalid, using default", profile.Timezone, userID)
		loc = a.cfg.Location()
	}
	return profile, loc, nil
}

// loadSnapshot reads the user's events from lookbackDays before now (all
// history when lookbackDays <= 0) in ascending order.
func (a *App) loadSnapshot(ctx context.Context, userID string, lookbackDays int) (snapshot, error) {
	profile, loc, err := a.loadProfile(ctx, userID)
	if err != nil {
		return snapshot{}, fmt.Errorf("load profile: %w", err)
	}
	now := a.now()
	q := store.Query{}
	if lookbackDays > 0 {
		from := now.AddDate(0, 0, -lookbackDays)
		q.From = &from
	}
	return a.loadSnapshotQuery(ctx, userID, profile, loc, now, q)
}

func (a *App) loadSnapshotQuery(ctx context.Context, userID string, profile store.Profile, loc *time.Location, now time.Time, q store.Query) (snapshot, error) {
	events, err := a.store.List(ctx, userID, q)
	if err != nil {
		return snapshot{}, fmt.Errorf("list feedings: %w", err)
	}
	total, err := a.store.Count(ctx, userID)
	if err != nil {
		return snapshot{}, fmt.Errorf("count feedings: %w", err)
	}
	var birthDate *time.Time
	if profile.BirthDate != nil {
		birth := schedule.BirthMidnight(*profile.BirthDate, loc)
		birthDate = &birth
	}
	return snapshot{
		userID:    userID,
		now:       now,
		loc:       loc,
		birthDate: birthDate,
		events:    feeding.SortAscending(events),
		total:     total,
	}, nil
}

// userLocks serializes writes per user so record checks always see the
// history their own write produced.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
