package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"feedlog/backend/internal/analytics/aggregate"
	"feedlog/backend/internal/analytics/bedtime"
	"feedlog/backend/internal/analytics/interval"
	"feedlog/backend/internal/analytics/predict"
	"feedlog/backend/internal/analytics/records"
	"feedlog/backend/internal/analytics/schedule"
	"feedlog/backend/internal/analytics/trend"
	"feedlog/backend/internal/store"
)

const (
	defaultDailyDays = 7
	maxDailyDays     = 92
	defaultWeeks     = 8
	maxWeeks         = 52
	maxIntervalDays  = 30
)

// snapshotFor loads a snapshot and writes the error response itself.
func (a *App) snapshotFor(c *gin.Context, lookbackDays int) (snapshot, bool) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return snapshot{}, false
	}
	snap, err := a.loadSnapshot(c.Request.Context(), user.ID, lookbackDays)
	if err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "Failed to load feeding history")
		return snapshot{}, false
	}
	return snap, true
}

func (a *App) getPrediction(c *gin.Context) {
	snap, ok := a.snapshotFor(c, a.cfg.RecordsWindowDays)
	if !ok {
		return
	}
	result := predict.Predict(
		snap.events,
		snap.total,
		snap.ageWeeks(),
		snap.now,
		predict.WithParams(a.cfg.PredictParams()),
		predict.WithLocation(snap.loc),
	)
	if result == nil {
		c.JSON(http.StatusOK, gin.H{
			"prediction": nil,
			"message":    "No feeding history yet. Log a feeding to start predictions.",
		})
		return
	}

	last, _ := snap.last()
	next := snap.now.Add(time.Duration(result.NextFeedingPrediction * float64(time.Minute)))
	c.JSON(http.StatusOK, gin.H{
		"prediction":      result,
		"last_feeding_at": last.Timestamp,
		"next_feeding_at": next.UTC(),
	})
}

func (a *App) getRecords(c *gin.Context) {
	snap, ok := a.snapshotFor(c, a.cfg.RecordsWindowDays)
	if !ok {
		return
	}
	set := records.Update(snap.events, snap.loc)
	intervals := interval.Extract(snap.events, func(t time.Time) bool {
		return schedule.IsNightFixed(t.In(snap.loc))
	})

	var approaching any
	if last, ok := snap.last(); ok {
		approaching = records.ApproachingNow(set, last.Timestamp, snap.now, snap.loc)
	}
	c.JSON(http.StatusOK, gin.H{
		"records":     set,
		"approaching": approaching,
		"buckets":     aggregate.RecordBuckets(intervals),
		"window_days": a.cfg.RecordsWindowDays,
	})
}

func (a *App) getBedtime(c *gin.Context) {
	snap, ok := a.snapshotFor(c, bedtime.WindowDays)
	if !ok {
		return
	}
	result := bedtime.Estimate(snap.events, snap.ageWeeks(), snap.now, snap.loc)
	response := gin.H{"bedtime": result}
	if result.Status == bedtime.StatusReady {
		response["window_start"] = bedtime.FormatMinutes(result.WindowStartMinutes)
		response["window_end"] = bedtime.FormatMinutes(result.WindowEndMinutes)
		response["median"] = bedtime.FormatMinutes(result.MedianMinutes)
	}
	c.JSON(http.StatusOK, response)
}

func (a *App) getDaily(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	ctx := c.Request.Context()
	profile, loc, err := a.loadProfile(ctx, user.ID)
	if err != nil {
		a.writeStoreError(c, err, "Profile not found", "Failed to load profile")
		return
	}

	now := a.now()
	fromRaw := strings.TrimSpace(c.Query("from"))
	toRaw := strings.TrimSpace(c.Query("to"))
	var from, to time.Time
	if fromRaw != "" || toRaw != "" {
		if fromRaw == "" || toRaw == "" {
			writeError(c, http.StatusBadRequest, "from and to must be provided together")
			return
		}
		if from, err = parseDate(fromRaw, loc); err != nil {
			writeError(c, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		if to, err = parseDate(toRaw, loc); err != nil {
			writeError(c, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		if to.Before(from) {
			writeError(c, http.StatusBadRequest, "to must not be before from")
			return
		}
		if to.Sub(from) > maxDailyDays*24*time.Hour {
			writeError(c, http.StatusBadRequest, "date range is too long")
			return
		}
	} else {
		days, ok := queryInt(c, "days", defaultDailyDays, 1, maxDailyDays)
		if !ok {
			return
		}
		to = startOfDay(now, loc)
		from = to.AddDate(0, 0, -(days - 1))
	}

	rangeStart := startOfDay(from, loc)
	rangeEnd := startOfDay(to, loc).AddDate(0, 0, 1).Add(-time.Millisecond)
	snap, err := a.loadSnapshotQuery(ctx, user.ID, profile, loc, now, store.Query{From: &rangeStart, To: &rangeEnd})
	if err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "Failed to load feeding history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": aggregate.Daily(snap.events, from, to, loc)})
}

func (a *App) getWeekly(c *gin.Context) {
	weeks, ok := queryInt(c, "weeks", defaultWeeks, 1, maxWeeks)
	if !ok {
		return
	}
	snap, ok := a.snapshotFor(c, weeks*7)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"weeks":     aggregate.WeeklyMedians(snap.events, snap.birthDate, snap.loc),
		"age_weeks": snap.ageWeeks(),
	})
}

func (a *App) getRecent(c *gin.Context) {
	days := defaultDailyDays
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		switch raw {
		case "7":
			days = 7
		case "14":
			days = 14
		default:
			writeError(c, http.StatusBadRequest, "days must be 7 or 14")
			return
		}
	}
	// One extra day covers the interval leading into the first bucket.
	snap, ok := a.snapshotFor(c, days+1)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"days": aggregate.RecentDays(snap.events, days, snap.now, snap.birthDate, snap.loc),
	})
}

func (a *App) getIntervals(c *gin.Context) {
	days, ok := queryInt(c, "days", defaultDailyDays, 1, maxIntervalDays)
	if !ok {
		return
	}
	snap, ok := a.snapshotFor(c, days)
	if !ok {
		return
	}

	isNight := func(t time.Time) bool {
		age := 0
		if snap.birthDate != nil {
			age = schedule.AgeInWeeks(*snap.birthDate, t)
		}
		return schedule.IsNightScheduled(t.In(snap.loc), schedule.ForAge(age))
	}
	usable := interval.FilterUsable(interval.Extract(snap.events, isNight))
	withTrend := trend.Attach(usable)

	var fit any
	if slope, intercept, ok := trend.Fit(interval.Minutes(usable)); ok {
		fit = gin.H{"slope": slope, "intercept": intercept}
	}
	c.JSON(http.StatusOK, gin.H{
		"intervals": withTrend,
		"trend":     fit,
	})
}
