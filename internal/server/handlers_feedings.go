package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"feedlog/backend/internal/analytics/records"
	"feedlog/backend/internal/analytics/schedule"
	"feedlog/backend/internal/feeding"
	"feedlog/backend/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	futureTolerance  = 5 * time.Minute
)

type profileRequest struct {
	BirthDate string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Timezone  string `json:"timezone" validate:"omitempty,timezone"`
}

type createFeedingRequest struct {
	ID        string     `json:"id" validate:"omitempty,uuid"`
	Side      string     `json:"side" validate:"required,oneof=left right bottle"`
	Timestamp *time.Time `json:"timestamp"`
}

type updateFeedingRequest struct {
	Timestamp *time.Time `json:"timestamp" validate:"required"`
}

func profileResponse(profile store.Profile, loc *time.Location, now time.Time) gin.H {
	var birth any
	var age any
	ageWeeks := 0
	if profile.BirthDate != nil {
		birth = profile.BirthDate.Format("2006-01-02")
		ageWeeks = schedule.AgeInWeeks(schedule.BirthMidnight(*profile.BirthDate, loc), now)
		age = ageWeeks
	}
	return gin.H{
		"birth_date": birth,
		"timezone":   profile.Timezone,
		"age_weeks":  age,
		"schedule":   schedule.ForAge(ageWeeks),
	}
}

func (a *App) getProfile(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	profile, loc, err := a.loadProfile(c.Request.Context(), user.ID)
	if err != nil {
		a.writeStoreError(c, err, "Profile not found", "Failed to load profile")
		return
	}
	c.JSON(http.StatusOK, profileResponse(profile, loc, a.now()))
}

func (a *App) putProfile(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload profileRequest
	if !a.mustJSON(c, &payload) {
		return
	}

	profile := store.Profile{UserID: user.ID, Timezone: strings.TrimSpace(payload.Timezone)}
	if profile.Timezone == "" {
		profile.Timezone = a.cfg.DefaultTimezone
	}
	if payload.BirthDate != "" {
		birth, err := time.Parse("2006-01-02", payload.BirthDate)
		if err != nil {
			writeError(c, http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
			return
		}
		if birth.After(a.now()) {
			writeError(c, http.StatusBadRequest, "birth_date must not be in the future")
			return
		}
		profile.BirthDate = &birth
	}

	saved, err := a.store.UpsertProfile(c.Request.Context(), profile)
	if err != nil {
		a.writeStoreError(c, err, "Profile not found", "Failed to save profile")
		return
	}
	loc, err := time.LoadLocation(saved.Timezone)
	if err != nil {
		loc = a.cfg.Location()
	}
	c.JSON(http.StatusOK, profileResponse(saved, loc, a.now()))
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, key+" must be an RFC3339 timestamp")
		return nil, false
	}
	return &parsed, true
}

// queryInt reads an integer query parameter and enforces [min, max].
func queryInt(c *gin.Context, key string, fallback, min, max int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < min || value > max {
		writeError(c, http.StatusBadRequest, key+" must be an integer between "+strconv.Itoa(min)+" and "+strconv.Itoa(max))
		return 0, false
	}
	return value, true
}

func (a *App) listFeedings(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	from, ok := parseTimeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeQuery(c, "to")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", defaultListLimit, 1, maxListLimit)
	if !ok {
		return
	}
	order := strings.ToLower(strings.TrimSpace(c.DefaultQuery("order", "desc")))
	if order != "asc" && order != "desc" {
		writeError(c, http.StatusBadRequest, "order must be asc or desc")
		return
	}

	events, err := a.store.List(c.Request.Context(), user.ID, store.Query{
		From:       from,
		To:         to,
		Descending: order == "desc",
		Limit:      limit,
	})
	if err != nil {
		a.writeStoreError(c, err, "Feedings not found", "Failed to load feedings")
		return
	}
	total, err := a.store.Count(c.Request.Context(), user.ID)
	if err != nil {
		a.writeStoreError(c, err, "Feedings not found", "Failed to count feedings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedings": events, "total": total})
}

func (a *App) createFeeding(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload createFeedingRequest
	if !a.mustJSON(c, &payload) {
		return
	}
	side, _ := feeding.ParseSide(payload.Side)

	now := a.now()
	ts := now
	if payload.Timestamp != nil {
		ts = payload.Timestamp.UTC()
	}
	if ts.After(now.Add(futureTolerance)) {
		writeError(c, http.StatusBadRequest, "timestamp must not be in the future")
		return
	}
	id := payload.ID
	if id == "" {
		id = uuid.NewString()
	}
	event := feeding.Event{ID: id, Side: side, Timestamp: ts, UserID: user.ID}

	ctx := c.Request.Context()
	unlock := a.locks.lock(user.ID)
	defer unlock()

	if err := a.store.Insert(ctx, event); err != nil {
		a.writeStoreError(c, err, "Feeding not found", "Failed to save feeding")
		return
	}

	snap, err := a.loadSnapshot(ctx, user.ID, a.cfg.RecordsWindowDays)
	if err != nil {
		// The write already landed; the record check is best effort.
		a.logger.Warnf("record check skipped for %s: %v", event.ID, err)
		c.JSON(http.StatusCreated, gin.H{"feeding": event, "record_broken": nil})
		return
	}
	broken := records.CheckNewFromHistory(snap.events, event, snap.ageWeeks(), snap.loc)
	if broken != nil {
		a.notifier.RecordBroken(ctx, user.ID, *broken)
	}
	c.JSON(http.StatusCreated, gin.H{"feeding": event, "record_broken": broken})
}

func (a *App) updateFeeding(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload updateFeedingRequest
	if !a.mustJSON(c, &payload) {
		return
	}
	ts := payload.Timestamp.UTC()
	if ts.After(a.now().Add(futureTolerance)) {
		writeError(c, http.StatusBadRequest, "timestamp must not be in the future")
		return
	}

	unlock := a.locks.lock(user.ID)
	defer unlock()

	event, err := a.store.UpdateTimestamp(c.Request.Context(), user.ID, c.Param("id"), ts)
	if err != nil {
		a.writeStoreError(c, err, "Feeding not found", "Failed to update feeding")
		return
	}
	c.JSON(http.StatusOK, gin.H{"feeding": event})
}

func (a *App) deleteFeeding(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	unlock := a.locks.lock(user.ID)
	defer unlock()

	if err := a.store.Delete(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		a.writeStoreError(c, err, "Feeding not found", "Failed to delete feeding")
		return
	}
	c.Status(http.StatusNoContent)
}
