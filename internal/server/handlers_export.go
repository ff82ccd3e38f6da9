package server

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"feedlog/backend/internal/store"
)

var exportCSVHeader = []string{"id", "side", "timestamp_utc", "timestamp_local"}

func sanitizeFilename(input string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(input) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	sanitized := strings.Trim(b.String(), "_")
	if sanitized == "" {
		return "user"
	}
	return sanitized
}

// exportFeedings dumps the full history as JSON (the persisted fact shape)
// or CSV.
func (a *App) exportFeedings(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "json")))
	if format != "json" && format != "csv" {
		writeError(c, http.StatusBadRequest, "format must be json or csv")
		return
	}

	ctx := c.Request.Context()
	_, loc, err := a.loadProfile(ctx, user.ID)
	if err != nil {
		a.writeStoreError(c, err, "Profile not found", "Failed to load profile")
		return
	}
	events, err := a.store.List(ctx, user.ID, store.Query{})
	if err != nil {
		a.writeStoreError(c, err, "Feedings not found", "Failed to load feedings")
		return
	}

	filename := fmt.Sprintf("feedlog_export_%s_%s.%s", sanitizeFilename(user.ID), a.now().Format("20060102_150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if format == "json" {
		c.JSON(http.StatusOK, events)
		return
	}

	var out bytes.Buffer
	writer := csv.NewWriter(&out)
	if err := writer.Write(exportCSVHeader); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to build CSV header")
		return
	}
	for _, event := range events {
		if err := writer.Write([]string{
			event.ID,
			string(event.Side),
			event.Timestamp.UTC().Format(time.RFC3339),
			event.Timestamp.In(loc).Format(time.RFC3339),
		}); err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to write CSV rows")
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to flush CSV")
		return
	}
	c.Data(http.StatusOK, "text/csv; charset=utf-8", out.Bytes())
}
