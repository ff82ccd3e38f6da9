package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"

	"feedlog/backend/internal/analytics/records"
	"feedlog/backend/internal/config"
	"feedlog/backend/internal/logging"
	"feedlog/backend/internal/store"
)

type App struct {
	cfg      config.Config
	store    store.Store
	logger   logging.Logger
	notifier records.Notifier
	validate *validator.Validate
	locks    *userLocks
	now      func() time.Time
}

type AuthUser struct {
	ID   string
	Name string
}

type Option func(*App)

// WithNotifier replaces the default logging notifier.
func WithNotifier(n records.Notifier) Option {
	return func(a *App) {
		if n != nil {
			a.notifier = n
		}
	}
}

// WithClock pins the clock analytics are evaluated against.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

func New(cfg config.Config, st store.Store, logger logging.Logger, opts ...Option) *App {
	a := &App{
		cfg:      cfg,
		store:    st,
		logger:   logger,
		notifier: logNotifier{logger: logger},
		validate: newValidator(),
		locks:    newUserLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(logging.GinMiddleware(a.logger), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", a.health)

	api := router.Group(a.cfg.APIPrefix)
	api.Use(a.authMiddleware())

	api.GET("/profile", a.getProfile)
	api.PUT("/profile", a.putProfile)
	api.GET("/feedings", a.listFeedings)
	api.GET("/feedings/export", a.exportFeedings)
	api.POST("/feedings", a.createFeeding)
	api.PATCH("/feedings/:id", a.updateFeeding)
	api.DELETE("/feedings/:id", a.deleteFeeding)
	api.GET("/analytics/prediction", a.getPrediction)
	api.GET("/analytics/records", a.getRecords)
	api.GET("/analytics/bedtime", a.getBedtime)
	api.GET("/analytics/daily", a.getDaily)
	api.GET("/analytics/weekly", a.getWeekly)
	api.GET("/analytics/recent", a.getRecent)
	api.GET("/analytics/intervals", a.getIntervals)

	return router
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "feedlog-api",
	})
}

func (a *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		if tokenString == "" {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(a.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			writeError(c, http.StatusUnauthorized, "Invalid bearer token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(c, http.StatusUnauthorized, "Invalid token payload")
			return
		}
		if a.cfg.JWTAudience != "" && !claimHasAudience(claims["aud"], a.cfg.JWTAudience) {
			writeError(c, http.StatusUnauthorized, "Invalid token audience")
			return
		}
		if a.cfg.JWTIssuer != "" {
			issuer, _ := claims["iss"].(string)
			if issuer != a.cfg.JWTIssuer {
				writeError(c, http.StatusUnauthorized, "Invalid token issuer")
				return
			}
		}
		sub, _ := claims["sub"].(string)
		sub = strings.TrimSpace(sub)
		if sub == "" {
			writeError(c, http.StatusUnauthorized, "Token subject missing")
			return
		}

		user, err := a.getOrCreateUser(c.Request.Context(), sub, claims)
		if err != nil {
			writeError(c, http.StatusUnauthorized, err.Error())
			return
		}

		c.Set("authUser", user)
		c.Set("user_id", user.ID)
		c.Next()
	}
}

func claimHasAudience(value any, audience string) bool {
	switch v := value.(type) {
	case string:
		return v == audience
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == audience {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == audience {
				return true
			}
		}
	}
	return false
}

func (a *App) getOrCreateUser(ctx context.Context, userID string, claims jwt.MapClaims) (AuthUser, error) {
	existing, err := a.store.GetUser(ctx, userID)
	if err == nil {
		return AuthUser{ID: existing.ID, Name: existing.Name}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		a.logger.Errorf("failed to load user %s: %v", userID, err)
		return AuthUser{}, errors.New("Failed to load user")
	}
	if !a.cfg.AuthAutoCreateUser {
		return AuthUser{}, errors.New("User not found")
	}

	name := ""
	if rawName, ok := claims["name"].(string); ok {
		name = strings.TrimSpace(rawName)
	}
	if name == "" {
		name = fmt.Sprintf("user-%s", truncate(userID, 8))
	}
	if err := a.store.CreateUser(ctx, store.User{ID: userID, Name: name}); err != nil {
		a.logger.Errorf("failed to create user %s: %v", userID, err)
		return AuthUser{}, errors.New("Failed to create user")
	}
	a.logger.Infow("user created", "user_id", userID)
	return AuthUser{ID: userID, Name: name}, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

func authUserFromContext(c *gin.Context) (AuthUser, bool) {
	raw, ok := c.Get("authUser")
	if !ok {
		return AuthUser{}, false
	}
	user, ok := raw.(AuthUser)
	return user, ok
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// writeStoreError maps store sentinels onto HTTP statuses.
func (a *App) writeStoreError(c *gin.Context, err error, notFound, failure string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(c, http.StatusNotFound, notFound)
	case errors.Is(err, store.ErrConflict):
		writeError(c, http.StatusConflict, "Feeding already exists")
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, failure)
	}
}

func (a *App) mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	if err := a.validate.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, validationDetail(err))
		return false
	}
	return true
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationDetail(err error) string {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		first := fieldErrors[0]
		return fmt.Sprintf("%s is invalid (%s)", first.Field(), first.Tag())
	}
	return "Invalid request payload"
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// logNotifier celebrates records by logging them.
type logNotifier struct {
	logger logging.Logger
}

func (n logNotifier) RecordBroken(_ context.Context, userID string, broken records.Broken) {
	n.logger.Infow(
		"feeding record broken",
		"user_id", userID,
		"rank", broken.Rank,
		"old_record", broken.OldRecord,
		"new_record", broken.NewRecord,
		"night", broken.IsNight,
	)
}
