package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"feedlog/backend/internal/analytics/predict"
	"feedlog/backend/internal/analytics/records"
	"feedlog/backend/internal/config"
	"feedlog/backend/internal/db"
	"feedlog/backend/internal/feeding"
	"feedlog/backend/internal/logging"
	"feedlog/backend/internal/store"
)

var (
	testPool              *pgxpool.Pool
	baseTestConfig        config.Config
	integrationDBReady    bool
	integrationSkipReason string
)

// testNow is a Tuesday noon UTC; every test router runs on this clock.
var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	baseTestConfig = newTestConfig()

	testDatabaseURL := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if testDatabaseURL == "" {
		integrationSkipReason = "postgres integration tests skipped: TEST_DATABASE_URL is not set"
		fmt.Fprintln(os.Stderr, integrationSkipReason)
		os.Exit(m.Run())
	}
	testDatabaseURL = withSimpleProtocol(testDatabaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.Connect(ctx, testDatabaseURL, 4)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration test setup failed: cannot connect TEST_DATABASE_URL: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	err = store.NewPostgres(pool, logging.Nop()).EnsureSchema(ctx)
	if err == nil {
		err = store.ValidateSchema(ctx, pool)
	}
	cancel()
	if err != nil {
		pool.Close()
		fmt.Fprintf(os.Stderr, "integration test setup failed: %v\n", err)
		os.Exit(1)
	}

	testPool = pool
	integrationDBReady = true

	exitCode := m.Run()
	testPool.Close()
	os.Exit(exitCode)
}

func withSimpleProtocol(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	queries := parsed.Query()
	queries.Set("default_query_exec_mode", "simple_protocol")
	parsed.RawQuery = queries.Encode()
	return parsed.String()
}

func newTestConfig() config.Config {
	defaults := predict.DefaultParams()
	cfg := config.Config{
		AppEnv:             "test",
		AppName:            "Feedlog API Test",
		APIPrefix:          "/api/v1",
		AppPort:            "0",
		StorageDriver:      config.StorageDriverSQLite,
		JWTSecret:          "test-secret-1234567890",
		JWTAlgorithm:       "HS256",
		AuthAutoCreateUser: true,
		CORSAllowOrigins:   []string{"http://localhost:5173"},
		LogLevel:           "debug",
		LogFormat:          "console",
		DefaultTimezone:    "UTC",
		RecordsWindowDays:  records.WindowDays,
		PredictClampMin:    defaults.ClampMin,
		PredictOutlierTrim: defaults.OutlierTrimRatio,
		PredictWindowMin:   defaults.WindowMin,
		PredictWindowMax:   defaults.WindowMax,
	}
	if v := strings.TrimSpace(os.Getenv("TEST_JWT_SECRET")); v != "" {
		cfg.JWTSecret = v
	}
	return cfg
}

func requireIntegration(t *testing.T) {
	t.Helper()
	if !integrationDBReady {
		if integrationSkipReason == "" {
			integrationSkipReason = "postgres integration tests skipped: TEST_DATABASE_URL is not configured"
		}
		t.Skip(integrationSkipReason)
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []records.Broken
}

func (n *recordingNotifier) RecordBroken(_ context.Context, _ string, broken records.Broken) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, broken)
}

func (n *recordingNotifier) Calls() []records.Broken {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]records.Broken(nil), n.calls...)
}

type testEnv struct {
	cfg      config.Config
	router   *gin.Engine
	store    store.Store
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, baseTestConfig)
}

func newTestEnvWithConfig(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "feedlog.db"), logging.Nop())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(st.Close)
	return buildTestEnv(cfg, st)
}

// sharedPoolStore leaves the package-level pool open across tests.
type sharedPoolStore struct {
	*store.PostgresStore
}

func (sharedPoolStore) Close() {}

func newPostgresTestEnv(t *testing.T) *testEnv {
	t.Helper()
	requireIntegration(t)
	return buildTestEnv(baseTestConfig, sharedPoolStore{store.NewPostgres(testPool, logging.Nop())})
}

func buildTestEnv(cfg config.Config, st store.Store) *testEnv {
	notifier := &recordingNotifier{}
	app := New(
		cfg,
		st,
		logging.Nop(),
		WithNotifier(notifier),
		WithClock(func() time.Time { return testNow }),
	)
	return &testEnv{cfg: cfg, router: app.Router(), store: st, notifier: notifier}
}

func seedFeeding(t *testing.T, st store.FeedingStore, userID string, side feeding.Side, ts time.Time) feeding.Event {
	t.Helper()
	event := feeding.Event{ID: testID(), UserID: userID, Side: side, Timestamp: ts.UTC()}
	if err := st.Insert(context.Background(), event); err != nil {
		t.Fatalf("seed feeding: %v", err)
	}
	return event
}

func signToken(t *testing.T, sub string, overrides map[string]any) string {
	t.Helper()
	return signTokenWithConfig(t, baseTestConfig, sub, overrides)
}

func signTokenWithConfig(t *testing.T, cfg config.Config, sub string, overrides map[string]any) string {
	t.Helper()

	claims := jwt.MapClaims{
		"exp": time.Now().UTC().Add(1 * time.Hour).Unix(),
		"iat": time.Now().UTC().Add(-1 * time.Minute).Unix(),
	}
	if strings.TrimSpace(sub) != "" {
		claims["sub"] = sub
	}
	if strings.TrimSpace(cfg.JWTAudience) != "" {
		claims["aud"] = cfg.JWTAudience
	}
	if strings.TrimSpace(cfg.JWTIssuer) != "" {
		claims["iss"] = cfg.JWTIssuer
	}
	for key, value := range overrides {
		if value == nil {
			delete(claims, key)
			continue
		}
		claims[key] = value
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func performRequest(
	t *testing.T,
	router http.Handler,
	method, targetPath, token string,
	body any,
) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, targetPath, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSONMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response JSON: %v; body=%s", err, rec.Body.String())
	}
	return payload
}

func decodeList(t *testing.T, raw any) []map[string]any {
	t.Helper()
	values, ok := raw.([]any)
	if !ok {
		t.Fatalf("expected []any, got %T", raw)
	}
	result := make([]map[string]any, 0, len(values))
	for _, item := range values {
		m, ok := item.(map[string]any)
		if !ok {
			t.Fatalf("expected object list item, got %T", item)
		}
		result = append(result, m)
	}
	return result
}

func responseDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeJSONMap(t, rec)
	detail, _ := body["detail"].(string)
	return detail
}

func testID() string {
	return uuid.NewString()
}
