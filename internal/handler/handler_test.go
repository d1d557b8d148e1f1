package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"

	"github.com/radixinsight/analytics/internal/analytics"
	"github.com/radixinsight/analytics/internal/auth"
	"github.com/radixinsight/analytics/internal/config"
	"github.com/radixinsight/analytics/internal/flow"
	"github.com/radixinsight/analytics/internal/handler"
	"github.com/radixinsight/analytics/internal/ingest"
	"github.com/radixinsight/analytics/internal/logger"
	"github.com/radixinsight/analytics/internal/store"
)

const (
	testSecret   = "test-jwt-secret"
	testAPIKey   = "rk_test_key"
	testProject  = "P1"
	testMaxBatch = 100
	testMaxLimit = 1000
)

// testDeadlines keeps handler timeouts generous for tests.
var testDeadlines = config.DeadlineConfig{
	IngestMS:     3000,
	QueryMS:      10000,
	HeavyQueryMS: 30000,
}

// recentColumns mirrors the recent-events select column order.
var recentColumns = []string{
	"event_id", "project_id", "event_type", "event_name", "timestamp", "received_at",
	"date", "user_id", "session_id", "device_type", "os", "browser",
	"properties", "referrer", "referrer_domain",
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
}

// flowColumns mirrors the flows select column order.
var flowColumns = []string{
	"flow_id", "user_id", "session_id", "start_page", "start_time",
	"end_page", "end_time", "duration_ms", "status", "events", "metadata", "metrics", "last_updated",
}

// testEnv wires a router over one sqlmock connection.
type testEnv struct {
	router *gin.Engine
	mock   sqlmock.Sqlmock
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	log := logger.NewNop()

	st := store.NewWithDB(sqlxDB, log)
	writer := store.NewEventWriter(st, log)
	keys := auth.NewKeyAuthenticator(sqlxDB, nil, log)

	events := handler.NewEventsHandler(
		ingest.NewService(writer, testMaxBatch, log), testDeadlines.Ingest(), false, log)
	queries := handler.NewAnalyticsHandler(
		analytics.NewEngine(sqlxDB, testMaxLimit, log), testDeadlines, false, log)
	tracker := flow.NewTracker(store.NewFlowStore(st, log), nil, 30*time.Minute, log)
	flows := handler.NewFlowsHandler(tracker, testDeadlines, testMaxLimit, false, log)

	router := gin.New()

	tracking := router.Group("/api/events")
	tracking.Use(auth.APIKeyMiddleware(keys))
	tracking.POST("/track", events.Track)
	tracking.POST("/batch", events.TrackBatch)

	queryGroup := router.Group("/api/events")
	queryGroup.Use(auth.BearerMiddleware(testSecret))
	queryGroup.GET("/count-by-type", queries.CountByType)
	queryGroup.POST("/funnel", queries.Funnel)
	queryGroup.GET("/recent", queries.Recent)

	flowGroup := router.Group("/api/flows")
	flowGroup.Use(auth.BearerMiddleware(testSecret))
	flowGroup.GET("", flows.Find)

	return &testEnv{router: router, mock: mock}
}

// expectKeyLookup mocks a successful API key resolution.
func (e *testEnv) expectKeyLookup() {
	e.mock.ExpectQuery("SELECT project_id FROM api_keys").
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(testProject))
}

func bearerToken(t *testing.T, projectID string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{ProjectID: projectID})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestTrack_Success(t *testing.T) {
	env := setupEnv(t)

	env.expectKeyLookup()
	env.mock.ExpectBegin()
	env.mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	payload := `{"projectId":"P1","userId":"u1","eventType":"view"}`
	req := httptest.NewRequest(http.MethodPost, "/api/events/track?utm_source=news", strings.NewReader(payload))
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["success"] != true {
		t.Error("expected success envelope")
	}
	if id, _ := body["eventId"].(string); id == "" {
		t.Error("expected a non-empty eventId")
	}
}

func TestTrack_MissingAPIKey(t *testing.T) {
	env := setupEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/events/track",
		strings.NewReader(`{"projectId":"P1","eventType":"view"}`))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestTrack_UnknownAPIKey(t *testing.T) {
	env := setupEnv(t)

	env.mock.ExpectQuery("SELECT project_id FROM api_keys").
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}))

	req := httptest.NewRequest(http.MethodPost, "/api/events/track",
		strings.NewReader(`{"projectId":"P1","eventType":"view"}`))
	req.Header.Set("X-API-Key", "bogus")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestTrack_ProjectMismatchForbidden(t *testing.T) {
	env := setupEnv(t)
	env.expectKeyLookup()

	req := httptest.NewRequest(http.MethodPost, "/api/events/track",
		strings.NewReader(`{"projectId":"other","eventType":"view"}`))
	req.Header.Set("X-API-Key", testAPIKey)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestBatch_EmptyRejected(t *testing.T) {
	env := setupEnv(t)
	env.expectKeyLookup()

	req := httptest.NewRequest(http.MethodPost, "/api/events/batch",
		strings.NewReader(`{"events":[]}`))
	req.Header.Set("X-API-Key", testAPIKey)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCountByType_RequiresBearer(t *testing.T) {
	env := setupEnv(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/events/count-by-type?projectId=P1&startDate=2025-01-01&endDate=2025-01-31", http.NoBody)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCountByType_Success(t *testing.T) {
	env := setupEnv(t)

	env.mock.ExpectQuery("SELECT event_type, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).
			AddRow("view", 42).
			AddRow("click", 7))

	req := httptest.NewRequest(http.MethodGet,
		"/api/events/count-by-type?projectId=P1&startDate=2025-01-01&endDate=2025-01-31", http.NoBody)
	req.Header.Set("Authorization", bearerToken(t, testProject))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	data, _ := body["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected 2 rows, got %v", body["data"])
	}
}

func TestCountByType_TokenProjectMismatch(t *testing.T) {
	env := setupEnv(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/events/count-by-type?projectId=P1&startDate=2025-01-01&endDate=2025-01-31", http.NoBody)
	req.Header.Set("Authorization", bearerToken(t, "other-project"))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestCountByType_InvalidDate(t *testing.T) {
	env := setupEnv(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/events/count-by-type?projectId=P1&startDate=2025-13-40&endDate=2025-01-01", http.NoBody)
	req.Header.Set("Authorization", bearerToken(t, testProject))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestFunnel_TooFewSteps(t *testing.T) {
	env := setupEnv(t)

	payload := `{"projectId":"P1","steps":[{"eventType":"signup"}],"startDate":"2025-01-01","endDate":"2025-01-31"}`
	req := httptest.NewRequest(http.MethodPost, "/api/events/funnel", strings.NewReader(payload))
	req.Header.Set("Authorization", bearerToken(t, testProject))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRecent_InvalidLimit(t *testing.T) {
	env := setupEnv(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/events/recent?projectId=P1&limit=abc", http.NoBody)
	req.Header.Set("Authorization", bearerToken(t, testProject))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRecent_StartDateOnly(t *testing.T) {
	env := setupEnv(t)

	// Only the lower date bound is supplied; the query carries a single
	// date predicate plus limit and offset.
	wantStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	env.mock.ExpectQuery("SELECT event_id").
		WithArgs(testProject, wantStart, analytics.DefaultRecentLimit, 0).
		WillReturnRows(sqlmock.NewRows(recentColumns))

	req := httptest.NewRequest(http.MethodGet,
		"/api/events/recent?projectId=P1&startDate=2025-01-01", http.NoBody)
	req.Header.Set("Authorization", bearerToken(t, testProject))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRecent_EndDateOnly(t *testing.T) {
	env := setupEnv(t)

	wantEnd := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	env.mock.ExpectQuery("SELECT event_id").
		WithArgs(testProject, wantEnd, analytics.DefaultRecentLimit, 0).
		WillReturnRows(sqlmock.NewRows(recentColumns))

	req := httptest.NewRequest(http.MethodGet,
		"/api/events/recent?projectId=P1&endDate=2025-01-31", http.NoBody)
	req.Header.Set("Authorization", bearerToken(t, testProject))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRecent_InvertedDateRange(t *testing.T) {
	env := setupEnv(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/events/recent?projectId=P1&startDate=2025-02-01&endDate=2025-01-01", http.NoBody)
	req.Header.Set("Authorization", bearerToken(t, testProject))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestFlowFind_ClampsLimit(t *testing.T) {
	env := setupEnv(t)

	// limit beyond the ceiling binds the ceiling, not the raw value.
	env.mock.ExpectQuery("SELECT (.+) FROM flows").
		WithArgs(testMaxLimit, 0).
		WillReturnRows(sqlmock.NewRows(flowColumns))

	req := httptest.NewRequest(http.MethodGet, "/api/flows?limit=5000", http.NoBody)
	req.Header.Set("Authorization", bearerToken(t, testProject))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFlowFind_NegativeLimitReturnsEmpty(t *testing.T) {
	env := setupEnv(t)

	// A negative limit floors to zero and never reaches the store.
	req := httptest.NewRequest(http.MethodGet, "/api/flows?limit=-1", http.NoBody)
	req.Header.Set("Authorization", bearerToken(t, testProject))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if count, _ := body["count"].(float64); count != 0 {
		t.Errorf("expected count 0, got %v", body["count"])
	}

	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected store activity: %v", err)
	}
}

func TestRecent_ZeroLimitReturnsEmpty(t *testing.T) {
	env := setupEnv(t)

	// limit=0 short-circuits before any store query.
	req := httptest.NewRequest(http.MethodGet,
		"/api/events/recent?projectId=P1&limit=0", http.NoBody)
	req.Header.Set("Authorization", bearerToken(t, testProject))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if count, _ := body["count"].(float64); count != 0 {
		t.Errorf("expected count 0, got %v", body["count"])
	}

	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected store activity: %v", err)
	}
}
