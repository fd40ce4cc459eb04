package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"bahr/analytics/models"
	"bahr/analytics/store"
	"bahr/analytics/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var fixedNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeEventStore struct {
	mu        sync.Mutex
	inserted  []models.CollectedEvent
	insertErr error

	summaryDays int
	start, end  time.Time
	interval    string
	eventName   string
	limit       uint64
	property    string
}

func (s *fakeEventStore) InsertEvents(_ context.Context, events []models.CollectedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, events...)
	return nil
}

func (s *fakeEventStore) GetSummary(_ context.Context, days int, _ time.Time) (*models.StatsSummary, error) {
	s.summaryDays = days
	return &models.StatsSummary{Days: days, TotalEvents: 12, TotalSessions: 3}, nil
}

func (s *fakeEventStore) GetEventCountsOverTime(_ context.Context, interval string, start, end time.Time, eventName string) ([]store.EventCountByTime, error) {
	s.interval, s.start, s.end, s.eventName = interval, start, end, eventName
	return []store.EventCountByTime{{Time: start, Count: 5}}, nil
}

func (s *fakeEventStore) GetUniqueSessionsOverTime(_ context.Context, interval string, start, end time.Time) ([]store.EventCountByTime, error) {
	s.interval, s.start, s.end = interval, start, end
	return []store.EventCountByTime{{Time: start, Count: 2}}, nil
}

func (s *fakeEventStore) GetTopPagePaths(_ context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error) {
	s.start, s.end, s.limit = start, end, limit
	return []models.TopPathResult{{Path: "/analyze", Count: 9}}, nil
}

func (s *fakeEventStore) GetAverageProperty(_ context.Context, eventName, property string, start, end time.Time) (float64, error) {
	s.eventName, s.property, s.start, s.end = eventName, property, start, end
	return 87.5, nil
}

type fakeOperatorStore struct {
	mu     sync.Mutex
	byMail map[string]*models.Operator
	nextID int
}

func newFakeOperatorStore() *fakeOperatorStore {
	return &fakeOperatorStore{byMail: map[string]*models.Operator{}}
}

func (s *fakeOperatorStore) CreateUser(_ context.Context, email string, hashed []byte) (*models.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byMail[email]; ok {
		return nil, store.ErrUserExists
	}
	s.nextID++
	op := &models.Operator{ID: s.nextID, Email: email, HashedPassword: hashed, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	s.byMail[email] = op
	return op, nil
}

func (s *fakeOperatorStore) GetUserByEmail(_ context.Context, email string) (*models.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.byMail[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return op, nil
}

type testServer struct {
	router *gin.Engine
	events *fakeEventStore
	users  *fakeOperatorStore
	tokens *utils.TokenIssuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tokens, err := utils.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	events := &fakeEventStore{}
	analytics := NewAnalyticsHandlers(events)
	analytics.now = func() time.Time { return fixedNow }

	users := newFakeOperatorStore()
	return &testServer{
		router: NewRouter(RouterConfig{
			Analytics: analytics,
			Auth:      NewAuthHandlers(users, tokens),
			Tokens:    tokens,
			APIKey:    "dashboard-key",
			FEOrigin:  "http://localhost:3000",
		}),
		events: events,
		users:  users,
		tokens: tokens,
	}
}

func (s *testServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestCreateEvent(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(http.MethodPost, "/api/v1/analytics", map[string]any{
		"name":       "analyze_success",
		"timestamp":  "2025-03-14T11:59:58Z",
		"sessionId":  "abc",
		"properties": map[string]any{"score": 92, "has_rhyme": true, "match_quality": "exact"},
	}, map[string]string{"User-Agent": "bahr-telemetry"})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["id"])
	assert.Equal(t, "analyze_success", resp["event_name"])
	assert.Equal(t, "abc", resp["session_id"])

	require.Len(t, srv.events.inserted, 1)
	got := srv.events.inserted[0]
	assert.Equal(t, "bahr-telemetry", got.UserAgent)
	assert.Equal(t, fixedNow, got.CreatedAt)
	assert.JSONEq(t, `{"score":92,"has_rhyme":true,"match_quality":"exact"}`, string(got.Properties))
}

func TestCreateEventRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{name: "malformed json", body: `{"name":`},
		{name: "unknown event", body: map[string]any{"name": "purchase", "timestamp": "2025-03-14T11:59:58Z", "sessionId": "abc"}},
		{name: "missing session", body: map[string]any{"name": "page_view", "timestamp": "2025-03-14T11:59:58Z"}},
		{name: "missing timestamp", body: map[string]any{"name": "page_view", "sessionId": "abc"}},
		{name: "nested property", body: map[string]any{
			"name": "page_view", "timestamp": "2025-03-14T11:59:58Z", "sessionId": "abc",
			"properties": map[string]any{"path": map[string]any{"nested": true}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			w := srv.do(http.MethodPost, "/api/v1/analytics", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, srv.events.inserted)
		})
	}
}

func TestCreateEventStoreFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.events.insertErr = errors.New("clickhouse down")

	w := srv.do(http.MethodPost, "/api/v1/analytics", map[string]any{
		"name": "page_view", "timestamp": "2025-03-14T11:59:58Z", "sessionId": "abc",
	}, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCreateEventsBatch(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(http.MethodPost, "/api/v1/analytics/batch", []map[string]any{
		{"name": "page_view", "timestamp": "2025-03-14T11:59:50Z", "sessionId": "abc", "properties": map[string]any{"path": "/analyze"}},
		{"name": "analyze_submit", "timestamp": "2025-03-14T11:59:52Z", "sessionId": "abc"},
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"accepted":2}`, w.Body.String())
	assert.Len(t, srv.events.inserted, 2)
}

func TestCreateEventsBatchRejectsWholeBatch(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(http.MethodPost, "/api/v1/analytics/batch", []map[string]any{
		{"name": "page_view", "timestamp": "2025-03-14T11:59:50Z", "sessionId": "abc"},
		{"name": "bogus", "timestamp": "2025-03-14T11:59:52Z", "sessionId": "abc"},
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "event 1")
	assert.Empty(t, srv.events.inserted)
}

func TestStatsRequireAuthentication(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(http.MethodGet, "/api/v1/analytics/stats", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(http.MethodGet, "/api/v1/analytics/stats", nil, map[string]string{"X-API-KEY": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(http.MethodGet, "/api/v1/analytics/stats", nil, map[string]string{"X-API-KEY": "dashboard-key"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, srv.events.summaryDays)
}

func TestGetStatsDaysParameter(t *testing.T) {
	auth := map[string]string{"X-API-KEY": "dashboard-key"}
	tests := []struct {
		query string
		code  int
		days  int
	}{
		{query: "?days=30", code: http.StatusOK, days: 30},
		{query: "?days=365", code: http.StatusOK, days: 365},
		{query: "?days=0", code: http.StatusBadRequest},
		{query: "?days=366", code: http.StatusBadRequest},
		{query: "?days=week", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			srv := newTestServer(t)
			w := srv.do(http.MethodGet, "/api/v1/analytics/stats"+tt.query, nil, auth)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, tt.days, srv.events.summaryDays)
			}
		})
	}
}

func TestEventCountsOverTime(t *testing.T) {
	srv := newTestServer(t)
	auth := map[string]string{"X-API-KEY": "dashboard-key"}

	w := srv.do(http.MethodGet, "/api/v1/analytics/stats/event-counts?interval=Day&eventName=analyze_submit", nil, auth)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Day", srv.events.interval)
	assert.Equal(t, "analyze_submit", srv.events.eventName)
	assert.Equal(t, fixedNow, srv.events.end)
	assert.Equal(t, fixedNow.Add(-7*24*time.Hour), srv.events.start)

	w = srv.do(http.MethodGet, "/api/v1/analytics/stats/event-counts?interval=Fortnight", nil, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(http.MethodGet, "/api/v1/analytics/stats/event-counts?interval=Day&eventName=purchase", nil, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(http.MethodGet, "/api/v1/analytics/stats/event-counts?interval=Day&start=yesterday", nil, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUniqueSessionsAndTopPaths(t *testing.T) {
	srv := newTestServer(t)
	auth := map[string]string{"X-API-KEY": "dashboard-key"}

	w := srv.do(http.MethodGet, "/api/v1/analytics/stats/unique-sessions?interval=Hour&start=2025-03-14T00:00:00Z&end=2025-03-14T06:00:00Z", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hour", srv.events.interval)
	assert.Equal(t, time.Date(2025, 3, 14, 6, 0, 0, 0, time.UTC), srv.events.end)

	w = srv.do(http.MethodGet, "/api/v1/analytics/stats/top-paths?limit=3", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(3), srv.events.limit)
	assert.JSONEq(t, `[{"path":"/analyze","count":9}]`, w.Body.String())

	w = srv.do(http.MethodGet, "/api/v1/analytics/stats/top-paths?limit=0", nil, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAverageProperty(t *testing.T) {
	srv := newTestServer(t)
	auth := map[string]string{"X-API-KEY": "dashboard-key"}

	w := srv.do(http.MethodGet, "/api/v1/analytics/stats/average-property?eventName=analyze_success&property=score", nil, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 87.5, resp["averageValue"])
	assert.Equal(t, "score", srv.events.property)

	w = srv.do(http.MethodGet, "/api/v1/analytics/stats/average-property?eventName=analyze_success", nil, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignupLoginAndUseToken(t *testing.T) {
	srv := newTestServer(t)
	creds := map[string]string{"email": "ops@example.com", "password": "correct-horse"}

	w := srv.do(http.MethodPost, "/api/v1/auth/signup", creds, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = srv.do(http.MethodPost, "/api/v1/auth/signup", creds, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = srv.do(http.MethodPost, "/api/v1/auth/login", creds, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var login models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, "ops@example.com", login.Email)
	require.NotEmpty(t, login.Token)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == utils.TokenCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, login.Token, cookie.Value)

	w = srv.do(http.MethodGet, "/api/v1/analytics/stats", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(http.MethodGet, "/api/v1/analytics/stats", nil, map[string]string{"Cookie": utils.TokenCookie + "=" + login.Token})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := newTestServer(t)
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = srv.users.CreateUser(t.Context(), "ops@example.com", hashed)
	require.NoError(t, err)

	w := srv.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ops@example.com", "password": "battery-staple"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "nobody@example.com", "password": "correct-horse"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(http.MethodPost, "/api/v1/auth/signup", map[string]string{"email": "not-an-email", "password": "correct-horse"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(http.MethodPost, "/api/v1/auth/logout", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, utils.TokenCookie, cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestHealthAndPreflight(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = srv.do(http.MethodOptions, "/api/v1/analytics", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
