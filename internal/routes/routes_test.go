package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/templui/stravasync/internal/app"
	"github.com/templui/stravasync/internal/config"
)

const jwtSecret = "routes-test-secret"

func fakeStrava(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token_type":    "Bearer",
			"access_token":  "access",
			"refresh_token": "refresh",
			"expires_at":    time.Now().Add(6 * time.Hour).Unix(),
		})
	})
	mux.HandleFunc("GET /api/v3/athlete/activities", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 77, "name": "Lunch Ride", "type": "Ride", "distance": 20000, "moving_time": 3600, "start_date": "2026-10-01T12:00:00Z"}]`))
	})
	mux.HandleFunc("GET /api/v3/activities/77", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "77", "name": "Lunch Ride", "type": "Ride", "distance": 20000, "moving_time": 3600,
			"start_date": "2026-10-01T12:00:00Z", "perceived_exertion": 2, "photos": {"primary": {"id": 5, "urls": {"600": "https://cdn.example.com/5.jpg"}}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testServer struct {
	handler http.Handler
	app     *app.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	strava := fakeStrava(t)
	dir := t.TempDir()

	cfg := &config.Config{
		AppName:            "stravasync",
		AppEnv:             "test",
		AppURL:             "http://app.test",
		DBDriver:           "sqlite",
		DBConnection:       filepath.Join(dir, "db", "app.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate",
		IdentityJWTSecret:  jwtSecret,
		StravaClientID:     "42",
		StravaClientSecret: "secret",
		StravaRedirectURL:  "http://app.test/strava/callback",
		StravaAuthURL:      strava.URL + "/oauth/authorize",
		StravaTokenURL:     strava.URL + "/oauth/token",
		StravaAPIURL:       strava.URL + "/api/v3",
		StravaHTTPTimeout:  5 * time.Second,
		StravaPageSize:     30,
		LinkStateTTL:       10 * time.Minute,
		LinkStateBackend:   "db",
		StorageBackend:     "local",
		LocalStorageDir:    filepath.Join(dir, "uploads"),
		LocalStoragePrefix: "/uploads",
		MaxPhotoSize:       10 << 20,
		MockMaxCount:       200,
		RateLimitRequests:  1000,
		RateLimitWindow:    time.Minute,
		MetricsEnabled:     true,
	}

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return &testServer{handler: SetupRoutes(a), app: a}
}

func (s *testServer) token(t *testing.T, subject string) string {
	t.Helper()
	token, err := s.app.IdentityService.IssueToken(subject, subject+"@example.com", time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRequiresAuthentication(t *testing.T) {
	s := newTestServer(t)

	for _, target := range []string{"/me", "/activities", "/strava/connect"} {
		rec := s.do(t, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
		assert.Equal(t, "unauthenticated", decode[map[string]string](t, rec)["error"])
	}

	rec := s.do(t, http.MethodGet, "/me", "forged.jwt.value", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeAcceptsHeaderAndQueryToken(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "sub-me")

	rec := s.do(t, http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]any](t, rec)
	assert.Equal(t, "sub-me@example.com", me["email"])
	assert.Equal(t, false, me["stravaConnected"])

	rec = s.do(t, http.MethodGet, "/me?token="+url.QueryEscape(token), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, me["id"], decode[map[string]any](t, rec)["id"])
}

func TestMockLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "sub-mock")

	rec := s.do(t, http.MethodPost, "/activities/mock", token, map[string]int{"count": 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/activities", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	activities := decode[[]map[string]any](t, rec)
	require.Len(t, activities, 3)
	assert.Equal(t, true, activities[0]["isMock"])

	id := activities[0]["id"].(string)
	rec = s.do(t, http.MethodPut, "/activities/"+id, token, map[string]any{"name": "Renamed", "perceivedExertion": "easy"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Easy", decode[map[string]any](t, rec)["perceivedExertion"])

	rec = s.do(t, http.MethodPut, "/activities/"+id, token, map[string]any{"perceivedExertion": "brutal"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode[map[string]string](t, rec)["error"])

	rec = s.do(t, http.MethodPost, "/activities/mock?count=500", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/activities/all", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/activities/mock", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode[map[string]float64](t, rec)["deleted"])

	rec = s.do(t, http.MethodDelete, "/activities/all?confirm=true", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode[map[string]float64](t, rec)["deleted"])
}

func TestOtherUsersActivityIsForbidden(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, "sub-owner")
	intruder := s.token(t, "sub-intruder")

	rec := s.do(t, http.MethodPost, "/activities/mock?count=1", owner, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodGet, "/activities", owner, nil)
	id := decode[[]map[string]any](t, rec)[0]["id"].(string)

	rec = s.do(t, http.MethodPut, "/activities/"+id, intruder, map[string]any{"name": "Mine"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, "/activities/does-not-exist", owner, map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncRequiresLink(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "sub-unlinked")

	rec := s.do(t, http.MethodPost, "/activities/sync", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "not_connected", decode[map[string]string](t, rec)["error"])

	rec = s.do(t, http.MethodGet, "/strava/status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["connected"])
}

func TestLinkThenSync(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "sub-link")

	rec := s.do(t, http.MethodGet, "/strava/connect?token="+url.QueryEscape(token), "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	consent, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := consent.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "force", consent.Query().Get("approval_prompt"))

	rec = s.do(t, http.MethodGet, "/strava/callback?code=ok&state="+url.QueryEscape(state), "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://app.test/?strava=connected", rec.Header().Get("Location"))

	rec = s.do(t, http.MethodGet, "/strava/callback?code=ok&state="+url.QueryEscape(state), "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "http://app.test/?"))
	assert.Contains(t, rec.Header().Get("Location"), "strava=error")

	rec = s.do(t, http.MethodGet, "/me", token, nil)
	assert.Equal(t, true, decode[map[string]any](t, rec)["stravaConnected"])

	rec = s.do(t, http.MethodPost, "/activities/sync", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]float64{"count": 1, "upserted": 1, "failed": 0}, decode[map[string]float64](t, rec))

	rec = s.do(t, http.MethodGet, "/activities", token, nil)
	activities := decode[[]map[string]any](t, rec)
	require.Len(t, activities, 1)
	assert.EqualValues(t, 77, activities[0]["stravaId"])
	assert.Equal(t, "Easy", activities[0]["perceivedExertion"])
	require.Len(t, activities[0]["photos"], 1)

	rec = s.do(t, http.MethodPost, "/strava/disconnect", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/activities", token, nil)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)
}

var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func TestPhotoEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "sub-photo")

	rec := s.do(t, http.MethodPost, "/activities/mock?count=1", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodGet, "/activities", token, nil)
	activityID := decode[[]map[string]any](t, rec)[0]["id"].(string)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("photo", "dot.png")
	require.NoError(t, err)
	_, err = part.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("caption", "summit"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/photos/"+activityID, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	upload := httptest.NewRecorder()
	s.handler.ServeHTTP(upload, req)
	require.Equal(t, http.StatusCreated, upload.Code, upload.Body.String())

	photo := decode[map[string]any](t, upload)
	photoID := photo["id"].(string)
	assert.Equal(t, "summit", photo["caption"])
	assert.Equal(t, false, photo["isPrimary"])
	assert.NotContains(t, photo, "storagePath")

	blobURL, err := url.Parse(photo["url"].(string))
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, blobURL.Path, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngBytes, rec.Body.Bytes())

	rec = s.do(t, http.MethodPut, "/photos/"+photoID+"/primary", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["isPrimary"])

	rec = s.do(t, http.MethodGet, "/photos/activity/"+activityID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = s.do(t, http.MethodDelete, "/photos/"+photoID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/photos/"+photoID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
