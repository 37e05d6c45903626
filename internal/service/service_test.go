package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/templui/stravasync/internal/crypto"
	"github.com/templui/stravasync/internal/db/dbtest"
	"github.com/templui/stravasync/internal/model"
	"github.com/templui/stravasync/internal/repository"
	"github.com/templui/stravasync/internal/storage"
	"github.com/templui/stravasync/internal/strava"
)

// fakeStrava serves the parts of the Strava API and OAuth endpoints the
// services use. Handlers read the exported fields under mu.
type fakeStrava struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	calls        map[string]int
	order        []string
	summaries    []map[string]any
	details      map[int64]map[string]any
	failDetail   map[int64]bool
	photos       map[int64][]map[string]any
	failUpdate   bool
	failUpload   bool
	failRefresh  bool
	refreshDelay time.Duration
	nextToken    string
	nextExpiry   int64
	updates      map[int64]map[string]any
	primaries    map[int64]int64
	uploadID     int64
}

func newFakeStrava(t *testing.T) *fakeStrava {
	t.Helper()
	f := &fakeStrava{
		t:          t,
		calls:      map[string]int{},
		details:    map[int64]map[string]any{},
		failDetail: map[int64]bool{},
		photos:     map[int64][]map[string]any{},
		updates:    map[int64]map[string]any{},
		primaries:  map[int64]int64{},
		nextToken:  "fresh-access",
		nextExpiry: time.Now().Add(6 * time.Hour).Unix(),
		uploadID:   900,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", f.token)
	mux.HandleFunc("GET /api/v3/athlete", f.athlete)
	mux.HandleFunc("GET /api/v3/athlete/activities", f.listActivities)
	mux.HandleFunc("GET /api/v3/activities/{id}", f.getActivity)
	mux.HandleFunc("PUT /api/v3/activities/{id}", f.updateActivity)
	mux.HandleFunc("GET /api/v3/activities/{id}/photos", f.listPhotos)
	mux.HandleFunc("POST /api/v3/activities/{id}/photos", f.uploadPhoto)
	mux.HandleFunc("PUT /api/v3/activities/{id}/photos/{photo}", f.setPrimary)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeStrava) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	f.order = append(f.order, name)
}

// configure mutates the fake under its lock.
func (f *fakeStrava) configure(fn func(f *fakeStrava)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeStrava) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeStrava) remoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for name, c := range f.calls {
		if name != "token" {
			n += c
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id
}

func (f *fakeStrava) token(w http.ResponseWriter, r *http.Request) {
	f.record("token")
	assert.NoError(f.t, r.ParseForm())

	f.mu.Lock()
	fail, delay := f.failRefresh, f.refreshDelay
	body := map[string]any{
		"token_type":    "Bearer",
		"access_token":  f.nextToken,
		"refresh_token": "fresh-refresh",
		"expires_at":    f.nextExpiry,
		"expires_in":    21600,
	}
	f.mu.Unlock()

	time.Sleep(delay)
	if fail {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		return
	}
	if r.PostForm.Get("grant_type") == "authorization_code" && r.PostForm.Get("code") == "bad-code" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (f *fakeStrava) athlete(w http.ResponseWriter, r *http.Request) {
	f.record("athlete")
	writeJSON(w, http.StatusOK, map[string]any{"id": 1234, "username": "runner", "firstname": "Ada"})
}

func (f *fakeStrava) listActivities(w http.ResponseWriter, r *http.Request) {
	f.record("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, f.summaries)
}

func (f *fakeStrava) getActivity(w http.ResponseWriter, r *http.Request) {
	f.record("detail")
	id := pathID(r, "id")
	f.mu.Lock()
	detail, ok := f.details[id]
	fail := f.failDetail[id]
	f.mu.Unlock()

	if fail || !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "boom"})
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (f *fakeStrava) updateActivity(w http.ResponseWriter, r *http.Request) {
	f.record("update")
	var body map[string]any
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "nope"})
		return
	}
	f.updates[pathID(r, "id")] = body
	writeJSON(w, http.StatusOK, map[string]any{"id": pathID(r, "id")})
}

func (f *fakeStrava) listPhotos(w http.ResponseWriter, r *http.Request) {
	f.record("photos")
	f.mu.Lock()
	defer f.mu.Unlock()
	photos := f.photos[pathID(r, "id")]
	if photos == nil {
		photos = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, photos)
}

func (f *fakeStrava) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	f.record("upload")
	file, _, err := r.FormFile("file")
	if !assert.NoError(f.t, err) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "missing file"})
		return
	}
	_, _ = io.Copy(io.Discard, file)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "upload failed"})
		return
	}
	f.uploadID++
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":   f.uploadID,
		"urls": map[string]string{"600": fmt.Sprintf("https://cdn.example.com/up/%d-600.jpg", f.uploadID)},
	})
}

func (f *fakeStrava) setPrimary(w http.ResponseWriter, r *http.Request) {
	f.record("set_primary")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.primaries[pathID(r, "id")] = pathID(r, "photo")
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (f *fakeStrava) addActivity(id int64, detail map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, map[string]any{
		"id":          id,
		"name":        fmt.Sprintf("Run %d", id),
		"type":        "Run",
		"distance":    5000.0,
		"moving_time": 1500,
		"start_date":  time.Now().Add(-time.Duration(id%50) * time.Hour).UTC().Format(time.RFC3339),
	})
	d := map[string]any{
		"id":          id,
		"name":        fmt.Sprintf("Run %d", id),
		"type":        "Run",
		"distance":    5000.0,
		"moving_time": 1500,
		"start_date":  time.Now().Add(-time.Duration(id%50) * time.Hour).UTC().Format(time.RFC3339),
	}
	for k, v := range detail {
		d[k] = v
	}
	f.details[id] = d
}

// 32 bytes of 'k'.
const testEncryptionKey = "a2tra2tra2tra2tra2tra2tra2tra2tra2tra2tra2s="

// env wires every service against a temp SQLite database and the fake.
type env struct {
	db         *sqlx.DB
	fake       *fakeStrava
	users      repository.UserRepository
	tokens     repository.TokenRepository
	activities repository.ActivityRepository
	photos     repository.PhotoRepository
	storage    *storage.LocalStorage

	credentials *CredentialStore
	refresher   *TokenRefresher
	identity    *IdentityService
	link        *LinkService
	sync        *SyncService
	activity    *ActivityService
	photo       *PhotoService
	mock        *MockService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	conn := dbtest.SQLite(t)
	fake := newFakeStrava(t)

	store, err := storage.NewLocalStorage(t.TempDir(), "http://localhost:8090/uploads")
	require.NoError(t, err)

	encryptor, err := crypto.New(testEncryptionKey)
	require.NoError(t, err)

	e := &env{
		db:         conn,
		fake:       fake,
		users:      repository.NewUserRepository(conn),
		tokens:     repository.NewTokenRepository(conn),
		activities: repository.NewActivityRepository(conn),
		photos:     repository.NewPhotoRepository(conn),
		storage:    store,
	}

	oauth := strava.NewOAuth(strava.OAuthConfig{
		ClientID:     "42",
		ClientSecret: "secret",
		AuthURL:      fake.srv.URL + "/oauth/authorize",
		TokenURL:     fake.srv.URL + "/oauth/token",
		RedirectURL:  "http://localhost:8090/strava/callback",
		Timeout:      5 * time.Second,
		HTTPClient:   fake.srv.Client(),
	})
	api := strava.NewClient(fake.srv.URL+"/api/v3", 5*time.Second, fake.srv.Client())

	e.credentials = NewCredentialStore(e.users, encryptor)
	e.refresher = NewTokenRefresher(e.credentials, oauth)
	e.identity = NewIdentityService(e.users, "test-secret", "")
	e.link = NewLinkService(NewSQLLinkStateStore(e.tokens, 10*time.Minute), oauth, e.credentials, e.refresher, api)
	e.sync = NewSyncService(e.activities, e.photos, e.refresher, api, store, 30)
	e.activity = NewActivityService(e.activities, e.refresher, api)
	e.photo = NewPhotoService(e.photos, e.activity, e.refresher, api, store, 0)
	e.mock = NewMockService(e.activities, store, 200)
	return e
}

func (e *env) user(t *testing.T) *model.User {
	t.Helper()
	u, err := e.identity.ResolveUser(context.Background(), &Identity{Subject: uuid.New().String(), Email: "runner@example.com"})
	require.NoError(t, err)
	return u
}

// connect stores a credential for u that expires at expiresAt.
func (e *env) connect(t *testing.T, u *model.User, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, e.credentials.Put(context.Background(), u.ID, &model.Credential{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    expiresAt.Unix(),
	}))
}

func (e *env) connectedUser(t *testing.T) *model.User {
	t.Helper()
	u := e.user(t)
	e.connect(t, u, time.Now().Add(time.Hour))
	return u
}

func (e *env) remoteActivity(t *testing.T, userID string, stravaID int64) *model.Activity {
	t.Helper()
	a := &model.Activity{
		UserID:     userID,
		StravaID:   stravaID,
		Name:       "Morning Run",
		Type:       "Run",
		Distance:   5000,
		MovingTime: 1500,
		StartDate:  time.Now().Add(-time.Hour).UTC(),
	}
	require.NoError(t, e.activities.CreateMany(context.Background(), []*model.Activity{a}))
	return a
}

// pngBytes is a 1x1 PNG.
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
