package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/templui/stravasync/internal/app"
	"github.com/templui/stravasync/internal/handler"
	"github.com/templui/stravasync/internal/middleware"
	"github.com/templui/stravasync/internal/storage"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	account := handler.NewAccountHandler()
	strava := handler.NewStravaHandler(app.LinkService, app.Cfg.AppURL)
	activity := handler.NewActivityHandler(app.ActivityService, app.SyncService, app.MockService)
	photo := handler.NewPhotoHandler(app.PhotoService, app.Cfg.MaxPhotoSize)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	// Local blobs
	if local, ok := app.Storage.(*storage.LocalStorage); ok {
		prefix := app.Cfg.LocalStoragePrefix + "/"
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(local.Root()))))
	}

	if app.Cfg.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Strava redirects here; the state value identifies the user.
	mux.HandleFunc("GET /strava/callback", strava.Callback)

	// ============================================================================
	// AUTHENTICATED ROUTES
	// ============================================================================

	// Remote calls are rate limited per user
	limit := middleware.RateLimit(app.Cfg.RateLimitRequests, app.Cfg.RateLimitWindow)

	mux.HandleFunc("GET /me", middleware.RequireAuth(account.Me))

	// Strava link
	mux.HandleFunc("GET /strava/connect", middleware.RequireAuth(strava.Connect))
	mux.HandleFunc("POST /strava/disconnect", middleware.RequireAuth(strava.Disconnect))
	mux.HandleFunc("GET /strava/status", middleware.RequireAuth(limit(strava.Status)))

	// Activities
	mux.HandleFunc("GET /activities", middleware.RequireAuth(activity.List))
	mux.HandleFunc("POST /activities/sync", middleware.RequireAuth(limit(activity.Sync)))
	mux.HandleFunc("POST /activities/sync-photos", middleware.RequireAuth(limit(activity.SyncPhotos)))
	mux.HandleFunc("POST /activities/mock", middleware.RequireAuth(limit(activity.GenerateMock)))
	mux.HandleFunc("DELETE /activities/mock", middleware.RequireAuth(activity.DeleteMock))
	mux.HandleFunc("DELETE /activities/all", middleware.RequireAuth(activity.DeleteAll))
	mux.HandleFunc("PUT /activities/{id}", middleware.RequireAuth(limit(activity.Update)))

	// Photos
	mux.HandleFunc("GET /photos/activity/{activityId}", middleware.RequireAuth(photo.List))
	mux.HandleFunc("POST /photos/{activityId}", middleware.RequireAuth(limit(photo.Upload)))
	mux.HandleFunc("DELETE /photos/{photoId}", middleware.RequireAuth(photo.Delete))
	mux.HandleFunc("PUT /photos/{photoId}/primary", middleware.RequireAuth(limit(photo.SetPrimary)))

	// Apply global middleware
	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.AuthMiddleware(app.IdentityService),
		middleware.RequestLogging,
	)
}
