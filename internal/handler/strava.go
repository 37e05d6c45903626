package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/templui/stravasync/internal/ctxkeys"
	"github.com/templui/stravasync/internal/service"
)

type StravaHandler struct {
	linkService *service.LinkService
	appURL      string
}

func NewStravaHandler(linkService *service.LinkService, appURL string) *StravaHandler {
	return &StravaHandler{
		linkService: linkService,
		appURL:      strings.TrimSuffix(appURL, "/"),
	}
}

// Connect redirects the user to the Strava consent page.
func (h *StravaHandler) Connect(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	authURL, err := h.linkService.BeginLink(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the link and sends the browser back to the app with
// the outcome in the strava query parameter. It authenticates through the
// state value, not a bearer assertion.
func (h *StravaHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		slog.Warn("strava authorization denied", "reason", reason)
	}

	userID, err := h.linkService.CompleteLink(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		slog.Warn("strava link failed", "error", err, "user_id", userID)
		h.redirect(w, r, url.Values{"strava": {"error"}, "reason": {service.ErrorKind(err)}})
		return
	}

	h.redirect(w, r, url.Values{"strava": {"connected"}})
}

func (h *StravaHandler) redirect(w http.ResponseWriter, r *http.Request, params url.Values) {
	http.Redirect(w, r, h.appURL+"/?"+params.Encode(), http.StatusFound)
}

func (h *StravaHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	if err := h.linkService.Disconnect(r.Context(), user.ID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"connected": false})
}

// Status checks the stored credential against Strava.
func (h *StravaHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	status, err := h.linkService.Status(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
