package handler

import (
	"net/http"

	"github.com/templui/stravasync/internal/ctxkeys"
)

type meResponse struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	StravaConnected bool   `json:"stravaConnected"`
}

type AccountHandler struct{}

func NewAccountHandler() *AccountHandler {
	return &AccountHandler{}
}

// Me returns the caller, created on first sight by the auth middleware.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		ID:              user.ID,
		Email:           user.Email,
		StravaConnected: user.IsConnected(),
	})
}
