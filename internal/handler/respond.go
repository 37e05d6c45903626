package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/templui/stravasync/internal/ctxkeys"
	"github.com/templui/stravasync/internal/service"
)

const maxJSONBody = 1 << 20

var kindStatus = map[string]int{
	service.KindUnauthenticated:    http.StatusUnauthorized,
	service.KindNotConnected:       http.StatusBadRequest,
	service.KindRefreshFailed:      http.StatusBadGateway,
	service.KindRemoteError:        http.StatusBadGateway,
	service.KindRemoteUpdateFailed: http.StatusBadGateway,
	service.KindForbidden:          http.StatusForbidden,
	service.KindNotFound:           http.StatusNotFound,
	service.KindInvalidInput:       http.StatusBadRequest,
	service.KindStorageWriteFailed: http.StatusInternalServerError,
	service.KindLinkFailed:         http.StatusBadRequest,
	service.KindInternal:           http.StatusInternalServerError,
}

// serverMessages replaces the error text of 5xx responses, which may carry
// upstream response bodies.
var serverMessages = map[string]string{
	service.KindRefreshFailed:      "strava token refresh failed",
	service.KindRemoteError:        "strava request failed",
	service.KindRemoteUpdateFailed: "strava rejected the update",
	service.KindStorageWriteFailed: "failed to store photo",
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps err to its kind and status. Server errors are logged and
// answered with a fixed message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.ErrorKind(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	attrs := []any{"error", err, "kind", kind, "path", r.URL.Path, "request_id", ctxkeys.RequestID(r.Context())}
	if user := ctxkeys.User(r.Context()); user != nil {
		attrs = append(attrs, "user_id", user.ID)
	}

	switch {
	case status >= 500:
		slog.Error("request failed", attrs...)
		message = serverMessages[kind]
		if message == "" {
			message = "internal error"
		}
	default:
		slog.Warn("request rejected", attrs...)
	}

	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.Join(service.ErrInvalidInput, errors.New("empty request body"))
		}
		return errors.Join(service.ErrInvalidInput, err)
	}
	return nil
}
