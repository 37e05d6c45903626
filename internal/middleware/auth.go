package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/templui/stravasync/internal/ctxkeys"
	"github.com/templui/stravasync/internal/service"
)

// BearerToken returns the assertion from the Authorization header, falling
// back to the token query parameter for browser redirects.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware verifies the bearer assertion and adds the user to the
// context. Requests without a valid assertion continue anonymously.
func AuthMiddleware(identityService *service.IdentityService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := identityService.Authenticate(r.Context(), token)
			if errors.Is(err, service.ErrUnauthenticated) {
				slog.Debug("bearer assertion rejected", "error", err, "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				slog.Error("failed to resolve user", "error", err, "path", r.URL.Path)
				writeJSONError(w, http.StatusInternalServerError, service.KindInternal, "internal error")
				return
			}

			ctx := ctxkeys.WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.User(r.Context()) == nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="stravasync"`)
			writeJSONError(w, http.StatusUnauthorized, service.KindUnauthenticated, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	}
}

func writeJSONError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   kind,
		"message": message,
	})
}
