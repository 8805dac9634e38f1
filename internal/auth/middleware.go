package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	userIDKey contextKey = "auth_user_id"
	adminKey  contextKey = "auth_is_admin"
)

// Middleware authenticates requests via the Authorization bearer header and
// stores the caller's user id and admin flag in the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondUnauthorized(w, "Not authorized, no token")
			return
		}

		userID, admin, err := m.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			log.Warn().Err(err).Msg("Rejected request with invalid token")
			respondUnauthorized(w, "Not authorized, token invalid")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, adminKey, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects non-admin callers. It must run after Middleware.
func (m *Manager) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdminFromContext(r.Context()) {
			userID, _ := UserIDFromContext(r.Context())
			log.Warn().Stringer("user_id", userID).Str("path", r.URL.Path).Msg("Rejected non-admin request to admin route")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"success":false,"message":"Not authorized as admin"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserIDFromContext returns the authenticated user id set by Middleware.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}

// IsAdminFromContext reports whether the authenticated caller is an admin.
func IsAdminFromContext(ctx context.Context) bool {
	admin, ok := ctx.Value(adminKey).(bool)
	return ok && admin
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"message":"` + message + `"}`))
}
