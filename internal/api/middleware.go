package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type ctxKey int

const userIDKey ctxKey = iota

func withUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the id of the authenticated caller.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// RequireAuth validates the Bearer token and checks that its user still
// exists. It answers 401 otherwise.
func RequireAuth(tokens *Tokens, users usersService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			userID, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				logger.Debug("Rejected token", "error", err)
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			user, err := users.GetUser(r.Context(), userID)
			if err != nil {
				respondServiceError(w, logger, err)
				return
			}
			if user == nil {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), user.ID)))
		})
	}
}
