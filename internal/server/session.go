package server

import (
	"errors"
	"log/slog"
	"net/http"

	"aims-api/internal/api"
	"aims-api/internal/observability/logging"
)

// sessionMiddleware loads the account behind a verified session cookie into
// the request context. Missing, unsigned, tampered or expired sessions leave
// the request anonymous with the cookie cleared; handlers decide whether that
// is acceptable.
func sessionMiddleware(handler *api.Handler, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(api.SessionCookieName); err != nil {
			next.ServeHTTP(w, r)
			return
		}
		user, err := handler.AuthenticateRequest(r)
		switch {
		case err == nil:
			ctx := api.ContextWithUser(r.Context(), user)
			ctx = logging.ContextWithUserID(ctx, user.ID)
			if scoped := logging.LoggerFromContext(r.Context()); scoped != nil {
				ctx = logging.ContextWithLogger(ctx, scoped.With("user_id", user.ID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		case errors.Is(err, api.ErrNoSession), errors.Is(err, api.ErrSessionExpired):
			if logger != nil {
				requestLog(logger, r).Debug("ignoring session cookie", "reason", err)
			}
			handler.ClearSessionCookie(w, r)
			next.ServeHTTP(w, r)
		default:
			if logger != nil {
				requestLog(logger, r).Error("session lookup failed", "error", err)
			}
			fail(w, http.StatusInternalServerError, "session lookup failed")
		}
	})
}
