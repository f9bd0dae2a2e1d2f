package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"aims-api/internal/models"
	"aims-api/internal/storage"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

var (
	// ErrNoSession reports a request without a verified session cookie.
	ErrNoSession = errors.New("missing session")
	// ErrSessionExpired reports a session token unknown to the store or past its expiry.
	ErrSessionExpired = errors.New("invalid or expired session")
)

// ContextWithUser stores the authenticated user in the provided context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// AuthenticateRequest verifies the session cookie on the request, validates the
// session and loads the account it belongs to.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, error) {
	token, ok := h.sessionToken(r)
	if !ok {
		return models.User{}, ErrNoSession
	}
	session, valid, err := h.sessionManager().Lookup(r.Context(), token)
	if err != nil {
		return models.User{}, fmt.Errorf("look up session: %w", err)
	}
	if !valid {
		return models.User{}, ErrSessionExpired
	}
	user, err := h.Store.GetUser(r.Context(), session.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		_ = h.sessionManager().Revoke(r.Context(), token)
		return models.User{}, ErrSessionExpired
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load session user: %w", err)
	}
	return user, nil
}

func (h *Handler) requireAuthenticatedUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return models.User{}, false
	}
	return user, true
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return models.User{}, false
	}
	if !user.IsAdmin() {
		writeError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
		return models.User{}, false
	}
	return user, true
}
