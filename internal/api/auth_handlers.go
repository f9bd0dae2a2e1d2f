package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"aims-api/internal/models"
	"aims-api/internal/storage"
)

const minPasswordLength = 8

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type authResponse struct {
	User      userResponse `json:"user"`
	ExpiresAt *time.Time   `json:"expiresAt,omitempty"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

func newAuthResponse(user models.User, expiresAt time.Time) authResponse {
	resp := authResponse{User: newUserResponse(user)}
	if !expiresAt.IsZero() {
		utc := expiresAt.UTC()
		resp.ExpiresAt = &utc
	}
	return resp
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, fmt.Errorf("password must be at least %d characters", minPasswordLength))
		return
	}

	user, err := h.Store.CreateUser(r.Context(), storage.CreateUserParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.RoleStudent,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.requestLogger(r).Info("account registered", "user_id", user.ID)
	h.startSession(w, r, user, http.StatusCreated)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if h.Authenticator == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("authentication unavailable"))
		return
	}

	user, err := h.Authenticator.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, storage.ErrInvalidCredentials) {
		h.requestLogger(r).Info("login rejected", "email", storage.NormalizeEmail(req.Email))
		writeError(w, http.StatusUnauthorized, storage.ErrInvalidCredentials)
		return
	}
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.startSession(w, r, user, http.StatusOK)
}

// startSession issues a session for user only once credentials have been
// accepted, so anonymous visitors never get a session record.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user models.User, status int) {
	session, err := h.sessionManager().Create(r.Context(), user.ID)
	if err != nil {
		h.writeStoreError(w, r, fmt.Errorf("create session: %w", err))
		return
	}
	h.setSessionCookie(w, r, session.Token, session.ExpiresAt)
	writeJSON(w, status, newAuthResponse(user, session.ExpiresAt))
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newAuthResponse(user, time.Time{}))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}
	if token, ok := h.sessionToken(r); ok {
		if err := h.sessionManager().Revoke(r.Context(), token); err != nil {
			h.writeStoreError(w, r, fmt.Errorf("revoke session: %w", err))
			return
		}
	}
	h.ClearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}
