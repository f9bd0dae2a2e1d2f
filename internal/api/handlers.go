package api

import (
	"log/slog"
	"net/http"
	"time"

	"aims-api/internal/auth"
	"aims-api/internal/observability/logging"
	"aims-api/internal/storage"
)

// DatastoreStatus describes the datastore connection the process is running on.
type DatastoreStatus struct {
	Driver    string `json:"driver"`
	Ephemeral bool   `json:"ephemeral"`
}

type Handler struct {
	Store               storage.Repository
	Sessions            *auth.SessionManager
	Authenticator       auth.Authenticator
	Signer              *auth.CookieSigner
	Datastore           DatastoreStatus
	SessionCookiePolicy SessionCookiePolicy
	Logger              *slog.Logger
	Now                 func() time.Time
}

// NewHandler wires the handler with a password authenticator over store. A nil
// session manager falls back to a 24 hour in-memory one.
func NewHandler(store storage.Repository, sessions *auth.SessionManager, signer *auth.CookieSigner) *Handler {
	if sessions == nil {
		sessions = auth.NewSessionManager(24 * time.Hour)
	}
	h := &Handler{
		Store:    store,
		Sessions: sessions,
		Signer:   signer,
	}
	if store != nil {
		h.Authenticator = auth.PasswordAuthenticator{Users: store}
		h.Datastore.Driver = store.Driver()
	}
	return h
}

func (h *Handler) sessionManager() *auth.SessionManager {
	if h.Sessions == nil {
		h.Sessions = auth.NewSessionManager(24 * time.Hour)
	}
	return h.Sessions
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// requestLogger prefers the request-scoped logger installed by the server
// middleware so handler logs carry the request and user ids.
func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	if r != nil {
		if logger := logging.LoggerFromContext(r.Context()); logger != nil {
			return logger
		}
		return logging.WithContext(r.Context(), h.logger())
	}
	return h.logger()
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	writeError(w, http.StatusMethodNotAllowed, methodError(r.Method))
}
