package api

import (
	"net/http"
	"time"
)

type statusResponse struct {
	Datastore  DatastoreStatus `json:"datastore"`
	ServerTime time.Time       `json:"serverTime"`
}

// Status reports which datastore the process runs on. Ephemeral is true when
// the in-memory fallback is serving requests.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Datastore: h.Datastore, ServerTime: h.now()})
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}
