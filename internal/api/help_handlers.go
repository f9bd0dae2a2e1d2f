package api

import (
	"net/http"

	"aims-api/internal/storage"
)

type helpRequestPayload struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (h *Handler) HelpRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		// An empty user id lists every request.
		owner := user.ID
		if user.IsAdmin() {
			owner = ""
		}
		requests, err := h.Store.ListHelpRequests(r.Context(), owner)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, requests)
	case http.MethodPost:
		var req helpRequestPayload
		if err := decodeJSON(r, &req); err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		request, err := h.Store.CreateHelpRequest(r.Context(), storage.CreateHelpRequestParams{
			UserID:  user.ID,
			Subject: req.Subject,
			Message: req.Message,
		})
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, request)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

// HelpRequestByID serves POST /api/help/{id}/resolve.
func (h *Handler) HelpRequestByID(w http.ResponseWriter, r *http.Request) {
	id, rest := trimPathID(r.URL.Path, "/api/help/")
	if id == "" || len(rest) != 1 || rest[0] != "resolve" {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}
	admin, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	request, err := h.Store.ResolveHelpRequest(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.requestLogger(r).Info("help request resolved", "help_request_id", request.ID, "resolved_by", admin.ID)
	writeJSON(w, http.StatusOK, request)
}
