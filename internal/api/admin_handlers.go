package api

import (
	"net/http"
)

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	response := make([]userResponse, 0, len(users))
	for _, user := range users {
		response = append(response, newUserResponse(user))
	}
	writeJSON(w, http.StatusOK, response)
}

// AdminUserByID serves PUT /api/admin/users/{id}/role.
func (h *Handler) AdminUserByID(w http.ResponseWriter, r *http.Request) {
	id, rest := trimPathID(r.URL.Path, "/api/admin/users/")
	if id == "" || len(rest) != 1 || rest[0] != "role" {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, "PUT")
		return
	}
	admin, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	user, err := h.Store.SetUserRole(r.Context(), id, req.Role)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.requestLogger(r).Info("user role changed", "target_user_id", user.ID, "role", user.Role, "changed_by", admin.ID)
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	stats, err := h.Store.Stats(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
