package api

import (
	"net/http"

	"aims-api/internal/storage"
)

type createCourseRequest struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Instructor  string `json:"instructor"`
	Credits     int    `json:"credits"`
}

func (h *Handler) Courses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		courses, err := h.Store.ListCourses(r.Context())
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, courses)
	case http.MethodPost:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		var req createCourseRequest
		if err := decodeJSON(r, &req); err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		course, err := h.Store.CreateCourse(r.Context(), storage.CreateCourseParams{
			Code:        req.Code,
			Title:       req.Title,
			Description: req.Description,
			Instructor:  req.Instructor,
			Credits:     req.Credits,
		})
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.requestLogger(r).Info("course created", "course_id", course.ID, "code", course.Code)
		writeJSON(w, http.StatusCreated, course)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

func (h *Handler) CourseByID(w http.ResponseWriter, r *http.Request) {
	id, rest := trimPathID(r.URL.Path, "/api/courses/")
	if id == "" || len(rest) > 0 {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		course, err := h.Store.GetCourse(r.Context(), id)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, course)
	case http.MethodDelete:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		if err := h.Store.DeleteCourse(r.Context(), id); err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.requestLogger(r).Info("course deleted", "course_id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, "GET, DELETE")
	}
}
