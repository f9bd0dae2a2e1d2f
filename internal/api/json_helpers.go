package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"aims-api/internal/storage"
)

var errNotFound = errors.New("not found")

// RequestError is an API error that carries its own HTTP status.
type RequestError struct {
	Status  int
	Message string
}

func (e RequestError) Error() string {
	return e.Message
}

func methodError(method string) error {
	return RequestError{Status: http.StatusMethodNotAllowed, Message: fmt.Sprintf("method %s not allowed", method)}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// WriteError is an exported helper for returning JSON API errors.
func WriteError(w http.ResponseWriter, status int, err error) {
	writeError(w, status, err)
}

// writeStoreError maps repository errors onto API statuses. Unexpected
// failures are logged and reported without their details.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr RequestError
	switch {
	case errors.As(err, &reqErr):
		writeError(w, reqErr.Status, reqErr)
	case storage.IsValidation(err):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, errNotFound)
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, storage.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, storage.ErrInvalidCredentials)
	default:
		h.requestLogger(r).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
	}
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return RequestError{Status: http.StatusBadRequest, Message: "request body is required"}
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return RequestError{Status: http.StatusRequestEntityTooLarge, Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)}
		case errors.Is(err, io.EOF):
			return RequestError{Status: http.StatusBadRequest, Message: "request body is required"}
		default:
			return RequestError{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid JSON body: %v", err)}
		}
	}
	return nil
}
