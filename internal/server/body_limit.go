package server

import (
	"fmt"
	"net/http"
)

// bodyLimitMiddleware caps request bodies at limit bytes. Declared lengths over
// the limit are refused up front; others are cut off while the handler reads.
// A negative limit disables the cap.
func bodyLimitMiddleware(limit int64, next http.Handler) http.Handler {
	if limit < 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > limit {
			fail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit))
			return
		}
		if r.Body != nil && r.Body != http.NoBody {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}
