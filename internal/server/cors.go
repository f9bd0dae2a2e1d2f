package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/cors"

	"aims-api/internal/observability/metrics"
	"aims-api/internal/origin"
)

var corsAllowedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// corsMiddleware rejects requests whose Origin the policy denies before any
// route runs, then lets rs/cors emit the response headers for admitted
// origins. Requests without an Origin header pass straight through.
func corsMiddleware(policy origin.Policy, recorder *metrics.Recorder, logger *slog.Logger, next http.Handler) http.Handler {
	headers := cors.New(cors.Options{
		AllowOriginFunc:      policy.Allows,
		AllowedMethods:       corsAllowedMethods,
		AllowedHeaders:       []string{"*"},
		ExposedHeaders:       []string{"X-Request-Id"},
		AllowCredentials:     true,
		OptionsSuccessStatus: http.StatusNoContent,
	}).Handler(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestOrigin := strings.TrimSpace(r.Header.Get("Origin"))
		if requestOrigin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if err := policy.Check(requestOrigin); err != nil {
			if recorder != nil {
				recorder.ObserveCORSRejection()
			}
			if logger != nil {
				requestLog(logger, r).Warn("blocked CORS origin", "origin", requestOrigin, "error", err)
			}
			fail(w, http.StatusForbidden, origin.ErrNotAllowed.Error())
			return
		}
		headers.ServeHTTP(w, r)
	})
}
