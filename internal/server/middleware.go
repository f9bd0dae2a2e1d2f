package server

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"aims-api/internal/api"
	"aims-api/internal/observability/logging"
	"aims-api/internal/observability/metrics"
)

const (
	requestIDHeader    = "X-Request-Id"
	maxRequestIDLength = 128
)

// fail writes a middleware rejection in the same JSON shape the API
// handlers use.
func fail(w http.ResponseWriter, status int, message string) {
	api.WriteError(w, status, api.RequestError{Status: status, Message: message})
}

// requestLog picks the logger for r: the one stored by the request ID or
// session middleware when present, otherwise base annotated from the context.
func requestLog(base *slog.Logger, r *http.Request) *slog.Logger {
	logger := logging.LoggerFromContext(r.Context())
	if logger == nil {
		logger = logging.WithContext(r.Context(), base)
	}
	if logger == nil {
		return slog.Default()
	}
	return logger.With("method", r.Method, "path", r.URL.Path)
}

// requestIDMiddleware keeps a sane client supplied X-Request-Id or mints a
// new one, echoes it on the response and seeds the request logger.
func requestIDMiddleware(logger *slog.Logger, newID func() string, next http.Handler) http.Handler {
	if newID == nil {
		newID = uuid.NewString
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > maxRequestIDLength {
			id = newID()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := logging.ContextWithRequestID(r.Context(), id)
		if logger != nil {
			ctx = logging.ContextWithLogger(ctx, logging.WithContext(ctx, logger))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessLogMiddleware(logger *slog.Logger, trustForwarded bool, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	return logging.RequestLogger(logging.RequestLoggerConfig{
		Logger:            logger,
		DisableRemoteAddr: true,
		AdditionalFields: func(r *http.Request, _ int, _ time.Duration) []any {
			return []any{"remote_ip", remoteIP(r, trustForwarded)}
		},
	})(next)
}

// auditMiddleware records state-changing API calls with the acting user.
func auditMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := metrics.NewResponseRecorder(w)
		started := time.Now()
		next.ServeHTTP(rec, r)
		if !audited(r) {
			return
		}

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.Status()),
			slog.Int64("duration_ms", time.Since(started).Milliseconds()),
		}
		if id, ok := logging.RequestIDFromContext(r.Context()); ok {
			attrs = append(attrs, slog.String("request_id", id))
		}
		if user, ok := api.UserFromContext(r.Context()); ok {
			attrs = append(attrs, slog.String("user_id", user.ID), slog.String("role", user.Role))
		}
		logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", attrs...)
	})
}

func audited(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	path := r.URL.Path
	return strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/auth/")
}

// remoteIP returns the client address. Forwarding headers are honoured only
// when the deployment sits behind a trusted proxy.
func remoteIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if forwarded, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(forwarded) != "" {
			return strings.TrimSpace(forwarded)
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
