package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"aims-api/internal/api"
	"aims-api/internal/observability/logging"
	"aims-api/internal/observability/metrics"
	"aims-api/internal/origin"
	"aims-api/internal/serverutil"
)

// DefaultBodyLimit caps request bodies at 100 KiB.
const DefaultBodyLimit int64 = 100 << 10

type Config struct {
	Addr            string
	TLS             serverutil.TLSConfig
	RateLimit       RateLimitConfig
	Security        SecurityConfig
	Origins         origin.Policy
	BodyLimit       int64
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	AuditLogger     *slog.Logger
	Metrics         *metrics.Recorder
}

type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	metrics         *metrics.Recorder
	rateLimiter     *rateLimiter
	tls             serverutil.TLSConfig
	shutdownTimeout time.Duration
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, errors.New("api handler is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.New()
	}
	bodyLimit := cfg.BodyLimit
	if bodyLimit == 0 {
		bodyLimit = DefaultBodyLimit
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	for _, group := range handler.RouteGroups() {
		mux.Handle(group.Prefix, group.Handler)
		mux.Handle(group.Prefix+"/", group.Handler)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusNotFound, "not found")
	})

	rl := newRateLimiter(cfg.RateLimit)
	httpLogger := logging.WithComponent(logger, "http")

	handlerChain := http.Handler(mux)
	handlerChain = auditMiddleware(cfg.AuditLogger, handlerChain)
	handlerChain = sessionMiddleware(handler, httpLogger, handlerChain)
	handlerChain = bodyLimitMiddleware(bodyLimit, handlerChain)
	handlerChain = rateLimitMiddleware(rl, httpLogger, handlerChain)
	handlerChain = corsMiddleware(cfg.Origins, recorder, httpLogger, handlerChain)
	handlerChain = securityHeadersMiddleware(cfg.Security, handlerChain)
	handlerChain = otelhttp.NewHandler(handlerChain, "aims-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
	handlerChain = metrics.HTTPMiddleware(recorder, handlerChain)
	handlerChain = accessLogMiddleware(httpLogger, cfg.RateLimit.TrustForwardedHeaders, handlerChain)
	handlerChain = requestIDMiddleware(logger, nil, handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(httpLogger.Handler(), slog.LevelWarn),
	}

	srv := &Server{
		httpServer:      httpServer,
		logger:          logger,
		metrics:         recorder,
		rateLimiter:     rl,
		shutdownTimeout: cfg.ShutdownTimeout,
		tls: serverutil.TLSConfig{
			CertFile: strings.TrimSpace(cfg.TLS.CertFile),
			KeyFile:  strings.TrimSpace(cfg.TLS.KeyFile),
		},
	}

	if srv.tls.CertFile != "" && srv.tls.KeyFile != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return srv, nil
}

// Handler returns the fully wrapped handler chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run binds the listener (or serves the one provided) and blocks until ctx is
// cancelled, then shuts down gracefully. onListen, when set, receives the bound
// address before serving starts.
func (s *Server) Run(ctx context.Context, listener net.Listener, onListen func(net.Addr)) error {
	return serverutil.Run(ctx, serverutil.Config{
		Server:          s.httpServer,
		TLS:             s.tls,
		ShutdownTimeout: s.shutdownTimeout,
		Listener:        listener,
		OnListen:        onListen,
	})
}
