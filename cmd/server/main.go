// Command server starts the AIMS API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"aims-api/internal/api"
	"aims-api/internal/auth"
	"aims-api/internal/datastore"
	"aims-api/internal/observability/logging"
	"aims-api/internal/observability/metrics"
	"aims-api/internal/origin"
	"aims-api/internal/server"
	"aims-api/internal/serverutil"
	"aims-api/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.LookupEnv, os.Stdout, nil)
	stop()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

// run starts the API and blocks until ctx is cancelled or serving fails.
// Every startup failure is logged before it is returned. onListen, when set,
// receives the bound address.
func run(ctx context.Context, args []string, lookupEnv envLookup, stdout io.Writer, onListen func(net.Addr)) error {
	cfg, err := loadConfig(args, lookupEnv, stdout)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			logging.New(logging.Config{Writer: stdout}).Error("invalid configuration", "error", err)
		}
		return err
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: stdout})
	recorder := metrics.New()

	signer, err := auth.NewCookieSigner(cfg.SessionSecret)
	if err != nil {
		logger.Error("invalid session secret", "error", err)
		return err
	}

	policy := origin.DefaultPolicy(cfg.ClientURL)
	originNames := make([]string, 0, len(policy.Rules()))
	for _, rule := range policy.Rules() {
		originNames = append(originNames, rule.String())
	}
	logger.Info("origin policy loaded", "origins", originNames)

	stateNames := make([]string, 0, len(datastore.States))
	for _, state := range datastore.States {
		stateNames = append(stateNames, state.String())
	}
	establisher := &datastore.Establisher{
		Connector:       datastore.DriverConnector{Options: []storage.Option{storage.WithPostgresApplicationName("aims-api")}},
		Provisioner:     datastore.MemoryProvisioner{},
		Logger:          logging.WithComponent(logger, "datastore"),
		DisableFallback: cfg.DisableFallback,
		Timeout:         cfg.ConnectTimeout,
		OnTransition: func(state datastore.State) {
			recorder.SetDatastoreState(state.String(), stateNames)
		},
	}
	conn, err := establisher.Establish(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("datastore unavailable, refusing to start", "error", err)
		return err
	}
	recorder.SetEphemeral(conn.Ephemeral)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := conn.Close(closeCtx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}()

	sessionStore, err := openSessionStore(ctx, cfg.SessionStore, conn)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		return err
	}
	sessions := auth.NewSessionManager(cfg.SessionTTL, auth.WithStore(sessionStore))
	logger.Info("session store ready", "store", cfg.SessionStore, "ttl", cfg.SessionTTL.String())

	if cfg.AdminEmail != "" {
		user, created, err := storage.EnsureAdmin(ctx, conn.Store, cfg.AdminEmail, cfg.AdminName, cfg.AdminPassword)
		if err != nil {
			logger.Error("failed to ensure admin account", "error", err)
			return err
		}
		logger.Info("admin account ready", "user_id", user.ID, "created", created)
	}

	handler := api.NewHandler(conn.Store, sessions, signer)
	handler.Logger = logging.WithComponent(logger, "api")
	handler.Datastore.Ephemeral = conn.Ephemeral
	handler.SessionCookiePolicy = cookiePolicy(cfg.CookieSameSite)

	rateCfg := server.RateLimitConfig{
		GlobalRPS:             cfg.RateGlobalRPS,
		GlobalBurst:           cfg.RateGlobalBurst,
		LoginLimit:            cfg.RateLoginLimit,
		LoginWindow:           cfg.RateLoginWindow,
		TrustForwardedHeaders: cfg.TrustForwarded,
	}
	if redisRepo, ok := conn.Store.(*storage.RedisRepository); ok {
		rateCfg.Redis = redisRepo.Client()
		rateCfg.RedisKeyPrefix = redisRepo.KeyPrefix()
	}

	srv, err := server.New(handler, server.Config{
		Addr:            cfg.Addr,
		TLS:             serverutil.TLSConfig{CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey},
		RateLimit:       rateCfg,
		Origins:         policy,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
		AuditLogger:     logging.WithComponent(logger, "audit"),
		Metrics:         recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(groupCtx, nil, func(addr net.Addr) {
			logger.Info("AIMS API listening", "addr", addr.String(), "datastore", conn.Driver, "ephemeral", conn.Ephemeral, "tls", cfg.TLSCert != "")
			if onListen != nil {
				onListen(addr)
			}
		})
	})
	group.Go(func() error {
		runSessionPurger(groupCtx, logging.WithComponent(logger, "sessions"), sessions, defaultPurgeEvery)
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}

func openSessionStore(ctx context.Context, kind string, conn *datastore.Connection) (auth.SessionStore, error) {
	if kind != sessionStoreBackend {
		return auth.NewMemorySessionStore(), nil
	}
	switch repo := conn.Store.(type) {
	case *storage.PostgresRepository:
		return auth.NewPostgresSessionStore(ctx, repo.Pool(), auth.WithTimeout(5*time.Second))
	case *storage.RedisRepository:
		return auth.NewRedisSessionStore(repo.Client(), repo.KeyPrefix())
	default:
		return nil, fmt.Errorf("datastore %q cannot hold sessions", conn.Driver)
	}
}

func cookiePolicy(sameSite string) api.SessionCookiePolicy {
	policy := api.DefaultSessionCookiePolicy()
	switch sameSite {
	case "strict":
		policy.SameSite = http.SameSiteStrictMode
	case "none":
		policy.SameSite = http.SameSiteNoneMode
		policy.SecureMode = api.SessionCookieSecureAlways
	}
	return policy
}
