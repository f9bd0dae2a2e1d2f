package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"aims-api/internal/datastore"
	"aims-api/internal/observability/logging"
)

const (
	defaultPort         = 5000
	defaultSessionTTL   = 24 * time.Hour
	defaultLoginWindow  = time.Minute
	defaultPurgeEvery   = 15 * time.Minute
	sessionStoreMemory  = "memory"
	sessionStoreBackend = "datastore"
)

type config struct {
	DatabaseURL     string
	SessionSecret   string
	Addr            string
	ClientURL       string
	LogLevel        string
	LogFormat       string
	DisableFallback bool
	ConnectTimeout  time.Duration
	SessionStore    string
	SessionTTL      time.Duration
	CookieSameSite  string
	ShutdownTimeout time.Duration

	RateGlobalRPS   float64
	RateGlobalBurst int
	RateLoginLimit  int
	RateLoginWindow time.Duration
	TrustForwarded  bool

	TLSCert string
	TLSKey  string

	AdminEmail    string
	AdminName     string
	AdminPassword string
}

// envLookup matches os.LookupEnv.
type envLookup func(string) (string, bool)

func (l envLookup) first(keys ...string) (string, string) {
	if l == nil {
		return "", ""
	}
	for _, key := range keys {
		if value, ok := l(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed, key
			}
		}
	}
	return "", ""
}

// loadConfig resolves settings from flags first and then the environment.
func loadConfig(args []string, lookupEnv envLookup, output io.Writer) (config, error) {
	fs := flag.NewFlagSet("aims-api", flag.ContinueOnError)
	if output == nil {
		output = io.Discard
	}
	fs.SetOutput(output)

	databaseURL := fs.String("database-url", "", "primary datastore address (postgres:// or redis://)")
	sessionSecret := fs.String("session-secret", "", "secret used to sign session cookies")
	port := fs.Int("port", 0, "listen port")
	addr := fs.String("addr", "", "listen address (overrides -port)")
	clientURL := fs.String("client-url", "", "deployed client origin allowed by CORS")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "log format (json or text)")
	disableFallback := fs.Bool("disable-fallback", false, "exit instead of starting the in-memory datastore")
	connectTimeout := fs.Duration("connect-timeout", 0, "timeout for each datastore connection attempt")
	sessionStore := fs.String("session-store", "", "session store (memory or datastore)")
	sessionTTL := fs.Duration("session-ttl", 0, "session lifetime")
	cookieSameSite := fs.String("cookie-samesite", "", "SameSite attribute for the session cookie (lax, strict or none)")
	shutdownTimeout := fs.Duration("shutdown-timeout", 0, "graceful shutdown timeout")
	globalRPS := fs.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := fs.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := fs.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := fs.Duration("rate-login-window", 0, "window for counting login attempts")
	trustForwarded := fs.Bool("rate-trust-forwarded-headers", false, "trust proxy-provided client IP headers")
	tlsCert := fs.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := fs.String("tls-key", "", "path to TLS private key file")
	adminEmail := fs.String("admin-email", "", "administrator account to ensure at startup")
	adminName := fs.String("admin-name", "", "display name for a newly created administrator")
	adminPassword := fs.String("admin-password", "", "password for the startup administrator")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if fs.NArg() > 0 {
		return config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	env := lookupEnv
	var (
		cfg  config
		errs []error
	)
	cfg.DatabaseURL = firstNonEmpty(*databaseURL, envValue(env, "AIMS_DATABASE_URL", "DATABASE_URL", "MONGO_URI"))
	cfg.SessionSecret = firstNonEmpty(*sessionSecret, envValue(env, "AIMS_SESSION_SECRET", "SESSION_SECRET", "JWT_SECRET"))
	cfg.ClientURL = firstNonEmpty(*clientURL, envValue(env, "CLIENT_URL"))
	cfg.LogLevel = strings.ToLower(firstNonEmpty(*logLevel, envValue(env, "AIMS_LOG_LEVEL"), "info"))
	cfg.LogFormat = strings.ToLower(firstNonEmpty(*logFormat, envValue(env, "AIMS_LOG_FORMAT"), string(logging.FormatJSON)))
	cfg.SessionStore = strings.ToLower(firstNonEmpty(*sessionStore, envValue(env, "AIMS_SESSION_STORE"), sessionStoreMemory))
	cfg.CookieSameSite = strings.ToLower(firstNonEmpty(*cookieSameSite, envValue(env, "AIMS_COOKIE_SAMESITE"), "lax"))
	cfg.TLSCert = firstNonEmpty(*tlsCert, envValue(env, "AIMS_TLS_CERT"))
	cfg.TLSKey = firstNonEmpty(*tlsKey, envValue(env, "AIMS_TLS_KEY"))
	cfg.AdminEmail = firstNonEmpty(*adminEmail, envValue(env, "AIMS_ADMIN_EMAIL"))
	cfg.AdminName = firstNonEmpty(*adminName, envValue(env, "AIMS_ADMIN_NAME"))
	cfg.AdminPassword = firstNonEmpty(*adminPassword, envValue(env, "AIMS_ADMIN_PASSWORD"))

	listenPort, err := resolveInt(*port, env, defaultPort, "PORT")
	errs = append(errs, err)
	cfg.Addr = firstNonEmpty(*addr, envValue(env, "AIMS_ADDR"), ":"+strconv.Itoa(listenPort))

	cfg.DisableFallback, err = resolveBool(*disableFallback, env, "AIMS_DISABLE_FALLBACK")
	errs = append(errs, err)
	cfg.TrustForwarded, err = resolveBool(*trustForwarded, env, "AIMS_RATE_TRUST_FORWARDED_HEADERS")
	errs = append(errs, err)
	cfg.ConnectTimeout, err = resolveDuration(*connectTimeout, env, datastore.DefaultConnectTimeout, "AIMS_CONNECT_TIMEOUT")
	errs = append(errs, err)
	cfg.SessionTTL, err = resolveDuration(*sessionTTL, env, defaultSessionTTL, "AIMS_SESSION_TTL")
	errs = append(errs, err)
	cfg.ShutdownTimeout, err = resolveDuration(*shutdownTimeout, env, 10*time.Second, "AIMS_SHUTDOWN_TIMEOUT")
	errs = append(errs, err)
	cfg.RateLoginWindow, err = resolveDuration(*loginWindow, env, defaultLoginWindow, "AIMS_RATE_LOGIN_WINDOW")
	errs = append(errs, err)
	cfg.RateGlobalRPS, err = resolveFloat(*globalRPS, env, "AIMS_RATE_GLOBAL_RPS")
	errs = append(errs, err)
	cfg.RateGlobalBurst, err = resolveInt(*globalBurst, env, 0, "AIMS_RATE_GLOBAL_BURST")
	errs = append(errs, err)
	cfg.RateLoginLimit, err = resolveInt(*loginLimit, env, 0, "AIMS_RATE_LOGIN_LIMIT")
	errs = append(errs, err)

	errs = append(errs, cfg.validate())
	if err := errors.Join(errs...); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	var errs []error
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("session secret is required (AIMS_SESSION_SECRET, SESSION_SECRET or JWT_SECRET)"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !logging.ValidFormat(c.LogFormat) {
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}
	switch c.SessionStore {
	case sessionStoreMemory, sessionStoreBackend:
	default:
		errs = append(errs, fmt.Errorf("unsupported session store %q (memory or datastore)", c.SessionStore))
	}
	switch c.CookieSameSite {
	case "lax", "strict", "none":
	default:
		errs = append(errs, fmt.Errorf("unsupported cookie SameSite %q (lax, strict or none)", c.CookieSameSite))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("both TLS cert and key must be provided"))
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("admin email and admin password must be provided together"))
	}
	if c.RateLoginLimit < 0 || c.RateGlobalBurst < 0 || c.RateGlobalRPS < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	return errors.Join(errs...)
}

func envValue(env envLookup, keys ...string) string {
	value, _ := env.first(keys...)
	return value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveInt(flagValue int, env envLookup, fallback int, keys ...string) (int, error) {
	if flagValue > 0 {
		return flagValue, nil
	}
	if raw, key := env.first(keys...); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		return value, nil
	}
	return fallback, nil
}

func resolveFloat(flagValue float64, env envLookup, keys ...string) (float64, error) {
	if flagValue > 0 {
		return flagValue, nil
	}
	if raw, key := env.first(keys...); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		return value, nil
	}
	return 0, nil
}

func resolveDuration(flagValue time.Duration, env envLookup, fallback time.Duration, keys ...string) (time.Duration, error) {
	if flagValue > 0 {
		return flagValue, nil
	}
	if raw, key := env.first(keys...); raw != "" {
		value, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		if value <= 0 {
			return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
		}
		return value, nil
	}
	return fallback, nil
}

func resolveBool(flagValue bool, env envLookup, keys ...string) (bool, error) {
	if flagValue {
		return true, nil
	}
	if raw, key := env.first(keys...); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		return value, nil
	}
	return false, nil
}
