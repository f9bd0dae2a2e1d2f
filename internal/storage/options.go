package storage

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// settings holds every tunable a repository constructor understands. Each
// driver reads the fields that concern it and ignores the rest.
type settings struct {
	now   func() time.Time
	newID func() string

	pgMaxConns        int32
	pgMinConns        int32
	pgMaxConnLifetime time.Duration
	pgMaxConnIdle     time.Duration
	pgHealthEvery     time.Duration
	pgAppName         string

	redisKeyPrefix string
	redisPoolSize  int
}

// Option configures a repository opened through Open or one of the driver
// constructors.
type Option func(*settings)

func newSettings(opts []Option) settings {
	s := settings{
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
		pgAppName:      "aims-api",
		redisKeyPrefix: "aims:",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// WithClock overrides the time source used to stamp new records.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithIDGenerator overrides how record identifiers are minted.
func WithIDGenerator(next func() string) Option {
	return func(s *settings) {
		if next != nil {
			s.newID = next
		}
	}
}

func WithPostgresPoolLimits(maxConns, minConns int32) Option {
	return func(s *settings) {
		if maxConns > 0 {
			s.pgMaxConns = maxConns
		}
		if minConns >= 0 {
			s.pgMinConns = minConns
		}
	}
}

// WithPostgresPoolDurations tunes connection recycling. Non-positive values
// keep the pgxpool defaults.
func WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval time.Duration) Option {
	return func(s *settings) {
		s.pgMaxConnLifetime = max(maxLifetime, 0)
		s.pgMaxConnIdle = max(maxIdle, 0)
		s.pgHealthEvery = max(healthInterval, 0)
	}
}

// WithPostgresApplicationName sets application_name on every pooled
// connection. The default is "aims-api".
func WithPostgresApplicationName(name string) Option {
	return func(s *settings) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			s.pgAppName = trimmed
		}
	}
}

// WithRedisKeyPrefix namespaces every key written by the redis repository.
func WithRedisKeyPrefix(prefix string) Option {
	return func(s *settings) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.redisKeyPrefix = trimmed
		}
	}
}

func WithRedisPoolSize(size int) Option {
	return func(s *settings) {
		if size > 0 {
			s.redisPoolSize = size
		}
	}
}
