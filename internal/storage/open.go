package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// DriverForAddr reports which driver serves addr based on its URL scheme.
func DriverForAddr(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return "", fmt.Errorf("datastore address is empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse datastore address: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return DriverPostgres, nil
	case "redis", "rediss":
		return DriverRedis, nil
	case "":
		return "", fmt.Errorf("datastore address must include a scheme")
	default:
		return "", fmt.Errorf("unsupported datastore scheme %q", parsed.Scheme)
	}
}

// Open connects to the datastore at addr and verifies it answers before
// returning. The returned repository owns its connection pool.
func Open(ctx context.Context, addr string, opts ...Option) (Repository, error) {
	driver, err := DriverForAddr(addr)
	if err != nil {
		return nil, err
	}
	switch driver {
	case DriverPostgres:
		repo, err := NewPostgresRepository(ctx, addr, opts...)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case DriverRedis:
		repo, err := NewRedisRepository(ctx, addr, opts...)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported datastore driver %q", driver)
	}
}

// RedactAddr strips credentials from a datastore address for logging.
func RedactAddr(addr string) string {
	parsed, err := url.Parse(strings.TrimSpace(addr))
	if err != nil || parsed.Scheme == "" {
		return "<unparseable address>"
	}
	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "xxxxx")
		}
	}
	return parsed.String()
}
