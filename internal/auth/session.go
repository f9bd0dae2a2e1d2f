package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

const (
	defaultSessionTTL  = 24 * time.Hour
	defaultTokenLength = 32
)

// ErrInvalidUserID is returned when a session is requested without a user.
var ErrInvalidUserID = errors.New("userID is required")

// Session is an issued login. ExpiresAt slides forward with activity when an
// idle timeout is configured and never passes AbsoluteExpiresAt.
type Session struct {
	Token             string
	UserID            string
	ExpiresAt         time.Time
	AbsoluteExpiresAt time.Time
}

// deadline is the instant after which the session is no longer usable.
func (s Session) deadline() time.Time {
	if s.AbsoluteExpiresAt.IsZero() || s.ExpiresAt.Before(s.AbsoluteExpiresAt) {
		return s.ExpiresAt
	}
	return s.AbsoluteExpiresAt
}

// SessionStore persists sessions keyed by token.
type SessionStore interface {
	Save(ctx context.Context, token, userID string, expiresAt, absoluteExpiresAt time.Time) error
	Get(ctx context.Context, token string) (Session, bool, error)
	Delete(ctx context.Context, token string) error
	PurgeExpired(ctx context.Context, now time.Time) error
}

type SessionOption func(*SessionManager)

// WithStore replaces the default in-memory store.
func WithStore(store SessionStore) SessionOption {
	return func(m *SessionManager) {
		m.store = store
	}
}

// WithTokenLength sets the number of random bytes in new tokens.
func WithTokenLength(length int) SessionOption {
	return func(m *SessionManager) {
		if length > 0 {
			m.tokenLength = length
		}
	}
}

// WithIdleTimeout expires sessions left unused for timeout. Each successful
// lookup pushes the expiry forward, capped at the absolute TTL.
func WithIdleTimeout(timeout time.Duration) SessionOption {
	return func(m *SessionManager) {
		if timeout > 0 {
			m.idleTimeout = timeout
		}
	}
}

func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// SessionManager issues and resolves portal sessions. It is safe for
// concurrent use when its store is.
type SessionManager struct {
	store       SessionStore
	ttl         time.Duration
	idleTimeout time.Duration
	tokenLength int
	newToken    func(int) (string, error)
	now         func() time.Time
}

// NewSessionManager returns a manager issuing sessions that live for ttl
// (24 hours when ttl is not positive), kept in memory unless WithStore is set.
func NewSessionManager(ttl time.Duration, opts ...SessionOption) *SessionManager {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	m := &SessionManager{
		ttl:         ttl,
		tokenLength: defaultTokenLength,
		newToken:    randomToken,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.store == nil {
		m.store = NewMemorySessionStore()
	}
	return m
}

func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Create issues a session for userID.
func (m *SessionManager) Create(ctx context.Context, userID string) (Session, error) {
	if userID == "" {
		return Session{}, ErrInvalidUserID
	}
	token, err := m.newToken(m.tokenLength)
	if err != nil {
		return Session{}, err
	}
	now := m.now().UTC()
	session := Session{
		Token:             token,
		UserID:            userID,
		AbsoluteExpiresAt: now.Add(m.ttl),
	}
	session.ExpiresAt = m.slide(now, session.AbsoluteExpiresAt)
	if err := m.store.Save(ctx, token, userID, session.ExpiresAt, session.AbsoluteExpiresAt); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Lookup resolves token to its live session. Unknown, revoked and expired
// tokens report false; expired sessions are deleted on the way out.
func (m *SessionManager) Lookup(ctx context.Context, token string) (Session, bool, error) {
	if token == "" {
		return Session{}, false, nil
	}
	session, ok, err := m.store.Get(ctx, token)
	if err != nil || !ok {
		return Session{}, false, err
	}
	if session.AbsoluteExpiresAt.IsZero() {
		session.AbsoluteExpiresAt = session.ExpiresAt
	}
	now := m.now().UTC()
	if now.After(session.deadline()) {
		_ = m.store.Delete(ctx, token)
		return Session{}, false, nil
	}
	if m.idleTimeout > 0 {
		if next := m.slide(now, session.AbsoluteExpiresAt); next.After(session.ExpiresAt) {
			if err := m.store.Save(ctx, session.Token, session.UserID, next, session.AbsoluteExpiresAt); err != nil {
				return Session{}, false, err
			}
			session.ExpiresAt = next
		}
	}
	return session, true, nil
}

// slide returns the idle expiry measured from now, capped at absolute.
func (m *SessionManager) slide(now, absolute time.Time) time.Time {
	if m.idleTimeout <= 0 {
		return absolute
	}
	if next := now.Add(m.idleTimeout); next.Before(absolute) {
		return next
	}
	return absolute
}

func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, token)
}

// PurgeExpired drops every session whose expiry has passed.
func (m *SessionManager) PurgeExpired(ctx context.Context) error {
	return m.store.PurgeExpired(ctx, m.now().UTC())
}

// Ping checks the store when it can be checked; stores without a Ping method
// are always considered reachable.
func (m *SessionManager) Ping(ctx context.Context) error {
	if m == nil || m.store == nil {
		return nil
	}
	if pinger, ok := m.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func randomToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
