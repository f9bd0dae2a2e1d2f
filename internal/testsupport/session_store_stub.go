package testsupport

import (
	"context"
	"sync"
	"time"

	"aims-api/internal/auth"
)

// SessionStoreStub wraps an in-memory session store with switchable failures
// so handlers can be driven through datastore outages.
type SessionStoreStub struct {
	*auth.MemorySessionStore

	mu  sync.RWMutex
	err error
}

func NewSessionStoreStub() *SessionStoreStub {
	return &SessionStoreStub{MemorySessionStore: auth.NewMemorySessionStore()}
}

// Fail makes every store call return err until Fail(nil) is called.
func (s *SessionStoreStub) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *SessionStoreStub) failure() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *SessionStoreStub) Save(ctx context.Context, token, userID string, expiresAt, absoluteExpiresAt time.Time) error {
	if err := s.failure(); err != nil {
		return err
	}
	return s.MemorySessionStore.Save(ctx, token, userID, expiresAt, absoluteExpiresAt)
}

func (s *SessionStoreStub) Get(ctx context.Context, token string) (auth.Session, bool, error) {
	if err := s.failure(); err != nil {
		return auth.Session{}, false, err
	}
	return s.MemorySessionStore.Get(ctx, token)
}

func (s *SessionStoreStub) Delete(ctx context.Context, token string) error {
	if err := s.failure(); err != nil {
		return err
	}
	return s.MemorySessionStore.Delete(ctx, token)
}

func (s *SessionStoreStub) PurgeExpired(ctx context.Context, now time.Time) error {
	if err := s.failure(); err != nil {
		return err
	}
	return s.MemorySessionStore.PurgeExpired(ctx, now)
}

// Ping reports the injected failure so health checks see the outage.
func (s *SessionStoreStub) Ping(context.Context) error {
	return s.failure()
}
