package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps sessions as JSON values that redis expires on its
// own at the session's idle deadline.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

type redisSession struct {
	UserID            string    `json:"userId"`
	ExpiresAt         time.Time `json:"expiresAt"`
	AbsoluteExpiresAt time.Time `json:"absoluteExpiresAt"`
}

// NewRedisSessionStore stores sessions under <prefix>session:<sha256(token)>.
// The store does not own client.
func NewRedisSessionStore(client redis.UniversalClient, prefix string) (*RedisSessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis session client required")
	}
	return &RedisSessionStore{client: client, prefix: prefix + "session:"}, nil
}

func (s *RedisSessionStore) key(token string) (string, error) {
	hashed, err := hashSessionToken(token)
	if err != nil {
		return "", err
	}
	return s.prefix + hashed, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, token, userID string, expiresAt, absoluteExpiresAt time.Time) error {
	key, err := s.key(token)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(redisSession{
		UserID:            userID,
		ExpiresAt:         expiresAt.UTC(),
		AbsoluteExpiresAt: absoluteExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, payload, 0)
		pipe.ExpireAt(ctx, key, expiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, token string) (Session, bool, error) {
	key, err := s.key(token)
	if err != nil {
		return Session{}, false, nil
	}
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("load session: %w", err)
	}
	var stored redisSession
	if err := json.Unmarshal(payload, &stored); err != nil {
		return Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	return Session{
		Token:             token,
		UserID:            stored.UserID,
		ExpiresAt:         stored.ExpiresAt,
		AbsoluteExpiresAt: stored.AbsoluteExpiresAt,
	}, true, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	key, err := s.key(token)
	if err != nil {
		return nil
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op: redis drops expired keys itself.
func (s *RedisSessionStore) PurgeExpired(context.Context, time.Time) error {
	return nil
}

func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
