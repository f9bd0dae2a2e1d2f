package server

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const loginPath = "/auth/login"

// RateLimitConfig configures the optional global and per-IP login limits. A
// zero GlobalRPS or LoginLimit disables that limit. When Redis is set, login
// attempts are counted there so every replica shares one window.
type RateLimitConfig struct {
	GlobalRPS             float64
	GlobalBurst           int
	LoginLimit            int
	LoginWindow           time.Duration
	TrustForwardedHeaders bool
	Redis                 redis.UniversalClient
	RedisKeyPrefix        string
	RedisTimeout          time.Duration
}

type rateLimiter struct {
	global         *rate.Limiter
	loginLimit     int
	loginWindow    time.Duration
	trustForwarded bool
	loginMu        sync.Mutex
	loginBuckets   map[string]*ipLimiter
	store          attemptStore
	now            func() time.Time
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// attemptStore counts attempts per key inside a fixed window.
type attemptStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		loginLimit:     cfg.LoginLimit,
		loginWindow:    cfg.LoginWindow,
		trustForwarded: cfg.TrustForwardedHeaders,
		loginBuckets:   make(map[string]*ipLimiter),
		now:            time.Now,
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(math.Ceil(cfg.GlobalRPS))
		}
		rl.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), burst)
	}
	if rl.loginLimit < 0 {
		rl.loginLimit = 0
	}
	if rl.loginWindow <= 0 {
		rl.loginWindow = time.Minute
	}
	if cfg.Redis != nil && rl.loginLimit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = &redisAttemptStore{client: cfg.Redis, prefix: cfg.RedisKeyPrefix, timeout: timeout}
	}
	return rl
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

func (r *rateLimiter) AllowLogin(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.loginLimit <= 0 {
		return true, 0, nil
	}
	if key == "" {
		key = "unknown"
	}
	if r.store != nil {
		return r.store.Allow(ctx, "login:"+key, r.loginLimit, r.loginWindow)
	}

	now := r.now()
	r.loginMu.Lock()
	bucket, exists := r.loginBuckets[key]
	if !exists {
		every := rate.Every(r.loginWindow / time.Duration(r.loginLimit))
		bucket = &ipLimiter{limiter: rate.NewLimiter(every, r.loginLimit)}
		r.loginBuckets[key] = bucket
	}
	bucket.lastSeen = now
	r.cleanupLocked(now)
	r.loginMu.Unlock()

	reservation := bucket.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

func (r *rateLimiter) cleanupLocked(now time.Time) {
	cutoff := now.Add(-2 * r.loginWindow)
	for key, bucket := range r.loginBuckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(r.loginBuckets, key)
		}
	}
}

type redisAttemptStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

func (s *redisAttemptStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fullKey := s.prefix + "ratelimit:" + key
	count, err := s.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("count attempt: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return false, 0, fmt.Errorf("start attempt window: %w", err)
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}
	ttl, err := s.client.TTL(ctx, fullKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("read attempt window: %w", err)
	}
	if ttl <= 0 {
		ttl = window
	}
	return false, ttl, nil
}

func rateLimitMiddleware(rl *rateLimiter, logger *slog.Logger, next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.AllowRequest() {
			fail(w, http.StatusTooManyRequests, "global rate limit exceeded")
			return
		}
		if r.Method == http.MethodPost && r.URL.Path == loginPath {
			ip := remoteIP(r, rl.trustForwarded)
			allowed, retryAfter, err := rl.AllowLogin(r.Context(), ip)
			if err != nil {
				if logger != nil {
					requestLog(logger, r).Error("rate limiter failure", "error", err)
				}
				fail(w, http.StatusServiceUnavailable, "rate limit failure")
				return
			}
			if !allowed {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				}
				if logger != nil {
					requestLog(logger, r).Warn("login rate limited", "remote_ip", ip)
				}
				fail(w, http.StatusTooManyRequests, "too many login attempts")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
