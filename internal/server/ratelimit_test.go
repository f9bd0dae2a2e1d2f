package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func loginRequest(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, loginPath, nil)
	req.RemoteAddr = remote
	return req
}

func TestGlobalRateLimit(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{GlobalRPS: 1, GlobalBurst: 2})
	handler := rateLimitMiddleware(rl, discardLogger(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected burst of two then 429, got %v", codes)
	}
}

func TestRateLimiterDisabledByDefault(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	for i := 0; i < 100; i++ {
		if !rl.AllowRequest() {
			t.Fatal("expected global limiter disabled")
		}
		if ok, _, err := rl.AllowLogin(context.Background(), "192.0.2.1"); !ok || err != nil {
			t.Fatalf("expected login limiter disabled, ok=%v err=%v", ok, err)
		}
	}
}

func TestLoginRateLimitPerIP(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{LoginLimit: 2, LoginWindow: time.Minute})
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	handler := rateLimitMiddleware(rl, discardLogger(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("192.0.2.1:1000"))
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("192.0.2.1:1001"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 || retryAfter > 30 {
		t.Fatalf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("192.0.2.2:1000"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other IP to be unaffected, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected non-login routes to be unaffected, got %d", rec.Code)
	}

	now = now.Add(31 * time.Second)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("192.0.2.1:1002"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected a token to refill after half the window, got %d", rec.Code)
	}
}

func TestLoginBucketsAreCleanedUp(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{LoginLimit: 1, LoginWindow: time.Minute})
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	_, _, _ = rl.AllowLogin(context.Background(), "192.0.2.1")
	now = now.Add(3 * time.Minute)
	_, _, _ = rl.AllowLogin(context.Background(), "192.0.2.2")

	rl.loginMu.Lock()
	defer rl.loginMu.Unlock()
	if _, ok := rl.loginBuckets["192.0.2.1"]; ok {
		t.Fatal("expected stale bucket to be removed")
	}
	if len(rl.loginBuckets) != 1 {
		t.Fatalf("expected one bucket, got %d", len(rl.loginBuckets))
	}
}

func TestRedisLoginRateLimit(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rl := newRateLimiter(RateLimitConfig{LoginLimit: 2, LoginWindow: time.Minute, Redis: client, RedisKeyPrefix: "aims:"})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _, err := rl.AllowLogin(ctx, "192.0.2.1"); !ok || err != nil {
			t.Fatalf("attempt %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, retryAfter, err := rl.AllowLogin(ctx, "192.0.2.1")
	if err != nil || ok {
		t.Fatalf("expected third attempt to be refused, ok=%v err=%v", ok, err)
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("unexpected retry after %v", retryAfter)
	}
	if ttl := server.TTL("aims:ratelimit:login:192.0.2.1"); ttl != time.Minute {
		t.Fatalf("expected window ttl on counter, got %v", ttl)
	}

	server.FastForward(time.Minute + time.Second)
	if ok, _, err := rl.AllowLogin(ctx, "192.0.2.1"); !ok || err != nil {
		t.Fatalf("expected window to reset, ok=%v err=%v", ok, err)
	}
}

func TestRedisLoginRateLimitFailureReturns503(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	rl := newRateLimiter(RateLimitConfig{LoginLimit: 2, Redis: client, RedisTimeout: time.Second})
	server.Close()

	handler := rateLimitMiddleware(rl, discardLogger(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("expected handler not to run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("192.0.2.1:1000"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
