package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/time/rate"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
)

func TestRateLimiter_Allow(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	}
	limiter := NewRateLimiter(config)
	ctx := context.Background()

	key := "actor:u-1"

	// Should allow initial requests up to limit + burst
	allowedCount := 0
	for i := 0; i < config.RequestsPerWindow+config.BurstSize+5; i++ {
		if ok, _ := limiter.Allow(ctx, key); ok {
			allowedCount++
		}
	}

	expected := config.RequestsPerWindow + config.BurstSize
	if allowedCount != expected {
		t.Errorf("Allowed %d requests, want %d", allowedCount, expected)
	}

	// After waiting, tokens should refill
	time.Sleep(time.Second)
	if ok, _ := limiter.Allow(ctx, key); !ok {
		t.Error("Should allow request after refill")
	}
}

func TestRateLimiter_Remaining(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	}
	limiter := NewRateLimiter(config)

	key := "actor:u-1"

	initial := limiter.Remaining(key)
	expected := config.RequestsPerWindow + config.BurstSize
	if initial != expected {
		t.Errorf("Initial remaining = %d, want %d", initial, expected)
	}

	limiter.Allow(context.Background(), key)
	if remaining := limiter.Remaining(key); remaining != initial-1 {
		t.Errorf("After using 1 token, remaining = %d, want %d", remaining, initial-1)
	}
}

// fakeClock is a manually advanced time source
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimiter_ContinuousRefill(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         0,
	})
	limiter.now = clock.Now
	ctx := context.Background()
	key := "actor:u-1"

	for i := 0; i < 10; i++ {
		if ok, _ := limiter.Allow(ctx, key); !ok {
			t.Fatalf("request %d denied with a full bucket", i+1)
		}
	}
	if ok, _ := limiter.Allow(ctx, key); ok {
		t.Fatal("expected empty bucket to deny")
	}

	// 10/s refills one token per 100ms; two 60ms steps must add up
	clock.Advance(60 * time.Millisecond)
	if ok, _ := limiter.Allow(ctx, key); ok {
		t.Fatal("partial token must not be spent")
	}
	clock.Advance(60 * time.Millisecond)
	if ok, _ := limiter.Allow(ctx, key); !ok {
		t.Fatal("accumulated partial refills should yield a token")
	}

	clock.Advance(time.Hour)
	if got := limiter.Remaining(key); got != 10 {
		t.Errorf("Remaining() after long idle = %d, want capacity 10", got)
	}
}

func TestRateLimiter_BucketSettings(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
		BurstSize:         5,
	})
	limiter.Allow(context.Background(), "actor:u-1")

	b := limiter.buckets["actor:u-1"]
	if b == nil {
		t.Fatal("expected a bucket for the key")
	}
	if got := b.lim.Limit(); got != rate.Limit(10) {
		t.Errorf("Limit() = %v, want 10 per second", got)
	}
	if got := b.lim.Burst(); got != 605 {
		t.Errorf("Burst() = %d, want 605", got)
	}
}

func TestRateLimiter_ZeroWindowIsUnlimited(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1})
	for i := 0; i < 100; i++ {
		if ok, _ := limiter.Allow(context.Background(), "actor:u-1"); !ok {
			t.Fatalf("request %d denied without a window", i+1)
		}
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    100 * time.Millisecond,
		BurstSize:         2,
	}
	limiter := NewRateLimiter(config)

	keys := []string{"actor:u-1", "actor:u-2", "ip:10.0.0.1"}
	for _, key := range keys {
		limiter.Allow(context.Background(), key)
	}

	if len(limiter.buckets) != len(keys) {
		t.Errorf("Expected %d buckets, got %d", len(keys), len(limiter.buckets))
	}

	// Wait for buckets to become stale
	time.Sleep(300 * time.Millisecond)
	limiter.Cleanup()

	if len(limiter.buckets) != 0 {
		t.Errorf("Expected 0 buckets after cleanup, got %d", len(limiter.buckets))
	}
}

func TestRateLimiter_StartCleanup(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    50 * time.Millisecond,
		BurstSize:         0,
	}
	limiter := NewRateLimiter(config)
	logger, _ := test.NewNullLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter.Allow(ctx, "actor:u-1")
	limiter.StartCleanup(ctx, logger)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		limiter.mu.Lock()
		n := len(limiter.buckets)
		limiter.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("Expected background cleanup to remove the stale bucket")
}

func TestNewRateLimiter_NilConfig(t *testing.T) {
	limiter := NewRateLimiter(nil)
	if limiter.Config().RequestsPerWindow != DefaultRateLimitConfig().RequestsPerWindow {
		t.Error("Expected default config")
	}
}

func TestRateLimiter_Concurrency(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Hour,
		BurstSize:         10,
	}
	limiter := NewRateLimiter(config)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if ok, _ := limiter.Allow(context.Background(), "actor:shared"); ok {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if want := config.RequestsPerWindow + config.BurstSize; allowed != want {
		t.Errorf("Allowed %d concurrent requests, want %d", allowed, want)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expectedIP string
	}{
		{
			name:       "X-Forwarded-For header",
			headers:    map[string]string{"X-Forwarded-For": "192.168.1.1"},
			remoteAddr: "10.0.0.1:12345",
			expectedIP: "192.168.1.1",
		},
		{
			name:       "X-Forwarded-For first hop",
			headers:    map[string]string{"X-Forwarded-For": "192.168.1.1, 10.0.0.2"},
			remoteAddr: "10.0.0.1:12345",
			expectedIP: "192.168.1.1",
		},
		{
			name:       "X-Real-IP header",
			headers:    map[string]string{"X-Real-IP": "192.168.1.2"},
			remoteAddr: "10.0.0.1:12345",
			expectedIP: "192.168.1.2",
		},
		{
			name:       "RemoteAddr fallback drops the port",
			headers:    map[string]string{},
			remoteAddr: "10.0.0.1:12345",
			expectedIP: "10.0.0.1",
		},
		{
			name:       "RemoteAddr without port",
			headers:    map[string]string{},
			remoteAddr: "10.0.0.1",
			expectedIP: "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if ip := getClientIP(req); ip != tt.expectedIP {
				t.Errorf("getClientIP() = %v, want %v", ip, tt.expectedIP)
			}
		})
	}
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestDistributedRateLimiter_Allow(t *testing.T) {
	mr, client := newMiniredis(t)
	config := &RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute, BurstSize: 1}
	limiter := NewDistributedRateLimiter(client, config, "")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		ok, err := limiter.Allow(ctx, "actor:u-1")
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if ok, _ := limiter.Allow(ctx, "actor:u-1"); ok {
		t.Error("request over limit + burst should be rejected")
	}

	// Other keys have their own window
	if ok, _ := limiter.Allow(ctx, "actor:u-2"); !ok {
		t.Error("different key should be allowed")
	}

	if ttl := mr.TTL("gatekeeper:ratelimit:actor:u-1"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("unexpected window TTL %v", ttl)
	}

	// Window expiry resets the count
	mr.FastForward(time.Minute + time.Second)
	if ok, _ := limiter.Allow(ctx, "actor:u-1"); !ok {
		t.Error("request in a new window should be allowed")
	}
}

func TestDistributedRateLimiter_Reset(t *testing.T) {
	_, client := newMiniredis(t)
	limiter := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}, "rl")
	ctx := context.Background()

	limiter.Allow(ctx, "k")
	if ok, _ := limiter.Allow(ctx, "k"); ok {
		t.Fatal("second request should be rejected")
	}
	if err := limiter.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Error("request after reset should be allowed")
	}
}

func TestDistributedRateLimiter_RepairsMissingTTL(t *testing.T) {
	mr, client := newMiniredis(t)
	limiter := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}, "")

	// A counter left behind without an expiry
	if err := mr.Set("gatekeeper:ratelimit:ip:10.0.0.1", "3"); err != nil {
		t.Fatal(err)
	}

	if ok, err := limiter.Allow(context.Background(), "ip:10.0.0.1"); err != nil || !ok {
		t.Fatalf("Allow() = %v, %v", ok, err)
	}
	if ttl := mr.TTL("gatekeeper:ratelimit:ip:10.0.0.1"); ttl <= 0 {
		t.Errorf("expected the stranded counter to get a TTL, got %v", ttl)
	}
}

func TestDistributedRateLimiter_RedisDown(t *testing.T) {
	mr, client := newMiniredis(t)
	limiter := NewDistributedRateLimiter(client, nil, "")
	mr.Close()

	if _, err := limiter.Allow(context.Background(), "k"); err == nil {
		t.Error("expected an error with redis down")
	}
}

type erroringLimiter struct{}

func (erroringLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}
func (erroringLimiter) Config() *RateLimitConfig { return DefaultRateLimitConfig() }

func TestRateLimitMiddleware_Handler(t *testing.T) {
	config := &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute, BurstSize: 0}
	m := NewRateLimitMiddleware(NewRateLimiter(config), nil)
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(actorID, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/authorize", nil)
		req.RemoteAddr = ip
		if actorID != "" {
			req = req.WithContext(contextkeys.WithActorID(req.Context(), actorID))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := send("u-1", "10.0.0.1:1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, w.Code)
		}
	}

	w := send("u-1", "10.0.0.1:1")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", w.Header().Get("Retry-After"))
	}
	if w.Header().Get("X-RateLimit-Limit") != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want 2", w.Header().Get("X-RateLimit-Limit"))
	}

	// Another actor behind the same IP is limited separately
	if w := send("u-2", "10.0.0.1:1"); w.Code != http.StatusOK {
		t.Errorf("other actor: expected 200, got %d", w.Code)
	}

	// Anonymous requests fall back to the client IP
	send("", "10.0.0.9:1")
	send("", "10.0.0.9:1")
	if w := send("", "10.0.0.9:1"); w.Code != http.StatusTooManyRequests {
		t.Errorf("anonymous: expected 429, got %d", w.Code)
	}
	// A new connection from the same host shares the bucket
	if w := send("", "10.0.0.9:2"); w.Code != http.StatusTooManyRequests {
		t.Errorf("anonymous, new port: expected 429, got %d", w.Code)
	}
}

func TestRateLimitMiddleware_FailOpen(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m := NewRateLimitMiddleware(erroringLimiter{}, logger)

	called := false
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !called {
		t.Error("expected request to be served when the limiter fails")
	}
	if len(hook.Entries) != 1 {
		t.Errorf("expected one warning, got %d entries", len(hook.Entries))
	}

	m.failOpen = false
	w := httptest.NewRecorder()
	m.Handler(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("fail closed: expected 503, got %d", w.Code)
	}
}
