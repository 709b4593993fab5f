package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-avy/weatherCli/internal/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func testLimiterConfig() config.RateLimiterConfig {
	return config.RateLimiterConfig{
		Enabled: true,
		Global:  config.LimitConfig{Rate: 10, Burst: 10},
		Param:   config.LimitConfig{Rate: 2, Burst: 2},
	}
}

func serve(h http.Handler, target, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimitMiddleware_GlobalBurst(t *testing.T) {
	rl := NewMemoryRateLimiter(context.Background(), testLimiterConfig(), "city", nil)
	mw := rl.Middleware(okHandler)
	ip := "1.2.3.4:1234"

	for i := 0; i < 10; i++ {
		rr := serve(mw, fmt.Sprintf("/weather?city=city%d", i), ip)
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}

	rr := serve(mw, "/weather?city=another", ip)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "429 Too Many Requests", rr.Body.String())

	// other clients keep their own budget
	rr = serve(mw, "/weather?city=another", "5.6.7.8:1234")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitMiddleware_PerParamBurst(t *testing.T) {
	rl := NewMemoryRateLimiter(context.Background(), testLimiterConfig(), "city", nil)
	mw := rl.Middleware(okHandler)
	ip := "2.3.4.5:2345"

	for i := 0; i < 2; i++ {
		rr := serve(mw, "/weather?city=London", ip)
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}

	rr := serve(mw, "/weather?city=London", ip)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = serve(mw, "/weather?city=Paris", ip)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitMiddleware_MissingParamSharesBucket(t *testing.T) {
	rl := NewMemoryRateLimiter(context.Background(), testLimiterConfig(), "city", nil)
	mw := rl.Middleware(okHandler)
	ip := "3.4.5.6:1"

	assert.Equal(t, http.StatusOK, serve(mw, "/weather", ip).Code)
	assert.Equal(t, http.StatusOK, serve(mw, "/weather?city=", ip).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(mw, "/weather", ip).Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("backend down")
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	rl := NewRateLimiter(failingLimiter{}, failingLimiter{}, "city", nil)
	rr := serve(rl.Middleware(okHandler), "/weather?city=London", "1.1.1.1:1")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, 2)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "stale")
	now = now.Add(2 * time.Minute)
	_, _ = l.Allow(context.Background(), "fresh")
	now = now.Add(2 * time.Minute)

	l.Cleanup(3 * time.Minute)
	assert.Equal(t, 1, l.size())
	_, stale := l.visitors["stale"]
	assert.False(t, stale)
}

func TestMemoryLimiter_Refill(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, 1)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "k")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k")
	assert.False(t, ok)

	now = now.Add(45 * time.Second)
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client, "ratelimit:test:", 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, mr.Exists("ratelimit:test:1.2.3.4"))
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:test:1.2.3.4"))

	mr.FastForward(time.Minute + time.Second)
	ok, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_RestoresMissingExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	defer client.Close()

	// a counter over the limit that never got its expiry
	require.NoError(t, mr.Set("ratelimit:test:1.2.3.4", "5"))
	require.Zero(t, mr.TTL("ratelimit:test:1.2.3.4"))

	l := NewRedisLimiter(client, "ratelimit:test:", 2, time.Minute)
	ok, err := l.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:test:1.2.3.4"))

	mr.FastForward(time.Minute + time.Second)
	ok, err = l.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_KeepsWindowExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client, "ratelimit:test:", 5, time.Minute)
	ctx := context.Background()

	_, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(40 * time.Second)
	_, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, mr.TTL("ratelimit:test:k"))
}

func TestRedisRateLimiter_Middleware(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	defer client.Close()

	mw := NewRedisRateLimiter(client, testLimiterConfig(), "city", nil).Middleware(okHandler)
	ip := "9.9.9.9:99"

	assert.Equal(t, http.StatusOK, serve(mw, "/weather?city=Lima", ip).Code)
	assert.Equal(t, http.StatusOK, serve(mw, "/weather?city=Lima", ip).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(mw, "/weather?city=Lima", ip).Code)
}

func TestRedisLimiter_BackendError(t *testing.T) {
	client := redisv9.NewClient(&redisv9.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	_, err := NewRedisLimiter(client, "p:", 2, time.Minute).Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestGetIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getIP(req))

	req = httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.RemoteAddr = "not-a-host-port"
	assert.Equal(t, "not-a-host-port", getIP(req))
}
