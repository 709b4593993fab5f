package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/k-avy/weatherCli/internal/config"
	"github.com/k-avy/weatherCli/internal/query"
)

const (
	msgTooManyRequests = "429 Too Many Requests"
	// noParam is the bucket for requests that lack the limited parameter.
	noParam = "__none__"
)

// Limiter decides whether one more request for key is allowed now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// visitor holds the rate limiter and last seen time for one key.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory.
type MemoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewMemoryLimiter allows perMinute requests per minute per key, with the
// given burst.
func NewMemoryLimiter(perMinute float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(perMinute / 60.0),
		burst:    burst,
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	v, exists := l.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1), nil
}

// Cleanup removes keys that have not been seen for longer than maxIdle.
func (l *MemoryLimiter) Cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > maxIdle {
			delete(l.visitors, key)
		}
	}
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (l *MemoryLimiter) StartCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup(maxIdle)
			}
		}
	}()
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// RedisLimiter counts requests per key in fixed windows stored in Redis, so
// several proxy instances share one budget.
type RedisLimiter struct {
	client redisv9.Cmdable
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisLimiter allows limit requests per key in every window.
func NewRedisLimiter(client redisv9.Cmdable, prefix string, limit int, window time.Duration) *RedisLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
	}
}

// Allow increments the window counter and sets its expiry in one transaction.
// The expiry is only set when the key has none, so a window is never extended
// and a key left without a TTL heals on the next request.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key
	var incr *redisv9.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= l.limit, nil
}

// RateLimiter enforces a global limit per client IP and a second limit per
// client IP and parameter value.
type RateLimiter struct {
	global   Limiter
	param    Limiter
	paramKey string
	logger   *zap.SugaredLogger
}

func NewRateLimiter(global, param Limiter, paramKey string, logger *zap.SugaredLogger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RateLimiter{
		global:   global,
		param:    param,
		paramKey: paramKey,
		logger:   logger,
	}
}

// NewMemoryRateLimiter builds the in-process limiter pair from cfg and starts
// their idle cleanup, which stops with ctx.
func NewMemoryRateLimiter(ctx context.Context, cfg config.RateLimiterConfig, paramKey string, logger *zap.SugaredLogger) *RateLimiter {
	global := NewMemoryLimiter(cfg.Global.Rate, cfg.Global.Burst)
	param := NewMemoryLimiter(cfg.Param.Rate, cfg.Param.Burst)
	if cfg.CleanupTimeout > 0 {
		global.StartCleanup(ctx, time.Minute, cfg.CleanupTimeout)
		param.StartCleanup(ctx, time.Minute, cfg.CleanupTimeout)
	}
	return NewRateLimiter(global, param, paramKey, logger)
}

// NewRedisRateLimiter builds the shared limiter pair. Rates are applied as
// requests per one-minute window.
func NewRedisRateLimiter(client redisv9.Cmdable, cfg config.RateLimiterConfig, paramKey string, logger *zap.SugaredLogger) *RateLimiter {
	global := NewRedisLimiter(client, "ratelimit:global:", int(cfg.Global.Rate), time.Minute)
	param := NewRedisLimiter(client, "ratelimit:param:", int(cfg.Param.Rate), time.Minute)
	return NewRateLimiter(global, param, paramKey, logger)
}

// Middleware answers 429 once either limit is exhausted. Backend errors let
// the request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getIP(r)
		param := query.Parse(r.URL.RawQuery)[rl.paramKey]
		if param == "" {
			param = noParam
		}

		if !rl.allow(r.Context(), rl.global, ip, "global") ||
			!rl.allow(r.Context(), rl.param, ip+"|"+param, "param") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(msgTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ctx context.Context, l Limiter, key, scope string) bool {
	ok, err := l.Allow(ctx, key)
	if err != nil {
		rl.logger.Warnw("rate limiter unavailable", "scope", scope, "error", err)
		return true
	}
	if !ok {
		rl.logger.Infow("rate limit exceeded", "scope", scope, "key", key)
	}
	return ok
}

// getIP extracts the client's IP address from the HTTP request, considering X-Forwarded-For headers.
func getIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
