package httpapi

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aformulationoftruth/server/internal/logging"
)

// Limiter answers whether a request identified by key stays within limit
// requests per window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) bool
}

// MemoryLimiter is a fixed-window counter for single-instance deployments.
type MemoryLimiter struct {
	mu   sync.Mutex
	data map[string]bucket
}

type bucket struct {
	window time.Time
	count  int
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{data: make(map[string]bucket)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	win := time.Now().Truncate(window)
	b, ok := l.data[key]
	if !ok || b.window.Before(win) {
		l.data[key] = bucket{window: win, count: 1}
		return true
	}
	if b.count >= limit {
		return false
	}
	b.count++
	l.data[key] = b
	return true
}

// RedisLimiter shares counters across instances: INCR per key, TTL set on
// first increment. A redis outage fails open so authentication keeps
// working without the shared limit.
type RedisLimiter struct {
	client *redis.Client
	logger logging.Logger
}

func NewRedisLimiter(client *redis.Client, logger logging.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, logger: logger.With("module", "ratelimit")}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	rk := "ratelimit:" + key
	n, err := l.client.Incr(ctx, rk).Result()
	if err != nil {
		l.logger.Warn(ctx, "limiter unavailable, failing open", "error", err.Error())
		return true
	}
	if n == 1 {
		if err := l.client.Expire(ctx, rk, window).Err(); err != nil {
			l.logger.Warn(ctx, "limiter expire failed", "error", err.Error())
		}
	}
	return n <= int64(limit)
}

// limitIP enforces a per-IP limit before the body is read. Email keys are
// checked inside the handler once the body is parsed.
func (s *Server) limitIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := keyIP(r); key != "" && !s.limiter.Allow(r.Context(), key, limit, window) {
				writeError(w, http.StatusTooManyRequests, "rate_limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func keyIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return ""
	}
	return "ip:" + host
}

func keyEmail(normalized string) string {
	if normalized == "" {
		return ""
	}
	return "email:" + normalized
}
