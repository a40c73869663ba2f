package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more attempt for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// NopLimiter allows everything. It is used when no Redis is configured.
type NopLimiter struct{}

func (NopLimiter) Allow(context.Context, string) (bool, time.Duration, error) { return true, 0, nil }

// RedisLimiter is a fixed-window counter: the first hit in a window sets the key TTL.
type RedisLimiter struct {
	rdb    redis.Cmdable
	max    int64
	window time.Duration
	prefix string
}

// NewRedisLimiter allows max attempts per key per window.
func NewRedisLimiter(rdb redis.Cmdable, max int, window time.Duration) (*RedisLimiter, error) {
	if rdb == nil {
		return nil, fmt.Errorf("rate limit: nil redis client")
	}
	if max <= 0 || window <= 0 {
		return nil, fmt.Errorf("rate limit: max and window must be positive")
	}
	return &RedisLimiter{rdb: rdb, max: int64(max), window: window, prefix: "folio:rl:"}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + key

	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return true, 0, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return true, 0, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	if count <= l.max {
		return true, 0, nil
	}

	ttl, err := l.rdb.TTL(ctx, k).Result()
	if err != nil || ttl <= 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

// limit applies the limiter for bucket and the client IP. It writes a 429 and
// reports false when the caller is over budget. Limiter failures fail open.
func (h *Handler) limit(w http.ResponseWriter, r *http.Request, bucket string) bool {
	ip := clientIP(r, h.cfg.TrustProxy)
	if ip == nil {
		return true
	}

	allowed, retryAfter, err := h.limiter.Allow(r.Context(), bucket+":"+ip.String())
	if err != nil {
		h.log.Warn("auth.rate_limit.unavailable", "bucket", bucket, "err", err)
		return true
	}
	if allowed {
		return true
	}

	h.audit.Record(r.Context(), Event{Action: "auth.rate_limited", IP: ip.String(), UserAgent: r.UserAgent(), Meta: map[string]any{"bucket": bucket}})
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()+0.5), 10))
	}
	writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many attempts")
	return false
}
