package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, counts and admits atomically.
// KEYS[1]=key ARGV: now_ms, window_ms, limit, member
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
	return {0, 0}
end
redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, limit - count - 1}
`)

// RateLimiter is a sliding-window limit shared by every process using the same redis
// ⭐ SSOT: 레이트 리밋은 여기서만
type RateLimiter struct {
	client *Client
	prefix string
	seq    atomic.Uint64
	now    func() time.Time
}

// RateLimitConfig defines one limit
type RateLimitConfig struct {
	Key    string        // "kite:orders"
	Limit  int           // requests per window
	Window time.Duration
}

// retryAfter is the pause before asking again after a refusal
func (c RateLimitConfig) retryAfter() time.Duration {
	if c.Limit <= 0 {
		return c.Window
	}
	d := c.Window / time.Duration(c.Limit)
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

// NewRateLimiter creates a limiter; a disabled client admits everything
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Allow reports whether one more request fits and how many remain in the window
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (bool, int, error) {
	if !r.client.Enabled() {
		return true, cfg.Limit, nil
	}

	now := r.now().UnixMilli()
	// 같은 밀리초 요청도 구분되도록 시퀀스를 붙임
	member := fmt.Sprintf("%d-%d", now, r.seq.Add(1))

	result, err := slidingWindow.Run(ctx, r.client.Redis(),
		[]string{r.prefix + ":ratelimit:" + cfg.Key},
		now, cfg.Window.Milliseconds(), cfg.Limit, member,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", cfg.Key, err)
	}
	if len(result) != 2 {
		return false, 0, fmt.Errorf("rate limit %s: unexpected reply %v", cfg.Key, result)
	}

	return result[0] == 1, int(result[1]), nil
}

// Wait blocks until a request is admitted or ctx ends
func (r *RateLimiter) Wait(ctx context.Context, cfg RateLimitConfig) error {
	pause := cfg.retryAfter()

	for {
		allowed, _, err := r.Allow(ctx, cfg)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

// Kite venue limits shared by processes trading the same account
var (
	// 주문 생성/수정: 초당 10회
	KiteOrderRateLimit = RateLimitConfig{Key: "kite:orders", Limit: 10, Window: time.Second}

	// 시세/포트폴리오 조회: 초당 10회 (보수적)
	KiteQuoteRateLimit = RateLimitConfig{Key: "kite:quotes", Limit: 10, Window: time.Second}
)
