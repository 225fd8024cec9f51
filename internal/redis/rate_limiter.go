package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter caps how many sends a notification channel accepts per window,
// using a sliding-window count in Redis. It protects external providers
// (SMTP relays, the Telegram API) from a misbehaving sweep.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Limit() int
}

// allowScript evicts aged entries, checks capacity and records the send in
// one atomic step. The check runs before the add, so a denied send occupies
// no window slot and capacity returns as soon as the admitted sends age out.
var allowScript = redis.NewScript(`
	redis.call("zremrangebyscore", KEYS[1], 0, ARGV[1])
	if redis.call("zcard", KEYS[1]) >= tonumber(ARGV[2]) then
		return 0
	end
	redis.call("zadd", KEYS[1], ARGV[3], ARGV[3])
	redis.call("pexpire", KEYS[1], ARGV[4])
	return 1
`)

type slidingWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter returns a Redis-backed sliding-window rate limiter.
// limit is the maximum number of sends allowed per window for one channel.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) RateLimiter {
	return &slidingWindowLimiter{client: client, limit: limit, window: window}
}

func (r *slidingWindowLimiter) Limit() int { return r.limit }

// Allow returns true when the send is within the allowed rate. It uses a
// Redis sorted set as a timestamp ring buffer, admitted sends only.
func (r *slidingWindowLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - r.window.Nanoseconds()
	key := "ratelimit:channel:" + channel

	res, err := allowScript.Run(ctx, r.client, []string{key},
		windowStart, r.limit, now, (r.window * 2).Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limiter for %q: %w", channel, err)
	}
	return res == 1, nil
}
