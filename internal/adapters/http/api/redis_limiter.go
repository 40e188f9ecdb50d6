package api

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/okian/verdict/pkg/logger"
)

// RedisRateLimiter shares submission windows across instances.
type RedisRateLimiter struct {
	client  *redis.Client
	log     logger.Logger
	prefix  string
	timeout time.Duration
}

// NewRedisRateLimiter wraps an existing client.
func NewRedisRateLimiter(client *redis.Client, log logger.Logger) *RedisRateLimiter {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisRateLimiter{
		client:  client,
		log:     log,
		prefix:  "verdict:ratelimit:",
		timeout: 250 * time.Millisecond,
	}
}

// DialRedisRateLimiter connects to addr and verifies it answers.
func DialRedisRateLimiter(ctx context.Context, addr, password string, db int, log logger.Logger) (*RedisRateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisRateLimiter(client, log), nil
}

// Allow implements RateLimiter. Redis failures let the request through.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) RateDecision {
	if limit <= 0 {
		return RateDecision{Allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	redisKey := rl.prefix + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := rl.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.ExpireNX(ctx, redisKey, window)
		ttl = p.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		rl.log.Error(ctx, "redis rate limiter error", logger.String("key", key), logger.Error(err))
		return RateDecision{Allowed: true}
	}
	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = window
	}
	count := int(incr.Val())
	return RateDecision{
		Allowed:   count <= limit,
		Count:     count,
		WindowEnd: time.Now().Add(remaining),
	}
}

// Close implements RateLimiter.
func (rl *RedisRateLimiter) Close() error {
	if rl.client == nil {
		return nil
	}
	return rl.client.Close()
}
