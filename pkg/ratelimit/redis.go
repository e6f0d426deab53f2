package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript атомарно чистит окно, проверяет и фиксирует запрос.
// Возвращает {allowed, remaining, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
	local current = redis.call('ZCARD', key)

	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window)
		return {1, limit - current - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {0, 0, tonumber(oldest[2])}
`)

// RedisLimiter Redis-based sliding window rate limiter
type RedisLimiter struct {
	client redis.UniversalClient
	config *Config
	seq    atomic.Uint64
}

// NewRedisLimiter создаёт Redis rate limiter и проверяет соединение
func NewRedisLimiter(cfg *Config) (*RedisLimiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisLimiterWithClient(client, cfg), nil
}

// NewRedisLimiterWithClient оборачивает готовый клиент
func NewRedisLimiterWithClient(client redis.UniversalClient, cfg *Config) *RedisLimiter {
	return &RedisLimiter{client: client, config: cfg}
}

func redisKey(key string) string {
	return "multimodal:ratelimit:" + key
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := time.Now().UnixMilli()
	window := l.config.Window.Milliseconds()
	member := fmt.Sprintf("%d:%d", now, l.seq.Add(1))

	res, err := slidingWindowScript.Run(ctx, l.client, []string{redisKey(key)},
		l.config.Requests, window, now, member).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis script error: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("unexpected redis script result %v", res)
	}

	d := Decision{
		Allowed:   res[0] == 1,
		Limit:     l.config.Requests,
		Remaining: int(res[1]),
	}
	if !d.Allowed && res[2] > 0 {
		d.RetryAfter = time.Duration(res[2]+window-now) * time.Millisecond
	}
	return d, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, redisKey(key)).Err()
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
