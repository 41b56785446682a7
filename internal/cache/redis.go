package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 250 * time.Millisecond

// Redis is a Cache backed by a shared Redis instance, used when revocation
// marks and lockout counters should be visible across processes. Every call
// carries a short timeout; failures degrade to cache misses.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// Unreachable cache is a miss, not a failure.
			return "", false
		}
		return "", false
	}

	return value, true
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	_ = r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *Redis) Incr(ctx context.Context, key string, ttl time.Duration) int64 {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	full := r.prefix + key
	count, err := r.client.Incr(ctx, full).Result()
	if err != nil {
		return 0
	}
	if count == 1 {
		_ = r.client.Expire(ctx, full, ttl).Err()
	}

	return count
}

func (r *Redis) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	_ = r.client.Del(ctx, r.prefix+key).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
