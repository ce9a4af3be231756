package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis backs the cache with a Redis instance so cached authorization
// lookups and counters are shared across engine processes.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		logger: logger,
	}
}

// NewRedisFromURL connects from a redis:// URL and verifies the connection.
func NewRedisFromURL(ctx context.Context, logger *slog.Logger, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedis(client, logger), nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.ErrorContext(ctx, "cache get failed", "key", key, "error", err)
		}

		return "", false
	}

	return value, true
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.ErrorContext(ctx, "cache set failed", "key", key, "error", err)
	}
}

func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.ErrorContext(ctx, "cache delete failed", "key", key, "error", err)
	}
}

func (r *Redis) Invalidate(ctx context.Context, prefix string) {
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()

	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.logger.ErrorContext(ctx, "cache invalidate failed", "key", iter.Val(), "error", err)
		}
	}

	if err := iter.Err(); err != nil {
		r.logger.ErrorContext(ctx, "cache invalidate scan failed", "prefix", prefix, "error", err)
	}
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
