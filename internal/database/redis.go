package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zarlabs/zar/internal/config"
)

// Key prefixes shared across the cache's tenants. Keeping them in one place
// prevents collisions between the rate limiter, the safety screen, and the
// response cache.
const (
	RateLimitKeyPrefix  = "rate_limit:"
	SafeDomainKeyPrefix = "safe_domains:"
)

// RateLimitKey returns the fixed-window counter key for a client identifier.
func RateLimitKey(identifier string) string {
	return RateLimitKeyPrefix + identifier
}

// SafeDomainKey returns the verdict-cache key for a canonical domain.
func SafeDomainKey(canonical string) string {
	return SafeDomainKeyPrefix + canonical
}

// RedisDB wraps the Redis client with the operations the service needs: typed
// get/set with TTL, JSON helpers, the rate-limit pipeline, and bounded
// pattern scans for the admin surface.
type RedisDB struct {
	Client *redis.Client
}

// NewRedisDB connects and validates the connection with a ping.
func NewRedisDB(ctx context.Context, cfg config.RedisConfig) (*RedisDB, error) {
	opt := &redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisDB{Client: client}, nil
}

// NewRedisDBFromClient wraps an existing client. Tests use this with
// miniredis.
func NewRedisDBFromClient(client *redis.Client) *RedisDB {
	return &RedisDB{Client: client}
}

// Close shuts down the client.
func (r *RedisDB) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Health pings Redis with a short deadline.
func (r *RedisDB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.Client.Ping(ctx).Err()
}

// Get retrieves a value. A missing key returns (nil, nil); only transport
// failures surface as errors.
func (r *RedisDB) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := r.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return result, nil
}

// GetString retrieves a value as a string, with found reporting.
func (r *RedisDB) GetString(ctx context.Context, key string) (string, bool, error) {
	result, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return result, true, nil
}

// SetWithTTL stores a value that expires after ttl.
func (r *RedisDB) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.Client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// SetString stores a string value that expires after ttl.
func (r *RedisDB) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.SetWithTTL(ctx, key, []byte(value), ttl)
}

// Delete removes keys. Missing keys are not an error.
func (r *RedisDB) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.Client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// KeysByPrefix lists keys matching prefix*. Bounded use only: the admin
// cache-invalidation path and tests.
func (r *RedisDB) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	keys, err := r.Client.Keys(ctx, prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys: %w", err)
	}
	return keys, nil
}

// IncrementWindow atomically bumps a fixed-window counter and refreshes its
// TTL in a single pipeline round-trip, returning the post-increment count and
// the remaining window.
func (r *RedisDB) IncrementWindow(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error) {
	pipe := r.Client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	ttlCmd := pipe.TTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("rate limit pipeline: %w", err)
	}

	return incr.Val(), ttlCmd.Val(), nil
}

// GetJSON retrieves and unmarshals a JSON value, with found reporting.
func (r *RedisDB) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := r.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshal cached value: %w", err)
	}
	return true, nil
}

// SetJSON marshals and stores a value as JSON with the given TTL.
func (r *RedisDB) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return r.SetWithTTL(ctx, key, data, ttl)
}
