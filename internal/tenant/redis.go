package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "tenant:"

// RedisRegistry reads tenants stored as plain string keys: <prefix><tenantID>
// holds the destination URL.
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps a configured client. An empty prefix selects "tenant:".
func NewRedis(client *redis.Client, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

// OpenRedis parses a redis:// or rediss:// URL and checks the connection.
func OpenRedis(ctx context.Context, rawURL, prefix string) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedis(client, prefix), nil
}

// Resolve returns the destination URL for tenantID.
func (r *RedisRegistry) Resolve(ctx context.Context, tenantID string) (string, error) {
	if err := checkID(tenantID); err != nil {
		return "", err
	}
	dest, err := r.client.Get(ctx, r.prefix+tenantID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", notFound(tenantID)
		}
		return "", unavailable("redis get", err)
	}
	return destination(tenantID, dest)
}

func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
