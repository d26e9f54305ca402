package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSeenSet implements SeenSet with one expiring Redis key per id
type RedisSeenSet struct {
	client *redis.Client
	config *Config
}

// NewRedisSeenSet connects to Redis and verifies the connection
func NewRedisSeenSet(config *Config) (*RedisSeenSet, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:            config.Address(),
		Password:        config.Password,
		DB:              config.DB,
		MaxRetries:      config.MaxRetries,
		MinRetryBackoff: config.MinRetryBackoff,
		MaxRetryBackoff: config.MaxRetryBackoff,
		DialTimeout:     config.DialTimeout,
		ReadTimeout:     config.ReadTimeout,
		WriteTimeout:    config.WriteTimeout,
		PoolSize:        config.PoolSize,
		MinIdleConns:    config.MinIdleConns,
		ConnMaxIdleTime: config.MaxIdleTime,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSeenSet{
		client: client,
		config: config,
	}, nil
}

func (r *RedisSeenSet) key(id string) string {
	return r.config.KeyPrefix + id
}

// Seen reports whether id has been marked
func (r *RedisSeenSet) Seen(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}
	n, err := r.client.Exists(ctx, r.key(id)).Result()
	if err != nil {
		return false, NewCacheError("failed to check message id", true).WithError(err)
	}
	return n > 0, nil
}

// Mark records id for the configured TTL. The first mark wins, so the TTL is
// not extended by redeliveries.
func (r *RedisSeenSet) Mark(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	value := time.Now().UTC().Format(time.RFC3339)
	if err := r.client.SetNX(ctx, r.key(id), value, r.config.SeenTTL).Err(); err != nil {
		return NewCacheError("failed to mark message id", true).WithError(err)
	}
	return nil
}

// Forget removes id so that a later delivery is submitted again
func (r *RedisSeenSet) Forget(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return NewCacheError("failed to forget message id", true).WithError(err)
	}
	return nil
}

// Ping checks if Redis is healthy
func (r *RedisSeenSet) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewCacheError("ping failed", false).WithError(err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisSeenSet) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Stats returns Redis connection pool stats
func (r *RedisSeenSet) Stats() *redis.PoolStats {
	if r.client != nil {
		return r.client.PoolStats()
	}
	return nil
}
