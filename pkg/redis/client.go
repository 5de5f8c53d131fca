package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Nil is returned by Get when the key does not exist.
const Nil = redis.Nil

type Client struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewClient creates a new Redis client
func NewClient(redisURL string, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 20
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb, log: log}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Health checks the Redis connection
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Get retrieves a value from Redis
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		c.log.Warn("redis_get", zap.String("key", key), zap.Duration("duration", time.Since(start)), zap.Error(err))
	} else {
		c.log.Debug("redis_get", zap.String("key", key), zap.Duration("duration", time.Since(start)))
	}
	return val, err
}

// Set stores a value in Redis with TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, value, ttl).Err()
	if err != nil {
		c.log.Warn("redis_set", zap.String("key", key), zap.Duration("duration", time.Since(start)), zap.Error(err))
	} else {
		c.log.Debug("redis_set", zap.String("key", key), zap.Duration("duration", time.Since(start)))
	}
	return err
}

// Delete removes keys from Redis
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	err := c.rdb.Del(ctx, keys...).Err()
	c.log.Debug("redis_del", zap.Int("keys", len(keys)), zap.Error(err))
	return err
}
