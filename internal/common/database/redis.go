package database

import (
	"context"
	"fmt"
	"time"

	"pulse-server/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient holds the connection pool shared by the routing cache and the
// readiness check.
type RedisClient struct {
	Client *redis.Client
}

// NewRedis does not dial; callers Ping to find out whether Redis is up.
// Timeouts are short because every caller treats Redis as optional.
func NewRedis(cfg config.RedisConfig) *RedisClient {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	return &RedisClient{Client: redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		PoolSize:     poolSize,
		MinIdleConns: poolSize / 4,
	})}
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
