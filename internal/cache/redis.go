package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/review-feed/config"
)

// New returns a redis-backed cache, or Nop when no address is configured.
func New(ctx context.Context, cfg config.RedisConfig) (FeedCache, func() error, error) {
	if cfg.Addr == "" {
		return Nop{}, func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisCache(rdb, cfg.TTL), rdb.Close, nil
}
